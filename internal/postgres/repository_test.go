package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/paint-and-guess/internal/domain"
)

func TestRoundArgs_MatchInsertColumns(t *testing.T) {
	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rec := domain.RoundRecord{
		ID:         "7f1c2a8e-3d4b-4c6a-9e1f-0a2b3c4d5e6f",
		RoomID:     "main",
		Round:      3,
		Word:       "Lemon",
		DrawerName: "alice",
		Guessers:   2,
		Reason:     domain.StopComplete,
		StartedAt:  started,
		EndedAt:    started.Add(40 * time.Second),
	}

	args := roundArgs(rec)
	assert.Len(t, args, 9)
	assert.Equal(t, int64(3), args[2])
	assert.Equal(t, "complete", args[6])
	assert.Equal(t, started, args[7])
}

func TestRecordRounds_EmptyBatchIsNoop(t *testing.T) {
	r := &Repository{}
	assert.NoError(t, r.RecordRounds(context.Background(), nil))
}
