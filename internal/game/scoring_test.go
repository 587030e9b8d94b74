package game

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/paint-and-guess/internal/domain"
)

func testPlayer(id, name string, score int64) domain.Player {
	return domain.Player{ID: id, Name: name, Score: score}
}

func TestDecayPolicy(t *testing.T) {
	policy := DecayPolicy(100, 10, 10)
	round := 80 * time.Second

	tests := []struct {
		name    string
		elapsed time.Duration
		rank    int
		want    int64
	}{
		{"first guess at start", 0, 1, 100},
		{"first guess halfway", 40 * time.Second, 1, 55},
		{"first guess at the buzzer", round, 1, 10},
		{"overtime clamps", 2 * round, 1, 10},
		{"second guess at start", 0, 2, 90},
		{"late rank never drops below minimum", 70 * time.Second, 9, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := policy(AwardContext{Elapsed: tt.elapsed, RoundDuration: round, Rank: tt.rank})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecayPolicy_EarlierIsWorthMore(t *testing.T) {
	policy := DecayPolicy(100, 10, 10)
	prev := int64(1 << 62)
	for s := 0; s <= 80; s++ {
		got := policy(AwardContext{Elapsed: time.Duration(s) * time.Second, RoundDuration: 80 * time.Second, Rank: 1})
		assert.LessOrEqual(t, got, prev)
		assert.Positive(t, got)
		prev = got
	}
}

func TestScoreEngine_DrawerShare(t *testing.T) {
	engine := NewScoreEngine(DecayPolicy(100, 10, 10), 5)

	for s := 0; s <= 80; s += 7 {
		for rank := 1; rank <= 6; rank++ {
			guesser, drawer := engine.Calculate(AwardContext{
				Elapsed:       time.Duration(s) * time.Second,
				RoundDuration: 80 * time.Second,
				Rank:          rank,
			})
			assert.Positive(t, guesser)
			assert.GreaterOrEqual(t, guesser, drawer*5)
			assert.Equal(t, guesser/5, drawer)
		}
	}
}

func TestScoreEngine_DrawerShareRoundsDown(t *testing.T) {
	tests := []struct {
		guesser int64
		drawer  int64
	}{
		{100, 20},
		{93, 18},
		{4, 0},
		{1, 0},
	}

	for _, tt := range tests {
		engine := NewScoreEngine(func(AwardContext) int64 { return tt.guesser }, 5)
		guesser, drawer := engine.Calculate(AwardContext{})
		assert.Equal(t, tt.guesser, guesser)
		assert.Equal(t, tt.drawer, drawer, "guess worth %d", tt.guesser)
	}
}

func TestScoreEngine_ClampsPolicyToPositive(t *testing.T) {
	engine := NewScoreEngine(func(AwardContext) int64 { return -4 }, 0)

	guesser, drawer := engine.Calculate(AwardContext{})
	assert.Equal(t, int64(1), guesser)
	assert.Equal(t, int64(1), drawer)
}

func TestAwards_OrderDoesNotChangeTotals(t *testing.T) {
	awards := []Award{{"bob", 100}, {"alice", 20}, {"carol", 90}, {"alice", 18}}

	forward := newMemoryStore()
	for _, a := range awards {
		_ = forward.AwardPoints(context.Background(), a)
	}
	backward := newMemoryStore()
	for i := len(awards) - 1; i >= 0; i-- {
		_ = backward.AwardPoints(context.Background(), awards[i])
	}

	assert.Equal(t, forward.scores, backward.scores)
	assert.Equal(t, int64(38), forward.scores["alice"])
}
