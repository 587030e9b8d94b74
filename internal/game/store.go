package game

import (
	"context"
	"log/slog"

	"github.com/paint-and-guess/internal/domain"
)

// Award is a score increment for one player name
type Award struct {
	Name   string
	Points int64
}

// Store is the shared backing store for words, scores and chat history.
// It is shared by every room and must be safe for concurrent use.
type Store interface {
	// RandomWord picks a word from the shared word set
	RandomWord(ctx context.Context) (string, error)

	// EnsurePlayer returns the persistent score of name, initialising it to
	// zero when absent.
	EnsurePlayer(ctx context.Context, name string) (int64, error)

	// AwardPoints applies every award atomically
	AwardPoints(ctx context.Context, awards ...Award) error

	// Leaderboard lists the top scores, highest first. limit <= 0 means all.
	Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error)

	// AppendChat pushes a message and trims the history to keep entries
	AppendChat(ctx context.Context, msg domain.ChatMessage, keep int) error

	// ChatHistory returns up to limit recent messages, oldest first
	ChatHistory(ctx context.Context, limit int) ([]domain.ChatMessage, error)
}

// RoundRecorder receives a record of every round that ends
type RoundRecorder interface {
	RecordRound(ctx context.Context, rec domain.RoundRecord) error
}

// LogRecorder is the RoundRecorder used when no history backend is configured
type LogRecorder struct {
	Logger *slog.Logger
}

func (r LogRecorder) RecordRound(_ context.Context, rec domain.RoundRecord) error {
	if r.Logger != nil {
		r.Logger.Info("round finished",
			"room", rec.RoomID,
			"round", rec.Round,
			"reason", rec.Reason,
			"guessers", rec.Guessers,
		)
	}
	return nil
}
