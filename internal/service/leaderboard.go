package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/paint-and-guess/internal/config"
	"github.com/paint-and-guess/internal/domain"
)

// Scores is the read side of the persistent score set
type Scores interface {
	Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error)
	PlayerScore(ctx context.Context, name string) (domain.LeaderboardEntry, int64, error)
	Count(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
}

// Rooms lists the rooms hosted by this process
type Rooms interface {
	Summaries(ctx context.Context) []domain.RoomSummary
	Summary(ctx context.Context, roomID string) (domain.RoomSummary, error)
}

// RoundHistory is the archive of finished rounds
type RoundHistory interface {
	RecentRounds(ctx context.Context, roomID string, limit int) ([]domain.RoundRecord, error)
	Ping(ctx context.Context) error
}

// LobbyService answers the read-only HTTP API: scores, rooms and past rounds
type LobbyService struct {
	scores  Scores
	rooms   Rooms
	history RoundHistory
	config  *config.GameConfig
	logger  *slog.Logger
}

// NewLobbyService creates a new lobby service. history may be nil when no
// round archive is configured.
func NewLobbyService(
	scores Scores,
	rooms Rooms,
	history RoundHistory,
	cfg *config.GameConfig,
	logger *slog.Logger,
) *LobbyService {
	return &LobbyService{
		scores:  scores,
		rooms:   rooms,
		history: history,
		config:  cfg,
		logger:  logger,
	}
}

func (s *LobbyService) clampLimit(n int) int {
	if n <= 0 || n > s.config.LeaderboardTop {
		return s.config.LeaderboardTop
	}
	return n
}

// GetLeaderboard returns the top players by total score
func (s *LobbyService) GetLeaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	entries, err := s.scores.Leaderboard(ctx, s.clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("getting leaderboard: %w", err)
	}
	return entries, nil
}

// GetPlayerStanding returns a player's score and rank
func (s *LobbyService) GetPlayerStanding(ctx context.Context, name string) (*domain.PlayerStanding, error) {
	entry, rank, err := s.scores.PlayerScore(ctx, name)
	if err != nil {
		return nil, err
	}
	return &domain.PlayerStanding{Name: entry.Name, Score: entry.Score, Rank: rank}, nil
}

// GetStats returns statistics for the leaderboard
func (s *LobbyService) GetStats(ctx context.Context) (*domain.LeaderboardStats, error) {
	count, err := s.scores.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting count: %w", err)
	}

	stats := &domain.LeaderboardStats{TotalPlayers: count}

	top, err := s.scores.Leaderboard(ctx, 1)
	if err == nil && len(top) > 0 {
		stats.TopScore = top[0].Score
	}
	return stats, nil
}

// ListRooms describes every live room
func (s *LobbyService) ListRooms(ctx context.Context) []domain.RoomSummary {
	return s.rooms.Summaries(ctx)
}

// GetRoom describes one live room
func (s *LobbyService) GetRoom(ctx context.Context, roomID string) (domain.RoomSummary, error) {
	return s.rooms.Summary(ctx, roomID)
}

// RecentRounds lists finished rounds, newest first
func (s *LobbyService) RecentRounds(ctx context.Context, roomID string, limit int) ([]domain.RoundRecord, error) {
	if s.history == nil {
		return nil, domain.ErrHistoryDisabled
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rounds, err := s.history.RecentRounds(ctx, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing rounds: %w", err)
	}
	return rounds, nil
}

// Ready reports whether the backing stores answer
func (s *LobbyService) Ready(ctx context.Context) error {
	var errs []error
	if err := s.scores.Ping(ctx); err != nil {
		errs = append(errs, err)
	}
	if s.history != nil {
		if err := s.history.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("round history: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		s.logger.Warn("readiness check failed", "error", err)
		return err
	}
	return nil
}
