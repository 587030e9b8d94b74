package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/paint-and-guess/internal/config"
	"github.com/paint-and-guess/internal/domain"
)

type MockScores struct {
	mock.Mock
}

func (m *MockScores) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	args := m.Called(ctx, limit)
	entries, _ := args.Get(0).([]domain.LeaderboardEntry)
	return entries, args.Error(1)
}

func (m *MockScores) PlayerScore(ctx context.Context, name string) (domain.LeaderboardEntry, int64, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(domain.LeaderboardEntry), args.Get(1).(int64), args.Error(2)
}

func (m *MockScores) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockScores) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type staticRooms struct {
	rooms []domain.RoomSummary
}

func (r staticRooms) Summaries(context.Context) []domain.RoomSummary { return r.rooms }

func (r staticRooms) Summary(_ context.Context, id string) (domain.RoomSummary, error) {
	for _, room := range r.rooms {
		if room.ID == id {
			return room, nil
		}
	}
	return domain.RoomSummary{}, domain.ErrRoomNotFound
}

type fakeHistory struct {
	rounds  []domain.RoundRecord
	pingErr error
	limit   int
}

func (h *fakeHistory) RecentRounds(_ context.Context, _ string, limit int) ([]domain.RoundRecord, error) {
	h.limit = limit
	return h.rounds, nil
}

func (h *fakeHistory) Ping(context.Context) error { return h.pingErr }

func newTestService(scores Scores, history RoundHistory) *LobbyService {
	cfg := config.DefaultConfig().Game
	return NewLobbyService(scores, staticRooms{rooms: []domain.RoomSummary{{ID: "main"}}}, history, &cfg,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestGetLeaderboard_ClampsLimit(t *testing.T) {
	scores := &MockScores{}
	scores.On("Leaderboard", mock.Anything, 100).Return([]domain.LeaderboardEntry{{Name: "bob", Score: 100}}, nil).Twice()
	scores.On("Leaderboard", mock.Anything, 5).Return([]domain.LeaderboardEntry{}, nil).Once()
	svc := newTestService(scores, nil)

	entries, err := svc.GetLeaderboard(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	_, err = svc.GetLeaderboard(context.Background(), 5000)
	require.NoError(t, err)
	_, err = svc.GetLeaderboard(context.Background(), 5)
	require.NoError(t, err)

	scores.AssertExpectations(t)
}

func TestGetPlayerStanding(t *testing.T) {
	scores := &MockScores{}
	scores.On("PlayerScore", mock.Anything, "alice").Return(domain.LeaderboardEntry{Name: "alice", Score: 38}, int64(2), nil)
	scores.On("PlayerScore", mock.Anything, "zed").Return(domain.LeaderboardEntry{}, int64(0), domain.ErrPlayerNotFound)
	svc := newTestService(scores, nil)

	standing, err := svc.GetPlayerStanding(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, &domain.PlayerStanding{Name: "alice", Score: 38, Rank: 2}, standing)

	_, err = svc.GetPlayerStanding(context.Background(), "zed")
	assert.ErrorIs(t, err, domain.ErrPlayerNotFound)
}

func TestGetStats(t *testing.T) {
	scores := &MockScores{}
	scores.On("Count", mock.Anything).Return(int64(3), nil)
	scores.On("Leaderboard", mock.Anything, 1).Return([]domain.LeaderboardEntry{{Name: "bob", Score: 100}}, nil)

	stats, err := newTestService(scores, nil).GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalPlayers)
	assert.Equal(t, int64(100), stats.TopScore)
}

func TestRooms(t *testing.T) {
	svc := newTestService(&MockScores{}, nil)

	assert.Len(t, svc.ListRooms(context.Background()), 1)
	_, err := svc.GetRoom(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestRecentRounds(t *testing.T) {
	_, err := newTestService(&MockScores{}, nil).RecentRounds(context.Background(), "", 10)
	assert.ErrorIs(t, err, domain.ErrHistoryDisabled)

	history := &fakeHistory{rounds: []domain.RoundRecord{{ID: "r1", Word: "Lemon"}}}
	rounds, err := newTestService(&MockScores{}, history).RecentRounds(context.Background(), "main", 0)
	require.NoError(t, err)
	assert.Len(t, rounds, 1)
	assert.Equal(t, 20, history.limit)
}

func TestReady(t *testing.T) {
	scores := &MockScores{}
	scores.On("Ping", mock.Anything).Return(nil)
	history := &fakeHistory{}
	svc := newTestService(scores, history)
	assert.NoError(t, svc.Ready(context.Background()))

	history.pingErr = errors.New("connection refused")
	assert.Error(t, svc.Ready(context.Background()))
}
