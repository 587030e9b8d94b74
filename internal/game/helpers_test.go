package game

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/paint-and-guess/internal/config"
	"github.com/paint-and-guess/internal/domain"
)

// recordingBroadcaster resolves room scopes against the connections it was
// told about and keeps, per connection, the events it would have received.
type recordingBroadcaster struct {
	mu        sync.Mutex
	conns     []string
	delivered map[string][]domain.Event
	log       []emission
}

type emission struct {
	scope  string
	target string
	ev     domain.Event
}

func newRecordingBroadcaster() *recordingBroadcaster {
	return &recordingBroadcaster{delivered: make(map[string][]domain.Event)}
}

func (b *recordingBroadcaster) attach(ids ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conns = append(b.conns, ids...)
}

func (b *recordingBroadcaster) detach(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, c := range b.conns {
		if c == id {
			b.conns = append(b.conns[:i], b.conns[i+1:]...)
			return
		}
	}
}

func (b *recordingBroadcaster) ToRoom(_ string, ev domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.log = append(b.log, emission{scope: "room", ev: ev})
	for _, c := range b.conns {
		b.delivered[c] = append(b.delivered[c], ev)
	}
}

func (b *recordingBroadcaster) ToRoomExcept(_ string, except string, ev domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.log = append(b.log, emission{scope: "except", target: except, ev: ev})
	for _, c := range b.conns {
		if c != except {
			b.delivered[c] = append(b.delivered[c], ev)
		}
	}
}

func (b *recordingBroadcaster) ToConn(connID string, ev domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.log = append(b.log, emission{scope: "conn", target: connID, ev: ev})
	b.delivered[connID] = append(b.delivered[connID], ev)
}

// events returns what connID received with the given name, in order
func (b *recordingBroadcaster) events(connID, name string) []domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.Event
	for _, ev := range b.delivered[connID] {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

func (b *recordingBroadcaster) last(connID, name string) (domain.Event, bool) {
	evs := b.events(connID, name)
	if len(evs) == 0 {
		return domain.Event{}, false
	}
	return evs[len(evs)-1], true
}

func (b *recordingBroadcaster) count(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.log {
		if e.ev.Name == name {
			n++
		}
	}
	return n
}

func (b *recordingBroadcaster) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.delivered = make(map[string][]domain.Event)
	b.log = nil
}

// memoryStore is an in-process Store
type memoryStore struct {
	mu     sync.Mutex
	words  []string
	scores map[string]int64
	chat   []domain.ChatMessage
	awards [][]Award
}

func newMemoryStore(words ...string) *memoryStore {
	return &memoryStore{words: words, scores: make(map[string]int64)}
}

func (s *memoryStore) RandomWord(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.words) == 0 {
		return "", domain.ErrNoWords
	}
	return s.words[0], nil
}

func (s *memoryStore) EnsurePlayer(_ context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	score, ok := s.scores[name]
	if !ok {
		s.scores[name] = 0
	}
	return score, nil
}

func (s *memoryStore) AwardPoints(_ context.Context, awards ...Award) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.awards = append(s.awards, awards)
	for _, a := range awards {
		s.scores[a.Name] += a.Points
	}
	return nil
}

func (s *memoryStore) Leaderboard(_ context.Context, _ int) ([]domain.LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.LeaderboardEntry, 0, len(s.scores))
	for name, score := range s.scores {
		out = append(out, domain.LeaderboardEntry{Name: name, Score: score})
	}
	return out, nil
}

func (s *memoryStore) AppendChat(_ context.Context, msg domain.ChatMessage, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chat = append([]domain.ChatMessage{msg}, s.chat...)
	if len(s.chat) > keep {
		s.chat = s.chat[:keep]
	}
	return nil
}

func (s *memoryStore) ChatHistory(_ context.Context, limit int) ([]domain.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := min(limit, len(s.chat))
	out := make([]domain.ChatMessage, 0, n)
	for i := n - 1; i >= 0; i-- {
		out = append(out, s.chat[i])
	}
	return out, nil
}

func (s *memoryStore) score(name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scores[name]
}

// MockStore is a testify mock of Store
type MockStore struct {
	mock.Mock
}

func (m *MockStore) RandomWord(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockStore) EnsurePlayer(ctx context.Context, name string) (int64, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStore) AwardPoints(ctx context.Context, awards ...Award) error {
	args := m.Called(ctx, awards)
	return args.Error(0)
}

func (m *MockStore) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	args := m.Called(ctx, limit)
	entries, _ := args.Get(0).([]domain.LeaderboardEntry)
	return entries, args.Error(1)
}

func (m *MockStore) AppendChat(ctx context.Context, msg domain.ChatMessage, keep int) error {
	args := m.Called(ctx, msg, keep)
	return args.Error(0)
}

func (m *MockStore) ChatHistory(ctx context.Context, limit int) ([]domain.ChatMessage, error) {
	args := m.Called(ctx, limit)
	msgs, _ := args.Get(0).([]domain.ChatMessage)
	return msgs, args.Error(1)
}

type recordingRecorder struct {
	mu      sync.Mutex
	records []domain.RoundRecord
}

func (r *recordingRecorder) RecordRound(_ context.Context, rec domain.RoundRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func (r *recordingRecorder) all() []domain.RoundRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.RoundRecord(nil), r.records...)
}

// manualScheduler only runs callbacks when the test fires them
type manualScheduler struct {
	timers []*manualTimer
}

type manualTimer struct {
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	t := &manualTimer{d: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

func (s *manualScheduler) pending() int {
	n := 0
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// fire runs every pending timer
func (s *manualScheduler) fire() {
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			t.fired = true
			t.f()
		}
	}
}

type roomFixture struct {
	room  *Room
	out   *recordingBroadcaster
	sched *manualScheduler
	rec   *recordingRecorder
	cfg   *config.GameConfig
}

func testGameConfig() *config.GameConfig {
	cfg := config.DefaultConfig().Game
	cfg.RevealInterval = -1
	return &cfg
}

func newRoomFixture(t *testing.T, store Store, cfg *config.GameConfig) *roomFixture {
	t.Helper()
	if cfg == nil {
		cfg = testGameConfig()
	}
	f := &roomFixture{
		out:   newRecordingBroadcaster(),
		sched: &manualScheduler{},
		rec:   &recordingRecorder{},
		cfg:   cfg,
	}
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	f.room = NewRoom("test", cfg, Deps{
		Store:     store,
		Recorder:  f.rec,
		Out:       f.out,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Scheduler: f.sched,
		Now:       func() time.Time { return start },
		Pick:      func(int) int { return 0 },
	})
	return f
}

// join connects and joins a player synchronously
func (f *roomFixture) join(t *testing.T, connID, name string) {
	t.Helper()
	f.out.attach(connID)
	f.room.handleConnect(connID)
	f.send(t, connID, domain.EventJoin, name)
	require.True(t, f.room.registry.Has(connID))
}

func (f *roomFixture) send(t *testing.T, connID, event string, data any) {
	t.Helper()
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		require.NoError(t, err)
		raw = b
	}
	f.room.route(Inbound{ConnID: connID, Name: event, Data: raw})
}

func (f *roomFixture) leave(connID string) {
	f.out.detach(connID)
	f.room.handleDisconnect(connID)
}

// drain handles whatever timers posted to the inbox
func (f *roomFixture) drain() {
	for {
		select {
		case m := <-f.room.inbox:
			f.room.handle(m)
		default:
			return
		}
	}
}

func (f *roomFixture) fireGrace() {
	f.sched.fire()
	f.drain()
}
