package game

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/paint-and-guess/internal/config"
	"github.com/paint-and-guess/internal/domain"
)

type roomEntry struct {
	room   *Room
	cancel context.CancelFunc
}

// Manager creates rooms on first connection, releases them when the last
// connection leaves, and drives every room's one-second clock.
type Manager struct {
	cfg    *config.GameConfig
	deps   Deps
	logger *slog.Logger

	mu    sync.Mutex
	rooms map[string]roomEntry
	ctx   context.Context
	wg    sync.WaitGroup

	newTicker func(d time.Duration) (<-chan time.Time, func())
}

// NewManager creates a room manager. Rooms started before Run is called
// live under context.Background until Shutdown.
func NewManager(cfg *config.GameConfig, deps Deps) *Manager {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		rooms:  make(map[string]roomEntry),
		ctx:    context.Background(),
		newTicker: func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(d)
			return t.C, t.Stop
		},
	}
}

// Run ticks every room once per second until ctx is cancelled, then shuts
// all rooms down.
func (m *Manager) Run(ctx context.Context) {
	m.mu.Lock()
	m.ctx = ctx
	m.mu.Unlock()

	ticks, stop := m.newTicker(time.Second)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			m.Shutdown()
			return
		case <-ticks:
			for _, r := range m.snapshot() {
				r.Tick()
			}
		}
	}
}

// ResolveRoomID maps an empty room name onto the default room
func (m *Manager) ResolveRoomID(roomID string) string {
	return normalizeRoomID(roomID, m.cfg.DefaultRoom)
}

// Connect attaches a connection to the named room, creating it if needed
func (m *Manager) Connect(roomID, connID string) *Room {
	roomID = m.ResolveRoomID(roomID)

	m.mu.Lock()
	entry, ok := m.rooms[roomID]
	if !ok {
		entry = m.startRoom(roomID)
	}
	// Count under the lock so a concurrent release cannot see zero.
	entry.room.conns.Add(1)
	m.mu.Unlock()

	if !entry.room.post(connectMsg{connID: connID}) {
		entry.room.conns.Add(-1)
	}
	return entry.room
}

// startRoom must be called with mu held
func (m *Manager) startRoom(roomID string) roomEntry {
	ctx, cancel := context.WithCancel(m.ctx)
	r := NewRoom(roomID, m.cfg, m.deps)
	r.onEmpty = m.release
	entry := roomEntry{room: r, cancel: cancel}
	m.rooms[roomID] = entry

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		r.Run(ctx)
	}()

	m.logger.Info("room created", "room", roomID)
	return entry
}

// release drops an empty room. A connection that raced in keeps it alive.
func (m *Manager) release(r *Room) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.rooms[r.id]
	if !ok || entry.room != r || r.conns.Load() > 0 {
		return
	}
	delete(m.rooms, r.id)
	entry.cancel()
	m.logger.Info("room released", "room", r.id)
}

// Room looks up a live room
func (m *Manager) Room(roomID string) (*Room, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.rooms[roomID]
	return entry.room, ok
}

// Summaries describes every live room, sorted by id
func (m *Manager) Summaries(ctx context.Context) []domain.RoomSummary {
	rooms := m.snapshot()
	out := make([]domain.RoomSummary, 0, len(rooms))
	for _, r := range rooms {
		s, err := r.Summary(ctx)
		if err != nil {
			continue
		}
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b domain.RoomSummary) int {
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Summary describes a single room
func (m *Manager) Summary(ctx context.Context, roomID string) (domain.RoomSummary, error) {
	r, ok := m.Room(roomID)
	if !ok {
		return domain.RoomSummary{}, domain.ErrRoomNotFound
	}
	return r.Summary(ctx)
}

// Shutdown stops every room and waits for them to record their rounds
func (m *Manager) Shutdown() {
	m.mu.Lock()
	for id, entry := range m.rooms {
		entry.cancel()
		delete(m.rooms, id)
	}
	m.mu.Unlock()

	m.wg.Wait()
}

func (m *Manager) snapshot() []*Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Room, 0, len(m.rooms))
	for _, entry := range m.rooms {
		out = append(out, entry.room)
	}
	return out
}

func normalizeRoomID(roomID, fallback string) string {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return fallback
	}
	return roomID
}
