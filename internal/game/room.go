package game

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/paint-and-guess/internal/config"
	"github.com/paint-and-guess/internal/domain"
)

const inboxSize = 1024

// Timer is a pending scheduled callback
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type clockScheduler struct{}

func (clockScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Deps are the collaborators a Room needs. Zero-valued optional fields get
// production defaults.
type Deps struct {
	Store     Store
	Recorder  RoundRecorder
	Out       Broadcaster
	Logger    *slog.Logger
	Scheduler Scheduler
	Now       func() time.Time
	Pick      func(n int) int
}

type (
	connectMsg    struct{ connID string }
	disconnectMsg struct{ connID string }
	tickMsg       struct{}
	graceMsg      struct {
		round uint64
		seq   uint64
	}
	summaryMsg struct{ reply chan domain.RoomSummary }
)

// Room runs one room's game. All state is owned by the goroutine running
// Run; everything else talks to it through the inbox.
type Room struct {
	id     string
	cfg    *config.GameConfig
	store  Store
	rec    RoundRecorder
	out    Broadcaster
	logger *slog.Logger
	sched  Scheduler
	now    func() time.Time
	pick   func(n int) int

	registry    *Registry
	state       *StateMachine
	tracker     *Tracker
	scores      ScoreEngine
	connections map[string]struct{}
	drawerName  string
	revealEvery int

	grace    Timer
	graceSeq uint64

	inbox   chan any
	done    chan struct{}
	conns   atomic.Int64
	onEmpty func(*Room)
}

// NewRoom creates a room; call Run to start processing events.
func NewRoom(id string, cfg *config.GameConfig, deps Deps) *Room {
	r := &Room{
		id:          id,
		cfg:         cfg,
		store:       deps.Store,
		rec:         deps.Recorder,
		out:         deps.Out,
		logger:      deps.Logger,
		sched:       deps.Scheduler,
		now:         deps.Now,
		pick:        deps.Pick,
		registry:    NewRegistry(),
		state:       NewStateMachine(cfg.RoundDuration),
		tracker:     NewTracker(),
		scores:      NewScoreEngine(DecayPolicy(cfg.MaxPoints, cfg.MinPoints, cfg.RankPenalty), cfg.DrawerShareDivisor),
		connections: make(map[string]struct{}),
		revealEvery: int(cfg.RevealInterval / time.Second),
		inbox:       make(chan any, inboxSize),
		done:        make(chan struct{}),
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.logger = r.logger.With("room", id)
	if r.rec == nil {
		r.rec = LogRecorder{Logger: r.logger}
	}
	if r.sched == nil {
		r.sched = clockScheduler{}
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.pick == nil {
		r.pick = rand.IntN
	}
	return r
}

func (r *Room) ID() string { return r.id }

// Run processes events until ctx is cancelled. A running round is recorded
// as shut down on exit.
func (r *Room) Run(ctx context.Context) {
	defer close(r.done)
	r.logger.Info("room started")
	for {
		select {
		case <-ctx.Done():
			r.endRound(domain.StopShutdown, false)
			r.cancelGrace()
			r.logger.Info("room stopped")
			return
		case m := <-r.inbox:
			r.handle(m)
		}
	}
}

// Done is closed once Run has returned
func (r *Room) Done() <-chan struct{} { return r.done }

// Disconnect removes a connection and its player
func (r *Room) Disconnect(connID string) {
	r.post(disconnectMsg{connID: connID})
}

// Deliver queues an inbound client event
func (r *Room) Deliver(in Inbound) {
	r.post(in)
}

// Tick advances the round clock by one second. Ticks are dropped rather than
// queued behind a full inbox.
func (r *Room) Tick() {
	select {
	case r.inbox <- tickMsg{}:
	default:
		r.logger.Warn("inbox full, dropping tick")
	}
}

// Connections is the number of live connections attached to the room
func (r *Room) Connections() int64 { return r.conns.Load() }

// Summary returns the room's players and public state
func (r *Room) Summary(ctx context.Context) (domain.RoomSummary, error) {
	reply := make(chan domain.RoomSummary, 1)
	if !r.post(summaryMsg{reply: reply}) {
		return domain.RoomSummary{}, domain.ErrRoomNotFound
	}
	select {
	case s := <-reply:
		return s, nil
	case <-r.done:
		return domain.RoomSummary{}, domain.ErrRoomNotFound
	case <-ctx.Done():
		return domain.RoomSummary{}, ctx.Err()
	}
}

func (r *Room) post(m any) bool {
	select {
	case r.inbox <- m:
		return true
	case <-r.done:
		return false
	}
}

func (r *Room) handle(m any) {
	switch m := m.(type) {
	case connectMsg:
		r.handleConnect(m.connID)
	case disconnectMsg:
		r.handleDisconnect(m.connID)
	case Inbound:
		r.route(m)
	case tickMsg:
		r.handleTick()
	case graceMsg:
		r.handleGrace(m.round, m.seq)
	case summaryMsg:
		m.reply <- r.summary()
	default:
		r.logger.Error("unexpected room message", "type", fmt.Sprintf("%T", m))
	}
}

func (r *Room) storeCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), r.cfg.StoreTimeout)
}

func (r *Room) handleConnect(connID string) {
	r.connections[connID] = struct{}{}
	r.logger.Debug("connection opened", "conn", connID)

	r.emitAll(domain.EventOnlinePlayers, r.registry.Snapshot())

	ctx, cancel := r.storeCtx()
	defer cancel()

	history, err := r.store.ChatHistory(ctx, r.cfg.ChatHistory)
	if err != nil {
		r.logger.Warn("failed to load chat history", "error", err)
	}
	if history == nil {
		history = []domain.ChatMessage{}
	}
	r.emitTo(connID, domain.EventMessageHistory, history)
}

func (r *Room) handleJoin(connID, name string) {
	if _, ok := r.connections[connID]; !ok {
		r.logger.Debug("join from unknown connection", "conn", connID, "error", domain.ErrUnknownPlayer)
		return
	}
	if r.registry.Has(connID) {
		r.logger.Debug("connection already joined", "conn", connID)
		return
	}

	ctx, cancel := r.storeCtx()
	defer cancel()

	score, err := r.store.EnsurePlayer(ctx, name)
	if err != nil {
		r.logger.Warn("failed to load player score", "player", name, "error", err)
		score = 0
	}

	player := domain.Player{ID: connID, Name: name, Score: score}
	r.registry.Add(player)
	r.logger.Info("player joined", "conn", connID, "player", name, "score", score)

	r.broadcastLeaderboard(ctx)
	r.emitAll(domain.EventPlayerJoin, player)
	r.emitTo(connID, domain.EventGameState, r.state.Snapshot())
}

func (r *Room) handleStart(connID string) {
	player, ok := r.registry.Get(connID)
	if !ok {
		return
	}

	ctx, cancel := r.storeCtx()
	defer cancel()

	word, err := r.pickWord(ctx)
	if err != nil {
		r.logger.Error("cannot start round", "conn", connID, "error", err)
		r.emitTo(connID, domain.EventError, map[string]string{"event": domain.EventStart, "error": err.Error()})
		return
	}

	if r.state.Running() {
		r.endRound(domain.StopSuperseded, false)
	}
	r.cancelGrace()
	r.tracker.Reset()
	round := r.state.Start(word, connID, r.now())
	r.drawerName = player.Name

	r.logger.Info("round started", "round", round, "drawer", player.Name)
	r.logger.Debug("round word", "round", round, "word", word)

	r.emitTo(connID, domain.EventWordReveal, word)
	r.emitExcept(connID, domain.EventWordReveal, r.state.Mask())
	r.emitAll(domain.EventGameState, r.state.Snapshot())
}

// pickWord draws from the store and falls back to the configured list
func (r *Room) pickWord(ctx context.Context) (string, error) {
	word, err := r.store.RandomWord(ctx)
	if err == nil && word != "" {
		return word, nil
	}
	if err != nil && !errors.Is(err, domain.ErrNoWords) {
		r.logger.Warn("word store unavailable, using configured words", "error", err)
	}
	if len(r.cfg.Words) == 0 {
		return "", domain.ErrNoWords
	}
	return r.cfg.Words[r.pick(len(r.cfg.Words))], nil
}

// handleMessage treats a matching message from a guesser as a guess and
// relays anything else as chat. The drawer typing the word is dropped
// instead of relayed so the word never reaches the other players.
func (r *Room) handleMessage(connID, text string) {
	player, ok := r.registry.Get(connID)
	if !ok {
		return
	}

	if r.state.Running() && r.state.Matches(text) {
		if connID == r.state.DrawerID() {
			r.logger.Debug("drawer sent the word, dropping", "conn", connID)
			return
		}
		r.handleGuess(player)
		return
	}

	msg := domain.ChatMessage{SenderID: connID, SenderName: player.Name, Text: text}
	r.emitExcept(connID, domain.EventMessage, msg)

	ctx, cancel := r.storeCtx()
	defer cancel()

	if err := r.store.AppendChat(ctx, msg, r.cfg.ChatHistory); err != nil {
		r.logger.Warn("failed to store chat message", "error", err)
	}
}

func (r *Room) handleGuess(player domain.Player) {
	if !r.tracker.RecordIfFirst(player.ID) {
		return
	}

	guesser, drawer := r.scores.Calculate(AwardContext{
		Elapsed:       time.Duration(r.state.Elapsed()) * time.Second,
		RoundDuration: time.Duration(r.state.Duration()) * time.Second,
		Rank:          r.tracker.Count(),
	})

	drawerID := r.state.DrawerID()
	r.registry.Credit(player.ID, guesser)
	r.registry.Credit(drawerID, drawer)

	awards := []Award{{Name: player.Name, Points: guesser}}
	if drawer > 0 {
		awards = append(awards, Award{Name: r.drawerName, Points: drawer})
	}

	ctx, cancel := r.storeCtx()
	defer cancel()

	if err := r.store.AwardPoints(ctx, awards...); err != nil {
		r.logger.Error("failed to persist award", "player", player.Name, "points", guesser, "error", err)
	}

	r.logger.Info("correct guess",
		"round", r.state.Round(),
		"player", player.Name,
		"points", guesser,
		"drawer_points", drawer,
	)

	r.emitTo(player.ID, domain.EventCorrectWord, r.state.Word())
	r.broadcastLeaderboard(ctx)
	r.emitAll(domain.EventOnlinePlayers, r.registry.Snapshot())
	r.emitExcept(player.ID, domain.EventMessage, domain.ChatMessage{
		SenderID:   player.ID,
		SenderName: player.Name,
		Text:       fmt.Sprintf("has guessed the word! +%d points ✅", guesser),
	})

	r.scheduleCompletionCheck()
}

// scheduleCompletionCheck arms the grace timer, replacing any pending one
func (r *Room) scheduleCompletionCheck() {
	r.cancelGrace()
	round, seq := r.state.Round(), r.graceSeq
	r.grace = r.sched.AfterFunc(r.cfg.GraceDelay, func() {
		r.post(graceMsg{round: round, seq: seq})
	})
}

// cancelGrace stops the pending timer. Bumping the sequence also voids a
// timer that already fired but is still queued in the inbox.
func (r *Room) cancelGrace() {
	if r.grace != nil {
		r.grace.Stop()
		r.grace = nil
	}
	r.graceSeq++
}

func (r *Room) handleGrace(round, seq uint64) {
	if seq != r.graceSeq || round != r.state.Round() || !r.state.Running() {
		r.logger.Debug("ignoring stale completion check", "round", round)
		return
	}
	r.grace = nil

	if r.tracker.IsRoundComplete(r.registry.IDsExcept(r.state.DrawerID())) {
		r.endRound(domain.StopComplete, true)
	}
}

func (r *Room) handleTick() {
	if !r.state.Running() {
		return
	}

	expired := r.state.Tick()
	if !expired && r.revealEvery > 0 && r.state.Elapsed()%r.revealEvery == 0 {
		if r.state.Reveal(r.pick) {
			r.emitExcept(r.state.DrawerID(), domain.EventWordReveal, r.state.Mask())
		}
	}

	r.emitAll(domain.EventTime, r.state.Remaining())

	if expired {
		r.endRound(domain.StopTimeout, true)
	}
}

func (r *Room) handleDisconnect(connID string) {
	if _, ok := r.connections[connID]; !ok {
		return
	}
	delete(r.connections, connID)

	if player, ok := r.registry.Remove(connID); ok {
		r.logger.Info("player left", "conn", connID, "player", player.Name)

		if r.state.Running() {
			drawerID := r.state.DrawerID()
			if connID == drawerID {
				r.endRound(domain.StopDrawerLeft, true)
			} else if r.tracker.Count() > 0 && r.tracker.IsRoundComplete(r.registry.IDsExcept(drawerID)) {
				r.scheduleCompletionCheck()
			}
		}

		r.emitAll(domain.EventPlayerLeft, connID)
	}

	if r.conns.Add(-1) <= 0 && r.onEmpty != nil {
		r.onEmpty(r)
	}
}

// endRound stops a running round exactly once and records it
func (r *Room) endRound(reason domain.StopReason, announce bool) {
	if !r.state.Running() {
		return
	}
	r.cancelGrace()

	rec := domain.RoundRecord{
		ID:         uuid.NewString(),
		RoomID:     r.id,
		Round:      r.state.Round(),
		Word:       r.state.Word(),
		DrawerName: r.drawerName,
		Guessers:   r.tracker.Count(),
		Reason:     reason,
		StartedAt:  r.state.StartedAt(),
		EndedAt:    r.now(),
	}
	r.state.Stop()
	r.drawerName = ""

	r.logger.Info("round stopped", "round", rec.Round, "reason", reason, "guessers", rec.Guessers)

	if announce {
		r.emitAll(domain.EventStop, nil)
	}

	ctx, cancel := r.storeCtx()
	defer cancel()

	if err := r.rec.RecordRound(ctx, rec); err != nil {
		r.logger.Warn("failed to record round", "round", rec.Round, "error", err)
	}
}

func (r *Room) broadcastLeaderboard(ctx context.Context) {
	entries, err := r.store.Leaderboard(ctx, r.cfg.LeaderboardTop)
	if err != nil {
		r.logger.Warn("failed to read leaderboard, using live scores", "error", err)
		entries = r.liveLeaderboard()
	}
	if entries == nil {
		entries = []domain.LeaderboardEntry{}
	}
	r.emitAll(domain.EventLeaderboard, entries)
}

func (r *Room) liveLeaderboard() []domain.LeaderboardEntry {
	players := r.registry.Snapshot()
	entries := make([]domain.LeaderboardEntry, 0, len(players))
	for _, p := range players {
		entries = append(entries, domain.LeaderboardEntry{Name: p.Name, Score: p.Score})
	}
	slices.SortStableFunc(entries, func(a, b domain.LeaderboardEntry) int {
		return cmp.Compare(b.Score, a.Score)
	})
	return entries
}

func (r *Room) summary() domain.RoomSummary {
	return domain.RoomSummary{
		ID:      r.id,
		Players: r.registry.Snapshot(),
		State:   r.state.Snapshot(),
	}
}
