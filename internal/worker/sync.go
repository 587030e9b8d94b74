package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/paint-and-guess/internal/config"
)

// LiveScores is the real-time score set
type LiveScores interface {
	AllScores(ctx context.Context) (map[string]int64, error)
	BatchSetScores(ctx context.Context, scores map[string]int64) error
	Count(ctx context.Context) (int64, error)
}

// ScoreSnapshots is the durable copy of the score set
type ScoreSnapshots interface {
	GetAllScores(ctx context.Context) (map[string]int64, error)
	BatchUpsertScores(ctx context.Context, scores map[string]int64) error
}

// SyncWorker periodically snapshots live scores into PostgreSQL and
// restores them into an empty Redis on startup.
type SyncWorker struct {
	live      LiveScores
	snapshots ScoreSnapshots
	config    *config.SyncConfig
	logger    *slog.Logger
	stopCh    chan struct{}
	doneCh    chan struct{}
	mu        sync.Mutex
	running   bool
}

// NewSyncWorker creates a new sync worker
func NewSyncWorker(
	live LiveScores,
	snapshots ScoreSnapshots,
	cfg *config.SyncConfig,
	logger *slog.Logger,
) *SyncWorker {
	return &SyncWorker{
		live:      live,
		snapshots: snapshots,
		config:    cfg,
		logger:    logger,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins the background sync process
func (w *SyncWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("sync worker started", "interval", w.config.Interval)

	go w.run(ctx)
	return nil
}

// Stop stops the background sync process after a final snapshot
func (w *SyncWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("sync worker stopped")
	return nil
}

// run is the main worker loop
func (w *SyncWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.finalSync()
			return
		case <-w.stopCh:
			w.finalSync()
			return
		case <-ticker.C:
			w.syncOnce(ctx)
		}
	}
}

// finalSync takes one last snapshot on a context of its own, since the
// worker's context may already be cancelled.
func (w *SyncWorker) finalSync() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	w.syncOnce(ctx)
}

func (w *SyncWorker) syncOnce(ctx context.Context) {
	w.logger.Info("starting sync cycle")
	startTime := time.Now()

	count, err := w.SyncToDatabase(ctx)
	if err != nil {
		w.logger.Error("failed to snapshot scores", "error", err)
		return
	}

	w.logger.Info("sync cycle completed",
		"duration", time.Since(startTime),
		"player_count", count,
	)
}

// SyncToDatabase copies every live score into PostgreSQL in batches
func (w *SyncWorker) SyncToDatabase(ctx context.Context) (int, error) {
	scores, err := w.live.AllScores(ctx)
	if err != nil {
		return 0, err
	}

	if len(scores) == 0 {
		w.logger.Debug("no scores to sync")
		return 0, nil
	}

	// Process in batches to avoid overwhelming the database
	batchSize := w.config.BatchSize
	if batchSize == 0 {
		batchSize = 1000
	}

	batch := make(map[string]int64, batchSize)
	for name, score := range scores {
		batch[name] = score

		if len(batch) >= batchSize {
			if err := w.snapshots.BatchUpsertScores(ctx, batch); err != nil {
				return 0, err
			}
			batch = make(map[string]int64, batchSize)
		}
	}

	// Process remaining batch
	if len(batch) > 0 {
		if err := w.snapshots.BatchUpsertScores(ctx, batch); err != nil {
			return 0, err
		}
	}

	return len(scores), nil
}

// SyncFromDatabase restores snapshotted scores into Redis. A Redis that
// already holds scores is left alone; restoring would roll back awards made
// since the last snapshot.
func (w *SyncWorker) SyncFromDatabase(ctx context.Context) (int, error) {
	existing, err := w.live.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("checking live scores: %w", err)
	}
	if existing > 0 {
		w.logger.Info("live scores present, skipping restore", "player_count", existing)
		return 0, nil
	}

	scores, err := w.snapshots.GetAllScores(ctx)
	if err != nil {
		return 0, err
	}

	if len(scores) == 0 {
		w.logger.Debug("no scores to restore from database")
		return 0, nil
	}

	if err := w.live.BatchSetScores(ctx, scores); err != nil {
		return 0, err
	}

	w.logger.Info("restored scores from database", "player_count", len(scores))
	return len(scores), nil
}

// IsRunning returns whether the worker is currently running
func (w *SyncWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// RunOnce runs a single sync cycle (useful for manual triggers)
func (w *SyncWorker) RunOnce(ctx context.Context) {
	w.syncOnce(ctx)
}
