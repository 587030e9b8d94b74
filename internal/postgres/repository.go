package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paint-and-guess/internal/config"
	"github.com/paint-and-guess/internal/domain"
	"github.com/paint-and-guess/internal/game"
)

// Repository stores round history and leaderboard snapshots in PostgreSQL
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ game.RoundRecorder = (*Repository)(nil)

// NewRepository creates a new PostgreSQL repository
func NewRepository(ctx context.Context, cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Ping checks the database connection
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS player_scores (
			name VARCHAR(255) PRIMARY KEY,
			score BIGINT NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS rounds (
			id UUID PRIMARY KEY,
			room_id VARCHAR(128) NOT NULL,
			round BIGINT NOT NULL,
			word VARCHAR(255) NOT NULL,
			drawer_name VARCHAR(255) NOT NULL,
			guessers INT NOT NULL,
			reason VARCHAR(32) NOT NULL,
			started_at TIMESTAMP NOT NULL,
			ended_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_player_scores_score ON player_scores(score DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_rounds_ended ON rounds(ended_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_rounds_room ON rounds(room_id, ended_at DESC)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

const insertRoundQuery = `
	INSERT INTO rounds (id, room_id, round, word, drawer_name, guessers, reason, started_at, ended_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (id) DO NOTHING
`

func roundArgs(rec domain.RoundRecord) []any {
	return []any{
		rec.ID,
		rec.RoomID,
		int64(rec.Round),
		rec.Word,
		rec.DrawerName,
		rec.Guessers,
		string(rec.Reason),
		rec.StartedAt,
		rec.EndedAt,
	}
}

// RecordRound stores one finished round. Replays of the same ID are ignored.
func (r *Repository) RecordRound(ctx context.Context, rec domain.RoundRecord) error {
	if _, err := r.pool.Exec(ctx, insertRoundQuery, roundArgs(rec)...); err != nil {
		return fmt.Errorf("recording round: %w", err)
	}
	return nil
}

// RecordRounds stores many rounds in one batch
func (r *Repository) RecordRounds(ctx context.Context, recs []domain.RoundRecord) error {
	if len(recs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, rec := range recs {
		batch.Queue(insertRoundQuery, roundArgs(rec)...)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range recs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch recording rounds: %w", err)
		}
	}
	return nil
}

// RecentRounds lists the latest rounds, optionally for one room only
func (r *Repository) RecentRounds(ctx context.Context, roomID string, limit int) ([]domain.RoundRecord, error) {
	query := `
		SELECT id::text, room_id, round, word, drawer_name, guessers, reason, started_at, ended_at
		FROM rounds
		WHERE $1 = '' OR room_id = $1
		ORDER BY ended_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing rounds: %w", err)
	}
	defer rows.Close()

	rounds := make([]domain.RoundRecord, 0, limit)
	for rows.Next() {
		var (
			rec    domain.RoundRecord
			round  int64
			reason string
		)
		err := rows.Scan(
			&rec.ID,
			&rec.RoomID,
			&round,
			&rec.Word,
			&rec.DrawerName,
			&rec.Guessers,
			&reason,
			&rec.StartedAt,
			&rec.EndedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning round: %w", err)
		}
		rec.Round = uint64(round)
		rec.Reason = domain.StopReason(reason)
		rounds = append(rounds, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing rounds: %w", err)
	}
	return rounds, nil
}

// GetAllScores retrieves every snapshotted score (for restore)
func (r *Repository) GetAllScores(ctx context.Context) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT name, score FROM player_scores`)
	if err != nil {
		return nil, fmt.Errorf("getting all scores: %w", err)
	}
	defer rows.Close()

	scores := make(map[string]int64)
	for rows.Next() {
		var name string
		var score int64
		if err := rows.Scan(&name, &score); err != nil {
			return nil, fmt.Errorf("scanning score: %w", err)
		}
		scores[name] = score
	}
	return scores, rows.Err()
}

// BatchUpsertScores inserts or updates multiple scores efficiently
func (r *Repository) BatchUpsertScores(ctx context.Context, scores map[string]int64) error {
	if len(scores) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO player_scores (name, score, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (name)
		DO UPDATE SET score = $2, updated_at = $3
	`
	now := time.Now()

	for name, score := range scores {
		batch.Queue(query, name, score, now)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range scores {
		_, err := br.Exec()
		if err != nil {
			return fmt.Errorf("batch upserting scores: %w", err)
		}
	}
	return nil
}
