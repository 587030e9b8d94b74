package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/redis/go-redis/v9"

	"github.com/paint-and-guess/internal/config"
	"github.com/paint-and-guess/internal/domain"
	"github.com/paint-and-guess/internal/game"
)

// Store keeps the shared word set, the score sorted set and the chat list
type Store struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

var _ game.Store = (*Store)(nil)

// NewClient dials Redis and verifies the connection
func NewClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return client, nil
}

// NewStore wraps a connected client
func NewStore(client *redis.Client, prefix string, logger *slog.Logger) *Store {
	return &Store{
		client: client,
		prefix: prefix,
		logger: logger,
	}
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

// Client returns the underlying Redis client
func (s *Store) Client() *redis.Client {
	return s.client
}

// Ping checks that Redis answers
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + ":" + name
}

func (s *Store) wordsKey() string   { return s.key("words") }
func (s *Store) playersKey() string { return s.key("players") }
func (s *Store) chatKey() string    { return s.key("chat") }

// SeedWords adds words to the shared word set
func (s *Store) SeedWords(ctx context.Context, words []string) (int64, error) {
	if len(words) == 0 {
		return 0, nil
	}
	members := make([]any, len(words))
	for i, w := range words {
		members[i] = w
	}
	added, err := s.client.SAdd(ctx, s.wordsKey(), members...).Result()
	if err != nil {
		return 0, fmt.Errorf("seeding words: %w", err)
	}
	return added, nil
}

// RandomWord returns a random member of the word set
func (s *Store) RandomWord(ctx context.Context) (string, error) {
	word, err := s.client.SRandMember(ctx, s.wordsKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", domain.ErrNoWords
		}
		return "", fmt.Errorf("picking word: %w", err)
	}
	return word, nil
}

// EnsurePlayer reads a player's score, adding them at zero when absent
func (s *Store) EnsurePlayer(ctx context.Context, name string) (int64, error) {
	key := s.playersKey()
	score, err := s.client.ZScore(ctx, key, name).Result()
	if err == nil {
		return int64(score), nil
	}
	if !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("getting score: %w", err)
	}

	// NX keeps a score written by a concurrent award
	if err := s.client.ZAddNX(ctx, key, redis.Z{Score: 0, Member: name}).Err(); err != nil {
		return 0, fmt.Errorf("adding player: %w", err)
	}
	return 0, nil
}

// AwardPoints increments every award inside one MULTI/EXEC
func (s *Store) AwardPoints(ctx context.Context, awards ...game.Award) error {
	if len(awards) == 0 {
		return nil
	}
	key := s.playersKey()
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, a := range awards {
			if a.Points == 0 {
				continue
			}
			pipe.ZIncrBy(ctx, key, float64(a.Points), a.Name)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("awarding points: %w", err)
	}
	return nil
}

// Leaderboard returns the top scores, highest first. limit <= 0 returns all.
func (s *Store) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	results, err := s.client.ZRevRangeWithScores(ctx, s.playersKey(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("getting leaderboard: %w", err)
	}

	entries := make([]domain.LeaderboardEntry, len(results))
	for i, result := range results {
		entries[i] = domain.LeaderboardEntry{
			Name:  result.Member.(string),
			Score: int64(result.Score),
		}
	}
	return entries, nil
}

// PlayerScore returns one player's score and 1-based rank
func (s *Store) PlayerScore(ctx context.Context, name string) (domain.LeaderboardEntry, int64, error) {
	key := s.playersKey()

	pipe := s.client.Pipeline()
	rankCmd := pipe.ZRevRank(ctx, key, name)
	scoreCmd := pipe.ZScore(ctx, key, name)
	if _, err := pipe.Exec(ctx); err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.LeaderboardEntry{}, 0, domain.ErrPlayerNotFound
		}
		return domain.LeaderboardEntry{}, 0, fmt.Errorf("getting player score: %w", err)
	}

	return domain.LeaderboardEntry{Name: name, Score: int64(scoreCmd.Val())}, rankCmd.Val() + 1, nil
}

// Count returns the number of scored players
func (s *Store) Count(ctx context.Context) (int64, error) {
	count, err := s.client.ZCard(ctx, s.playersKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("getting count: %w", err)
	}
	return count, nil
}

// AllScores returns every player's score
func (s *Store) AllScores(ctx context.Context) (map[string]int64, error) {
	results, err := s.client.ZRangeWithScores(ctx, s.playersKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("getting all scores: %w", err)
	}

	scores := make(map[string]int64, len(results))
	for _, result := range results {
		scores[result.Member.(string)] = int64(result.Score)
	}
	return scores, nil
}

// BatchSetScores sets multiple scores using pipelining
func (s *Store) BatchSetScores(ctx context.Context, scores map[string]int64) error {
	if len(scores) == 0 {
		return nil
	}
	key := s.playersKey()
	pipe := s.client.Pipeline()

	for name, score := range scores {
		pipe.ZAdd(ctx, key, redis.Z{
			Score:  float64(score),
			Member: name,
		})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("batch setting scores: %w", err)
	}
	return nil
}

// AppendChat pushes a message and trims the list to keep entries
func (s *Store) AppendChat(ctx context.Context, msg domain.ChatMessage, keep int) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding chat message: %w", err)
	}

	key := s.chatKey()
	pipe := s.client.Pipeline()
	pipe.LPush(ctx, key, data)
	if keep > 0 {
		pipe.LTrim(ctx, key, 0, int64(keep-1))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("appending chat: %w", err)
	}
	return nil
}

// ChatHistory returns up to limit recent messages, oldest first
func (s *Store) ChatHistory(ctx context.Context, limit int) ([]domain.ChatMessage, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	raw, err := s.client.LRange(ctx, s.chatKey(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("reading chat: %w", err)
	}

	messages := make([]domain.ChatMessage, 0, len(raw))
	for _, item := range raw {
		var msg domain.ChatMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			s.logger.Warn("skipping malformed chat entry", "error", err)
			continue
		}
		messages = append(messages, msg)
	}
	slices.Reverse(messages)
	return messages, nil
}
