package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/paint-and-guess/internal/config"
	"github.com/paint-and-guess/internal/domain"
)

// RoundStore persists batches of finished rounds
type RoundStore interface {
	RecordRounds(ctx context.Context, recs []domain.RoundRecord) error
}

// Consumer consumes round records from Kafka into the history store
type Consumer struct {
	config        *config.KafkaConfig
	store         RoundStore
	logger        *slog.Logger
	consumerGroup sarama.ConsumerGroup
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	ready         chan bool
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg *config.KafkaConfig, store RoundStore, logger *slog.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaConfig.Consumer.Return.Errors = true

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Consumer{
		config:        cfg,
		store:         store,
		logger:        logger,
		consumerGroup: consumerGroup,
		ctx:           ctx,
		cancel:        cancel,
		ready:         make(chan bool),
	}, nil
}

// Start begins consuming messages from Kafka
func (c *Consumer) Start() error {
	c.logger.Info("starting Kafka consumer",
		"brokers", c.config.Brokers,
		"topic", c.config.Topic,
		"group_id", c.config.GroupID,
	)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			handler := &consumerGroupHandler{
				consumer: c,
				ready:    c.ready,
			}

			if err := c.consumerGroup.Consume(c.ctx, []string{c.config.Topic}, handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.logger.Error("error from consumer", "error", err)
			}

			// Check if context was cancelled
			if c.ctx.Err() != nil {
				return
			}

			c.ready = make(chan bool)
		}
	}()

	// Wait until consumer is ready
	select {
	case <-c.ready:
		c.logger.Info("Kafka consumer ready")
	case <-c.ctx.Done():
		return c.ctx.Err()
	}

	// Handle errors in separate goroutine
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.ctx.Done():
				return
			case err, ok := <-c.consumerGroup.Errors():
				if !ok {
					return
				}
				c.logger.Error("consumer group error", "error", err)
			}
		}
	}()

	return nil
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() error {
	c.logger.Info("stopping Kafka consumer")
	c.cancel()
	c.wg.Wait()
	return c.consumerGroup.Close()
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	consumer *Consumer
	ready    chan bool
}

// Setup is called at the beginning of a new session
func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	close(h.ready)
	return nil
}

// Cleanup is called at the end of a session
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// roundBatch collects records for one store write. A round delivered twice
// (producer retries) is kept once, and the batch remembers the last message
// it covers so offsets are only committed once the rounds are stored.
type roundBatch struct {
	recs []domain.RoundRecord
	seen map[string]struct{}
	last *sarama.ConsumerMessage
}

func newRoundBatch(size int) *roundBatch {
	return &roundBatch{
		recs: make([]domain.RoundRecord, 0, size),
		seen: make(map[string]struct{}, size),
	}
}

// add queues rec and reports whether it was new to the batch
func (b *roundBatch) add(rec domain.RoundRecord, msg *sarama.ConsumerMessage) bool {
	b.last = msg
	if _, dup := b.seen[rec.ID]; dup {
		return false
	}
	b.seen[rec.ID] = struct{}{}
	b.recs = append(b.recs, rec)
	return true
}

// skip covers a message that carries no usable round
func (b *roundBatch) skip(msg *sarama.ConsumerMessage) {
	b.last = msg
}

func (b *roundBatch) empty() bool { return b.last == nil }

// rounds returns the batch oldest round first
func (b *roundBatch) rounds() []domain.RoundRecord {
	slices.SortStableFunc(b.recs, func(x, y domain.RoundRecord) int {
		return x.EndedAt.Compare(y.EndedAt)
	})
	return b.recs
}

func (b *roundBatch) reset() {
	b.recs = b.recs[:0]
	clear(b.seen)
	b.last = nil
}

// validateRound rejects records the history table cannot hold
func validateRound(rec domain.RoundRecord) error {
	switch {
	case rec.ID == "":
		return errors.New("missing id")
	case rec.RoomID == "":
		return errors.New("missing room")
	case rec.Reason == "":
		return errors.New("missing stop reason")
	case rec.EndedAt.Before(rec.StartedAt):
		return errors.New("round ends before it starts")
	}
	return nil
}

// ConsumeClaim stores round records from a partition in batches. Offsets
// are marked only after a batch is stored; a failed write ends the session
// so the rounds are redelivered, and replays are ignored by the store.
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	cfg := h.consumer.config
	logger := h.consumer.logger.With("topic", claim.Topic(), "partition", claim.Partition())
	batch := newRoundBatch(cfg.BatchSize)
	batchTimer := time.NewTimer(cfg.BatchTimeout)
	defer batchTimer.Stop()

	flush := func() error {
		if batch.empty() {
			return nil
		}
		defer batch.reset()

		if rounds := batch.rounds(); len(rounds) > 0 {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := h.consumer.store.RecordRounds(ctx, rounds); err != nil {
				logger.Error("failed to store rounds", "error", err, "batch_size", len(rounds))
				return fmt.Errorf("storing rounds: %w", err)
			}
			logger.Debug("stored rounds", "batch_size", len(rounds))
		}

		session.MarkMessage(batch.last, "")
		return nil
	}

	for {
		select {
		case <-session.Context().Done():
			return flush()

		case <-batchTimer.C:
			if err := flush(); err != nil {
				return err
			}
			batchTimer.Reset(cfg.BatchTimeout)

		case message, ok := <-claim.Messages():
			if !ok {
				return flush()
			}

			var rec domain.RoundRecord
			if err := json.Unmarshal(message.Value, &rec); err != nil {
				logger.Warn("failed to unmarshal round", "error", err, "offset", message.Offset)
				batch.skip(message)
				continue
			}
			if err := validateRound(rec); err != nil {
				logger.Warn("invalid round record", "error", err, "id", rec.ID, "offset", message.Offset)
				batch.skip(message)
				continue
			}

			if !batch.add(rec, message) {
				logger.Debug("duplicate round in batch", "id", rec.ID)
			}

			if len(batch.recs) >= cfg.BatchSize {
				if err := flush(); err != nil {
					return err
				}
				batchTimer.Reset(cfg.BatchTimeout)
			}
		}
	}
}
