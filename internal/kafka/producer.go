package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"

	"github.com/paint-and-guess/internal/config"
	"github.com/paint-and-guess/internal/domain"
	"github.com/paint-and-guess/internal/game"
)

// Producer publishes finished rounds to Kafka
type Producer struct {
	producer sarama.AsyncProducer
	topic    string
	logger   *slog.Logger
	wg       sync.WaitGroup

	sent   atomic.Int64
	failed atomic.Int64
}

var _ game.RoundRecorder = (*Producer)(nil)

// NewSaramaProducerConfig is the producer configuration used in production
func NewSaramaProducerConfig() *sarama.Config {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Flush.Frequency = 100 * time.Millisecond
	saramaConfig.Producer.Flush.Messages = 100
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	return saramaConfig
}

// NewProducer connects an async producer to the configured brokers
func NewProducer(cfg *config.KafkaConfig, logger *slog.Logger) (*Producer, error) {
	producer, err := sarama.NewAsyncProducer(cfg.Brokers, NewSaramaProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("creating kafka producer: %w", err)
	}
	return NewProducerFrom(producer, cfg.Topic, logger), nil
}

// NewProducerFrom wraps an existing async producer and starts draining its
// result channels.
func NewProducerFrom(producer sarama.AsyncProducer, topic string, logger *slog.Logger) *Producer {
	p := &Producer{
		producer: producer,
		topic:    topic,
		logger:   logger,
	}

	p.wg.Add(2)
	go func() {
		defer p.wg.Done()
		for range producer.Successes() {
			p.sent.Add(1)
		}
	}()
	go func() {
		defer p.wg.Done()
		for err := range producer.Errors() {
			p.failed.Add(1)
			p.logger.Error("failed to publish round", "error", err)
		}
	}()

	return p
}

// RecordRound queues a round record keyed by room, so one room's rounds
// stay ordered within a partition.
func (p *Producer) RecordRound(ctx context.Context, rec domain.RoundRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding round: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(rec.RoomID),
		Value: sarama.ByteEncoder(data),
	}

	select {
	case p.producer.Input() <- msg:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("queueing round: %w", ctx.Err())
	}
}

// Stats reports acknowledged and failed publishes so far
func (p *Producer) Stats() (sent, failed int64) {
	return p.sent.Load(), p.failed.Load()
}

// Close flushes pending messages and stops the producer
func (p *Producer) Close() error {
	p.producer.AsyncClose()
	p.wg.Wait()
	return nil
}
