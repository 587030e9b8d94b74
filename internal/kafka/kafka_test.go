package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paint-and-guess/internal/config"
	"github.com/paint-and-guess/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleRound(id, room string) domain.RoundRecord {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	return domain.RoundRecord{
		ID:         id,
		RoomID:     room,
		Round:      3,
		Word:       "Lemon",
		DrawerName: "alice",
		Guessers:   2,
		Reason:     domain.StopComplete,
		StartedAt:  start,
		EndedAt:    start.Add(42 * time.Second),
	}
}

func TestProducer_RecordRound(t *testing.T) {
	mp := mocks.NewAsyncProducer(t, NewSaramaProducerConfig())
	mp.ExpectInputWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "main" {
			return errors.New("round not keyed by room")
		}
		value, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var rec domain.RoundRecord
		return json.Unmarshal(value, &rec)
	})
	mp.ExpectInputAndFail(sarama.ErrOutOfBrokers)

	p := NewProducerFrom(mp, "rounds", discardLogger())
	ctx := context.Background()
	require.NoError(t, p.RecordRound(ctx, sampleRound("r1", "main")))
	require.NoError(t, p.RecordRound(ctx, sampleRound("r2", "main")))
	require.NoError(t, p.Close())

	sent, failed := p.Stats()
	assert.Equal(t, int64(1), sent)
	assert.Equal(t, int64(1), failed)
}

type recordingStore struct {
	mu      sync.Mutex
	batches [][]domain.RoundRecord
}

func (s *recordingStore) RecordRounds(_ context.Context, recs []domain.RoundRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]domain.RoundRecord(nil), recs...))
	return nil
}

type fakeSession struct {
	ctx    context.Context
	mu     sync.Mutex
	marked []int64
}

func (s *fakeSession) Claims() map[string][]int32                            { return nil }
func (s *fakeSession) MemberID() string                                      { return "member" }
func (s *fakeSession) GenerationID() int32                                   { return 1 }
func (s *fakeSession) MarkOffset(string, int32, int64, string)               {}
func (s *fakeSession) Commit()                                               {}
func (s *fakeSession) ResetOffset(string, int32, int64, string)              {}
func (s *fakeSession) Context() context.Context                              { return s.ctx }
func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, msg.Offset)
}

type fakeClaim struct {
	messages chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Topic() string                            { return "rounds" }
func (c *fakeClaim) Partition() int32                         { return 0 }
func (c *fakeClaim) InitialOffset() int64                     { return 0 }
func (c *fakeClaim) HighWaterMarkOffset() int64               { return 0 }
func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

func TestConsumer_BatchesValidRounds(t *testing.T) {
	store := &recordingStore{}
	cfg := config.DefaultConfig().Kafka
	cfg.BatchSize = 2
	cfg.BatchTimeout = time.Hour

	c := &Consumer{config: &cfg, store: store, logger: discardLogger()}
	h := &consumerGroupHandler{consumer: c, ready: make(chan bool)}

	encode := func(rec domain.RoundRecord) []byte {
		data, err := json.Marshal(rec)
		require.NoError(t, err)
		return data
	}

	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 8)}
	claim.messages <- &sarama.ConsumerMessage{Offset: 0, Value: encode(sampleRound("r1", "main"))}
	claim.messages <- &sarama.ConsumerMessage{Offset: 1, Value: []byte("{not json")}
	claim.messages <- &sarama.ConsumerMessage{Offset: 2, Value: encode(sampleRound("", "main"))}
	claim.messages <- &sarama.ConsumerMessage{Offset: 3, Value: encode(sampleRound("r2", "main"))}
	claim.messages <- &sarama.ConsumerMessage{Offset: 4, Value: encode(sampleRound("r3", "side"))}
	close(claim.messages)

	session := &fakeSession{ctx: context.Background()}
	require.NoError(t, h.ConsumeClaim(session, claim))

	require.Len(t, store.batches, 2)
	assert.Len(t, store.batches[0], 2)
	assert.Equal(t, "r1", store.batches[0][0].ID)
	assert.Equal(t, "r2", store.batches[0][1].ID)
	require.Len(t, store.batches[1], 1)
	assert.Equal(t, "side", store.batches[1][0].RoomID)
	// offsets advance only once the covering batch is stored
	assert.Equal(t, []int64{3, 4}, session.marked)
}

func encodeRound(t *testing.T, rec domain.RoundRecord) []byte {
	t.Helper()
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	return data
}

func TestConsumer_DeduplicatesAndOrdersByEnd(t *testing.T) {
	store := &recordingStore{}
	cfg := config.DefaultConfig().Kafka
	cfg.BatchSize = 10
	cfg.BatchTimeout = time.Hour

	c := &Consumer{config: &cfg, store: store, logger: discardLogger()}
	h := &consumerGroupHandler{consumer: c, ready: make(chan bool)}

	late := sampleRound("late", "main")
	late.EndedAt = late.EndedAt.Add(time.Minute)
	early := sampleRound("early", "side")
	backwards := sampleRound("backwards", "main")
	backwards.EndedAt = backwards.StartedAt.Add(-time.Second)

	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 8)}
	claim.messages <- &sarama.ConsumerMessage{Offset: 10, Value: encodeRound(t, late)}
	claim.messages <- &sarama.ConsumerMessage{Offset: 11, Value: encodeRound(t, early)}
	claim.messages <- &sarama.ConsumerMessage{Offset: 12, Value: encodeRound(t, late)}
	claim.messages <- &sarama.ConsumerMessage{Offset: 13, Value: encodeRound(t, backwards)}
	close(claim.messages)

	session := &fakeSession{ctx: context.Background()}
	require.NoError(t, h.ConsumeClaim(session, claim))

	require.Len(t, store.batches, 1)
	require.Len(t, store.batches[0], 2)
	assert.Equal(t, "early", store.batches[0][0].ID)
	assert.Equal(t, "late", store.batches[0][1].ID)
	assert.Equal(t, []int64{13}, session.marked)
}

type failingStore struct{}

func (failingStore) RecordRounds(context.Context, []domain.RoundRecord) error {
	return errors.New("connection refused")
}

func TestConsumer_StoreFailureLeavesOffsetsUnmarked(t *testing.T) {
	cfg := config.DefaultConfig().Kafka
	cfg.BatchSize = 1
	cfg.BatchTimeout = time.Hour

	c := &Consumer{config: &cfg, store: failingStore{}, logger: discardLogger()}
	h := &consumerGroupHandler{consumer: c, ready: make(chan bool)}

	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 2)}
	claim.messages <- &sarama.ConsumerMessage{Offset: 0, Value: encodeRound(t, sampleRound("r1", "main"))}
	close(claim.messages)

	session := &fakeSession{ctx: context.Background()}
	assert.Error(t, h.ConsumeClaim(session, claim))
	assert.Empty(t, session.marked)
}

func TestValidateRound(t *testing.T) {
	assert.NoError(t, validateRound(sampleRound("r1", "main")))

	noReason := sampleRound("r1", "main")
	noReason.Reason = ""
	assert.Error(t, validateRound(noReason))
	assert.Error(t, validateRound(sampleRound("", "main")))
	assert.Error(t, validateRound(sampleRound("r1", "")))
}
