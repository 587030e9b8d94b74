package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Envelope is a room broadcast travelling between server nodes
type Envelope struct {
	Origin  string          `json:"origin"`
	RoomID  string          `json:"room"`
	Except  string          `json:"except,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// DeliverFunc hands a remote room broadcast to local connections
type DeliverFunc func(roomID, except string, payload []byte)

// Relay fans room broadcasts out to every node over Redis pub/sub. Each
// node ignores its own messages.
type Relay struct {
	client *redis.Client
	prefix string
	nodeID string
	logger *slog.Logger
	ready  chan struct{}
}

func NewRelay(client *redis.Client, prefix string, logger *slog.Logger) *Relay {
	nodeID := uuid.NewString()
	return &Relay{
		client: client,
		prefix: prefix,
		nodeID: nodeID,
		logger: logger.With("node", nodeID),
		ready:  make(chan struct{}),
	}
}

// NodeID identifies this process on the relay
func (r *Relay) NodeID() string { return r.nodeID }

// Ready is closed once the subscription is live
func (r *Relay) Ready() <-chan struct{} { return r.ready }

func (r *Relay) channel(roomID string) string {
	if r.prefix == "" {
		return "room:" + roomID + ":events"
	}
	return r.prefix + ":room:" + roomID + ":events"
}

func (r *Relay) pattern() string {
	return r.channel("*")
}

// Publish sends an encoded event to the other nodes serving roomID
func (r *Relay) Publish(ctx context.Context, roomID, except string, payload []byte) error {
	data, err := json.Marshal(Envelope{
		Origin:  r.nodeID,
		RoomID:  roomID,
		Except:  except,
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("encoding envelope: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel(roomID), data).Err(); err != nil {
		return fmt.Errorf("publishing room event: %w", err)
	}
	return nil
}

// Run subscribes to every room channel and delivers foreign envelopes until
// ctx is cancelled.
func (r *Relay) Run(ctx context.Context, deliver DeliverFunc) error {
	pubsub := r.client.PSubscribe(ctx, r.pattern())
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribing to room events: %w", err)
	}
	close(r.ready)
	r.logger.Info("relay subscribed", "pattern", r.pattern())

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("relay subscription closed")
			}
			r.handle(msg, deliver)
		}
	}
}

func (r *Relay) handle(msg *redis.Message, deliver DeliverFunc) {
	var env Envelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		r.logger.Warn("dropping malformed relay message", "channel", msg.Channel, "error", err)
		return
	}
	if env.Origin == r.nodeID {
		return
	}
	if env.RoomID == "" {
		r.logger.Warn("dropping relay message without room", "channel", msg.Channel)
		return
	}
	deliver(env.RoomID, env.Except, env.Payload)
}
