package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// channelPrefix namespaces every broadcast channel in Redis.
const channelPrefix = "predictx:"

// SignalBus implements domain.Broadcaster over Redis Pub/Sub. Events
// published by the scheduler and the submission path fan out to every
// subscribed process, which mirrors them to its connected WebSocket viewers.
type SignalBus struct {
	rdb *redis.Client
}

// NewSignalBus creates a SignalBus backed by the given Client.
func NewSignalBus(c *Client) *SignalBus {
	return &SignalBus{rdb: c.Underlying()}
}

// envelope is the wire form of a broadcast event.
type envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Publish marshals payload and sends it on the event's channel. Publishing is
// fire-and-forget from the caller's perspective: there may be zero
// subscribers.
func (sb *SignalBus) Publish(ctx context.Context, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("redis: marshal event %s: %w", event, err)
	}
	msg, err := json.Marshal(envelope{Event: event, Payload: data})
	if err != nil {
		return fmt.Errorf("redis: marshal envelope %s: %w", event, err)
	}
	if err := sb.rdb.Publish(ctx, channelPrefix+event, msg).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", event, err)
	}
	return nil
}

// Subscribe creates a Pub/Sub subscription for the given event pattern and
// returns a read-only channel of raw event envelopes. The subscription closes
// when ctx is cancelled; the returned channel is closed at that point as
// well. Use "*" to receive every event.
func (sb *SignalBus) Subscribe(ctx context.Context, eventPattern string) (<-chan []byte, error) {
	channel := channelPrefix + eventPattern

	var pubsub *redis.PubSub
	if hasPattern(channel) {
		pubsub = sb.rdb.PSubscribe(ctx, channel)
	} else {
		pubsub = sb.rdb.Subscribe(ctx, channel)
	}

	// Verify the subscription is established by receiving the confirmation.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", eventPattern, err)
	}

	out := make(chan []byte, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// hasPattern returns true when the Redis channel includes glob-style
// wildcards, in which case PSubscribe must be used instead of Subscribe.
func hasPattern(channel string) bool {
	return strings.ContainsAny(channel, "*?[")
}
