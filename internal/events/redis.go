package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultChannel is the Redis channel used to fan events out across instances.
const DefaultChannel = "portal:events"

// RedisBridge publishes events locally and to Redis, and replays events
// published by other instances onto the local bus.
type RedisBridge struct {
	local   *LocalBus
	client  *redis.Client
	channel string
	origin  string
	log     *logrus.Logger
}

// NewRedisBridge wraps local with Redis fan-out on channel.
func NewRedisBridge(local *LocalBus, client *redis.Client, channel string, log *logrus.Logger) *RedisBridge {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBridge{
		local:   local,
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		log:     log,
	}
}

// Subscribe registers on the local bus.
func (b *RedisBridge) Subscribe(filter Filter, handler Handler) func() {
	return b.local.Subscribe(filter, handler)
}

// Publish delivers locally first, then to Redis. A Redis failure is returned
// but local subscribers have already been notified.
func (b *RedisBridge) Publish(ctx context.Context, ev Event) error {
	ev.Origin = b.origin
	if err := b.local.Publish(ctx, ev); err != nil {
		return err
	}

	payload, err := encodeEvent(ev)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event to redis: %w", err)
	}
	return nil
}

// Run relays remote events until ctx is cancelled.
func (b *RedisBridge) Run(ctx context.Context) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.relay(ctx, msg.Payload)
		}
	}
}

func (b *RedisBridge) relay(ctx context.Context, payload string) {
	ev, err := decodeEvent(payload)
	if err != nil {
		b.log.WithError(err).Warn("dropping malformed event")
		return
	}
	// already delivered locally by Publish
	if ev.Origin == b.origin {
		return
	}
	_ = b.local.Publish(ctx, ev)
}

func encodeEvent(ev Event) (string, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("failed to encode event: %w", err)
	}
	return string(data), nil
}

func decodeEvent(payload string) (Event, error) {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return Event{}, fmt.Errorf("failed to decode event: %w", err)
	}
	if ev.Kind == "" {
		return Event{}, fmt.Errorf("event has no kind")
	}
	return ev, nil
}
