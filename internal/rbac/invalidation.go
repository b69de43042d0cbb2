package rbac

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// DefaultInvalidationChannel carries cache invalidations between processes.
const DefaultInvalidationChannel = "rbac.invalidate"

const invalidateAllPayload = "*"

// Invalidator drops cached permission sets.
type Invalidator interface {
	Invalidate(userID int64)
	InvalidateAll()
}

// Broadcaster fans cache invalidations out to every process over Redis pub/sub.
type Broadcaster struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

// NewBroadcaster constructs a Broadcaster. An empty channel selects
// DefaultInvalidationChannel.
func NewBroadcaster(client *redis.Client, channel string, logger *slog.Logger) *Broadcaster {
	if channel == "" {
		channel = DefaultInvalidationChannel
	}
	return &Broadcaster{client: client, channel: channel, logger: logger}
}

// PublishUser announces that a user's permissions changed.
func (b *Broadcaster) PublishUser(ctx context.Context, userID int64) error {
	if b == nil || b.client == nil {
		return nil
	}
	return b.client.Publish(ctx, b.channel, strconv.FormatInt(userID, 10)).Err()
}

// PublishAll announces that every cached set is outdated.
func (b *Broadcaster) PublishAll(ctx context.Context) error {
	if b == nil || b.client == nil {
		return nil
	}
	return b.client.Publish(ctx, b.channel, invalidateAllPayload).Err()
}

// Listen subscribes to the channel and applies invalidations to target until
// ctx is cancelled. It returns once the subscription is confirmed.
func (b *Broadcaster) Listen(ctx context.Context, target Invalidator) error {
	if b == nil || b.client == nil {
		return nil
	}
	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				b.apply(target, msg.Payload)
			}
		}
	}()
	return nil
}

func (b *Broadcaster) apply(target Invalidator, payload string) {
	if payload == invalidateAllPayload {
		target.InvalidateAll()
		return
	}
	userID, err := strconv.ParseInt(payload, 10, 64)
	if err != nil {
		// Unknown payloads flush everything.
		if b.logger != nil {
			b.logger.Warn("rbac invalidation payload", slog.String("payload", payload))
		}
		target.InvalidateAll()
		return
	}
	target.Invalidate(userID)
}
