package rbac

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/shuttertag/shuttertag/pkg/observability"
)

const invalidationChannel = "shuttertag:rbac:invalidate"

// Invalidator abstracts how cache invalidations propagate: the Bus
// broadcasts them over Redis, LocalInvalidator applies them to one
// in-process cache only.
type Invalidator interface {
	Invalidate(ctx context.Context, subjectID, tenantID string) error
}

// LocalInvalidator is the single-instance Invalidator.
type LocalInvalidator struct {
	Cache *Cache
}

func (l LocalInvalidator) Invalidate(_ context.Context, subjectID, tenantID string) error {
	l.Cache.Invalidate(subjectID, tenantID)
	return nil
}

// invalidationMessage is the wire form of a cache invalidation. Empty
// fields widen the scope, matching Cache.Invalidate semantics.
type invalidationMessage struct {
	SubjectID string `json:"subject_id,omitempty"`
	TenantID  string `json:"tenant_id,omitempty"`
}

// Bus broadcasts permission cache invalidations across instances over
// Redis pub/sub. Each instance applies every message to its local cache,
// including its own: invalidation is idempotent so the echo is harmless.
type Bus struct {
	client *redis.Client
	cache  *Cache
	logger *observability.Logger
}

// NewBus creates an invalidation bus over the given Redis client.
func NewBus(client *redis.Client, cache *Cache, logger *observability.Logger) *Bus {
	return &Bus{client: client, cache: cache, logger: logger}
}

// Invalidate drops the scope from the local cache and broadcasts it to
// peers. The local drop happens first so this instance is consistent even
// if the publish fails.
func (b *Bus) Invalidate(ctx context.Context, subjectID, tenantID string) error {
	b.cache.Invalidate(subjectID, tenantID)

	payload, err := json.Marshal(invalidationMessage{SubjectID: subjectID, TenantID: tenantID})
	if err != nil {
		return fmt.Errorf("failed to encode invalidation: %w", err)
	}
	if err := b.client.Publish(ctx, invalidationChannel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish invalidation: %w", err)
	}
	return nil
}

// Listen subscribes to the invalidation channel and applies messages to
// the local cache until ctx is cancelled. Malformed messages are logged
// and skipped.
func (b *Bus) Listen(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, invalidationChannel)
	defer sub.Close()

	// Force the subscription before reporting ready
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to invalidation channel: %w", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var inv invalidationMessage
			if err := json.Unmarshal([]byte(msg.Payload), &inv); err != nil {
				if b.logger != nil {
					b.logger.WithError(err).Warn("Dropping malformed cache invalidation message")
				}
				continue
			}
			b.cache.Invalidate(inv.SubjectID, inv.TenantID)
		}
	}
}
