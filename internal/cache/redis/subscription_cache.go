package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	ds "tg-subscriptions-backend/internal/domain/subscription"
	rplatform "tg-subscriptions-backend/internal/platform/redis"
)

// SubscriptionCache caches subscription summaries shown on the bot card.
type SubscriptionCache struct {
	client *rplatform.Client
	ttl    time.Duration
}

func NewSubscriptionCache(client *rplatform.Client, ttl time.Duration) *SubscriptionCache {
	return &SubscriptionCache{client: client, ttl: ttl}
}

func (c *SubscriptionCache) key(id string) string { return fmt.Sprintf("subscription:id:%s", id) }

func (c *SubscriptionCache) Set(ctx context.Context, s *ds.Subscription) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(s.ID), b, c.ttl).Err()
}

// Get returns (nil, nil) on a miss.
func (c *SubscriptionCache) Get(ctx context.Context, id string) (*ds.Subscription, error) {
	v, err := c.client.Get(ctx, c.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var s ds.Subscription
	if err := json.Unmarshal(v, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *SubscriptionCache) Invalidate(ctx context.Context, id string) error {
	return c.client.Del(ctx, c.key(id)).Err()
}
