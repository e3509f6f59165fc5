package redis

import (
	"context"
	"fmt"
	"time"

	rplatform "tg-subscriptions-backend/internal/platform/redis"
)

// JobLock hands out run-once markers shared by every worker process.
type JobLock struct {
	client *rplatform.Client
}

func NewJobLock(client *rplatform.Client) *JobLock {
	return &JobLock{client: client}
}

// Acquire reports whether the caller is the first to claim key within ttl.
func (l *JobLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, fmt.Sprintf("jobs:%s", key), time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire job lock %s: %w", key, err)
	}
	return ok, nil
}

// Release drops key so the job can run again.
func (l *JobLock) Release(ctx context.Context, key string) error {
	return l.client.Del(ctx, fmt.Sprintf("jobs:%s", key)).Err()
}
