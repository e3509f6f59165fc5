package workers

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cache "tg-subscriptions-backend/internal/cache/redis"
	"tg-subscriptions-backend/internal/platform/redis"
	"tg-subscriptions-backend/internal/service/membership"
)

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	c := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = c.Close() })
	return redis.Wrap(c)
}

func TestLoopRunsImmediatelyAndStops(t *testing.T) {
	var runs int32
	l := NewLoop("test", time.Hour, func(context.Context) error {
		atomic.AddInt32(&runs, 1)
		return errors.New("ignored")
	})

	l.Start()
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&runs) == 1 }, time.Second, 5*time.Millisecond)
	l.Stop()
	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))
}

func TestLoopSurvivesPanic(t *testing.T) {
	var runs int32
	l := NewLoop("panicky", 10*time.Millisecond, func(context.Context) error {
		if atomic.AddInt32(&runs, 1) == 1 {
			panic("boom")
		}
		return nil
	})

	l.Start()
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&runs) >= 2 }, time.Second, 5*time.Millisecond)
	l.Stop()
}

type countingSnapshotter struct {
	calls int
	err   error
}

func (c *countingSnapshotter) SnapshotDailyCounts(context.Context) (membership.DailyResult, error) {
	c.calls++
	return membership.DailyResult{Processed: 1}, c.err
}

func TestDailySnapshotOncePerDay(t *testing.T) {
	snap := &countingSnapshotter{}
	d := NewDailySnapshot(snap, cache.NewJobLock(newRedis(t)), 3)
	ctx := context.Background()

	now := time.Date(2026, 5, 1, 2, 59, 0, 0, time.UTC)
	d.now = func() time.Time { return now }
	require.NoError(t, d.Tick(ctx))
	assert.Zero(t, snap.calls)

	now = time.Date(2026, 5, 1, 3, 0, 0, 0, time.UTC)
	require.NoError(t, d.Tick(ctx))
	require.NoError(t, d.Tick(ctx))
	assert.Equal(t, 1, snap.calls)

	now = time.Date(2026, 5, 2, 4, 0, 0, 0, time.UTC)
	require.NoError(t, d.Tick(ctx))
	assert.Equal(t, 2, snap.calls)
}

func TestDailySnapshotRetriesAfterFailure(t *testing.T) {
	snap := &countingSnapshotter{err: errors.New("db down")}
	d := NewDailySnapshot(snap, cache.NewJobLock(newRedis(t)), 0)
	ctx := context.Background()

	assert.Error(t, d.Tick(ctx))
	snap.err = nil
	require.NoError(t, d.Tick(ctx))
	assert.Equal(t, 2, snap.calls)
}

func TestUpdateStreamDeliversInOrder(t *testing.T) {
	rdb := newRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []string
	s := NewUpdateStream(rdb, "test-1", func(_ context.Context, raw []byte) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, string(raw))
	})
	s.block = 50 * time.Millisecond

	require.NoError(t, s.Enqueue(ctx, []byte(`{"update_id":1}`)))
	require.NoError(t, s.Enqueue(ctx, []byte(`{"update_id":2}`)))

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []string{`{"update_id":1}`, `{"update_id":2}`}, got)

	pending, err := rdb.XPending(context.Background(), updateStreamKey, updateGroup).Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count)
}
