package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePosts struct {
	n         int64
	err       error
	olderThan time.Time
}

func (f *fakePosts) FailStale(_ context.Context, olderThan time.Time) (int64, error) {
	f.olderThan = olderThan
	return f.n, f.err
}

type fakeActivator struct {
	n     int64
	err   error
	calls int
}

func (f *fakeActivator) ActivateLinked(context.Context) (int64, error) {
	f.calls++
	return f.n, f.err
}

func TestRunOnce(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	posts := &fakePosts{n: 2}
	subs := &fakeActivator{n: 1}
	r := NewReconciler(posts, subs, 15*time.Minute)
	r.now = func() time.Time { return now }

	res, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{StalePosts: 2, ActivatedSubscriptions: 1}, res)
	assert.Equal(t, now.Add(-15*time.Minute), posts.olderThan)
}

func TestRunOnceKeepsGoingAfterFailure(t *testing.T) {
	posts := &fakePosts{err: errors.New("db down")}
	subs := &fakeActivator{n: 3}

	res, err := NewReconciler(posts, subs, time.Minute).RunOnce(context.Background())
	assert.ErrorContains(t, err, "db down")
	assert.Equal(t, 1, subs.calls)
	assert.Equal(t, int64(3), res.ActivatedSubscriptions)
}
