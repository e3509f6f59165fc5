package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// StalePosts fails publishing claims that never finished.
type StalePosts interface {
	FailStale(ctx context.Context, olderThan time.Time) (int64, error)
}

// Activator activates subscriptions whose chat link already has an admin bot.
type Activator interface {
	ActivateLinked(ctx context.Context) (int64, error)
}

type Result struct {
	StalePosts             int64 `json:"stale_posts"`
	ActivatedSubscriptions int64 `json:"activated_subscriptions"`
}

// Reconciler repairs partial states left by a crash between two writes.
// Stale claims go to failed, never back to scheduled, so a post is never
// sent twice.
type Reconciler struct {
	posts      StalePosts
	subs       Activator
	staleAfter time.Duration
	now        func() time.Time
	log        zerolog.Logger
}

func NewReconciler(posts StalePosts, subs Activator, staleAfter time.Duration) *Reconciler {
	if staleAfter <= 0 {
		staleAfter = 15 * time.Minute
	}
	return &Reconciler{
		posts:      posts,
		subs:       subs,
		staleAfter: staleAfter,
		now:        time.Now,
		log:        log.With().Str("component", "reconcile").Logger(),
	}
}

// RunOnce runs both repairs. One failing does not skip the other.
func (r *Reconciler) RunOnce(ctx context.Context) (Result, error) {
	var res Result
	var errs []error

	n, err := r.posts.FailStale(ctx, r.now().UTC().Add(-r.staleAfter))
	if err != nil {
		errs = append(errs, err)
	} else {
		res.StalePosts = n
	}

	n, err = r.subs.ActivateLinked(ctx)
	if err != nil {
		errs = append(errs, err)
	} else {
		res.ActivatedSubscriptions = n
	}

	if res.StalePosts > 0 || res.ActivatedSubscriptions > 0 {
		r.log.Info().
			Int64("stale_posts", res.StalePosts).
			Int64("activated_subscriptions", res.ActivatedSubscriptions).
			Msg("reconciled partial states")
	}
	return res, errors.Join(errs...)
}
