package workers

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	dst "tg-subscriptions-backend/internal/domain/stats"
	"tg-subscriptions-backend/internal/service/membership"
)

// DailyCheckInterval is how often the daily job looks at the clock.
const DailyCheckInterval = 5 * time.Minute

// Snapshotter takes the member count snapshot of every tracked chat.
type Snapshotter interface {
	SnapshotDailyCounts(ctx context.Context) (membership.DailyResult, error)
}

// Locker grants a key to exactly one caller per ttl.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// DailySnapshot takes the member snapshot once per UTC day, after hour.
type DailySnapshot struct {
	snap Snapshotter
	lock Locker
	hour int
	now  func() time.Time
}

func NewDailySnapshot(snap Snapshotter, lock Locker, hour int) *DailySnapshot {
	return &DailySnapshot{snap: snap, lock: lock, hour: hour, now: time.Now}
}

// Tick is a Job. It is cheap to call often; all but the first call of the
// day return immediately.
func (d *DailySnapshot) Tick(ctx context.Context) error {
	now := d.now().UTC()
	if now.Hour() < d.hour {
		return nil
	}

	key := "daily-counts:" + now.Format(dst.DayLayout)
	ok, err := d.lock.Acquire(ctx, key, 36*time.Hour)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	res, err := d.snap.SnapshotDailyCounts(ctx)
	if err != nil {
		// let a later tick retry the day
		if rerr := d.lock.Release(context.WithoutCancel(ctx), key); rerr != nil {
			log.Warn().Err(rerr).Str("key", key).Msg("release daily lock failed")
		}
		return err
	}
	log.Info().Str("day", now.Format(dst.DayLayout)).Int("processed", res.Processed).Int("failed", res.Failed).Msg("daily snapshot taken")
	return nil
}
