package membership

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "tg-subscriptions-backend/internal/common/errors"
	dl "tg-subscriptions-backend/internal/domain/link"
	dst "tg-subscriptions-backend/internal/domain/stats"
	"tg-subscriptions-backend/internal/platform/telegram"
)

// Links resolves which chats are tracked.
type Links interface {
	FindByChat(ctx context.Context, chatID int64) (*dl.ChatLink, error)
	Tracked(ctx context.Context) ([]dl.TrackedChat, error)
}

// MemberCounter reads live member counts.
type MemberCounter interface {
	GetMemberCount(ctx context.Context, chatID int64) (int, error)
}

// Transition is the counter effect of one chat_member update.
type Transition string

const (
	TransitionNone   Transition = "none"
	TransitionJoined Transition = "joined"
	TransitionLeft   Transition = "left"
)

// ClassifyTransition applies the join/leave rules: left or kicked to member
// is a join, member to left or kicked is a leave, anything else is ignored.
func ClassifyTransition(oldStatus, newStatus string) Transition {
	gone := func(s string) bool { return s == telegram.StatusLeft || s == telegram.StatusKicked }
	switch {
	case gone(oldStatus) && newStatus == telegram.StatusMember:
		return TransitionJoined
	case oldStatus == telegram.StatusMember && gone(newStatus):
		return TransitionLeft
	default:
		return TransitionNone
	}
}

// MemberEvent is a normalized chat_member update.
type MemberEvent struct {
	ChatID    int64
	UserID    int64
	OldStatus string
	NewStatus string
}

// DailyResult summarizes a daily snapshot run.
type DailyResult struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// Tracker maintains member counters for linked chats.
type Tracker struct {
	links   Links
	stats   dst.Repository
	counter MemberCounter
	now     func() time.Time
}

func NewTracker(links Links, stats dst.Repository, counter MemberCounter) *Tracker {
	return &Tracker{links: links, stats: stats, counter: counter, now: time.Now}
}

// HandleMemberUpdate applies one membership change. It returns the transition
// actually applied; duplicates and untracked chats yield TransitionNone.
func (t *Tracker) HandleMemberUpdate(ctx context.Context, ev MemberEvent) (Transition, error) {
	tr := ClassifyTransition(ev.OldStatus, ev.NewStatus)
	if tr == TransitionNone {
		return TransitionNone, nil
	}

	link, err := t.links.FindByChat(ctx, ev.ChatID)
	if err != nil {
		return TransitionNone, err
	}
	if link == nil {
		return TransitionNone, nil
	}

	var changed bool
	if tr == TransitionJoined {
		changed, err = t.stats.BumpJoined(ctx, ev.ChatID, ev.UserID)
	} else {
		changed, err = t.stats.BumpLeft(ctx, ev.ChatID, ev.UserID)
	}
	if err != nil {
		return TransitionNone, apperrors.NewDatabaseError("bump_chat_stats", err)
	}
	if !changed {
		return TransitionNone, nil
	}
	return tr, nil
}

// UpsertBaseline records the member count at link time.
func (t *Tracker) UpsertBaseline(ctx context.Context, chatID int64, subscriptionID string, count int) error {
	now := t.now().UTC()
	err := t.stats.UpsertBaseline(ctx, dst.ChatStats{
		ChatID:         chatID,
		SubscriptionID: subscriptionID,
		BaselineCount:  count,
		BaselineAt:     now,
		LastCount:      count,
		UpdatedAt:      now,
	})
	if err != nil {
		return apperrors.NewDatabaseError("upsert_chat_baseline", err)
	}
	return nil
}

// SeedBaseline reads the live member count and stores it as the baseline.
func (t *Tracker) SeedBaseline(ctx context.Context, chatID int64, subscriptionID string) error {
	count, err := t.counter.GetMemberCount(ctx, chatID)
	if err != nil {
		return apperrors.NewTelegramAPIError("getChatMemberCount", err)
	}
	return t.UpsertBaseline(ctx, chatID, subscriptionID, count)
}

// SaveDailyCount stores the snapshot for the UTC calendar day of day.
func (t *Tracker) SaveDailyCount(ctx context.Context, chatID int64, day time.Time, count int) error {
	err := t.stats.SaveDailyCount(ctx, dst.DailyCount{ChatID: chatID, Day: day.UTC(), Count: count})
	if err != nil {
		return apperrors.NewDatabaseError("save_daily_count", err)
	}
	return nil
}

// SnapshotDailyCounts stores today's member count for every tracked chat.
// A failing chat is counted and skipped.
func (t *Tracker) SnapshotDailyCounts(ctx context.Context) (DailyResult, error) {
	var res DailyResult
	chats, err := t.links.Tracked(ctx)
	if err != nil {
		return res, err
	}

	day := t.now().UTC()
	for _, c := range chats {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		count, err := t.counter.GetMemberCount(ctx, c.ChatID)
		if err != nil {
			res.Failed++
			log.Warn().Err(err).Int64("chat_id", c.ChatID).Msg("member count failed")
			continue
		}
		if err := t.SaveDailyCount(ctx, c.ChatID, day, count); err != nil {
			res.Failed++
			log.Error().Err(err).Int64("chat_id", c.ChatID).Msg("save daily count failed")
			continue
		}
		res.Processed++
	}

	log.Info().Int("processed", res.Processed).Int("failed", res.Failed).Msg("daily member counts saved")
	return res, nil
}
