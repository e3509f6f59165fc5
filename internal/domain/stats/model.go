package stats

import (
	"context"
	"time"
)

// ChatStats is the per-chat member counter seeded when a link is made.
type ChatStats struct {
	ChatID         int64     `json:"chat_id"`
	SubscriptionID string    `json:"subscription_id"`
	BaselineCount  int       `json:"baseline_count"`
	BaselineAt     time.Time `json:"baseline_at"`
	LastCount      int       `json:"last_count"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// DailyCount is one member-count snapshot per chat per UTC day.
type DailyCount struct {
	ChatID int64     `json:"chat_id"`
	Day    time.Time `json:"day"`
	Count  int       `json:"count"`
}

// DayLayout is the calendar-day key format.
const DayLayout = "2006-01-02"

type Repository interface {
	UpsertBaseline(ctx context.Context, s ChatStats) error
	// BumpJoined and BumpLeft apply a membership transition at most once per
	// (chat, user) state change and report whether the counter moved.
	BumpJoined(ctx context.Context, chatID, telegramUserID int64) (bool, error)
	BumpLeft(ctx context.Context, chatID, telegramUserID int64) (bool, error)
	// SaveDailyCount upserts the (chat, day) row and refreshes last_count.
	SaveDailyCount(ctx context.Context, c DailyCount) error
}
