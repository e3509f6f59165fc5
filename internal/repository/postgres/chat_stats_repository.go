package postgres

import (
	"context"
	"database/sql"

	dst "tg-subscriptions-backend/internal/domain/stats"
)

// ChatStatsRepository stores member counters and daily snapshots.
type ChatStatsRepository struct {
	db *sql.DB
}

func NewChatStatsRepository(db *sql.DB) *ChatStatsRepository { return &ChatStatsRepository{db: db} }

// UpsertBaseline writes the baseline keyed by chat; last_count starts at it.
func (r *ChatStatsRepository) UpsertBaseline(ctx context.Context, s dst.ChatStats) error {
	const q = `
	INSERT INTO chat_stats (chat_id, subscription_id, baseline_count, baseline_at, last_count, updated_at)
	VALUES ($1,$2,$3,$4,$3,$4)
	ON CONFLICT (chat_id) DO UPDATE SET
		subscription_id=EXCLUDED.subscription_id,
		baseline_count=EXCLUDED.baseline_count,
		baseline_at=EXCLUDED.baseline_at,
		last_count=EXCLUDED.last_count,
		updated_at=EXCLUDED.updated_at`
	_, err := r.db.ExecContext(ctx, q, s.ChatID, s.SubscriptionID, s.BaselineCount, s.BaselineAt)
	return err
}

func (r *ChatStatsRepository) BumpJoined(ctx context.Context, chatID, telegramUserID int64) (bool, error) {
	return r.bump(ctx, `SELECT chat_stats_bump_joined($1,$2)`, chatID, telegramUserID)
}

func (r *ChatStatsRepository) BumpLeft(ctx context.Context, chatID, telegramUserID int64) (bool, error) {
	return r.bump(ctx, `SELECT chat_stats_bump_left($1,$2)`, chatID, telegramUserID)
}

func (r *ChatStatsRepository) bump(ctx context.Context, q string, chatID, telegramUserID int64) (bool, error) {
	var changed bool
	if err := r.db.QueryRowContext(ctx, q, chatID, telegramUserID).Scan(&changed); err != nil {
		return false, err
	}
	return changed, nil
}

// SaveDailyCount upserts the (chat, day) snapshot and refreshes last_count in
// one transaction.
func (r *ChatStatsRepository) SaveDailyCount(ctx context.Context, c dst.DailyCount) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const qDaily = `
	INSERT INTO chat_daily_counts (chat_id, day, count) VALUES ($1,$2,$3)
	ON CONFLICT (chat_id, day) DO UPDATE SET count=EXCLUDED.count`
	if _, err = tx.ExecContext(ctx, qDaily, c.ChatID, c.Day.UTC().Format(dst.DayLayout), c.Count); err != nil {
		return err
	}

	const qStats = `UPDATE chat_stats SET last_count=$2, updated_at=now() WHERE chat_id=$1`
	if _, err = tx.ExecContext(ctx, qStats, c.ChatID, c.Count); err != nil {
		return err
	}

	return tx.Commit()
}
