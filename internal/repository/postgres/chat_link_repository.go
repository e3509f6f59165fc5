package postgres

import (
	"context"
	"database/sql"

	dl "tg-subscriptions-backend/internal/domain/link"
	ds "tg-subscriptions-backend/internal/domain/subscription"
)

// ChatLinkRepository persists subscription-to-chat links.
type ChatLinkRepository struct {
	db *sql.DB
}

func NewChatLinkRepository(db *sql.DB) *ChatLinkRepository { return &ChatLinkRepository{db: db} }

const chatLinkColumns = `id, subscription_id, tg_chat_id, tg_chat_type, tg_chat_title, bot_is_admin, invite_link, status, created_at, updated_at`

// Save upserts the link and, when the bot is an admin, activates the
// subscription in the same transaction.
func (r *ChatLinkRepository) Save(ctx context.Context, subscriptionID string, chat dl.Chat) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const qUpsert = `
	INSERT INTO subscription_telegram_link (subscription_id, tg_chat_id, tg_chat_type, tg_chat_title, bot_is_admin, invite_link, status, updated_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,now())
	ON CONFLICT (subscription_id) DO UPDATE SET
		tg_chat_id=EXCLUDED.tg_chat_id,
		tg_chat_type=EXCLUDED.tg_chat_type,
		tg_chat_title=EXCLUDED.tg_chat_title,
		bot_is_admin=EXCLUDED.bot_is_admin,
		invite_link=EXCLUDED.invite_link,
		status=EXCLUDED.status,
		updated_at=now()`
	_, err = tx.ExecContext(ctx, qUpsert,
		subscriptionID, chat.ID, chat.Type, nullString(chat.Title), chat.BotIsAdmin, nullStringPtr(chat.InviteLink), dl.StatusFor(chat.BotIsAdmin),
	)
	if err != nil {
		return err
	}

	if chat.BotIsAdmin {
		const qActivate = `UPDATE subscriptions SET subscription_state=$2 WHERE id=$1`
		if _, err = tx.ExecContext(ctx, qActivate, subscriptionID, ds.StateActive); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *ChatLinkRepository) GetBySubscription(ctx context.Context, subscriptionID string) (*dl.ChatLink, error) {
	q := `SELECT ` + chatLinkColumns + ` FROM subscription_telegram_link WHERE subscription_id=$1`
	return r.scanOne(r.db.QueryRowContext(ctx, q, subscriptionID))
}

// GetByChatID returns the most recently updated link for the chat.
func (r *ChatLinkRepository) GetByChatID(ctx context.Context, chatID int64) (*dl.ChatLink, error) {
	q := `SELECT ` + chatLinkColumns + ` FROM subscription_telegram_link WHERE tg_chat_id=$1 ORDER BY updated_at DESC LIMIT 1`
	return r.scanOne(r.db.QueryRowContext(ctx, q, chatID))
}

func (r *ChatLinkRepository) ListTracked(ctx context.Context) ([]dl.TrackedChat, error) {
	const q = `SELECT tg_chat_id, subscription_id FROM subscription_telegram_link WHERE status <> 'paused' ORDER BY tg_chat_id`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []dl.TrackedChat
	for rows.Next() {
		var tc dl.TrackedChat
		if err := rows.Scan(&tc.ChatID, &tc.SubscriptionID); err != nil {
			return nil, err
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

func (r *ChatLinkRepository) SetStatusByChat(ctx context.Context, chatID int64, status dl.Status) (int64, error) {
	const q = `UPDATE subscription_telegram_link SET status=$2, updated_at=now() WHERE tg_chat_id=$1 AND status <> $2`
	res, err := r.db.ExecContext(ctx, q, chatID, status)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *ChatLinkRepository) scanOne(row *sql.Row) (*dl.ChatLink, error) {
	var (
		l      dl.ChatLink
		title  sql.NullString
		invite sql.NullString
	)
	err := row.Scan(&l.ID, &l.SubscriptionID, &l.ChatID, &l.ChatType, &title, &l.BotIsAdmin, &invite, &l.Status, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	l.ChatTitle = title.String
	if invite.Valid {
		v := invite.String
		l.InviteLink = &v
	}
	return &l, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return nullString(*s)
}
