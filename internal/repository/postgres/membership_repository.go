package postgres

import (
	"context"
	"database/sql"
	"time"

	dm "tg-subscriptions-backend/internal/domain/membership"
)

// MembershipRepository serves the expiry sweep.
type MembershipRepository struct {
	db *sql.DB
}

func NewMembershipRepository(db *sql.DB) *MembershipRepository { return &MembershipRepository{db: db} }

func (r *MembershipRepository) ListExpired(ctx context.Context, limit int) ([]dm.EvictionCandidate, error) {
	const q = `SELECT membership_id, chat_id, telegram_user_id, removal_attempts FROM expired_members_to_kick($1)`
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []dm.EvictionCandidate
	for rows.Next() {
		var c dm.EvictionCandidate
		if err := rows.Scan(&c.MembershipID, &c.ChatID, &c.TelegramUserID, &c.RemovalAttempts); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *MembershipRepository) MarkEvicted(ctx context.Context, membershipID string, at time.Time) error {
	const q = `UPDATE membership SET status=$2, removed_from_chat_at=$3 WHERE id=$1`
	_, err := r.db.ExecContext(ctx, q, membershipID, dm.StatusCancelled, at)
	return err
}

func (r *MembershipRepository) StampRemoved(ctx context.Context, membershipID string, at time.Time) error {
	const q = `UPDATE membership SET removed_from_chat_at=$2 WHERE id=$1`
	_, err := r.db.ExecContext(ctx, q, membershipID, at)
	return err
}

func (r *MembershipRepository) IncrementRemovalAttempts(ctx context.Context, membershipID string) (int, error) {
	const q = `UPDATE membership SET removal_attempts=removal_attempts+1 WHERE id=$1 RETURNING removal_attempts`
	var attempts int
	if err := r.db.QueryRowContext(ctx, q, membershipID).Scan(&attempts); err != nil {
		return 0, err
	}
	return attempts, nil
}
