package postgres

import (
	"context"
	"database/sql"

	dl "tg-subscriptions-backend/internal/domain/link"
)

// LinkSessionRepository persists one-time link tokens.
type LinkSessionRepository struct {
	db *sql.DB
}

func NewLinkSessionRepository(db *sql.DB) *LinkSessionRepository {
	return &LinkSessionRepository{db: db}
}

func (r *LinkSessionRepository) Create(ctx context.Context, s *dl.Session) error {
	const q = `
	INSERT INTO telegram_link_session (id, subscription_id, created_by, token, expires_at, consumed, created_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err := r.db.ExecContext(ctx, q, s.ID, s.SubscriptionID, s.CreatedBy, s.Token, s.ExpiresAt, s.Consumed, s.CreatedAt)
	return err
}

// GetByToken returns the session regardless of its validity; callers decide.
func (r *LinkSessionRepository) GetByToken(ctx context.Context, token string) (*dl.Session, error) {
	const q = `
	SELECT id, subscription_id, created_by, token, expires_at, consumed, created_at
	FROM telegram_link_session WHERE token=$1`
	var s dl.Session
	err := r.db.QueryRowContext(ctx, q, token).
		Scan(&s.ID, &s.SubscriptionID, &s.CreatedBy, &s.Token, &s.ExpiresAt, &s.Consumed, &s.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// MarkConsumed flips consumed to true. Repeating it is harmless; the result
// reports whether the session exists.
func (r *LinkSessionRepository) MarkConsumed(ctx context.Context, id string) (bool, error) {
	const q = `UPDATE telegram_link_session SET consumed=true WHERE id=$1`
	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
