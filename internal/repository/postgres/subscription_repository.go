package postgres

import (
	"context"
	"database/sql"

	ds "tg-subscriptions-backend/internal/domain/subscription"
)

// SubscriptionRepository reads creator subscriptions.
type SubscriptionRepository struct {
	db *sql.DB
}

func NewSubscriptionRepository(db *sql.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) GetByID(ctx context.Context, id string) (*ds.Subscription, error) {
	const q = `
	SELECT id, sub_name, COALESCE(description,''), price_amount, price_currency, billing_cycle, subscription_state, created_at
	FROM subscriptions WHERE id=$1`
	var s ds.Subscription
	err := r.db.QueryRowContext(ctx, q, id).
		Scan(&s.ID, &s.Name, &s.Description, &s.PriceAmount, &s.PriceCurrency, &s.BillingCycle, &s.State, &s.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// ActivateLinked repairs subscriptions left inactive although their chat link
// already has an admin bot.
func (r *SubscriptionRepository) ActivateLinked(ctx context.Context) (int64, error) {
	const q = `
	UPDATE subscriptions s SET subscription_state=$1
	FROM subscription_telegram_link l
	WHERE l.subscription_id=s.id AND l.bot_is_admin AND s.subscription_state <> $1`
	res, err := r.db.ExecContext(ctx, q, ds.StateActive)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
