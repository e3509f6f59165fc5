package subscription

import (
	"context"
	"time"
)

// State of a creator subscription product.
type State string

const (
	StatePending State = "pending"
	StateActive  State = "active"
)

// Subscription is the paid product a Telegram chat gets linked to.
type Subscription struct {
	ID            string    `json:"id"`
	Name          string    `json:"sub_name"`
	Description   string    `json:"description,omitempty"`
	PriceAmount   float64   `json:"price_amount"`
	PriceCurrency string    `json:"price_currency"`
	BillingCycle  string    `json:"billing_cycle"`
	State         State     `json:"subscription_state"`
	CreatedAt     time.Time `json:"created_at"`
}

type Repository interface {
	GetByID(ctx context.Context, id string) (*Subscription, error)
	// ActivateLinked activates every subscription whose link has an admin bot.
	ActivateLinked(ctx context.Context) (int64, error)
}
