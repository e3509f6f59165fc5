package membership

import (
	"context"
	"time"
)

// Status of a paid membership.
type Status string

const (
	StatusActive       Status = "active"
	StatusExpiringSoon Status = "expiring_soon"
	StatusCancelled    Status = "cancelled"
)

// EvictionCandidate is an expired membership whose user is still in the chat.
type EvictionCandidate struct {
	MembershipID    string
	ChatID          int64
	TelegramUserID  int64
	RemovalAttempts int
}

type Repository interface {
	ListExpired(ctx context.Context, limit int) ([]EvictionCandidate, error)
	// MarkEvicted cancels the membership and stamps the removal time.
	MarkEvicted(ctx context.Context, membershipID string, at time.Time) error
	// StampRemoved records the removal time without cancelling, taking the
	// row out of future sweeps.
	StampRemoved(ctx context.Context, membershipID string, at time.Time) error
	IncrementRemovalAttempts(ctx context.Context, membershipID string) (int, error)
}
