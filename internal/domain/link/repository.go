package link

import "context"

// SessionRepository persists link sessions. Lookups return (nil, nil) when
// nothing matches.
type SessionRepository interface {
	Create(ctx context.Context, s *Session) error
	GetByToken(ctx context.Context, token string) (*Session, error)
	MarkConsumed(ctx context.Context, id string) (bool, error)
}

// Repository persists subscription-to-chat links.
type Repository interface {
	// Save upserts the link keyed by subscription and activates the
	// subscription when the bot is an admin, atomically.
	Save(ctx context.Context, subscriptionID string, chat Chat) error
	GetBySubscription(ctx context.Context, subscriptionID string) (*ChatLink, error)
	GetByChatID(ctx context.Context, chatID int64) (*ChatLink, error)
	ListTracked(ctx context.Context) ([]TrackedChat, error)
	SetStatusByChat(ctx context.Context, chatID int64, status Status) (int64, error)
}

// PendingStore keeps short-lived conversation correlation records.
type PendingStore interface {
	SavePending(ctx context.Context, p PendingLink) error
	GetPending(ctx context.Context, userID int64) (*PendingLink, error)
	DeletePending(ctx context.Context, userID int64) error
	SaveWaitingChat(ctx context.Context, w WaitingChat) error
	GetWaitingChat(ctx context.Context, chatID int64) (*WaitingChat, error)
	DeleteWaitingChat(ctx context.Context, chatID int64) error
}
