package linktoken

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "tg-subscriptions-backend/internal/common/errors"
	dl "tg-subscriptions-backend/internal/domain/link"
)

// DefaultTTL is how long an issued token stays redeemable.
const DefaultTTL = 30 * time.Minute

// Issued is what the dashboard gets back for a new link session.
type Issued struct {
	SessionID      string    `json:"session_id"`
	Token          string    `json:"token"`
	StartLink      string    `json:"start_link"`
	StartGroupLink string    `json:"start_group_link"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// Service issues and redeems one-time link tokens.
type Service struct {
	repo        dl.SessionRepository
	botUsername string
	ttl         time.Duration
	now         func() time.Time
}

func NewService(repo dl.SessionRepository, botUsername string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{repo: repo, botUsername: botUsername, ttl: ttl, now: time.Now}
}

// Issue creates a session for subscriptionID on behalf of createdBy.
func (s *Service) Issue(ctx context.Context, subscriptionID, createdBy string) (*Issued, error) {
	if _, err := uuid.Parse(subscriptionID); err != nil {
		return nil, apperrors.NewValidationError("subscription_id", "must be a UUID")
	}
	if strings.TrimSpace(createdBy) == "" {
		return nil, apperrors.NewValidationError("user_id", "is required")
	}

	now := s.now().UTC()
	sess := &dl.Session{
		ID:             uuid.NewString(),
		SubscriptionID: subscriptionID,
		CreatedBy:      createdBy,
		Token:          newToken(),
		ExpiresAt:      now.Add(s.ttl),
		CreatedAt:      now,
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, apperrors.NewDatabaseError("create_link_session", err)
	}

	return &Issued{
		SessionID:      sess.ID,
		Token:          sess.Token,
		StartLink:      s.StartLink(sess.Token),
		StartGroupLink: s.StartGroupLink(sess.Token),
		ExpiresAt:      sess.ExpiresAt,
	}, nil
}

// Consume returns the session for token if it is unconsumed and unexpired.
// It does not mark it consumed.
func (s *Service) Consume(ctx context.Context, token string) (*dl.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperrors.NewInvalidOrExpiredError()
	}
	sess, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		return nil, apperrors.NewDatabaseError("get_link_session", err)
	}
	if sess == nil || !sess.Usable(s.now()) {
		return nil, apperrors.NewInvalidOrExpiredError()
	}
	return sess, nil
}

// MarkConsumed is idempotent.
func (s *Service) MarkConsumed(ctx context.Context, sessionID string) error {
	found, err := s.repo.MarkConsumed(ctx, sessionID)
	if err != nil {
		return apperrors.NewDatabaseError("mark_link_session_consumed", err)
	}
	if !found {
		return apperrors.NewNotFoundError("link session", sessionID)
	}
	return nil
}

func (s *Service) StartLink(token string) string {
	return fmt.Sprintf("https://t.me/%s?start=%s", s.botUsername, token)
}

// StartGroupLink opens the "add to group" flow and asks for the admin rights
// the bot needs.
func (s *Service) StartGroupLink(token string) string {
	return fmt.Sprintf("https://t.me/%s?startgroup=%s&admin=invite_users+restrict_members+manage_chat", s.botUsername, token)
}

// newToken returns 32 lowercase hex characters.
func newToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
