package subscriptions

import (
	"context"

	"github.com/rs/zerolog/log"

	apperrors "tg-subscriptions-backend/internal/common/errors"
	ds "tg-subscriptions-backend/internal/domain/subscription"
)

// Cache is an optional read-through cache for summaries.
type Cache interface {
	Get(ctx context.Context, id string) (*ds.Subscription, error)
	Set(ctx context.Context, s *ds.Subscription) error
}

// Service reads subscriptions for the bot card and reconciler.
type Service struct {
	repo  ds.Repository
	cache Cache
}

// NewService builds the service; cache may be nil.
func NewService(repo ds.Repository, cache Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

// GetSummary returns the subscription or a NOT_FOUND error.
func (s *Service) GetSummary(ctx context.Context, id string) (*ds.Subscription, error) {
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, id); err != nil {
			log.Warn().Err(err).Str("subscription_id", id).Msg("subscription cache read failed")
		} else if cached != nil {
			return cached, nil
		}
	}

	sub, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperrors.NewDatabaseError("get_subscription", err)
	}
	if sub == nil {
		return nil, apperrors.NewNotFoundError("subscription", id)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, sub); err != nil {
			log.Warn().Err(err).Str("subscription_id", id).Msg("subscription cache write failed")
		}
	}
	return sub, nil
}

// ActivateLinked activates subscriptions whose link already has an admin bot.
func (s *Service) ActivateLinked(ctx context.Context) (int64, error) {
	n, err := s.repo.ActivateLinked(ctx)
	if err != nil {
		return 0, apperrors.NewDatabaseError("activate_linked_subscriptions", err)
	}
	return n, nil
}
