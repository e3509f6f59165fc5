package links

import (
	"context"

	apperrors "tg-subscriptions-backend/internal/common/errors"
	dl "tg-subscriptions-backend/internal/domain/link"
)

// Service persists subscription-to-chat links.
type Service struct {
	repo dl.Repository
}

func NewService(repo dl.Repository) *Service { return &Service{repo: repo} }

// Save upserts the single link of subscriptionID. Status is active when the
// bot is an admin, pending otherwise, and an admin link also activates the
// subscription.
func (s *Service) Save(ctx context.Context, subscriptionID string, chat dl.Chat) error {
	if subscriptionID == "" {
		return apperrors.NewValidationError("subscription_id", "is required")
	}
	if !chat.Type.Linkable() {
		return apperrors.New(apperrors.ErrCodeUnsupportedChatType, "only supergroups and channels can be linked")
	}
	if err := s.repo.Save(ctx, subscriptionID, chat); err != nil {
		return apperrors.NewDatabaseError("save_chat_link", err)
	}
	return nil
}

// FindExisting returns the subscription's link or nil.
func (s *Service) FindExisting(ctx context.Context, subscriptionID string) (*dl.ChatLink, error) {
	l, err := s.repo.GetBySubscription(ctx, subscriptionID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("get_chat_link", err)
	}
	return l, nil
}

func (s *Service) FindByChat(ctx context.Context, chatID int64) (*dl.ChatLink, error) {
	l, err := s.repo.GetByChatID(ctx, chatID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("get_chat_link_by_chat", err)
	}
	return l, nil
}

// Pause marks links of a chat the bot was removed from.
func (s *Service) Pause(ctx context.Context, chatID int64) (bool, error) {
	n, err := s.repo.SetStatusByChat(ctx, chatID, dl.StatusPaused)
	if err != nil {
		return false, apperrors.NewDatabaseError("pause_chat_link", err)
	}
	return n > 0, nil
}

// Tracked lists linked chats, one entry per chat.
func (s *Service) Tracked(ctx context.Context) ([]dl.TrackedChat, error) {
	all, err := s.repo.ListTracked(ctx)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list_tracked_chats", err)
	}
	seen := make(map[int64]struct{}, len(all))
	out := make([]dl.TrackedChat, 0, len(all))
	for _, tc := range all {
		if _, ok := seen[tc.ChatID]; ok {
			continue
		}
		seen[tc.ChatID] = struct{}{}
		out = append(out, tc)
	}
	return out, nil
}
