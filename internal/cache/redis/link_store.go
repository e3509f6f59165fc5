package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	dl "tg-subscriptions-backend/internal/domain/link"
	rplatform "tg-subscriptions-backend/internal/platform/redis"
)

// minTTL keeps records that are about to expire from being written without expiry.
const minTTL = time.Second

// LinkStore keeps pending-link and waiting-chat records. Both expire together
// with the link token they carry.
type LinkStore struct {
	client *rplatform.Client
	now    func() time.Time
}

func NewLinkStore(client *rplatform.Client) *LinkStore {
	return &LinkStore{client: client, now: time.Now}
}

func (s *LinkStore) keyPending(userID int64) string { return fmt.Sprintf("link:pending:user:%d", userID) }
func (s *LinkStore) keyWaiting(chatID int64) string { return fmt.Sprintf("link:waiting:chat:%d", chatID) }

func (s *LinkStore) ttl(expiresAt time.Time) time.Duration {
	ttl := expiresAt.Sub(s.now())
	if ttl < minTTL {
		return minTTL
	}
	return ttl
}

// SavePending replaces any earlier pending record for the user.
func (s *LinkStore) SavePending(ctx context.Context, p dl.PendingLink) error {
	return s.put(ctx, s.keyPending(p.UserID), p, s.ttl(p.ExpiresAt))
}

func (s *LinkStore) GetPending(ctx context.Context, userID int64) (*dl.PendingLink, error) {
	var p dl.PendingLink
	found, err := s.get(ctx, s.keyPending(userID), &p)
	if err != nil || !found {
		return nil, err
	}
	return &p, nil
}

func (s *LinkStore) DeletePending(ctx context.Context, userID int64) error {
	return s.client.Del(ctx, s.keyPending(userID)).Err()
}

func (s *LinkStore) SaveWaitingChat(ctx context.Context, w dl.WaitingChat) error {
	return s.put(ctx, s.keyWaiting(w.ChatID), w, s.ttl(w.ExpiresAt))
}

func (s *LinkStore) GetWaitingChat(ctx context.Context, chatID int64) (*dl.WaitingChat, error) {
	var w dl.WaitingChat
	found, err := s.get(ctx, s.keyWaiting(chatID), &w)
	if err != nil || !found {
		return nil, err
	}
	return &w, nil
}

func (s *LinkStore) DeleteWaitingChat(ctx context.Context, chatID int64) error {
	return s.client.Del(ctx, s.keyWaiting(chatID)).Err()
}

func (s *LinkStore) put(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, b, ttl).Err()
}

func (s *LinkStore) get(ctx context.Context, key string, dst interface{}) (bool, error) {
	b, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return false, err
	}
	return true, nil
}
