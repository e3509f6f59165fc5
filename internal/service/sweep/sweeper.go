package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	dm "tg-subscriptions-backend/internal/domain/membership"
)

// FailurePolicy decides what happens to a membership whose removal failed.
type FailurePolicy string

const (
	// PolicyGiveUp stamps removed_from_chat_at on the first failure.
	PolicyGiveUp FailurePolicy = "give_up"
	// PolicyRetry leaves the row for later sweeps until MaxAttempts is reached.
	PolicyRetry FailurePolicy = "retry"
)

// ParsePolicy accepts the configuration spelling of a policy.
func ParsePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(s) {
	case PolicyGiveUp, PolicyRetry:
		return FailurePolicy(s), nil
	}
	return "", fmt.Errorf("unknown sweep failure policy %q", s)
}

// Remover removes a user from a chat.
type Remover interface {
	BanChatMember(ctx context.Context, chatID, userID int64) error
	UnbanChatMember(ctx context.Context, chatID, userID int64) error
}

type Options struct {
	BatchLimit  int
	Policy      FailurePolicy
	MaxAttempts int
}

type Result struct {
	Processed int `json:"processed"`
	Evicted   int `json:"evicted"`
	// Failed counts removals given up on.
	Failed int `json:"failed"`
	// Deferred counts failed removals left for a later sweep.
	Deferred int `json:"deferred"`
}

// Sweeper removes users whose membership has expired from the linked chat.
type Sweeper struct {
	repo    dm.Repository
	remover Remover
	opts    Options
	now     func() time.Time
	log     zerolog.Logger
}

func NewSweeper(repo dm.Repository, remover Remover, opts Options) *Sweeper {
	if opts.BatchLimit <= 0 {
		opts.BatchLimit = 200
	}
	if opts.Policy == "" {
		opts.Policy = PolicyGiveUp
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	return &Sweeper{
		repo:    repo,
		remover: remover,
		opts:    opts,
		now:     time.Now,
		log:     log.With().Str("component", "sweep").Logger(),
	}
}

// RunOnce processes one batch of expired memberships. Only the initial
// query can fail the run; every row is handled independently.
func (s *Sweeper) RunOnce(ctx context.Context) (Result, error) {
	var res Result

	rows, err := s.repo.ListExpired(ctx, s.opts.BatchLimit)
	if err != nil {
		return res, err
	}
	if len(rows) == 0 {
		s.log.Debug().Msg("no expired members")
		return res, nil
	}

	for _, row := range rows {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Processed++
		switch s.evict(ctx, row) {
		case outcomeEvicted:
			res.Evicted++
		case outcomeDeferred:
			res.Deferred++
		default:
			res.Failed++
		}
	}

	s.log.Info().
		Int("processed", res.Processed).
		Int("evicted", res.Evicted).
		Int("failed", res.Failed).
		Int("deferred", res.Deferred).
		Msg("sweep finished")
	return res, nil
}

type outcome int

const (
	outcomeEvicted outcome = iota
	outcomeFailed
	outcomeDeferred
)

func (s *Sweeper) evict(ctx context.Context, row dm.EvictionCandidate) outcome {
	l := s.log.With().
		Str("membership_id", row.MembershipID).
		Int64("chat_id", row.ChatID).
		Int64("user_id", row.TelegramUserID).
		Logger()

	if err := s.remover.BanChatMember(ctx, row.ChatID, row.TelegramUserID); err != nil {
		l.Warn().Err(err).Msg("remove member failed")
		return s.onFailure(ctx, row, l)
	}
	// unban so the user can rejoin later through a fresh invite
	if err := s.remover.UnbanChatMember(ctx, row.ChatID, row.TelegramUserID); err != nil {
		l.Warn().Err(err).Msg("unban after removal failed")
	}

	if err := s.repo.MarkEvicted(ctx, row.MembershipID, s.now().UTC()); err != nil {
		l.Error().Err(err).Msg("mark membership evicted failed")
		return outcomeFailed
	}
	l.Info().Msg("member removed")
	return outcomeEvicted
}

func (s *Sweeper) onFailure(ctx context.Context, row dm.EvictionCandidate, l zerolog.Logger) outcome {
	if s.opts.Policy == PolicyRetry {
		attempts, err := s.repo.IncrementRemovalAttempts(ctx, row.MembershipID)
		if err != nil {
			l.Error().Err(err).Msg("record removal attempt failed")
			return outcomeDeferred
		}
		if attempts < s.opts.MaxAttempts {
			l.Info().Int("attempts", attempts).Msg("removal will be retried")
			return outcomeDeferred
		}
		l.Warn().Int("attempts", attempts).Msg("removal attempts exhausted")
	}

	if err := s.repo.StampRemoved(ctx, row.MembershipID, s.now().UTC()); err != nil {
		l.Error().Err(err).Msg("stamp removal failed")
	}
	return outcomeFailed
}
