package workers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"tg-subscriptions-backend/internal/platform/redis"
)

const (
	updateStreamKey = "telegram:updates"
	updateGroup     = "tg_subscriptions_backend"
	// approximate cap on stream length
	updateStreamMaxLen = 10000
)

// UpdateHandler processes one raw Bot API update.
type UpdateHandler func(ctx context.Context, raw []byte)

// UpdateStream queues webhook updates in a Redis stream and feeds them to a
// handler through a consumer group, so updates survive a restart and several
// processes can share the load.
type UpdateStream struct {
	rdb      *redis.Client
	consumer string
	handle   UpdateHandler
	block    time.Duration
	log      zerolog.Logger
}

func NewUpdateStream(rdb *redis.Client, consumer string, handle UpdateHandler) *UpdateStream {
	return &UpdateStream{
		rdb:      rdb,
		consumer: consumer,
		handle:   handle,
		block:    5 * time.Second,
		log:      log.With().Str("component", "update_stream").Logger(),
	}
}

// Enqueue appends one raw update.
func (s *UpdateStream) Enqueue(ctx context.Context, raw []byte) error {
	err := s.rdb.XAdd(ctx, &goredis.XAddArgs{
		Stream: updateStreamKey,
		MaxLen: updateStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"update": string(raw)},
	}).Err()
	if err != nil {
		return fmt.Errorf("enqueue update: %w", err)
	}
	return nil
}

// Run consumes the stream until ctx is cancelled. Each entry is acknowledged
// after the handler returns.
func (s *UpdateStream) Run(ctx context.Context) error {
	err := s.rdb.XGroupCreateMkStream(ctx, updateStreamKey, updateGroup, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}

	s.log.Info().Str("consumer", s.consumer).Msg("starting update stream consumer")
	for {
		if ctx.Err() != nil {
			s.log.Info().Msg("stopping update stream consumer")
			return nil
		}

		entries, err := s.rdb.XReadGroup(ctx, &goredis.XReadGroupArgs{
			Group:    updateGroup,
			Consumer: s.consumer,
			Streams:  []string{updateStreamKey, ">"},
			Count:    10,
			Block:    s.block,
		}).Result()
		if err != nil {
			if errors.Is(err, goredis.Nil) || ctx.Err() != nil {
				continue
			}
			s.log.Error().Err(err).Msg("read update stream failed")
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}

		for _, stream := range entries {
			for _, msg := range stream.Messages {
				s.process(ctx, msg)
			}
		}
	}
}

func (s *UpdateStream) process(ctx context.Context, msg goredis.XMessage) {
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error().Interface("panic", rec).Str("entry_id", msg.ID).Msg("update handler panicked")
		}
		if err := s.rdb.XAck(context.WithoutCancel(ctx), updateStreamKey, updateGroup, msg.ID).Err(); err != nil {
			s.log.Warn().Err(err).Str("entry_id", msg.ID).Msg("ack update failed")
		}
	}()

	raw, ok := msg.Values["update"].(string)
	if !ok {
		s.log.Warn().Str("entry_id", msg.ID).Msg("stream entry without update payload")
		return
	}
	s.handle(ctx, []byte(raw))
}
