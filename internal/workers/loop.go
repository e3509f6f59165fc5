package workers

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Job is one unit of periodic work.
type Job func(ctx context.Context) error

// Loop runs a job immediately and then on every tick until stopped. Ticks
// never overlap: a slow run delays the next one.
type Loop struct {
	name     string
	interval time.Duration
	job      Job
	timeout  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    zerolog.Logger
}

func NewLoop(name string, interval time.Duration, job Job) *Loop {
	ctx, cancel := context.WithCancel(context.Background())
	return &Loop{
		name:     name,
		interval: interval,
		job:      job,
		timeout:  interval * 4,
		ctx:      ctx,
		cancel:   cancel,
		log:      log.With().Str("worker", name).Logger(),
	}
}

func (l *Loop) Start() {
	l.log.Info().Dur("interval", l.interval).Msg("starting worker")
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ticker := time.NewTicker(l.interval)
		defer ticker.Stop()

		l.run()
		for {
			select {
			case <-ticker.C:
				l.run()
			case <-l.ctx.Done():
				return
			}
		}
	}()
}

// Stop cancels the running job and waits for it to return.
func (l *Loop) Stop() {
	l.log.Info().Msg("stopping worker")
	l.cancel()
	l.wg.Wait()
	l.log.Info().Msg("worker stopped")
}

func (l *Loop) run() {
	ctx, cancel := context.WithTimeout(l.ctx, l.timeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			l.log.Error().Interface("panic", rec).Msg("worker tick panicked")
		}
	}()

	start := time.Now()
	if err := l.job(ctx); err != nil && l.ctx.Err() == nil {
		l.log.Error().Err(err).Dur("took", time.Since(start)).Msg("worker tick failed")
		return
	}
	l.log.Debug().Dur("took", time.Since(start)).Msg("worker tick done")
}
