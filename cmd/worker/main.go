package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"tg-subscriptions-backend/internal/app"
	"tg-subscriptions-backend/internal/common/logger"
	"tg-subscriptions-backend/internal/config"
	"tg-subscriptions-backend/internal/workers"
)

const serviceName = "tg-subscriptions-worker"

// onceTimeout bounds a single -once run.
const onceTimeout = 10 * time.Minute

func main() {
	job := flag.String("job", "", "job to run: publish, sweep, daily or reconcile (default all)")
	once := flag.Bool("once", false, "run once and exit, for cron")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Init(serviceName, false)
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger.Init(serviceName, cfg.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize")
	}

	jobs := a.Jobs()
	if _, ok := jobs[*job]; *job != "" && !ok {
		a.Close()
		logger.Fatal().Str("job", *job).Strs("known", names(jobs)).Msg("Unknown job")
	}

	if *once {
		ok := runOnce(ctx, jobs, *job)
		a.Close()
		if !ok {
			os.Exit(1)
		}
		return
	}

	loops := a.Loops(*job)
	for _, l := range loops {
		l.Start()
	}
	logger.Info().Str("job", *job).Msg("Worker started")

	<-ctx.Done()
	for _, l := range loops {
		l.Stop()
	}
	a.Close()
	logger.Info().Msg("Worker exited")
}

func runOnce(ctx context.Context, jobs map[string]workers.Job, only string) bool {
	ctx, cancel := context.WithTimeout(ctx, onceTimeout)
	defer cancel()

	ok := true
	for _, name := range names(jobs) {
		if only != "" && name != only {
			continue
		}
		start := time.Now()
		if err := jobs[name](ctx); err != nil {
			logger.Error().Err(err).Str("job", name).Msg("Job failed")
			ok = false
			continue
		}
		logger.Info().Str("job", name).Dur("took", time.Since(start)).Msg("Job finished")
	}
	return ok
}

func names(jobs map[string]workers.Job) []string {
	out := make([]string, 0, len(jobs))
	for name := range jobs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
