package app

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"tg-subscriptions-backend/internal/bot"
	rcache "tg-subscriptions-backend/internal/cache/redis"
	"tg-subscriptions-backend/internal/config"
	dp "tg-subscriptions-backend/internal/domain/post"
	"tg-subscriptions-backend/internal/platform/db"
	rplatform "tg-subscriptions-backend/internal/platform/redis"
	"tg-subscriptions-backend/internal/platform/telegram"
	pgrepo "tg-subscriptions-backend/internal/repository/postgres"
	"tg-subscriptions-backend/internal/service/chatresolver"
	"tg-subscriptions-backend/internal/service/linking"
	"tg-subscriptions-backend/internal/service/links"
	"tg-subscriptions-backend/internal/service/linktoken"
	"tg-subscriptions-backend/internal/service/membership"
	"tg-subscriptions-backend/internal/service/publisher"
	"tg-subscriptions-backend/internal/service/reconcile"
	"tg-subscriptions-backend/internal/service/subscriptions"
	"tg-subscriptions-backend/internal/service/sweep"
	"tg-subscriptions-backend/internal/workers"
)

const subscriptionCacheTTL = 5 * time.Minute

// Job names accepted by the worker binary.
const (
	JobPublish   = "publish"
	JobSweep     = "sweep"
	JobDaily     = "daily"
	JobReconcile = "reconcile"
)

// App holds the opened connections and the wired services.
type App struct {
	Config *config.Config
	DB     *sql.DB
	Redis  *rplatform.Client
	Bot    *telegram.Client

	Tokens     *linktoken.Service
	Tracker    *membership.Tracker
	Router     *bot.Router
	Dispatcher *publisher.Dispatcher
	Sweeper    *sweep.Sweeper
	Reconciler *reconcile.Reconciler
	Daily      *workers.DailySnapshot
}

// Build opens Postgres, Redis and the Bot API and wires every service.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	pg, err := db.Open(ctx, cfg.Postgres.URL, db.Options{
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	if cfg.Postgres.AutoMigrate {
		applied, err := db.Migrate(ctx, pg)
		if err != nil {
			_ = pg.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		log.Info().Strs("applied", applied).Msg("Migrations applied")
	}

	rdb, err := rplatform.Open(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		_ = pg.Close()
		return nil, fmt.Errorf("redis open: %w", err)
	}

	tg, err := telegram.New(cfg.Telegram.BotToken, cfg.Telegram.SendRPS, cfg.Telegram.Debug)
	if err != nil {
		_ = pg.Close()
		_ = rdb.Close()
		return nil, err
	}
	username := cfg.Telegram.BotUsername
	if username == "" {
		username = tg.Username()
	}

	policy, err := sweep.ParsePolicy(cfg.Sweep.FailurePolicy)
	if err != nil {
		_ = pg.Close()
		_ = rdb.Close()
		return nil, err
	}

	sessions := pgrepo.NewLinkSessionRepository(pg)
	chatLinks := pgrepo.NewChatLinkRepository(pg)
	subsRepo := pgrepo.NewSubscriptionRepository(pg)
	stats := pgrepo.NewChatStatsRepository(pg)
	members := pgrepo.NewMembershipRepository(pg)
	posts := pgrepo.NewScheduledPostRepository(pg)

	tokens := linktoken.NewService(sessions, username, cfg.Link.TokenTTL)
	linkSvc := links.NewService(chatLinks)
	subs := subscriptions.NewService(subsRepo, rcache.NewSubscriptionCache(rdb, subscriptionCacheTTL))
	tracker := membership.NewTracker(linkSvc, stats, tg)

	machine := linking.NewMachine(linking.Deps{
		Tokens:        tokens,
		Pending:       rcache.NewLinkStore(rdb),
		Subscriptions: subs,
		Links:         linkSvc,
		Resolver:      chatresolver.NewResolver(tg),
		Baseline:      tracker,
		Notifier:      tg,
	}, linking.Options{ConsumeOnPending: cfg.Link.ConsumeOnPending})

	return &App{
		Config:  cfg,
		DB:      pg,
		Redis:   rdb,
		Bot:     tg,
		Tokens:  tokens,
		Tracker: tracker,
		Router:  bot.NewRouter(machine, tracker, tg),
		Dispatcher: publisher.NewDispatcher(posts, linkSvc, tg, publisher.Options{
			BatchLimit:     cfg.Publisher.BatchLimit,
			MixedMedia:     dp.MixedMediaMode(cfg.Publisher.MixedMedia),
			StorageBaseURL: cfg.Publisher.StorageBaseURL,
		}),
		Sweeper: sweep.NewSweeper(members, tg, sweep.Options{
			BatchLimit:  cfg.Sweep.BatchLimit,
			Policy:      policy,
			MaxAttempts: cfg.Sweep.MaxAttempts,
		}),
		Reconciler: reconcile.NewReconciler(posts, subs, cfg.Publisher.StaleAfter),
		Daily:      workers.NewDailySnapshot(tracker, rcache.NewJobLock(rdb), cfg.DailyCounts.Hour),
	}, nil
}

// Jobs maps job names onto single runs of the background work.
func (a *App) Jobs() map[string]workers.Job {
	return map[string]workers.Job{
		JobPublish: func(ctx context.Context) error {
			res, err := a.Dispatcher.RunOnce(ctx)
			if res.Claimed > 0 {
				log.Info().Interface("result", res).Msg("Publish run finished")
			}
			return err
		},
		JobSweep: func(ctx context.Context) error {
			res, err := a.Sweeper.RunOnce(ctx)
			if res.Processed > 0 {
				log.Info().Interface("result", res).Msg("Sweep run finished")
			}
			return err
		},
		JobReconcile: func(ctx context.Context) error {
			res, err := a.Reconciler.RunOnce(ctx)
			if res.StalePosts > 0 || res.ActivatedSubscriptions > 0 {
				log.Info().Interface("result", res).Msg("Reconcile run finished")
			}
			return err
		},
		JobDaily: a.Daily.Tick,
	}
}

// Loops returns one periodic loop per background job, or only the loop of
// job when it is not empty.
func (a *App) Loops(job string) []*workers.Loop {
	jobs := a.Jobs()
	intervals := []struct {
		name  string
		every time.Duration
	}{
		{JobPublish, a.Config.Publisher.Interval},
		{JobSweep, a.Config.Sweep.Interval},
		{JobReconcile, a.Config.Reconcile.Interval},
		{JobDaily, workers.DailyCheckInterval},
	}

	var loops []*workers.Loop
	for _, it := range intervals {
		if job != "" && job != it.name {
			continue
		}
		loops = append(loops, workers.NewLoop(it.name, it.every, jobs[it.name]))
	}
	return loops
}

// Consumer names this process in the update stream consumer group.
func Consumer() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "local"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

// Close releases the connections.
func (a *App) Close() {
	if err := a.Redis.Close(); err != nil {
		log.Warn().Err(err).Msg("redis close failed")
	}
	if err := a.DB.Close(); err != nil {
		log.Warn().Err(err).Msg("postgres close failed")
	}
}
