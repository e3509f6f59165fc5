package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"tg-subscriptions-backend/internal/app"
	"tg-subscriptions-backend/internal/common/logger"
	"tg-subscriptions-backend/internal/config"
	apphttp "tg-subscriptions-backend/internal/http"
	"tg-subscriptions-backend/internal/workers"
)

// @title           Telegram Subscriptions API
// @version         1.0
// @description     Links paid subscriptions to Telegram groups and channels.

// @BasePath  /

// @tag.name telegram
// @tag.description Chat linking and member statistics

// @tag.name system
// @tag.description Probes

// pollTimeout is the getUpdates long-poll timeout in seconds.
const pollTimeout = 50

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Init(apphttp.ServiceName, false)
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger.Init(apphttp.ServiceName, cfg.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize")
	}
	defer a.Close()

	logger.Info().
		Str("bot", a.Bot.Username()).
		Str("mode", cfg.Telegram.Mode).
		Msg("Starting Telegram subscriptions backend")

	deps := apphttp.RouterDeps{
		Debug:          cfg.Debug,
		AllowedOrigins: cfg.HTTP.CORSAllowedOrigins,
		Tokens:         a.Tokens,
		DailyCounts:    a.Tracker,
		Checks: map[string]apphttp.Check{
			"postgres": a.DB.PingContext,
			"redis":    a.Redis.HealthCheck,
		},
	}

	var bg sync.WaitGroup
	switch cfg.Telegram.Mode {
	case config.BotModeWebhook:
		stream := workers.NewUpdateStream(a.Redis, app.Consumer(), a.Router.HandleRaw)
		deps.WebhookSecret = cfg.Telegram.WebhookSecret
		deps.Updates = stream

		url := strings.TrimRight(cfg.Telegram.WebhookURL, "/") + "/telegram/webhook/" + cfg.Telegram.WebhookSecret
		if err := a.Bot.SetWebhook(url); err != nil {
			logger.Fatal().Err(err).Msg("Failed to register webhook")
		}
		bg.Add(1)
		go func() {
			defer bg.Done()
			if err := stream.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("Update stream stopped")
			}
		}()
	default:
		bg.Add(1)
		go func() {
			defer bg.Done()
			if err := a.Bot.Poll(ctx, pollTimeout, a.Router.HandleRaw); err != nil {
				logger.Error().Err(err).Msg("Polling stopped")
			}
		}()
	}

	loops := a.Loops("")
	for _, l := range loops {
		l.Start()
	}

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      apphttp.NewRouter(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTP.Addr).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	for _, l := range loops {
		l.Stop()
	}
	bg.Wait()

	logger.Info().Msg("Server exited")
}
