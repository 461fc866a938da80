package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sungwon/campaign-dispatch/internal/config"
	"github.com/sungwon/campaign-dispatch/internal/content"
	"github.com/sungwon/campaign-dispatch/internal/logger"
	"github.com/sungwon/campaign-dispatch/internal/mailer"
	"github.com/sungwon/campaign-dispatch/internal/queue"
	"github.com/sungwon/campaign-dispatch/internal/storage"
	"github.com/sungwon/campaign-dispatch/internal/worker"
)

func main() {
	cfg, err := config.Load("config")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewFromConfig(logger.LoggingConfig{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Output:    cfg.Logging.Output,
		FilePath:  cfg.Logging.FilePath,
		Process:   "queue-worker",
		MaxSizeMB: cfg.Logging.MaxSize,
		MaxFiles:  cfg.Logging.MaxFiles,
	})
	log.Info().Msg("starting queue worker")

	// Initialize database connection pool.
	ctx := context.Background()
	db, err := storage.NewDB(ctx, cfg.Database.URL, cfg.Database.PoolMin, cfg.Database.PoolMax, cfg.Database.ConnectTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	queries := storage.New(db.Pool)

	// Campaign bodies are read once per message; cache them in memory.
	store, err := content.New(cfg.Content, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize content store")
	}
	cacheTTL := cfg.Content.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	bodies := content.NewCached(store, cacheTTL)

	// Initialize the mail adapter and check the transport.
	adapter, err := mailer.New(cfg.Mailer, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize mailer")
	}
	healthCtx, healthCancel := context.WithTimeout(ctx, 10*time.Second)
	if err := adapter.HealthCheck(healthCtx); err != nil {
		log.Warn().Err(err).Str("transport", adapter.Name()).Msg("mail transport health check failed")
	}
	healthCancel()

	// Create job handler with delivery logic.
	handler := worker.NewHandler(queries, bodies, adapter, log)

	queueCfg := queue.FromConfig(cfg.Queue)
	if queueCfg.Type == "memory" {
		log.Warn().Msg("memory queue selected; this worker only sees jobs enqueued in its own process")
	}

	_, dequeuer, _, err := queue.NewQueue(ctx, queueCfg, handler, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize queue")
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	if err := dequeuer.Start(runCtx); err != nil {
		log.Fatal().Err(err).Msg("failed to start queue consumers")
	}
	log.Info().
		Str("queue", cfg.Queue.Type).
		Int("workers", cfg.Queue.Workers).
		Str("transport", adapter.Name()).
		Msg("queue worker started")

	// Wait for interrupt signal for graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down queue worker")

	shutdownTimeout := cfg.Queue.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := dequeuer.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("queue worker did not stop cleanly")
	}
	cancelRun()

	log.Info().Msg("queue worker stopped")
}
