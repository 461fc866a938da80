package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sungwon/campaign-dispatch/internal/api"
	"github.com/sungwon/campaign-dispatch/internal/auth"
	"github.com/sungwon/campaign-dispatch/internal/bootstrap"
	"github.com/sungwon/campaign-dispatch/internal/config"
	"github.com/sungwon/campaign-dispatch/internal/content"
	"github.com/sungwon/campaign-dispatch/internal/dedup"
	"github.com/sungwon/campaign-dispatch/internal/delivery"
	"github.com/sungwon/campaign-dispatch/internal/dispatch"
	"github.com/sungwon/campaign-dispatch/internal/logger"
	"github.com/sungwon/campaign-dispatch/internal/queue"
	"github.com/sungwon/campaign-dispatch/internal/scheduler"
	"github.com/sungwon/campaign-dispatch/internal/storage"
)

const defaultSigningKey = "dev-signing-key-change-me"

func main() {
	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewFromConfig(logger.LoggingConfig{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Output:    cfg.Logging.Output,
		FilePath:  cfg.Logging.FilePath,
		Process:   "api-server",
		MaxSizeMB: cfg.Logging.MaxSize,
		MaxFiles:  cfg.Logging.MaxFiles,
	})
	log.Info().Msg("starting API server")

	// Connect to database
	ctx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	db, err := storage.NewDB(
		ctx,
		cfg.Database.URL,
		cfg.Database.PoolMin,
		cfg.Database.PoolMax,
		cfg.Database.ConnectTimeout,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	log.Info().Msg("database connection established")

	queries := storage.New(db.Pool)

	contentStore, err := content.New(cfg.Content, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize content store")
	}

	// The API only produces jobs; the queue worker consumes them.
	enqueuer, _, dlq, err := queue.NewQueue(ctx, queue.FromConfig(cfg.Queue), nil, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize queue")
	}
	if cfg.Queue.Type == "memory" {
		log.Warn().Msg("memory queue selected; jobs are not visible to a separate queue worker")
	}

	var redisClient *redis.Client
	if cfg.Dispatch.Dedup == "redis" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Queue.RedisAddr,
			Password: cfg.Queue.RedisPassword,
			DB:       cfg.Queue.RedisDB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer redisClient.Close()
	}

	var guardClient redis.Cmdable
	if redisClient != nil {
		guardClient = redisClient
	}
	guards, err := dedup.FromConfig(cfg.Dispatch, guardClient)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize dedup guard")
	}

	runner := dispatch.NewRunnerFromConfig(queries, delivery.NewQueueService(enqueuer, log), cfg.Dispatch, guards, log)

	// Initialize JWT service
	jwtService := auth.NewJWTService(auth.Config{
		SigningKey: cfg.Auth.SigningKey,
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
	})

	if cfg.Auth.SigningKey == "" || cfg.Auth.SigningKey == defaultSigningKey {
		log.Warn().Msg("JWT signing key is not set or using default value; set CAMPAIGN_DISPATCH_AUTH_SIGNING_KEY in production")
	}

	if cfg.Bootstrap.SeedDemo {
		demo, err := bootstrap.SeedDemo(ctx, queries, contentStore, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to seed demo workspace")
		}
		token, err := jwtService.GenerateToken(demo.WorkspaceID, 24*time.Hour)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to issue demo token")
		}
		log.Info().
			Int64("workspace_id", demo.WorkspaceID).
			Str("token", token).
			Msg("demo token issued (valid 24h)")
	}

	var sweeper *scheduler.Sweeper
	if cfg.Scheduler.Enabled {
		sweeper, err = scheduler.New(queries, runner, cfg.Scheduler.Spec, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize scheduler")
		}
		sweeper.Start(ctx)
	}

	router := api.NewRouter(api.Deps{
		Queries: queries,
		DB:      db,
		Runner:  runner,
		Content: contentStore,
		DLQ:     dlq,
		JWT:     jwtService,
	}, log)

	// Configure HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("API server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("shutting down server")

	// Graceful shutdown with 30-second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	if sweeper != nil {
		if err := sweeper.Stop(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("scheduler did not stop in time")
		}
	}
	cancelRun()

	log.Info().Msg("server stopped")
}
