package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

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

type options struct {
	configDir  string
	campaignID int64
	watch      bool
	seed       bool
	tokenFor   int64
	tokenTTL   time.Duration
}

func parseFlags() options {
	var o options
	flag.StringVar(&o.configDir, "config", "config", "Directory containing config.yaml")
	flag.Int64Var(&o.campaignID, "campaign", 0, "Dispatch this campaign once and exit")
	flag.BoolVar(&o.watch, "watch", false, "Dispatch due scheduled campaigns until interrupted")
	flag.BoolVar(&o.seed, "seed", false, "Seed the demo workspace before anything else")
	flag.Int64Var(&o.tokenFor, "token", 0, "Print an API token for this workspace and exit")
	flag.DurationVar(&o.tokenTTL, "token-ttl", 24*time.Hour, "Lifetime of a token issued with -token")
	flag.Parse()
	return o
}

func main() {
	opts := parseFlags()
	if opts.campaignID == 0 && !opts.watch && !opts.seed && opts.tokenFor == 0 {
		flag.Usage()
		os.Exit(2)
	}
	if opts.campaignID != 0 && opts.watch {
		fmt.Fprintln(os.Stderr, "-campaign and -watch are mutually exclusive")
		os.Exit(2)
	}

	cfg, err := config.Load(opts.configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewFromConfig(logger.LoggingConfig{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Output:    cfg.Logging.Output,
		FilePath:  cfg.Logging.FilePath,
		Process:   "dispatcher",
		MaxSizeMB: cfg.Logging.MaxSize,
		MaxFiles:  cfg.Logging.MaxFiles,
	})

	jwtService := auth.NewJWTService(auth.Config{
		SigningKey: cfg.Auth.SigningKey,
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
	})

	if opts.tokenFor != 0 {
		token, err := jwtService.GenerateToken(opts.tokenFor, opts.tokenTTL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to issue token")
		}
		fmt.Println(token)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts, jwtService, log); err != nil {
		log.Error().Err(err).Msg("dispatcher failed")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, opts options, jwtService *auth.JWTService, log zerolog.Logger) error {
	db, err := storage.NewDB(ctx, cfg.Database.URL, cfg.Database.PoolMin, cfg.Database.PoolMax, cfg.Database.ConnectTimeout)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	queries := storage.New(db.Pool)

	if opts.seed {
		store, err := content.New(cfg.Content, log)
		if err != nil {
			return fmt.Errorf("init content store: %w", err)
		}
		demo, err := bootstrap.SeedDemo(ctx, queries, store, log)
		if err != nil {
			return err
		}
		token, err := jwtService.GenerateToken(demo.WorkspaceID, opts.tokenTTL)
		if err != nil {
			return fmt.Errorf("issue demo token: %w", err)
		}
		fmt.Printf("workspace_id=%d campaigns=%v token=%s\n", demo.WorkspaceID, demo.CampaignIDs, token)
	}

	if opts.campaignID == 0 && !opts.watch {
		return nil
	}

	enqueuer, _, _, err := queue.NewQueue(ctx, queue.FromConfig(cfg.Queue), nil, log)
	if err != nil {
		return fmt.Errorf("init queue: %w", err)
	}
	if cfg.Queue.Type == "memory" {
		log.Warn().Msg("memory queue selected; scheduled jobs are lost when the dispatcher exits")
	}

	var guardClient redis.Cmdable
	if cfg.Dispatch.Dedup == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Queue.RedisAddr,
			Password: cfg.Queue.RedisPassword,
			DB:       cfg.Queue.RedisDB,
		})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		guardClient = client
	}
	guards, err := dedup.FromConfig(cfg.Dispatch, guardClient)
	if err != nil {
		return err
	}

	runner := dispatch.NewRunnerFromConfig(queries, delivery.NewQueueService(enqueuer, log), cfg.Dispatch, guards, log)

	if opts.watch {
		return watch(ctx, queries, runner, cfg.Scheduler.Spec, log)
	}
	return dispatchOnce(ctx, queries, runner, opts.campaignID)
}

func dispatchOnce(ctx context.Context, queries storage.Querier, runner *dispatch.Runner, campaignID int64) error {
	campaign, err := queries.GetCampaign(ctx, campaignID)
	if err != nil {
		if storage.IsNotFound(err) {
			return fmt.Errorf("campaign %d not found", campaignID)
		}
		return fmt.Errorf("load campaign %d: %w", campaignID, err)
	}

	summary, err := runner.Run(ctx, &campaign)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(summary); encErr != nil {
		return fmt.Errorf("write summary: %w", encErr)
	}
	return err
}

func watch(ctx context.Context, queries storage.Querier, runner *dispatch.Runner, spec string, log zerolog.Logger) error {
	sweeper, err := scheduler.New(queries, runner, spec, log)
	if err != nil {
		return err
	}
	sweeper.Start(ctx)
	<-ctx.Done()

	log.Info().Msg("shutting down dispatcher")
	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return sweeper.Stop(stopCtx)
}
