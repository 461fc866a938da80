package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sungwon/campaign-dispatch/internal/config"
	"github.com/sungwon/campaign-dispatch/internal/logger"
	"github.com/sungwon/campaign-dispatch/internal/mailsink"
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
		Process:   "mail-sink",
		MaxSizeMB: cfg.Logging.MaxSize,
		MaxFiles:  cfg.Logging.MaxFiles,
	})
	log.Info().Msg("starting mail sink")

	sink, err := mailsink.NewSink(cfg.Sink.OutputDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize sink")
	}

	backend := mailsink.NewBackend(sink, mailsink.Credentials{
		Username: cfg.Sink.Username,
		Password: cfg.Sink.Password,
	}, log, cfg.Sink.MaxConnections)

	s := mailsink.NewServer(cfg.Sink, backend)

	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		log.Fatal().Err(err).Str("addr", s.Addr).Msg("failed to listen")
	}

	go func() {
		log.Info().
			Str("addr", s.Addr).
			Str("output_dir", cfg.Sink.OutputDir).
			Bool("auth", cfg.Sink.Username != "").
			Msg("mail sink listening")
		if err := s.Serve(ln); err != nil {
			log.Error().Err(err).Msg("mail sink error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down mail sink")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("mail sink shutdown error")
	}

	log.Info().Msg("mail sink stopped")
}
