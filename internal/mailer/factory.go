package mailer

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sungwon/campaign-dispatch/internal/config"
)

// NewTransport builds the transport named by cfg.Transport.
func NewTransport(cfg config.MailerConfig) (Transport, error) {
	switch cfg.Transport {
	case "", "stdout":
		return NewStdout(), nil
	case "file":
		return NewFile(cfg.OutputDir), nil
	case "smtp":
		return NewSMTP(SMTPConfig{
			Host:     cfg.Host,
			Port:     cfg.Port,
			Username: cfg.Username,
			Password: cfg.Password,
			StartTLS: cfg.StartTLS,
		})
	default:
		return nil, fmt.Errorf("unsupported mailer transport: %s", cfg.Transport)
	}
}

// New builds a rate limited Adapter from configuration.
func New(cfg config.MailerConfig, log zerolog.Logger) (*Adapter, error) {
	t, err := NewTransport(cfg)
	if err != nil {
		return nil, err
	}
	return NewAdapter(t, NewLimiter(cfg.RateLimit, cfg.RateBurst), log), nil
}
