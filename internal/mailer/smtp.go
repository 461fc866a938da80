package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

const defaultSMTPTimeout = 30 * time.Second

// SMTPConfig holds relay settings for the SMTP transport.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	StartTLS bool
	// HeloName is sent in EHLO and used as the Message-ID domain.
	HeloName string
	Timeout  time.Duration
	// TLSConfig overrides the STARTTLS configuration; nil uses ServerName=Host.
	TLSConfig *tls.Config
}

// SMTP relays email to an upstream SMTP server, one connection per send.
type SMTP struct {
	cfg SMTPConfig
}

// NewSMTP creates an SMTP transport.
func NewSMTP(cfg SMTPConfig) (*SMTP, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp: host is required")
	}
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("smtp: invalid port %d", cfg.Port)
	}
	if cfg.HeloName == "" {
		cfg.HeloName = "localhost"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSMTPTimeout
	}
	return &SMTP{cfg: cfg}, nil
}

func (s *SMTP) Name() string { return "smtp" }

func (s *SMTP) addr() string {
	return net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
}

func (s *SMTP) dial() (*smtp.Client, error) {
	if s.cfg.StartTLS {
		tlsCfg := s.cfg.TLSConfig
		if tlsCfg == nil {
			tlsCfg = &tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}
		}
		return smtp.DialStartTLS(s.addr(), tlsCfg)
	}
	return smtp.Dial(s.addr())
}

// Send opens a connection, authenticates when credentials are configured,
// and submits the message. It returns the generated Message-ID.
func (s *SMTP) Send(ctx context.Context, e *Email) (string, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c, err := s.dial()
	if err != nil {
		return "", fmt.Errorf("smtp: dial %s: %w", s.addr(), err)
	}
	defer c.Close()

	c.CommandTimeout = s.cfg.Timeout
	c.SubmissionTimeout = s.cfg.Timeout

	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	if err := c.Hello(s.cfg.HeloName); err != nil {
		return "", fmt.Errorf("smtp: hello: %w", err)
	}
	if s.cfg.Username != "" {
		if err := c.Auth(sasl.NewPlainClient("", s.cfg.Username, s.cfg.Password)); err != nil {
			return "", fmt.Errorf("smtp: auth: %w", err)
		}
	}

	raw, msgID := buildMessage(e, s.cfg.HeloName)
	if err := c.SendMail(e.FromEmail, []string{e.To}, bytes.NewReader(raw)); err != nil {
		return "", fmt.Errorf("smtp: send: %w", err)
	}
	if err := c.Quit(); err != nil {
		return "", fmt.Errorf("smtp: quit: %w", err)
	}
	return msgID, nil
}

// HealthCheck dials the relay and issues EHLO.
func (s *SMTP) HealthCheck(ctx context.Context) error {
	c, err := s.dial()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}
	defer c.Close()

	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	if err := c.Hello(s.cfg.HeloName); err != nil {
		return fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}
	return c.Quit()
}
