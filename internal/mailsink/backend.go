// Package mailsink is an SMTP server for local development. It accepts
// whatever the mailer relays and hands each message to a Sink instead of
// delivering it.
package mailsink

import (
	"context"
	"sync/atomic"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/rs/zerolog"

	"github.com/sungwon/campaign-dispatch/internal/logger"
)

// Credentials are the PLAIN credentials clients must present.
// A zero value accepts every client without authentication.
type Credentials struct {
	Username string
	Password string
}

func (c Credentials) required() bool { return c.Username != "" }

// Backend implements the go-smtp Backend interface.
// It manages session creation and enforces connection limits.
type Backend struct {
	sink     Sink
	creds    Credentials
	log      zerolog.Logger
	maxConns int
	active   atomic.Int64
}

// NewBackend creates a sink backend. maxConns <= 0 disables the connection limit.
func NewBackend(sink Sink, creds Credentials, log zerolog.Logger, maxConns int) *Backend {
	return &Backend{
		sink:     sink,
		creds:    creds,
		log:      log,
		maxConns: maxConns,
	}
}

// NewSession is called when a client connects. It enforces the connection
// limit and creates a Session for the connection.
func (b *Backend) NewSession(conn *gosmtp.Conn) (gosmtp.Session, error) {
	current := b.active.Add(1)
	if b.maxConns > 0 && int(current) > b.maxConns {
		b.active.Add(-1)
		sinkRejectedTotal.WithLabelValues("connection_limit").Inc()
		b.log.Warn().
			Int64("active", current-1).
			Int("max", b.maxConns).
			Msg("connection limit reached")
		return nil, &gosmtp.SMTPError{
			Code:         421,
			EnhancedCode: gosmtp.EnhancedCode{4, 7, 0},
			Message:      "Too many connections",
		}
	}
	sinkActiveSessions.Inc()

	correlationID := logger.NewCorrelationID()
	ctx := logger.WithCorrelationID(context.Background(), correlationID)

	sessionLog := b.log.With().
		Str("correlation_id", correlationID).
		Str("remote_addr", conn.Conn().RemoteAddr().String()).
		Logger()

	sessionLog.Debug().Msg("new SMTP session")

	return &Session{
		ctx:     ctx,
		log:     sessionLog,
		backend: b,
	}, nil
}

// ActiveSessions returns the current number of open sessions.
func (b *Backend) ActiveSessions() int64 {
	return b.active.Load()
}

func (b *Backend) release() {
	b.active.Add(-1)
	sinkActiveSessions.Dec()
}
