package mailer

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Adapter wraps a Transport with rate limiting and folds every failure into
// FailedMessageID so callers record a result instead of handling errors.
type Adapter struct {
	transport Transport
	limiter   *rate.Limiter
	log       zerolog.Logger
}

// NewAdapter creates an Adapter. A nil limiter disables rate limiting.
func NewAdapter(transport Transport, limiter *rate.Limiter, log zerolog.Logger) *Adapter {
	return &Adapter{
		transport: transport,
		limiter:   limiter,
		log:       log.With().Str("component", "mailer").Str("transport", transport.Name()).Logger(),
	}
}

// NewLimiter returns a limiter allowing perSecond sends with the given burst,
// or nil when perSecond is not positive.
func NewLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// Send delivers the email and returns the provider message id, or
// FailedMessageID if anything went wrong.
func (a *Adapter) Send(ctx context.Context, e *Email) string {
	start := time.Now()

	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			a.log.Warn().Err(err).Int64("message_id", e.MessageID).Msg("rate limiter wait aborted")
			sendsTotal.WithLabelValues(a.transport.Name(), "failed").Inc()
			return FailedMessageID
		}
	}

	id, err := a.transport.Send(ctx, e)
	sendDuration.WithLabelValues(a.transport.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		a.log.Error().Err(err).
			Int64("message_id", e.MessageID).
			Str("to", e.To).
			Msg("send failed")
		sendsTotal.WithLabelValues(a.transport.Name(), "failed").Inc()
		return FailedMessageID
	}
	if id == "" || id == FailedMessageID {
		a.log.Error().Int64("message_id", e.MessageID).Msg("transport returned no message id")
		sendsTotal.WithLabelValues(a.transport.Name(), "failed").Inc()
		return FailedMessageID
	}

	sendsTotal.WithLabelValues(a.transport.Name(), "sent").Inc()
	a.log.Debug().
		Int64("message_id", e.MessageID).
		Str("provider_message_id", id).
		Msg("email sent")
	return id
}

// Name returns the underlying transport's name.
func (a *Adapter) Name() string { return a.transport.Name() }

// HealthCheck delegates to the transport.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	return a.transport.HealthCheck(ctx)
}
