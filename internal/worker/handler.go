package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sungwon/campaign-dispatch/internal/mailer"
	"github.com/sungwon/campaign-dispatch/internal/queue"
	"github.com/sungwon/campaign-dispatch/internal/storage"
)

// ErrSendFailed is returned when the mail adapter reported the failure
// sentinel. The queue retries the job and dead-letters it after the last
// attempt.
var ErrSendFailed = errors.New("worker: send failed")

// sender is the mail adapter surface the handler needs.
type sender interface {
	Send(ctx context.Context, email *mailer.Email) string
}

// bodySource supplies campaign bodies.
type bodySource interface {
	Get(ctx context.Context, campaignID int64) ([]byte, error)
}

// Handler implements queue.Handler. It delivers the message a job refers to
// and records the provider result on the message row.
type Handler struct {
	queries storage.Querier
	content bodySource
	mailer  sender
	log     zerolog.Logger
}

func NewHandler(queries storage.Querier, content bodySource, m sender, log zerolog.Logger) *Handler {
	return &Handler{
		queries: queries,
		content: content,
		mailer:  m,
		log:     log,
	}
}

var _ queue.Handler = (*Handler)(nil)

func (h *Handler) HandleJob(ctx context.Context, job *queue.Job) error {
	log := h.log.With().
		Str("job_id", job.ID).
		Int64("message_id", job.MessageID).
		Int("retry_count", job.RetryCount).
		Logger()

	msg, err := h.queries.GetMessage(ctx, job.MessageID)
	if err != nil {
		if storage.IsNotFound(err) {
			// The row was removed after the job was enqueued.
			log.Warn().Msg("orphaned job, message not found, acknowledging")
			deliveriesTotal.WithLabelValues("orphaned").Inc()
			return nil
		}
		return fmt.Errorf("get message %d: %w", job.MessageID, err)
	}

	if msg.SentAt.Valid {
		log.Info().Time("sent_at", msg.SentAt.Time).Msg("message already sent, skipping redelivery")
		deliveriesTotal.WithLabelValues("duplicate").Inc()
		return nil
	}
	if !msg.DelayedSendAt.Valid {
		log.Warn().Msg("draft message has no delivery job, acknowledging")
		deliveriesTotal.WithLabelValues("orphaned").Inc()
		return nil
	}

	body, err := h.content.Get(ctx, msg.SourceID)
	if err != nil {
		log.Error().Err(err).Int64("campaign_id", msg.SourceID).Msg("failed to load campaign content")
		return fmt.Errorf("load content for campaign %d: %w", msg.SourceID, err)
	}

	start := time.Now()
	providerID := h.mailer.Send(ctx, &mailer.Email{
		MessageID: msg.ID,
		FromName:  msg.FromName,
		FromEmail: msg.FromEmail,
		To:        msg.RecipientEmail,
		Subject:   msg.Subject,
		Body:      body,
	})
	params := storage.MarkMessageParams{ID: msg.ID, MessageID: providerID}
	if providerID == mailer.FailedMessageID {
		if err := ctx.Err(); err != nil {
			// Shutting down mid-send; let the queue redeliver.
			return err
		}
		if err := h.queries.MarkMessageFailed(ctx, params); err != nil {
			log.Error().Err(err).Msg("failed to record send failure")
		}
		deliveriesTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("%w: message %d", ErrSendFailed, msg.ID)
	}

	// The mail is out. Record it even when shutting down so a redelivery
	// finds sent_at and skips the resend.
	if err := h.queries.MarkMessageSent(context.WithoutCancel(ctx), params); err != nil {
		log.Error().Err(err).Str("provider_message_id", providerID).Msg("failed to record sent message")
		return fmt.Errorf("mark message %d sent: %w", msg.ID, err)
	}

	deliveriesTotal.WithLabelValues("sent").Inc()
	log.Info().
		Str("provider_message_id", providerID).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("message delivered by worker")
	return nil
}
