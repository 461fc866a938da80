// Package delivery hands persisted messages to the delayed job queue.
package delivery

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sungwon/campaign-dispatch/internal/queue"
	"github.com/sungwon/campaign-dispatch/internal/storage"
)

// ErrNoSendTime is returned when a message without delayed_send_at is
// scheduled. Drafts carry no send time and are never scheduled.
var ErrNoSendTime = errors.New("delivery: message has no send time")

// Service schedules a message for delivery at its delayed_send_at.
type Service interface {
	Schedule(ctx context.Context, msg *storage.Message) error
}

// QueueService enqueues an ID-only job for the queue-worker process, which
// loads the message and its content when the job comes due.
type QueueService struct {
	enqueuer queue.Enqueuer
	log      zerolog.Logger
}

// NewQueueService creates a QueueService backed by the given Enqueuer.
func NewQueueService(enqueuer queue.Enqueuer, log zerolog.Logger) *QueueService {
	return &QueueService{
		enqueuer: enqueuer,
		log:      log,
	}
}

func (s *QueueService) Schedule(ctx context.Context, msg *storage.Message) error {
	if !msg.DelayedSendAt.Valid {
		return fmt.Errorf("%w: message %d", ErrNoSendTime, msg.ID)
	}

	job := queue.NewJob(msg.ID, msg.WorkspaceID, msg.SourceID, msg.DelayedSendAt.Time)
	entryID, err := s.enqueuer.Enqueue(ctx, job)
	if err != nil {
		s.log.Error().Err(err).
			Int64("message_id", msg.ID).
			Msg("failed to enqueue delivery job")
		return fmt.Errorf("enqueue delivery job: %w", err)
	}

	s.log.Debug().
		Int64("message_id", msg.ID).
		Str("job_id", job.ID).
		Str("entry_id", entryID).
		Time("not_before", job.NotBefore).
		Msg("delivery job enqueued")
	return nil
}
