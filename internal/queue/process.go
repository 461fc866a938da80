package queue

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// process runs the handler for a due job and applies the retry policy on
// failure. Retries go back through the enqueuer with a future NotBefore, so
// every backend reuses its own delay mechanism for backoff.
//
// It reports whether the job is settled: handled, rescheduled or
// dead-lettered. An unsettled job must stay with the backend for redelivery.
func process(
	ctx context.Context,
	job *Job,
	handler Handler,
	enqueuer Enqueuer,
	dlq DeadLetterQueue,
	retry *RetryStrategy,
	timeout time.Duration,
	log zerolog.Logger,
) bool {
	start := time.Now()

	processCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := handler.HandleJob(processCtx, job)
	JobProcessingDuration.Observe(time.Since(start).Seconds())

	if err == nil {
		JobsProcessedTotal.WithLabelValues("sent").Inc()
		return true
	}

	log.Error().
		Err(err).
		Str("job_id", job.ID).
		Int64("message_id", job.MessageID).
		Int("retry_count", job.RetryCount).
		Msg("job processing failed")

	// Shutdown must not lose the reschedule.
	ctx = context.WithoutCancel(ctx)

	if backoff, ok := retry.Reschedule(job, time.Now()); ok {
		log.Info().
			Str("job_id", job.ID).
			Int("retry_count", job.RetryCount).
			Dur("backoff", backoff).
			Msg("scheduling retry")

		if _, enqErr := enqueuer.Enqueue(ctx, job); enqErr != nil {
			log.Error().Err(enqErr).Str("job_id", job.ID).Msg("failed to re-enqueue job for retry")
			JobsProcessedTotal.WithLabelValues("failed").Inc()
			return false
		}
		JobsProcessedTotal.WithLabelValues("failed").Inc()
		return true
	}

	log.Warn().
		Str("job_id", job.ID).
		Int("retry_count", job.RetryCount).
		Msg("max retries exhausted, moving to DLQ")

	if dlqErr := dlq.MoveToDLQ(ctx, job, err.Error()); dlqErr != nil {
		log.Error().Err(dlqErr).Str("job_id", job.ID).Msg("failed to move to DLQ")
		return false
	}
	return true
}
