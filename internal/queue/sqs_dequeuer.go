package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SQSDequeuer manages a pool of worker goroutines that consume and process
// jobs from an AWS SQS queue.
type SQSDequeuer struct {
	client          sqsAPI
	queueURL        string
	handler         Handler
	dlq             DeadLetterQueue
	retry           *RetryStrategy
	enqueuer        Enqueuer
	log             zerolog.Logger
	workerCount     int
	waitTime        int32
	visTimeout      int32
	processTimeout  time.Duration
	shutdownTimeout time.Duration
	wg              sync.WaitGroup
	cancel          context.CancelFunc
}

// NewSQSDequeuer creates an SQSDequeuer configured from the given Config.
func NewSQSDequeuer(
	client sqsAPI,
	queueURL string,
	handler Handler,
	dlq DeadLetterQueue,
	retry *RetryStrategy,
	enqueuer Enqueuer,
	cfg Config,
	log zerolog.Logger,
) *SQSDequeuer {
	cfg = cfg.withDefaults()
	waitTime := cfg.SQSWaitTime
	if waitTime == 0 {
		waitTime = 20
	}
	visTimeout := cfg.SQSVisTimeout
	if visTimeout == 0 {
		visTimeout = 30
	}

	return &SQSDequeuer{
		client:          client,
		queueURL:        queueURL,
		handler:         handler,
		dlq:             dlq,
		retry:           retry,
		enqueuer:        enqueuer,
		log:             log,
		workerCount:     cfg.WorkerCount,
		waitTime:        waitTime,
		visTimeout:      visTimeout,
		processTimeout:  cfg.ProcessTimeout,
		shutdownTimeout: cfg.ShutdownTimeout,
	}
}

// Start launches workerCount goroutines that long-poll the SQS queue.
func (d *SQSDequeuer) Start(ctx context.Context) error {
	ctx, d.cancel = context.WithCancel(ctx)

	for i := range d.workerCount {
		d.wg.Add(1)
		go d.runWorker(ctx, fmt.Sprintf("sqs-worker-%d", i))
	}

	d.log.Info().
		Int("worker_count", d.workerCount).
		Str("queue_url", d.queueURL).
		Msg("sqs dequeuer started")

	return nil
}

// Stop cancels the context and waits for workers to finish within the
// shutdown timeout.
func (d *SQSDequeuer) Stop(_ context.Context) error {
	if d.cancel == nil {
		return nil
	}
	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.log.Info().Msg("sqs dequeuer stopped gracefully")
		return nil
	case <-time.After(d.shutdownTimeout):
		d.log.Warn().Msg("sqs dequeuer shutdown timed out")
		return fmt.Errorf("shutdown timed out after %s", d.shutdownTimeout)
	}
}

// runWorker is the main loop for a single worker goroutine. It long-polls
// SQS and processes received messages one at a time.
func (d *SQSDequeuer) runWorker(ctx context.Context, workerName string) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			d.log.Debug().Str("worker", workerName).Msg("sqs worker stopping")
			return
		default:
		}

		out, err := d.client.ReceiveMessage(ctx, &sqsReceiveInput{
			QueueURL:            d.queueURL,
			MaxNumberOfMessages: 1,
			WaitTimeSeconds:     d.waitTime,
			VisibilityTimeout:   d.visTimeout,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.log.Error().Err(err).Str("worker", workerName).Msg("sqs receive error")
			continue
		}

		for _, sqsMsg := range out.Messages {
			d.processMessage(ctx, sqsMsg)
		}
	}
}

// processMessage deserializes an SQS message body and either defers it
// (not yet due), or runs it through the handler. Retries and deferrals are
// new sends, so the received message is deleted unless a deferral could not
// be sent, in which case SQS redelivers it after the visibility timeout.
func (d *SQSDequeuer) processMessage(ctx context.Context, sqsMsg sqsReceivedMessage) {
	retain := false
	defer func() {
		if retain {
			return
		}
		if delErr := d.client.DeleteMessage(context.WithoutCancel(ctx), &sqsDeleteInput{
			QueueURL:      d.queueURL,
			ReceiptHandle: sqsMsg.ReceiptHandle,
		}); delErr != nil {
			d.log.Error().Err(delErr).
				Str("sqs_message_id", sqsMsg.MessageID).
				Msg("failed to delete sqs message")
		}
	}()

	var job Job
	if err := json.Unmarshal([]byte(sqsMsg.Body), &job); err != nil {
		d.log.Error().Err(err).
			Str("sqs_message_id", sqsMsg.MessageID).
			Str("message_id", sqsMsg.Attributes[attrMessageID]).
			Str("campaign_id", sqsMsg.Attributes[attrCampaignID]).
			Msg("failed to unmarshal sqs message")
		return
	}

	if !job.Due(time.Now()) {
		if _, err := d.enqueuer.Enqueue(ctx, &job); err != nil {
			d.log.Error().Err(err).Str("job_id", job.ID).Msg("failed to defer early job")
			retain = true
			return
		}
		d.log.Debug().
			Str("job_id", job.ID).
			Time("not_before", job.NotBefore).
			Msg("job not due, deferred")
		JobsProcessedTotal.WithLabelValues("deferred").Inc()
		return
	}

	retain = !process(ctx, &job, d.handler, d.enqueuer, d.dlq, d.retry, d.processTimeout, d.log)
}
