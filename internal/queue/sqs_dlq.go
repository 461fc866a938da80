package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// SQSDLQ manages dead letter queue operations backed by an AWS SQS queue.
type SQSDLQ struct {
	client   sqsAPI
	dlqURL   string
	enqueuer Enqueuer
	log      zerolog.Logger
}

// NewSQSDLQ creates a new SQSDLQ targeting the given DLQ URL. The enqueuer
// is used by Reprocess to send jobs back to the primary queue.
func NewSQSDLQ(client sqsAPI, dlqURL string, enqueuer Enqueuer, log zerolog.Logger) *SQSDLQ {
	return &SQSDLQ{
		client:   client,
		dlqURL:   dlqURL,
		enqueuer: enqueuer,
		log:      log,
	}
}

// MoveToDLQ wraps the failed job in a DLQEntry envelope and sends it to the
// dead letter queue.
func (d *SQSDLQ) MoveToDLQ(ctx context.Context, job *Job, reason string) error {
	data, err := json.Marshal(DLQEntry{
		Job:        job,
		FinalError: reason,
		MovedAt:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("marshal dlq entry: %w", err)
	}

	_, err = d.client.SendMessage(ctx, &sqsSendInput{
		QueueURL:    d.dlqURL,
		MessageBody: string(data),
		Attributes:  jobAttributes(job),
	})
	if err != nil {
		return fmt.Errorf("sqs send to dlq: %w", err)
	}

	DLQJobsTotal.WithLabelValues("max_retries").Inc()
	JobsProcessedTotal.WithLabelValues("dlq").Inc()

	return nil
}

// Reprocess receives up to len(entryIDs) entries from the DLQ (at most 10,
// SQS cannot address messages by ID), resets their retry count, and sends
// them back to the primary queue as due now.
func (d *SQSDLQ) Reprocess(ctx context.Context, entryIDs []string) (int, error) {
	batchSize := len(entryIDs)
	if batchSize == 0 {
		return 0, nil
	}
	if batchSize > 10 {
		batchSize = 10
	}

	out, err := d.client.ReceiveMessage(ctx, &sqsReceiveInput{
		QueueURL:            d.dlqURL,
		MaxNumberOfMessages: int32(batchSize),
		VisibilityTimeout:   30,
	})
	if err != nil {
		return 0, fmt.Errorf("sqs receive from dlq: %w", err)
	}

	reprocessed := 0
	for _, sqsMsg := range out.Messages {
		var entry DLQEntry
		if err := json.Unmarshal([]byte(sqsMsg.Body), &entry); err != nil || entry.Job == nil {
			d.log.Warn().Err(err).Msg("skipping malformed dlq entry")
			continue
		}

		entry.Job.RetryCount = 0
		entry.Job.NotBefore = time.Now()
		if _, err := d.enqueuer.Enqueue(ctx, entry.Job); err != nil {
			return reprocessed, fmt.Errorf("re-enqueue job %s: %w", entry.Job.ID, err)
		}

		if err := d.client.DeleteMessage(ctx, &sqsDeleteInput{
			QueueURL:      d.dlqURL,
			ReceiptHandle: sqsMsg.ReceiptHandle,
		}); err != nil {
			return reprocessed, fmt.Errorf("delete dlq entry: %w", err)
		}

		reprocessed++
	}

	return reprocessed, nil
}
