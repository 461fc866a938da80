package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
)

// maxSQSDelay is the longest DelaySeconds SQS accepts.
const maxSQSDelay = 900

// SQSEnqueuer publishes jobs to an AWS SQS queue. Jobs further out than the
// SQS delay ceiling are delivered early and deferred again by SQSDequeuer.
type SQSEnqueuer struct {
	client   sqsAPI
	queueURL string
	log      zerolog.Logger
	now      func() time.Time
}

// NewSQSEnqueuer creates a new SQSEnqueuer targeting the given queue URL.
func NewSQSEnqueuer(client sqsAPI, queueURL string, log zerolog.Logger) *SQSEnqueuer {
	return &SQSEnqueuer{
		client:   client,
		queueURL: queueURL,
		log:      log,
		now:      time.Now,
	}
}

// Enqueue serializes the job to JSON and sends it with a DelaySeconds that
// covers as much of the wait until NotBefore as SQS allows. It returns the
// SQS message ID.
func (e *SQSEnqueuer) Enqueue(ctx context.Context, job *Job) (string, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal job: %w", err)
	}

	out, err := e.client.SendMessage(ctx, &sqsSendInput{
		QueueURL:     e.queueURL,
		MessageBody:  string(data),
		DelaySeconds: delaySeconds(job.Delay(e.now())),
		Attributes:   jobAttributes(job),
	})
	if err != nil {
		return "", fmt.Errorf("sqs send message: %w", err)
	}

	JobsEnqueuedTotal.WithLabelValues("sqs").Inc()

	return out.MessageID, nil
}

// delaySeconds rounds d up to whole seconds and caps it at the SQS maximum.
func delaySeconds(d time.Duration) int32 {
	if d <= 0 {
		return 0
	}
	secs := math.Ceil(d.Seconds())
	if secs > maxSQSDelay {
		return maxSQSDelay
	}
	return int32(secs)
}
