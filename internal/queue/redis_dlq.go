package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DLQEntry wraps a failed job with failure metadata.
type DLQEntry struct {
	Job        *Job      `json:"job"`
	FinalError string    `json:"final_error"`
	MovedAt    time.Time `json:"moved_at"`
}

// RedisDLQ manages dead letter queue operations backed by a Redis stream.
type RedisDLQ struct {
	client   redis.Cmdable
	name     string
	enqueuer Enqueuer
}

// NewRedisDLQ creates a new RedisDLQ for the named queue.
func NewRedisDLQ(client redis.Cmdable, name string, enqueuer Enqueuer) *RedisDLQ {
	return &RedisDLQ{client: client, name: name, enqueuer: enqueuer}
}

// MoveToDLQ appends a failed job to the dead letter stream.
func (d *RedisDLQ) MoveToDLQ(ctx context.Context, job *Job, reason string) error {
	data, err := json.Marshal(DLQEntry{
		Job:        job,
		FinalError: reason,
		MovedAt:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("marshal dlq entry: %w", err)
	}

	err = d.client.XAdd(ctx, &redis.XAddArgs{
		Stream: dlqStreamKey(d.name),
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd to dlq stream %s: %w", dlqStreamKey(d.name), err)
	}

	DLQJobsTotal.WithLabelValues("max_retries").Inc()
	JobsProcessedTotal.WithLabelValues("dlq").Inc()

	return nil
}

// Reprocess removes entries from the DLQ, resets their retry count, and
// re-enqueues them as due now. It returns the number of jobs reprocessed.
func (d *RedisDLQ) Reprocess(ctx context.Context, entryIDs []string) (int, error) {
	reprocessed := 0

	for _, entryID := range entryIDs {
		entries, err := d.client.XRange(ctx, dlqStreamKey(d.name), entryID, entryID).Result()
		if err != nil {
			return reprocessed, fmt.Errorf("xrange dlq entry %s: %w", entryID, err)
		}
		if len(entries) == 0 {
			continue
		}

		data, ok := entries[0].Values["data"].(string)
		if !ok {
			continue
		}

		var entry DLQEntry
		if err := json.Unmarshal([]byte(data), &entry); err != nil || entry.Job == nil {
			continue
		}

		entry.Job.RetryCount = 0
		entry.Job.NotBefore = time.Now()
		if _, err := d.enqueuer.Enqueue(ctx, entry.Job); err != nil {
			return reprocessed, fmt.Errorf("re-enqueue job %s: %w", entry.Job.ID, err)
		}

		if err := d.client.XDel(ctx, dlqStreamKey(d.name), entryID).Err(); err != nil {
			return reprocessed, fmt.Errorf("xdel dlq entry %s: %w", entryID, err)
		}

		reprocessed++
	}

	return reprocessed, nil
}
