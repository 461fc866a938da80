package queue

import (
	"time"

	"github.com/google/uuid"
)

// Job asks a worker to deliver one persisted message no earlier than
// NotBefore. It carries identifiers only; the worker loads the message.
type Job struct {
	ID          string    `json:"id"`
	MessageID   int64     `json:"message_id"`
	WorkspaceID int64     `json:"workspace_id"`
	CampaignID  int64     `json:"campaign_id"`
	NotBefore   time.Time `json:"not_before"`
	RetryCount  int       `json:"retry_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewJob creates a Job with a generated UUID and current timestamp.
func NewJob(messageID, workspaceID, campaignID int64, notBefore time.Time) *Job {
	return &Job{
		ID:          uuid.New().String(),
		MessageID:   messageID,
		WorkspaceID: workspaceID,
		CampaignID:  campaignID,
		NotBefore:   notBefore,
		CreatedAt:   time.Now(),
	}
}

// Due reports whether the job may run at now.
func (j *Job) Due(now time.Time) bool {
	return !j.NotBefore.After(now)
}

// Delay returns how long the job must still wait at now, never negative.
func (j *Job) Delay(now time.Time) time.Duration {
	if d := j.NotBefore.Sub(now); d > 0 {
		return d
	}
	return 0
}

// streamKey returns the Redis stream key holding due jobs.
func streamKey(name string) string {
	return "queue:" + name
}

// delayedKey returns the Redis sorted set key holding jobs not yet due.
func delayedKey(name string) string {
	return "delayed:" + name
}

// dlqStreamKey returns the Redis DLQ stream key.
func dlqStreamKey(name string) string {
	return "dlq:" + name
}
