package queue

import (
	"testing"
	"time"

	"github.com/sungwon/campaign-dispatch/internal/config"
)

func TestNewJob(t *testing.T) {
	notBefore := time.Now().Add(time.Minute)
	job := NewJob(11, 22, 33, notBefore)

	if job.ID == "" {
		t.Error("expected generated job ID")
	}
	if job.MessageID != 11 || job.WorkspaceID != 22 || job.CampaignID != 33 {
		t.Errorf("NewJob() ids = %d/%d/%d, want 11/22/33", job.MessageID, job.WorkspaceID, job.CampaignID)
	}
	if !job.NotBefore.Equal(notBefore) {
		t.Errorf("NotBefore = %v, want %v", job.NotBefore, notBefore)
	}
	if job.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
}

func TestJob_DueAndDelay(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		notBefore time.Time
		wantDue   bool
		wantDelay time.Duration
	}{
		{"past", now.Add(-time.Second), true, 0},
		{"exactly now", now, true, 0},
		{"zero time", time.Time{}, true, 0},
		{"future", now.Add(90 * time.Second), false, 90 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := &Job{NotBefore: tt.notBefore}
			if got := job.Due(now); got != tt.wantDue {
				t.Errorf("Due() = %v, want %v", got, tt.wantDue)
			}
			if got := job.Delay(now); got != tt.wantDelay {
				t.Errorf("Delay() = %v, want %v", got, tt.wantDelay)
			}
		})
	}
}

func TestKeys(t *testing.T) {
	if got := streamKey("deliveries"); got != "queue:deliveries" {
		t.Errorf("streamKey() = %s", got)
	}
	if got := delayedKey("deliveries"); got != "delayed:deliveries" {
		t.Errorf("delayedKey() = %s", got)
	}
	if got := dlqStreamKey("deliveries"); got != "dlq:deliveries" {
		t.Errorf("dlqStreamKey() = %s", got)
	}
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{Type: "memory", WorkerCount: 3}.withDefaults()

	if cfg.WorkerCount != 3 {
		t.Errorf("WorkerCount = %d, want explicit 3", cfg.WorkerCount)
	}
	if cfg.Name != "deliveries" {
		t.Errorf("Name = %s, want default deliveries", cfg.Name)
	}
	if cfg.PromoteBatch != 100 {
		t.Errorf("PromoteBatch = %d, want 100", cfg.PromoteBatch)
	}
	if cfg.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", cfg.MaxRetries)
	}
}

func TestConfig_ClaimMinIdleNeverBelowProcessTimeout(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want time.Duration
	}{
		{"default is twice process timeout", Config{ProcessTimeout: 10 * time.Second}, 20 * time.Second},
		{"explicit above timeout kept", Config{ProcessTimeout: 10 * time.Second, ClaimMinIdle: time.Minute}, time.Minute},
		{"explicit below timeout raised", Config{ProcessTimeout: 10 * time.Second, ClaimMinIdle: time.Second}, 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cfg.withDefaults()
			if got.ClaimMinIdle != tt.want {
				t.Errorf("ClaimMinIdle = %v, want %v", got.ClaimMinIdle, tt.want)
			}
			if got.ClaimInterval != 30*time.Second {
				t.Errorf("ClaimInterval = %v, want 30s", got.ClaimInterval)
			}
		})
	}
}

func TestFromConfig(t *testing.T) {
	got := FromConfig(config.QueueConfig{
		Type:         "sqs",
		Name:         "mail",
		Workers:      4,
		MaxRetries:   2,
		SQSQueueURL:  "https://sqs.local/q",
		SQSRegion:    "eu-west-1",
		BlockTimeout: 2 * time.Second,
	})

	if got.Type != "sqs" || got.Name != "mail" || got.WorkerCount != 4 || got.MaxRetries != 2 {
		t.Errorf("FromConfig() = %+v", got)
	}
	if got.SQSQueueURL != "https://sqs.local/q" || got.SQSRegion != "eu-west-1" || got.BlockTimeout != 2*time.Second {
		t.Errorf("FromConfig() sqs fields = %+v", got)
	}

	filled := got.withDefaults()
	if filled.Group != DefaultConfig().Group {
		t.Errorf("Group = %q, want default %q", filled.Group, DefaultConfig().Group)
	}
}
