package queue

import (
	"time"

	"github.com/sungwon/campaign-dispatch/internal/config"
)

// Config holds configuration for the queue system.
type Config struct {
	// Type selects the queue backend: "redis" (default), "sqs" or "memory".
	Type string `mapstructure:"type"`
	// Name identifies the stream (redis) used for delivery jobs.
	Name            string        `mapstructure:"name"`
	Group           string        `mapstructure:"group"`
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	WorkerCount     int           `mapstructure:"worker_count"`
	BlockTimeout    time.Duration `mapstructure:"block_timeout"`
	PromoteInterval time.Duration `mapstructure:"promote_interval"`
	PromoteBatch    int           `mapstructure:"promote_batch"`
	ProcessTimeout  time.Duration `mapstructure:"process_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	// ClaimMinIdle is how long a pending entry sits unacknowledged before
	// the reclaimer takes it over. Never below ProcessTimeout.
	ClaimMinIdle  time.Duration `mapstructure:"claim_min_idle"`
	ClaimInterval time.Duration `mapstructure:"claim_interval"`

	// SQS-specific config
	SQSQueueURL   string `mapstructure:"sqs_queue_url"`
	SQSDLQueueURL string `mapstructure:"sqs_dlq_url"`
	SQSRegion     string `mapstructure:"sqs_region"`
	SQSWaitTime   int32  `mapstructure:"sqs_wait_time"`          // long poll seconds, default 20
	SQSVisTimeout int32  `mapstructure:"sqs_visibility_timeout"` // seconds, default 30
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Type:            "redis",
		Name:            "deliveries",
		Group:           "delivery-workers",
		RedisAddr:       "localhost:6379",
		WorkerCount:     10,
		BlockTimeout:    5 * time.Second,
		PromoteInterval: time.Second,
		PromoteBatch:    100,
		ProcessTimeout:  30 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		MaxRetries:      5,
		ClaimMinIdle:    time.Minute,
		ClaimInterval:   30 * time.Second,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Name == "" {
		c.Name = d.Name
	}
	if c.Group == "" {
		c.Group = d.Group
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = d.WorkerCount
	}
	if c.BlockTimeout <= 0 {
		c.BlockTimeout = d.BlockTimeout
	}
	if c.PromoteInterval <= 0 {
		c.PromoteInterval = d.PromoteInterval
	}
	if c.PromoteBatch <= 0 {
		c.PromoteBatch = d.PromoteBatch
	}
	if c.ProcessTimeout <= 0 {
		c.ProcessTimeout = d.ProcessTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.ClaimMinIdle <= 0 {
		c.ClaimMinIdle = 2 * c.ProcessTimeout
	}
	if c.ClaimMinIdle < c.ProcessTimeout {
		c.ClaimMinIdle = c.ProcessTimeout
	}
	if c.ClaimInterval <= 0 {
		c.ClaimInterval = d.ClaimInterval
	}
	return c
}

// FromConfig maps the application queue section onto a queue Config.
// Zero values are filled from DefaultConfig when the queue is built.
func FromConfig(c config.QueueConfig) Config {
	return Config{
		Type:            c.Type,
		Name:            c.Name,
		Group:           c.Group,
		RedisAddr:       c.RedisAddr,
		RedisPassword:   c.RedisPassword,
		RedisDB:         c.RedisDB,
		WorkerCount:     c.Workers,
		BlockTimeout:    c.BlockTimeout,
		PromoteInterval: c.PromoteInterval,
		ProcessTimeout:  c.ProcessTimeout,
		ShutdownTimeout: c.ShutdownTimeout,
		MaxRetries:      c.MaxRetries,
		ClaimMinIdle:    c.ClaimMinIdle,
		ClaimInterval:   c.ClaimInterval,
		SQSQueueURL:     c.SQSQueueURL,
		SQSDLQueueURL:   c.SQSDLQueueURL,
		SQSRegion:       c.SQSRegion,
	}
}
