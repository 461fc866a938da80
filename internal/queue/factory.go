package queue

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// NewQueue creates an Enqueuer, Dequeuer, and DeadLetterQueue based on the
// given configuration. The handler defines the job processing logic used by
// the Dequeuer; producers that never start the Dequeuer may pass nil.
func NewQueue(
	ctx context.Context,
	cfg Config,
	handler Handler,
	log zerolog.Logger,
) (Enqueuer, Dequeuer, DeadLetterQueue, error) {
	cfg = cfg.withDefaults()
	retry := NewRetryStrategy(cfg.MaxRetries)

	switch cfg.Type {
	case "redis", "":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})

		enqueuer := NewRedisEnqueuer(client, cfg.Name)
		dlq := NewRedisDLQ(client, cfg.Name, enqueuer)
		dequeuer := NewRedisDequeuer(client, enqueuer, dlq, handler, retry, cfg, log)

		return enqueuer, dequeuer, dlq, nil

	case "sqs":
		sqsClient, err := newAWSSQSClient(ctx, cfg.SQSRegion)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("create sqs client: %w", err)
		}
		enqueuer := NewSQSEnqueuer(sqsClient, cfg.SQSQueueURL, log)
		dlq := NewSQSDLQ(sqsClient, cfg.SQSDLQueueURL, enqueuer, log)
		dequeuer := NewSQSDequeuer(sqsClient, cfg.SQSQueueURL, handler, dlq, retry, enqueuer, cfg, log)

		return enqueuer, dequeuer, dlq, nil

	case "memory":
		q := NewMemoryQueue(handler, retry, cfg, log)
		return q, q, q, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown queue type: %s", cfg.Type)
	}
}
