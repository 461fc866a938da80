package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisEnqueuer publishes jobs to Redis. Jobs already due go straight to the
// stream; the rest wait in a sorted set scored by NotBefore until a
// RedisPromoter moves them.
type RedisEnqueuer struct {
	client redis.Cmdable
	name   string
	now    func() time.Time
}

// NewRedisEnqueuer creates a new RedisEnqueuer backed by the given Redis client.
func NewRedisEnqueuer(client redis.Cmdable, name string) *RedisEnqueuer {
	return &RedisEnqueuer{client: client, name: name, now: time.Now}
}

// Enqueue stores the job and returns the stream entry ID for due jobs or the
// job ID for delayed ones.
func (e *RedisEnqueuer) Enqueue(ctx context.Context, job *Job) (string, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal job: %w", err)
	}

	if job.Due(e.now()) {
		entryID, err := e.client.XAdd(ctx, &redis.XAddArgs{
			Stream: streamKey(e.name),
			Values: map[string]interface{}{
				"data": string(data),
			},
		}).Result()
		if err != nil {
			return "", fmt.Errorf("xadd to stream %s: %w", streamKey(e.name), err)
		}
		JobsEnqueuedTotal.WithLabelValues("redis").Inc()
		return entryID, nil
	}

	err = e.client.ZAdd(ctx, delayedKey(e.name), redis.Z{
		Score:  float64(job.NotBefore.UnixMilli()),
		Member: string(data),
	}).Err()
	if err != nil {
		return "", fmt.Errorf("zadd to %s: %w", delayedKey(e.name), err)
	}

	JobsEnqueuedTotal.WithLabelValues("redis").Inc()

	return job.ID, nil
}
