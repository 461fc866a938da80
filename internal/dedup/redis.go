package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL is how long a run's Redis set outlives its last write.
const DefaultTTL = 24 * time.Hour

// Redis is a Guard backed by one Redis set per dispatch run. It keeps the
// dispatcher's memory flat for audiences of any size.
type Redis struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
}

// NewRedis returns a Guard storing keys in the set "dedup:<runID>".
func NewRedis(client redis.Cmdable, runID string, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{
		client: client,
		key:    "dedup:" + runID,
		ttl:    ttl,
	}
}

func (r *Redis) Seen(ctx context.Context, campaignID, subscriberID int64) (bool, error) {
	ok, err := r.client.SIsMember(ctx, r.key, Key(campaignID, subscriberID)).Result()
	if err != nil {
		return false, fmt.Errorf("dedup sismember: %w", err)
	}
	return ok, nil
}

func (r *Redis) MarkSeen(ctx context.Context, campaignID, subscriberID int64) error {
	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, r.key, Key(campaignID, subscriberID))
	pipe.Expire(ctx, r.key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("dedup sadd: %w", err)
	}
	return nil
}

// Release deletes the run's set once the run has finished.
func (r *Redis) Release(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("dedup release: %w", err)
	}
	return nil
}

// RedisFactory returns a Factory of per-run Redis guards.
func RedisFactory(client redis.Cmdable, ttl time.Duration) Factory {
	return func(runID string) Guard { return NewRedis(client, runID, ttl) }
}
