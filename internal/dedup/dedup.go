// Package dedup guards a dispatch run against creating two messages for the
// same subscriber when that subscriber is reachable through several tags.
package dedup

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/sungwon/campaign-dispatch/internal/config"
)

// Guard is a run-scoped set of (campaign, subscriber) pairs.
type Guard interface {
	Seen(ctx context.Context, campaignID, subscriberID int64) (bool, error)
	MarkSeen(ctx context.Context, campaignID, subscriberID int64) error
}

// Key returns the "<campaign>-<subscriber>" key used by every Guard.
func Key(campaignID, subscriberID int64) string {
	return strconv.FormatInt(campaignID, 10) + "-" + strconv.FormatInt(subscriberID, 10)
}

// Factory creates a fresh Guard for one dispatch run.
type Factory func(runID string) Guard

// MemoryFactory returns a Factory of bounded in-process guards.
func MemoryFactory(capacity int) Factory {
	return func(string) Guard { return NewMemory(capacity) }
}

// Release frees any external state held by g. Guards without external state
// are left alone.
func Release(ctx context.Context, g Guard) error {
	if r, ok := g.(interface{ Release(context.Context) error }); ok {
		return r.Release(ctx)
	}
	return nil
}

// FromConfig selects the guard backend named by cfg.Dedup. The redis backend
// requires client; an empty name selects memory.
func FromConfig(cfg config.DispatchConfig, client redis.Cmdable) (Factory, error) {
	switch cfg.Dedup {
	case "", "memory":
		capacity := cfg.DedupCapacity
		if capacity <= 0 {
			capacity = DefaultCapacity
		}
		return MemoryFactory(capacity), nil
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("dedup: redis backend needs a redis client")
		}
		return RedisFactory(client, cfg.DedupTTL), nil
	default:
		return nil, fmt.Errorf("dedup: unknown backend %q", cfg.Dedup)
	}
}
