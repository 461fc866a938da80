package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// promoteScript moves up to ARGV[2] members scored <= ARGV[1] from the
// delayed set KEYS[1] to the stream KEYS[2] in one atomic step.
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, member in ipairs(due) do
	redis.call('XADD', KEYS[2], '*', 'data', member)
	redis.call('ZREM', KEYS[1], member)
end
return #due
`)

// RedisPromoter periodically moves due jobs from the delayed set to the
// stream consumed by the worker group.
type RedisPromoter struct {
	client   redis.Cmdable
	name     string
	batch    int
	interval time.Duration
	log      zerolog.Logger
	now      func() time.Time
}

// NewRedisPromoter creates a promoter for the named queue.
func NewRedisPromoter(client redis.Cmdable, name string, batch int, interval time.Duration, log zerolog.Logger) *RedisPromoter {
	return &RedisPromoter{
		client:   client,
		name:     name,
		batch:    batch,
		interval: interval,
		log:      log,
		now:      time.Now,
	}
}

// Promote moves every job due at the current time, in batches, and returns
// how many were moved.
func (p *RedisPromoter) Promote(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := promoteScript.Run(ctx, p.client,
			[]string{delayedKey(p.name), streamKey(p.name)},
			p.now().UnixMilli(), p.batch,
		).Int()
		if err != nil {
			return total, fmt.Errorf("promote delayed jobs: %w", err)
		}
		total += n
		if n < p.batch {
			break
		}
	}

	if total > 0 {
		JobsPromotedTotal.Add(float64(total))
	}
	return total, nil
}

// Run promotes due jobs every interval until ctx is cancelled.
func (p *RedisPromoter) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.Promote(ctx)
			if err != nil {
				if ctx.Err() == nil {
					p.log.Error().Err(err).Str("queue", p.name).Msg("promote failed")
				}
				continue
			}
			if n > 0 {
				p.log.Debug().Int("count", n).Str("queue", p.name).Msg("promoted due jobs")
			}
			p.observeDelayed(ctx)
		}
	}
}

func (p *RedisPromoter) observeDelayed(ctx context.Context) {
	n, err := p.client.ZCard(ctx, delayedKey(p.name)).Result()
	if err != nil {
		return
	}
	DelayedJobs.WithLabelValues(p.name).Set(float64(n))
}
