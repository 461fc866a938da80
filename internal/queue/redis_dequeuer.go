package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const reclaimConsumer = "reclaimer"

// RedisDequeuer manages a pool of worker goroutines that consume due jobs
// from a Redis stream using a consumer group, plus one promoter goroutine
// feeding the stream from the delayed set and one reclaimer goroutine
// recovering entries left pending by dead consumers.
type RedisDequeuer struct {
	client   redis.Cmdable
	enqueuer Enqueuer
	dlq      DeadLetterQueue
	handler  Handler
	retry    *RetryStrategy
	promoter *RedisPromoter
	config   Config
	log      zerolog.Logger
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

// NewRedisDequeuer creates a RedisDequeuer for the queue named in cfg.
func NewRedisDequeuer(
	client redis.Cmdable,
	enqueuer Enqueuer,
	dlq DeadLetterQueue,
	handler Handler,
	retry *RetryStrategy,
	cfg Config,
	log zerolog.Logger,
) *RedisDequeuer {
	cfg = cfg.withDefaults()
	return &RedisDequeuer{
		client:   client,
		enqueuer: enqueuer,
		dlq:      dlq,
		handler:  handler,
		retry:    retry,
		promoter: NewRedisPromoter(client, cfg.Name, cfg.PromoteBatch, cfg.PromoteInterval, log),
		config:   cfg,
		log:      log,
	}
}

// Start creates the consumer group (if it does not already exist) and
// launches the promoter and the configured number of worker goroutines.
func (d *RedisDequeuer) Start(ctx context.Context) error {
	if err := d.createConsumerGroup(ctx); err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}

	ctx, d.cancel = context.WithCancel(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.promoter.Run(ctx)
	}()

	d.wg.Add(1)
	go d.runReclaimer(ctx)

	for i := range d.config.WorkerCount {
		d.wg.Add(1)
		go d.runWorker(ctx, fmt.Sprintf("worker-%d", i))
	}

	d.log.Info().
		Int("worker_count", d.config.WorkerCount).
		Str("queue", d.config.Name).
		Msg("redis dequeuer started")

	return nil
}

// Stop signals all workers to stop and waits up to the configured shutdown
// timeout for them to finish processing.
func (d *RedisDequeuer) Stop(ctx context.Context) error {
	if d.cancel == nil {
		return nil
	}
	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.log.Info().Msg("redis dequeuer stopped gracefully")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d.config.ShutdownTimeout):
		d.log.Warn().Msg("redis dequeuer shutdown timed out")
		return fmt.Errorf("shutdown timed out after %s", d.config.ShutdownTimeout)
	}
}

// createConsumerGroup creates a consumer group for the queue's stream.
// If the stream or group already exists, the error is ignored.
func (d *RedisDequeuer) createConsumerGroup(ctx context.Context) error {
	err := d.client.XGroupCreateMkStream(ctx, streamKey(d.config.Name), d.config.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s on stream %s: %w", d.config.Group, streamKey(d.config.Name), err)
	}
	return nil
}

// runWorker is the main loop for a single worker goroutine.
func (d *RedisDequeuer) runWorker(ctx context.Context, consumerName string) {
	defer d.wg.Done()

	d.log.Debug().Str("consumer", consumerName).Msg("worker started")

	for {
		select {
		case <-ctx.Done():
			d.log.Debug().Str("consumer", consumerName).Msg("worker stopping")
			return
		default:
		}

		xStreams, err := d.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    d.config.Group,
			Consumer: consumerName,
			Streams:  []string{streamKey(d.config.Name), ">"},
			Count:    1,
			Block:    d.config.BlockTimeout,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			d.log.Error().Err(err).Str("consumer", consumerName).Msg("xreadgroup error")
			continue
		}

		for _, stream := range xStreams {
			for _, xMsg := range stream.Messages {
				d.processEntry(ctx, xMsg)
			}
		}
	}
}

// processEntry handles a single stream entry: decodes the job, invokes the
// handler, and acknowledges it once the job is settled. An entry whose
// reschedule failed stays pending and is picked up again by reclaim.
func (d *RedisDequeuer) processEntry(ctx context.Context, xMsg redis.XMessage) {
	if !d.settle(ctx, xMsg) {
		return
	}
	if ackErr := d.acknowledge(ctx, xMsg.ID); ackErr != nil {
		d.log.Error().Err(ackErr).Str("entry_id", xMsg.ID).Msg("failed to acknowledge job")
	}
}

// settle reports whether the entry can be acknowledged. Undecodable entries
// are settled since no redelivery can fix them.
func (d *RedisDequeuer) settle(ctx context.Context, xMsg redis.XMessage) bool {
	data, ok := xMsg.Values["data"].(string)
	if !ok {
		d.log.Error().Str("entry_id", xMsg.ID).Msg("invalid job data type")
		return true
	}

	var job Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		d.log.Error().Err(err).Str("entry_id", xMsg.ID).Msg("failed to unmarshal job")
		return true
	}

	// A job can reach the stream early through DLQ reprocessing or clock
	// skew between producers; put it back until it is due.
	if !job.Due(time.Now()) {
		if _, err := d.enqueuer.Enqueue(context.WithoutCancel(ctx), &job); err != nil {
			d.log.Error().Err(err).Str("job_id", job.ID).Msg("failed to defer early job")
			return false
		}
		JobsProcessedTotal.WithLabelValues("deferred").Inc()
		return true
	}

	return process(ctx, &job, d.handler, d.enqueuer, d.dlq, d.retry, d.config.ProcessTimeout, d.log)
}

// runReclaimer periodically takes over entries that another consumer read
// but never acknowledged, such as those left by a crashed worker.
func (d *RedisDequeuer) runReclaimer(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.ClaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.Reclaim(ctx); err != nil && ctx.Err() == nil {
				d.log.Error().Err(err).Str("queue", d.config.Name).Msg("reclaim failed")
			}
		}
	}
}

// Reclaim claims every pending entry idle for at least ClaimMinIdle and
// processes it on behalf of the reclaimer consumer. It returns the number of
// entries claimed.
func (d *RedisDequeuer) Reclaim(ctx context.Context) (int, error) {
	start := "0-0"
	claimed := 0
	for {
		msgs, next, err := d.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   streamKey(d.config.Name),
			Group:    d.config.Group,
			MinIdle:  d.config.ClaimMinIdle,
			Start:    start,
			Count:    int64(d.config.PromoteBatch),
			Consumer: reclaimConsumer,
		}).Result()
		if err != nil {
			return claimed, fmt.Errorf("xautoclaim on stream %s: %w", streamKey(d.config.Name), err)
		}

		for _, xMsg := range msgs {
			d.log.Warn().
				Str("entry_id", xMsg.ID).
				Str("queue", d.config.Name).
				Msg("reclaimed idle entry")
			JobsReclaimedTotal.Inc()
			d.processEntry(ctx, xMsg)
		}
		claimed += len(msgs)

		if next == "0-0" || next == "" || ctx.Err() != nil {
			return claimed, nil
		}
		start = next
	}
}

// acknowledge acknowledges an entry in the consumer group using XACK.
func (d *RedisDequeuer) acknowledge(ctx context.Context, entryID string) error {
	err := d.client.XAck(context.WithoutCancel(ctx), streamKey(d.config.Name), d.config.Group, entryID).Err()
	if err != nil {
		return fmt.Errorf("xack entry %s on stream %s: %w", entryID, streamKey(d.config.Name), err)
	}
	return nil
}
