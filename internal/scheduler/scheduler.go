// Package scheduler dispatches campaigns whose scheduled time has passed.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/sungwon/campaign-dispatch/internal/dispatch"
	"github.com/sungwon/campaign-dispatch/internal/metrics"
	"github.com/sungwon/campaign-dispatch/internal/storage"
)

// DefaultSpec sweeps once a minute.
const DefaultSpec = "@every 1m"

// Runner dispatches a single campaign.
type Runner interface {
	Run(ctx context.Context, campaign *storage.Campaign) (dispatch.Summary, error)
}

// Sweeper periodically dispatches due campaigns. Scheduled campaigns left in
// sending by an incomplete run are picked up again on the next sweep.
type Sweeper struct {
	queries storage.Querier
	runner  Runner
	spec    string
	parser  cron.Parser
	cron    *cron.Cron
	now     func() time.Time
	log     zerolog.Logger
}

// New validates spec and returns a stopped Sweeper. Both 5-field cron
// expressions and descriptors such as "@every 30s" are accepted.
func New(queries storage.Querier, runner Runner, spec string, log zerolog.Logger) (*Sweeper, error) {
	if spec == "" {
		spec = DefaultSpec
	}
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(spec); err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	return &Sweeper{
		queries: queries,
		runner:  runner,
		spec:    spec,
		parser:  parser,
		now:     time.Now,
		log:     log.With().Str("component", "scheduler").Logger(),
	}, nil
}

// Sweep dispatches every due campaign once and returns how many completed.
// A failing campaign does not stop the sweep; failures are joined into the
// returned error.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	due, err := s.queries.ListDueCampaigns(ctx, s.now())
	if err != nil {
		metrics.SchedulerSweepsTotal.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("list due campaigns: %w", err)
	}

	var (
		dispatched int
		errs       []error
	)
	for i := range due {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		c := &due[i]
		summary, err := s.runner.Run(ctx, c)
		if err != nil {
			if errors.Is(err, dispatch.ErrNotDispatchable) {
				continue
			}
			s.log.Error().Err(err).Int64("campaign_id", c.ID).Msg("scheduled dispatch failed")
			errs = append(errs, err)
			continue
		}
		dispatched++
		metrics.SchedulerCampaignsDispatched.Inc()
		s.log.Info().
			Int64("campaign_id", c.ID).
			Str("run_id", summary.RunID).
			Int("created", summary.Created).
			Msg("scheduled campaign dispatched")
	}

	if len(errs) > 0 {
		metrics.SchedulerSweepsTotal.WithLabelValues("error").Inc()
		return dispatched, errors.Join(errs...)
	}
	metrics.SchedulerSweepsTotal.WithLabelValues("ok").Inc()
	return dispatched, nil
}

// Start runs Sweep on the configured schedule until Stop is called or ctx
// is cancelled. Overlapping sweeps are skipped.
func (s *Sweeper) Start(ctx context.Context) {
	cl := cronLogger{log: s.log}
	s.cron = cron.New(
		cron.WithParser(s.parser),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	// The spec was validated in New.
	_, _ = s.cron.AddFunc(s.spec, func() {
		if _, err := s.Sweep(ctx); err != nil {
			s.log.Warn().Err(err).Msg("sweep finished with errors")
		}
	})
	s.cron.Start()
	s.log.Info().Str("spec", s.spec).Msg("scheduler started")

	go func() {
		<-ctx.Done()
		s.cron.Stop()
	}()
}

// Stop halts the schedule and waits for a running sweep to finish or ctx to
// expire.
func (s *Sweeper) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	select {
	case <-s.cron.Stop().Done():
		s.log.Info().Msg("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
