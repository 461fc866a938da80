package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sungwon/campaign-dispatch/internal/config"
	"github.com/sungwon/campaign-dispatch/internal/dedup"
	"github.com/sungwon/campaign-dispatch/internal/delivery"
	"github.com/sungwon/campaign-dispatch/internal/pacing"
	"github.com/sungwon/campaign-dispatch/internal/pipeline"
	"github.com/sungwon/campaign-dispatch/internal/storage"
)

// ErrNotDispatchable is returned for campaigns that were already sent or
// were cancelled.
var ErrNotDispatchable = errors.New("dispatch: campaign is not dispatchable")

// ErrIncomplete is returned when some subscribers could not be dispatched.
// The campaign stays in sending and the run may be repeated.
var ErrIncomplete = errors.New("dispatch: run incomplete")

// Runner sends a campaign through the default pipeline:
// StartCampaign, CreateMessages, MarkAsSent. MarkAsSent only runs when no
// subscriber failed.
type Runner struct {
	pipeline *pipeline.Pipeline
	log      zerolog.Logger
}

func NewRunner(queries storage.Querier, stage *CreateMessages, log zerolog.Logger) *Runner {
	return &Runner{
		pipeline: pipeline.New(
			pipeline.NewStartCampaign(queries, log),
			stage,
			pipeline.StageFunc(requireComplete),
			pipeline.NewMarkAsSent(queries, log),
		),
		log: log,
	}
}

// NewRunnerFromConfig wires the default pipeline from the dispatch section:
// pacing bounds, chunk size and the given guard factory.
func NewRunnerFromConfig(queries storage.Querier, svc delivery.Service, cfg config.DispatchConfig, guards dedup.Factory, log zerolog.Logger) *Runner {
	stage := NewCreateMessages(
		queries,
		NewMessageFactory(queries, svc, log),
		pacing.FromConfig(cfg.RandomDelayMin, cfg.RandomDelayMax, nil),
		Options{ChunkSize: cfg.ChunkSize, Guards: guards},
		log,
	)
	return NewRunner(queries, stage, log)
}

// Run dispatches the campaign. A campaign left in sending by an interrupted
// run may be dispatched again; already created messages are skipped.
func (r *Runner) Run(ctx context.Context, campaign *storage.Campaign) (Summary, error) {
	switch campaign.Status {
	case storage.CampaignStatusSent, storage.CampaignStatusCancelled:
		return Summary{CampaignID: campaign.ID}, fmt.Errorf("%w: campaign %d is %s", ErrNotDispatchable, campaign.ID, campaign.Status)
	}

	ctx, summary := WithSummary(ctx)
	if _, err := r.pipeline.Run(ctx, campaign); err != nil {
		return *summary, fmt.Errorf("dispatch campaign %d: %w", campaign.ID, err)
	}
	return *summary, nil
}

func requireComplete(ctx context.Context, c *storage.Campaign) (*storage.Campaign, error) {
	summary, ok := ctx.Value(summaryKey{}).(*Summary)
	if !ok || summary.Failed == 0 {
		return c, nil
	}
	return c, fmt.Errorf("%w: %d of campaign %d subscribers failed", ErrIncomplete, summary.Failed, c.ID)
}
