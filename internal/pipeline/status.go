package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sungwon/campaign-dispatch/internal/storage"
)

// StartCampaign moves a campaign to sending before its messages are created.
// Draft campaigns keep their status.
type StartCampaign struct {
	queries storage.Querier
	log     zerolog.Logger
}

func NewStartCampaign(queries storage.Querier, log zerolog.Logger) *StartCampaign {
	return &StartCampaign{queries: queries, log: log}
}

func (s *StartCampaign) Handle(ctx context.Context, c *storage.Campaign) (*storage.Campaign, error) {
	if c.SaveAsDraft {
		return c, nil
	}
	return setStatus(ctx, s.queries, s.log, c, storage.CampaignStatusSending)
}

// MarkAsSent records that every message of a campaign has been created and
// scheduled. Delivery itself happens later in the queue worker.
type MarkAsSent struct {
	queries storage.Querier
	log     zerolog.Logger
}

func NewMarkAsSent(queries storage.Querier, log zerolog.Logger) *MarkAsSent {
	return &MarkAsSent{queries: queries, log: log}
}

func (s *MarkAsSent) Handle(ctx context.Context, c *storage.Campaign) (*storage.Campaign, error) {
	if c.SaveAsDraft {
		return c, nil
	}
	return setStatus(ctx, s.queries, s.log, c, storage.CampaignStatusSent)
}

func setStatus(ctx context.Context, q storage.Querier, log zerolog.Logger, c *storage.Campaign, status string) (*storage.Campaign, error) {
	if c.Status == status {
		return c, nil
	}
	updated, err := q.UpdateCampaignStatus(ctx, storage.UpdateCampaignStatusParams{ID: c.ID, Status: status})
	if err != nil {
		return c, fmt.Errorf("set campaign %d status %s: %w", c.ID, status, err)
	}
	log.Info().
		Int64("campaign_id", c.ID).
		Str("from", c.Status).
		Str("to", status).
		Msg("campaign status changed")
	return &updated, nil
}
