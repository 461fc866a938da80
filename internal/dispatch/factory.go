// Package dispatch fans a campaign out into one message per eligible
// subscriber and schedules each message for paced delivery.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sungwon/campaign-dispatch/internal/delivery"
	"github.com/sungwon/campaign-dispatch/internal/storage"
)

// Outcome tells whether Dispatch created a message or found one from an
// earlier or concurrent run.
type Outcome int

const (
	OutcomeCreated Outcome = iota
	OutcomeExisting
)

func (o Outcome) String() string {
	if o == OutcomeExisting {
		return "existing"
	}
	return "created"
}

// MessageFactory creates the message for a (campaign, subscriber) pair at
// most once. Uniqueness is enforced by the store on
// (workspace_id, subscriber_id, source_type, source_id).
type MessageFactory struct {
	queries  storage.Querier
	delivery delivery.Service
	now      func() time.Time
	log      zerolog.Logger
}

func NewMessageFactory(queries storage.Querier, svc delivery.Service, log zerolog.Logger) *MessageFactory {
	return &MessageFactory{
		queries:  queries,
		delivery: svc,
		now:      time.Now,
		log:      log,
	}
}

// Dispatch returns the message for the pair, creating it when absent. Live
// messages created here are scheduled for sendAt; drafts are never scheduled.
func (f *MessageFactory) Dispatch(
	ctx context.Context,
	campaign *storage.Campaign,
	subscriber *storage.Subscriber,
	sendAt time.Time,
	draft bool,
) (*storage.Message, Outcome, error) {
	if draft {
		return f.dispatchDraft(ctx, campaign, subscriber)
	}
	return f.dispatchLive(ctx, campaign, subscriber, sendAt)
}

func newMessageParams(c *storage.Campaign, s *storage.Subscriber) storage.InsertMessageParams {
	return storage.InsertMessageParams{
		WorkspaceID:    c.WorkspaceID,
		SubscriberID:   s.ID,
		SourceType:     storage.SourceTypeCampaign,
		SourceID:       c.ID,
		RecipientEmail: s.Email,
		Subject:        c.Subject,
		FromName:       c.FromName,
		FromEmail:      c.FromEmail,
	}
}

func messageKey(c *storage.Campaign, s *storage.Subscriber) storage.FindMessageParams {
	return storage.FindMessageParams{
		WorkspaceID:  c.WorkspaceID,
		SubscriberID: s.ID,
		SourceType:   storage.SourceTypeCampaign,
		SourceID:     c.ID,
	}
}

func (f *MessageFactory) findExisting(ctx context.Context, c *storage.Campaign, s *storage.Subscriber) (*storage.Message, Outcome, error) {
	m, err := f.queries.FindMessage(ctx, messageKey(c, s))
	if err != nil {
		return nil, OutcomeExisting, fmt.Errorf("find message: %w", err)
	}
	return &m, OutcomeExisting, nil
}

func (f *MessageFactory) dispatchDraft(ctx context.Context, c *storage.Campaign, s *storage.Subscriber) (*storage.Message, Outcome, error) {
	params := newMessageParams(c, s)
	params.QueuedAt = storage.Timestamptz(f.now())

	m, err := f.queries.InsertDraftMessage(ctx, params)
	switch {
	case err == nil:
		return &m, OutcomeCreated, nil
	case storage.IsNotFound(err):
		// ON CONFLICT DO NOTHING returned no row.
		return f.findExisting(ctx, c, s)
	default:
		return nil, OutcomeCreated, fmt.Errorf("insert draft message: %w", err)
	}
}

func (f *MessageFactory) dispatchLive(ctx context.Context, c *storage.Campaign, s *storage.Subscriber, sendAt time.Time) (*storage.Message, Outcome, error) {
	existing, err := f.queries.FindMessage(ctx, messageKey(c, s))
	if err == nil {
		return &existing, OutcomeExisting, nil
	}
	if !storage.IsNotFound(err) {
		return nil, OutcomeExisting, fmt.Errorf("find message: %w", err)
	}

	params := newMessageParams(c, s)
	params.DelayedSendAt = storage.Timestamptz(sendAt)

	m, err := f.queries.InsertMessage(ctx, params)
	if err != nil {
		if storage.IsUniqueViolation(err) {
			// Another run created it between the lookup and the insert; that
			// run owns the job.
			return f.findExisting(ctx, c, s)
		}
		return nil, OutcomeCreated, fmt.Errorf("insert message: %w", err)
	}

	if err := f.delivery.Schedule(ctx, &m); err != nil {
		if delErr := f.queries.DeleteMessage(ctx, m.ID); delErr != nil {
			f.log.Error().Err(delErr).
				Int64("message_id", m.ID).
				Int64("campaign_id", c.ID).
				Int64("subscriber_id", s.ID).
				Msg("failed to remove unscheduled message")
		}
		return nil, OutcomeCreated, fmt.Errorf("schedule message %d: %w", m.ID, err)
	}
	return &m, OutcomeCreated, nil
}
