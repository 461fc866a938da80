package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sungwon/campaign-dispatch/internal/dedup"
	"github.com/sungwon/campaign-dispatch/internal/pacing"
	"github.com/sungwon/campaign-dispatch/internal/storage"
)

// DefaultChunkSize is the number of subscribers read per page.
const DefaultChunkSize = 1000

// Summary counts what one dispatch run did.
type Summary struct {
	RunID      string `json:"run_id"`
	CampaignID int64  `json:"campaign_id"`
	Sources    int    `json:"sources"`
	Created    int    `json:"created"`
	Existing   int    `json:"existing"`
	Duplicates int    `json:"duplicates"`
	Failed     int    `json:"failed"`
}

type summaryKey struct{}

// WithSummary returns a context carrying an empty Summary that CreateMessages
// fills in, letting callers of a whole pipeline read the run's counts.
func WithSummary(ctx context.Context) (context.Context, *Summary) {
	s := &Summary{}
	return context.WithValue(ctx, summaryKey{}, s), s
}

// Options configures CreateMessages.
type Options struct {
	ChunkSize int
	Guards    dedup.Factory
}

// CreateMessages is the pipeline stage that creates and schedules one message
// per eligible subscriber. It forwards the campaign unchanged.
type CreateMessages struct {
	queries   storage.Querier
	factory   *MessageFactory
	resolver  pacing.Resolver
	guards    dedup.Factory
	chunkSize int32
	now       func() time.Time
	log       zerolog.Logger
}

func NewCreateMessages(
	queries storage.Querier,
	factory *MessageFactory,
	resolver pacing.Resolver,
	opts Options,
	log zerolog.Logger,
) *CreateMessages {
	if resolver == nil {
		resolver = pacing.Immediate{}
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.Guards == nil {
		opts.Guards = dedup.MemoryFactory(dedup.DefaultCapacity)
	}
	return &CreateMessages{
		queries:   queries,
		factory:   factory,
		resolver:  resolver,
		guards:    opts.Guards,
		chunkSize: int32(opts.ChunkSize),
		now:       time.Now,
		log:       log,
	}
}

// source yields one keyset page of eligible subscribers after afterID.
type source struct {
	name  string
	tagID int64
	page  func(ctx context.Context, afterID int64, limit int32) ([]storage.Subscriber, error)
}

// run carries the state of one Handle call.
type run struct {
	campaign *storage.Campaign
	guard    dedup.Guard
	summary  *Summary
	log      zerolog.Logger
}

func (s *CreateMessages) Handle(ctx context.Context, campaign *storage.Campaign) (*storage.Campaign, error) {
	summary, ok := ctx.Value(summaryKey{}).(*Summary)
	if !ok {
		summary = &Summary{}
	}
	runID := uuid.NewString()
	*summary = Summary{RunID: runID, CampaignID: campaign.ID}

	log := s.log.With().
		Str("run_id", runID).
		Int64("campaign_id", campaign.ID).
		Int64("workspace_id", campaign.WorkspaceID).
		Bool("draft", campaign.SaveAsDraft).
		Logger()

	sources, err := s.sources(ctx, campaign)
	if err != nil {
		return campaign, err
	}
	summary.Sources = len(sources)

	guard := s.guards(runID)
	defer func() {
		// The run's own context may already be cancelled.
		if err := dedup.Release(context.WithoutCancel(ctx), guard); err != nil {
			log.Warn().Err(err).Msg("failed to release dedup guard")
		}
	}()

	r := &run{campaign: campaign, guard: guard, summary: summary, log: log}

	start := time.Now()
	log.Info().Int("sources", len(sources)).Msg("dispatch started")
	for _, src := range sources {
		if err := s.drain(ctx, r, src); err != nil {
			dispatchRunsTotal.WithLabelValues("error").Inc()
			log.Error().Err(err).Str("source", src.name).Msg("dispatch aborted")
			return campaign, err
		}
	}
	dispatchRunsTotal.WithLabelValues("ok").Inc()
	dispatchRunDuration.Observe(time.Since(start).Seconds())

	log.Info().
		Int("created", summary.Created).
		Int("existing", summary.Existing).
		Int("duplicates", summary.Duplicates).
		Int("failed", summary.Failed).
		Dur("elapsed", time.Since(start)).
		Msg("dispatch finished")

	return campaign, nil
}

// sources resolves the audience: every eligible workspace subscriber, or each
// of the campaign's tags in ascending tag id order.
func (s *CreateMessages) sources(ctx context.Context, c *storage.Campaign) ([]source, error) {
	if c.SendToAll {
		return []source{{
			name: "workspace",
			page: func(ctx context.Context, afterID int64, limit int32) ([]storage.Subscriber, error) {
				return s.queries.ListWorkspaceSubscribersAfter(ctx, storage.ListWorkspaceSubscribersAfterParams{
					WorkspaceID: c.WorkspaceID,
					AfterID:     afterID,
					Limit:       limit,
				})
			},
		}}, nil
	}

	tagIDs, err := s.queries.ListCampaignTagIDs(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("list campaign tags: %w", err)
	}
	out := make([]source, 0, len(tagIDs))
	for _, tagID := range tagIDs {
		out = append(out, source{
			name:  fmt.Sprintf("tag:%d", tagID),
			tagID: tagID,
			page: func(ctx context.Context, afterID int64, limit int32) ([]storage.Subscriber, error) {
				return s.queries.ListTagSubscribersAfter(ctx, storage.ListTagSubscribersAfterParams{
					TagID:       tagID,
					WorkspaceID: c.WorkspaceID,
					AfterID:     afterID,
					Limit:       limit,
				})
			},
		})
	}
	return out, nil
}

// drain walks one audience source page by page. The pacing cursor starts at
// now for every source and carries across page boundaries.
func (s *CreateMessages) drain(ctx context.Context, r *run, src source) error {
	log := r.log.With().Str("source", src.name).Logger()
	cursor := s.now()
	var afterID int64

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunk, err := src.page(ctx, afterID, s.chunkSize)
		if err != nil {
			return fmt.Errorf("read %s subscribers after %d: %w", src.name, afterID, err)
		}
		if len(chunk) == 0 {
			return nil
		}
		log.Debug().Int("size", len(chunk)).Int64("after_id", afterID).Msg("processing chunk")

		for i := range chunk {
			cursor = s.process(ctx, r, &chunk[i], cursor, log)
		}

		afterID = chunk[len(chunk)-1].ID
		if int32(len(chunk)) < s.chunkSize {
			return nil
		}
	}
}

// process handles one subscriber and returns the advanced cursor. Failures
// are logged and counted; they never stop the run.
func (s *CreateMessages) process(ctx context.Context, r *run, sub *storage.Subscriber, cursor time.Time, log zerolog.Logger) time.Time {
	c := r.campaign
	sublog := log.With().Int64("subscriber_id", sub.ID).Logger()

	seen, err := r.guard.Seen(ctx, c.ID, sub.ID)
	if err != nil {
		// Without the guard the store's unique key still prevents a second
		// message, so keep going.
		sublog.Warn().Err(err).Msg("dedup lookup failed")
	}
	if seen {
		r.summary.Duplicates++
		messagesTotal.WithLabelValues("duplicate").Inc()
		sublog.Info().Msg("subscriber already seen")
		return cursor
	}
	if err := r.guard.MarkSeen(ctx, c.ID, sub.ID); err != nil {
		sublog.Warn().Err(err).Msg("dedup mark failed")
	}

	sendAt := cursor
	next := s.resolver.Next(cursor, c)

	msg, outcome, err := s.factory.Dispatch(ctx, c, sub, sendAt, c.SaveAsDraft)
	if err != nil {
		r.summary.Failed++
		messagesTotal.WithLabelValues("failed").Inc()
		sublog.Error().Err(err).Msg("failed to dispatch message")
		return next
	}

	switch outcome {
	case OutcomeExisting:
		r.summary.Existing++
		messagesTotal.WithLabelValues("existing").Inc()
		sublog.Info().Int64("message_id", msg.ID).Msg("message previously created")
	default:
		r.summary.Created++
		messagesTotal.WithLabelValues("created").Inc()
		ev := sublog.Debug().Int64("message_id", msg.ID)
		if !c.SaveAsDraft {
			ev = ev.Time("send_at", sendAt)
		}
		ev.Msg("message scheduled")
	}
	return next
}
