package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/sungwon/campaign-dispatch/internal/storage"
	"github.com/sungwon/campaign-dispatch/internal/storage/storagetest"
)

func TestPipeline_RunsStagesInOrder(t *testing.T) {
	var order []string
	stage := func(name string) Stage {
		return StageFunc(func(_ context.Context, c *storage.Campaign) (*storage.Campaign, error) {
			order = append(order, name)
			return c, nil
		})
	}

	c := &storage.Campaign{ID: 1}
	got, err := New(stage("a"), stage("b"), stage("c")).Run(context.Background(), c)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got != c {
		t.Error("expected campaign forwarded")
	}
	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Errorf("unexpected order %v", order)
	}
}

func TestPipeline_StopsOnError(t *testing.T) {
	boom := errors.New("boom")
	called := false
	p := New(
		StageFunc(func(_ context.Context, c *storage.Campaign) (*storage.Campaign, error) { return c, boom }),
		StageFunc(func(_ context.Context, c *storage.Campaign) (*storage.Campaign, error) {
			called = true
			return c, nil
		}),
	)

	if _, err := p.Run(context.Background(), &storage.Campaign{}); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if called {
		t.Error("expected later stages to be skipped")
	}
}

func TestPipeline_ReplacedCampaignFlowsOn(t *testing.T) {
	replaced := &storage.Campaign{ID: 2, Status: "sending"}
	var seen *storage.Campaign
	p := New(
		StageFunc(func(context.Context, *storage.Campaign) (*storage.Campaign, error) { return replaced, nil }),
		StageFunc(func(_ context.Context, c *storage.Campaign) (*storage.Campaign, error) {
			seen = c
			return c, nil
		}),
	)
	if _, err := p.Run(context.Background(), &storage.Campaign{ID: 2}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if seen != replaced {
		t.Error("expected the next stage to see the returned campaign")
	}
}

func TestStatusStages(t *testing.T) {
	tests := []struct {
		name       string
		draft      bool
		wantStatus []string
	}{
		{name: "live campaign", draft: false, wantStatus: []string{storage.CampaignStatusSending, storage.CampaignStatusSent}},
		{name: "draft campaign", draft: true, wantStatus: []string{storage.CampaignStatusDraft, storage.CampaignStatusDraft}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storagetest.New()
			ctx := context.Background()
			status := storage.CampaignStatusQueued
			if tt.draft {
				status = storage.CampaignStatusDraft
			}
			c, err := store.CreateCampaign(ctx, storage.CreateCampaignParams{WorkspaceID: 1, Status: status, SaveAsDraft: tt.draft})
			if err != nil {
				t.Fatalf("create campaign: %v", err)
			}

			var observed []string
			observe := StageFunc(func(ctx context.Context, c *storage.Campaign) (*storage.Campaign, error) {
				stored, _ := store.GetCampaign(ctx, c.ID)
				observed = append(observed, stored.Status)
				return c, nil
			})

			p := New(NewStartCampaign(store, zerolog.Nop()), observe, NewMarkAsSent(store, zerolog.Nop()))
			got, err := p.Run(ctx, &c)
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			observed = append(observed, got.Status)

			if observed[0] != tt.wantStatus[0] || observed[1] != tt.wantStatus[1] {
				t.Errorf("expected statuses %v, got %v", tt.wantStatus, observed)
			}
		})
	}
}
