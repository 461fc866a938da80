// Package bootstrap provides startup-time initialization routines such as
// seeding a demo workspace for local development.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sungwon/campaign-dispatch/internal/content"
	"github.com/sungwon/campaign-dispatch/internal/storage"
)

// DemoWorkspace is the name of the seeded workspace.
const DemoWorkspace = "demo"

// Demo identifies the seeded rows.
type Demo struct {
	WorkspaceID int64
	CampaignIDs []int64
	Created     bool
}

var demoSubscribers = []storage.UpsertSubscriberParams{
	{Email: "ada@example.com", FirstName: "Ada", LastName: "Lovelace"},
	{Email: "grace@example.com", FirstName: "Grace", LastName: "Hopper"},
	{Email: "alan@example.com", FirstName: "Alan", LastName: "Turing"},
	{Email: "edsger@example.com", FirstName: "Edsger", LastName: "Dijkstra"},
	{Email: "barbara@example.com", FirstName: "Barbara", LastName: "Liskov"},
}

// vipEmails are tagged "vip" in the demo workspace.
var vipEmails = map[string]bool{
	"ada@example.com":   true,
	"grace@example.com": true,
}

// SeedDemo ensures the demo workspace exists with a handful of subscribers,
// a "vip" tag and two queued campaigns with stored bodies.
// It is idempotent: if the workspace already exists, it returns immediately.
func SeedDemo(ctx context.Context, queries storage.Querier, store content.Store, log zerolog.Logger) (*Demo, error) {
	ws, err := queries.GetWorkspaceByName(ctx, DemoWorkspace)
	if err == nil {
		log.Info().Int64("workspace_id", ws.ID).Msg("demo workspace already exists, skipping seed")
		return &Demo{WorkspaceID: ws.ID}, nil
	}
	if !storage.IsNotFound(err) {
		return nil, fmt.Errorf("get demo workspace: %w", err)
	}

	ws, err = queries.CreateWorkspace(ctx, DemoWorkspace)
	if err != nil {
		return nil, fmt.Errorf("create demo workspace: %w", err)
	}

	tag, err := queries.UpsertTag(ctx, storage.UpsertTagParams{WorkspaceID: ws.ID, Name: "vip"})
	if err != nil {
		return nil, fmt.Errorf("create vip tag: %w", err)
	}

	for _, p := range demoSubscribers {
		p.WorkspaceID = ws.ID
		sub, err := queries.UpsertSubscriber(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("upsert subscriber %s: %w", p.Email, err)
		}
		if vipEmails[p.Email] {
			if err := queries.AttachSubscriberTag(ctx, storage.AttachSubscriberTagParams{TagID: tag.ID, SubscriberID: sub.ID}); err != nil {
				return nil, fmt.Errorf("tag subscriber %s: %w", p.Email, err)
			}
		}
	}

	demo := &Demo{WorkspaceID: ws.ID, Created: true}

	welcome, err := queries.CreateCampaign(ctx, storage.CreateCampaignParams{
		WorkspaceID: ws.ID,
		Name:        "Welcome",
		Status:      storage.CampaignStatusQueued,
		Subject:     "Welcome to the demo",
		FromName:    "Demo Team",
		FromEmail:   "hello@demo.test",
		SendToAll:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("create welcome campaign: %w", err)
	}
	if err := store.Put(ctx, welcome.ID, []byte("<h1>Welcome!</h1><p>Thanks for subscribing.</p>")); err != nil {
		return nil, fmt.Errorf("store welcome content: %w", err)
	}
	demo.CampaignIDs = append(demo.CampaignIDs, welcome.ID)

	preview, err := queries.CreateCampaign(ctx, storage.CreateCampaignParams{
		WorkspaceID: ws.ID,
		Name:        "VIP preview",
		Status:      storage.CampaignStatusQueued,
		Subject:     "An early look",
		FromName:    "Demo Team",
		FromEmail:   "hello@demo.test",
	})
	if err != nil {
		return nil, fmt.Errorf("create vip campaign: %w", err)
	}
	if err := queries.AttachCampaignTag(ctx, storage.AttachCampaignTagParams{CampaignID: preview.ID, TagID: tag.ID}); err != nil {
		return nil, fmt.Errorf("tag vip campaign: %w", err)
	}
	if err := store.Put(ctx, preview.ID, []byte("<h1>Just for you</h1>")); err != nil {
		return nil, fmt.Errorf("store vip content: %w", err)
	}
	demo.CampaignIDs = append(demo.CampaignIDs, preview.ID)

	log.Info().
		Int64("workspace_id", ws.ID).
		Int("subscribers", len(demoSubscribers)).
		Ints64("campaign_ids", demo.CampaignIDs).
		Msg("demo workspace seeded")

	return demo, nil
}
