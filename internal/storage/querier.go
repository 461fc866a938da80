package storage

import (
	"context"
	"time"
)

// Querier is the persistence surface used by the dispatch core, the delivery
// worker and the API. *Queries implements it against PostgreSQL.
type Querier interface {
	// Workspaces
	CreateWorkspace(ctx context.Context, name string) (Workspace, error)
	GetWorkspaceByName(ctx context.Context, name string) (Workspace, error)

	// Subscribers and tags
	UpsertSubscriber(ctx context.Context, arg UpsertSubscriberParams) (Subscriber, error)
	UnsubscribeSubscriber(ctx context.Context, id int64) error
	ListWorkspaceSubscribersAfter(ctx context.Context, arg ListWorkspaceSubscribersAfterParams) ([]Subscriber, error)
	ListTagSubscribersAfter(ctx context.Context, arg ListTagSubscribersAfterParams) ([]Subscriber, error)
	UpsertTag(ctx context.Context, arg UpsertTagParams) (Tag, error)
	AttachSubscriberTag(ctx context.Context, arg AttachSubscriberTagParams) error

	// Campaigns
	CreateCampaign(ctx context.Context, arg CreateCampaignParams) (Campaign, error)
	GetCampaign(ctx context.Context, id int64) (Campaign, error)
	GetWorkspaceCampaign(ctx context.Context, arg GetWorkspaceCampaignParams) (Campaign, error)
	ListCampaignTagIDs(ctx context.Context, campaignID int64) ([]int64, error)
	AttachCampaignTag(ctx context.Context, arg AttachCampaignTagParams) error
	UpdateCampaignStatus(ctx context.Context, arg UpdateCampaignStatusParams) (Campaign, error)
	ListDueCampaigns(ctx context.Context, now time.Time) ([]Campaign, error)

	// Messages
	InsertDraftMessage(ctx context.Context, arg InsertMessageParams) (Message, error)
	InsertMessage(ctx context.Context, arg InsertMessageParams) (Message, error)
	FindMessage(ctx context.Context, arg FindMessageParams) (Message, error)
	GetMessage(ctx context.Context, id int64) (Message, error)
	DeleteMessage(ctx context.Context, id int64) error
	MarkMessageSent(ctx context.Context, arg MarkMessageParams) error
	MarkMessageFailed(ctx context.Context, arg MarkMessageParams) error
	GetCampaignStats(ctx context.Context, campaignID int64) (CampaignStats, error)
}
