package storage

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// Campaign statuses.
const (
	CampaignStatusDraft     = "draft"
	CampaignStatusQueued    = "queued"
	CampaignStatusSending   = "sending"
	CampaignStatusSent      = "sent"
	CampaignStatusCancelled = "cancelled"
)

// SourceTypeCampaign is the polymorphic source type of campaign messages.
const SourceTypeCampaign = "Campaign"

type Workspace struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Subscriber struct {
	ID             int64              `json:"id"`
	WorkspaceID    int64              `json:"workspace_id"`
	Email          string             `json:"email"`
	FirstName      string             `json:"first_name"`
	LastName       string             `json:"last_name"`
	UnsubscribedAt pgtype.Timestamptz `json:"unsubscribed_at"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

type Tag struct {
	ID          int64     `json:"id"`
	WorkspaceID int64     `json:"workspace_id"`
	Name        string    `json:"name"`
	CreatedAt   time.Time `json:"created_at"`
}

type Campaign struct {
	ID          int64              `json:"id"`
	WorkspaceID int64              `json:"workspace_id"`
	Name        string             `json:"name"`
	Status      string             `json:"status"`
	Subject     string             `json:"subject"`
	FromName    string             `json:"from_name"`
	FromEmail   string             `json:"from_email"`
	SendToAll   bool               `json:"send_to_all"`
	SaveAsDraft bool               `json:"save_as_draft"`
	ScheduledAt pgtype.Timestamptz `json:"scheduled_at"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// Message is one outbound email for a (source, subscriber) pair.
// (WorkspaceID, SubscriberID, SourceType, SourceID) is unique.
type Message struct {
	ID             int64              `json:"id"`
	WorkspaceID    int64              `json:"workspace_id"`
	SubscriberID   int64              `json:"subscriber_id"`
	SourceType     string             `json:"source_type"`
	SourceID       int64              `json:"source_id"`
	RecipientEmail string             `json:"recipient_email"`
	Subject        string             `json:"subject"`
	FromName       string             `json:"from_name"`
	FromEmail      string             `json:"from_email"`
	MessageID      pgtype.Text        `json:"message_id"`
	QueuedAt       pgtype.Timestamptz `json:"queued_at"`
	SentAt         pgtype.Timestamptz `json:"sent_at"`
	FailedAt       pgtype.Timestamptz `json:"failed_at"`
	DelayedSendAt  pgtype.Timestamptz `json:"delayed_send_at"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// CampaignStats summarises message states for one campaign.
type CampaignStats struct {
	Total   int64 `json:"total"`
	Drafts  int64 `json:"drafts"`
	Pending int64 `json:"pending"`
	Sent    int64 `json:"sent"`
	Failed  int64 `json:"failed"`
}

// Timestamptz wraps t as a valid pgtype.Timestamptz.
func Timestamptz(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: true}
}
