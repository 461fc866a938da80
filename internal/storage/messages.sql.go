package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const messageColumns = `id, workspace_id, subscriber_id, source_type, source_id, recipient_email,
	subject, from_name, from_email, message_id, queued_at, sent_at, failed_at,
	delayed_send_at, created_at, updated_at`

func scanMessage(row pgx.Row) (Message, error) {
	var i Message
	err := row.Scan(
		&i.ID,
		&i.WorkspaceID,
		&i.SubscriberID,
		&i.SourceType,
		&i.SourceID,
		&i.RecipientEmail,
		&i.Subject,
		&i.FromName,
		&i.FromEmail,
		&i.MessageID,
		&i.QueuedAt,
		&i.SentAt,
		&i.FailedAt,
		&i.DelayedSendAt,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

type InsertMessageParams struct {
	WorkspaceID    int64              `json:"workspace_id"`
	SubscriberID   int64              `json:"subscriber_id"`
	SourceType     string             `json:"source_type"`
	SourceID       int64              `json:"source_id"`
	RecipientEmail string             `json:"recipient_email"`
	Subject        string             `json:"subject"`
	FromName       string             `json:"from_name"`
	FromEmail      string             `json:"from_email"`
	QueuedAt       pgtype.Timestamptz `json:"queued_at"`
	DelayedSendAt  pgtype.Timestamptz `json:"delayed_send_at"`
}

func (arg InsertMessageParams) values() []interface{} {
	return []interface{}{
		arg.WorkspaceID,
		arg.SubscriberID,
		arg.SourceType,
		arg.SourceID,
		arg.RecipientEmail,
		arg.Subject,
		arg.FromName,
		arg.FromEmail,
		arg.QueuedAt,
		arg.DelayedSendAt,
	}
}

const insertDraftMessage = `
INSERT INTO messages (workspace_id, subscriber_id, source_type, source_id, recipient_email,
	subject, from_name, from_email, queued_at, delayed_send_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (workspace_id, subscriber_id, source_type, source_id) DO NOTHING
RETURNING ` + messageColumns

// InsertDraftMessage inserts a message unless one already exists for the same
// idempotency key, in which case it returns pgx.ErrNoRows.
func (q *Queries) InsertDraftMessage(ctx context.Context, arg InsertMessageParams) (Message, error) {
	return scanMessage(q.db.QueryRow(ctx, insertDraftMessage, arg.values()...))
}

const insertMessage = `
INSERT INTO messages (workspace_id, subscriber_id, source_type, source_id, recipient_email,
	subject, from_name, from_email, queued_at, delayed_send_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING ` + messageColumns

// InsertMessage inserts a message. A concurrent insert for the same key fails
// with a unique violation (see IsUniqueViolation).
func (q *Queries) InsertMessage(ctx context.Context, arg InsertMessageParams) (Message, error) {
	return scanMessage(q.db.QueryRow(ctx, insertMessage, arg.values()...))
}

const findMessage = `
SELECT ` + messageColumns + `
FROM messages
WHERE workspace_id = $1 AND subscriber_id = $2 AND source_type = $3 AND source_id = $4`

type FindMessageParams struct {
	WorkspaceID  int64  `json:"workspace_id"`
	SubscriberID int64  `json:"subscriber_id"`
	SourceType   string `json:"source_type"`
	SourceID     int64  `json:"source_id"`
}

func (q *Queries) FindMessage(ctx context.Context, arg FindMessageParams) (Message, error) {
	return scanMessage(q.db.QueryRow(ctx, findMessage, arg.WorkspaceID, arg.SubscriberID, arg.SourceType, arg.SourceID))
}

const getMessage = `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`

func (q *Queries) GetMessage(ctx context.Context, id int64) (Message, error) {
	return scanMessage(q.db.QueryRow(ctx, getMessage, id))
}

const deleteMessage = `DELETE FROM messages WHERE id = $1`

func (q *Queries) DeleteMessage(ctx context.Context, id int64) error {
	_, err := q.db.Exec(ctx, deleteMessage, id)
	return err
}

type MarkMessageParams struct {
	ID        int64  `json:"id"`
	MessageID string `json:"message_id"`
}

const markMessageSent = `
UPDATE messages SET message_id = $2, sent_at = now(), failed_at = NULL, updated_at = now()
WHERE id = $1`

func (q *Queries) MarkMessageSent(ctx context.Context, arg MarkMessageParams) error {
	_, err := q.db.Exec(ctx, markMessageSent, arg.ID, arg.MessageID)
	return err
}

const markMessageFailed = `
UPDATE messages SET message_id = $2, failed_at = now(), updated_at = now()
WHERE id = $1`

func (q *Queries) MarkMessageFailed(ctx context.Context, arg MarkMessageParams) error {
	_, err := q.db.Exec(ctx, markMessageFailed, arg.ID, arg.MessageID)
	return err
}

const getCampaignStats = `
SELECT
	count(*),
	count(*) FILTER (WHERE queued_at IS NOT NULL AND sent_at IS NULL AND delayed_send_at IS NULL),
	count(*) FILTER (WHERE delayed_send_at IS NOT NULL AND sent_at IS NULL AND failed_at IS NULL),
	count(*) FILTER (WHERE sent_at IS NOT NULL),
	count(*) FILTER (WHERE failed_at IS NOT NULL AND sent_at IS NULL)
FROM messages
WHERE source_type = 'Campaign' AND source_id = $1`

func (q *Queries) GetCampaignStats(ctx context.Context, campaignID int64) (CampaignStats, error) {
	var i CampaignStats
	err := q.db.QueryRow(ctx, getCampaignStats, campaignID).Scan(
		&i.Total,
		&i.Drafts,
		&i.Pending,
		&i.Sent,
		&i.Failed,
	)
	return i, err
}
