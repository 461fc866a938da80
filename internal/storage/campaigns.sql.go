package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const campaignColumns = `id, workspace_id, name, status, subject, from_name, from_email,
	send_to_all, save_as_draft, scheduled_at, created_at, updated_at`

func scanCampaign(row pgx.Row) (Campaign, error) {
	var i Campaign
	err := row.Scan(
		&i.ID,
		&i.WorkspaceID,
		&i.Name,
		&i.Status,
		&i.Subject,
		&i.FromName,
		&i.FromEmail,
		&i.SendToAll,
		&i.SaveAsDraft,
		&i.ScheduledAt,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createCampaign = `
INSERT INTO campaigns (workspace_id, name, status, subject, from_name, from_email,
	send_to_all, save_as_draft, scheduled_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING ` + campaignColumns

type CreateCampaignParams struct {
	WorkspaceID int64              `json:"workspace_id"`
	Name        string             `json:"name"`
	Status      string             `json:"status"`
	Subject     string             `json:"subject"`
	FromName    string             `json:"from_name"`
	FromEmail   string             `json:"from_email"`
	SendToAll   bool               `json:"send_to_all"`
	SaveAsDraft bool               `json:"save_as_draft"`
	ScheduledAt pgtype.Timestamptz `json:"scheduled_at"`
}

func (q *Queries) CreateCampaign(ctx context.Context, arg CreateCampaignParams) (Campaign, error) {
	row := q.db.QueryRow(ctx, createCampaign,
		arg.WorkspaceID,
		arg.Name,
		arg.Status,
		arg.Subject,
		arg.FromName,
		arg.FromEmail,
		arg.SendToAll,
		arg.SaveAsDraft,
		arg.ScheduledAt,
	)
	return scanCampaign(row)
}

const getCampaign = `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`

func (q *Queries) GetCampaign(ctx context.Context, id int64) (Campaign, error) {
	return scanCampaign(q.db.QueryRow(ctx, getCampaign, id))
}

const getWorkspaceCampaign = `SELECT ` + campaignColumns + `
FROM campaigns WHERE id = $1 AND workspace_id = $2`

type GetWorkspaceCampaignParams struct {
	ID          int64 `json:"id"`
	WorkspaceID int64 `json:"workspace_id"`
}

func (q *Queries) GetWorkspaceCampaign(ctx context.Context, arg GetWorkspaceCampaignParams) (Campaign, error) {
	return scanCampaign(q.db.QueryRow(ctx, getWorkspaceCampaign, arg.ID, arg.WorkspaceID))
}

const listCampaignTagIDs = `
SELECT ct.tag_id
FROM campaign_tags ct
JOIN campaigns c ON c.id = ct.campaign_id
JOIN tags t ON t.id = ct.tag_id AND t.workspace_id = c.workspace_id
WHERE ct.campaign_id = $1
ORDER BY ct.tag_id`

// ListCampaignTagIDs returns the campaign's tags that belong to the
// campaign's own workspace.
func (q *Queries) ListCampaignTagIDs(ctx context.Context, campaignID int64) ([]int64, error) {
	rows, err := q.db.Query(ctx, listCampaignTagIDs, campaignID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

const attachCampaignTag = `
INSERT INTO campaign_tags (campaign_id, tag_id) VALUES ($1, $2)
ON CONFLICT DO NOTHING`

type AttachCampaignTagParams struct {
	CampaignID int64 `json:"campaign_id"`
	TagID      int64 `json:"tag_id"`
}

func (q *Queries) AttachCampaignTag(ctx context.Context, arg AttachCampaignTagParams) error {
	_, err := q.db.Exec(ctx, attachCampaignTag, arg.CampaignID, arg.TagID)
	return err
}

const updateCampaignStatus = `
UPDATE campaigns SET status = $2, updated_at = now()
WHERE id = $1
RETURNING ` + campaignColumns

type UpdateCampaignStatusParams struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

func (q *Queries) UpdateCampaignStatus(ctx context.Context, arg UpdateCampaignStatusParams) (Campaign, error) {
	return scanCampaign(q.db.QueryRow(ctx, updateCampaignStatus, arg.ID, arg.Status))
}

const listDueCampaigns = `
SELECT ` + campaignColumns + `
FROM campaigns
WHERE status IN ('queued', 'sending') AND scheduled_at IS NOT NULL AND scheduled_at <= $1
ORDER BY scheduled_at, id`

// ListDueCampaigns returns scheduled campaigns whose time has passed and
// that are queued or were left in sending by an incomplete run.
func (q *Queries) ListDueCampaigns(ctx context.Context, now time.Time) ([]Campaign, error) {
	rows, err := q.db.Query(ctx, listDueCampaigns, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Campaign
	for rows.Next() {
		i, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}
