package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
)

const subscriberColumns = `s.id, s.workspace_id, s.email, s.first_name, s.last_name,
	s.unsubscribed_at, s.created_at, s.updated_at`

func scanSubscriber(row pgx.Row) (Subscriber, error) {
	var i Subscriber
	err := row.Scan(
		&i.ID,
		&i.WorkspaceID,
		&i.Email,
		&i.FirstName,
		&i.LastName,
		&i.UnsubscribedAt,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

func collectSubscribers(rows pgx.Rows) ([]Subscriber, error) {
	defer rows.Close()
	var items []Subscriber
	for rows.Next() {
		i, err := scanSubscriber(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const upsertSubscriber = `
INSERT INTO subscribers AS s (workspace_id, email, first_name, last_name)
VALUES ($1, $2, $3, $4)
ON CONFLICT (workspace_id, email) DO UPDATE
SET first_name = EXCLUDED.first_name,
    last_name  = EXCLUDED.last_name,
    updated_at = now()
RETURNING ` + subscriberColumns

type UpsertSubscriberParams struct {
	WorkspaceID int64  `json:"workspace_id"`
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
}

func (q *Queries) UpsertSubscriber(ctx context.Context, arg UpsertSubscriberParams) (Subscriber, error) {
	row := q.db.QueryRow(ctx, upsertSubscriber, arg.WorkspaceID, arg.Email, arg.FirstName, arg.LastName)
	return scanSubscriber(row)
}

const unsubscribeSubscriber = `
UPDATE subscribers SET unsubscribed_at = now(), updated_at = now()
WHERE id = $1 AND unsubscribed_at IS NULL`

func (q *Queries) UnsubscribeSubscriber(ctx context.Context, id int64) error {
	_, err := q.db.Exec(ctx, unsubscribeSubscriber, id)
	return err
}

const listWorkspaceSubscribersAfter = `
SELECT ` + subscriberColumns + `
FROM subscribers s
WHERE s.workspace_id = $1
  AND s.unsubscribed_at IS NULL
  AND s.id > $2
ORDER BY s.id
LIMIT $3`

type ListWorkspaceSubscribersAfterParams struct {
	WorkspaceID int64 `json:"workspace_id"`
	AfterID     int64 `json:"after_id"`
	Limit       int32 `json:"limit"`
}

// ListWorkspaceSubscribersAfter returns the next keyset page of eligible
// subscribers of a workspace, ordered by ascending id.
func (q *Queries) ListWorkspaceSubscribersAfter(ctx context.Context, arg ListWorkspaceSubscribersAfterParams) ([]Subscriber, error) {
	rows, err := q.db.Query(ctx, listWorkspaceSubscribersAfter, arg.WorkspaceID, arg.AfterID, arg.Limit)
	if err != nil {
		return nil, err
	}
	return collectSubscribers(rows)
}

const listTagSubscribersAfter = `
SELECT ` + subscriberColumns + `
FROM subscribers s
JOIN tag_subscriber ts ON ts.subscriber_id = s.id
WHERE ts.tag_id = $1
  AND s.workspace_id = $2
  AND s.unsubscribed_at IS NULL
  AND s.id > $3
ORDER BY s.id
LIMIT $4`

type ListTagSubscribersAfterParams struct {
	TagID       int64 `json:"tag_id"`
	WorkspaceID int64 `json:"workspace_id"`
	AfterID     int64 `json:"after_id"`
	Limit       int32 `json:"limit"`
}

// ListTagSubscribersAfter returns the next keyset page of eligible members of
// a tag that belong to the given workspace, ordered by ascending subscriber id.
func (q *Queries) ListTagSubscribersAfter(ctx context.Context, arg ListTagSubscribersAfterParams) ([]Subscriber, error) {
	rows, err := q.db.Query(ctx, listTagSubscribersAfter, arg.TagID, arg.WorkspaceID, arg.AfterID, arg.Limit)
	if err != nil {
		return nil, err
	}
	return collectSubscribers(rows)
}

const upsertTag = `
INSERT INTO tags (workspace_id, name) VALUES ($1, $2)
ON CONFLICT (workspace_id, name) DO UPDATE SET name = EXCLUDED.name
RETURNING id, workspace_id, name, created_at`

type UpsertTagParams struct {
	WorkspaceID int64  `json:"workspace_id"`
	Name        string `json:"name"`
}

func (q *Queries) UpsertTag(ctx context.Context, arg UpsertTagParams) (Tag, error) {
	row := q.db.QueryRow(ctx, upsertTag, arg.WorkspaceID, arg.Name)
	var i Tag
	err := row.Scan(&i.ID, &i.WorkspaceID, &i.Name, &i.CreatedAt)
	return i, err
}

const attachSubscriberTag = `
INSERT INTO tag_subscriber (tag_id, subscriber_id) VALUES ($1, $2)
ON CONFLICT DO NOTHING`

type AttachSubscriberTagParams struct {
	TagID        int64 `json:"tag_id"`
	SubscriberID int64 `json:"subscriber_id"`
}

func (q *Queries) AttachSubscriberTag(ctx context.Context, arg AttachSubscriberTagParams) error {
	_, err := q.db.Exec(ctx, attachSubscriberTag, arg.TagID, arg.SubscriberID)
	return err
}
