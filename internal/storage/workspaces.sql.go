package storage

import "context"

const createWorkspace = `
INSERT INTO workspaces (name) VALUES ($1)
RETURNING id, name, created_at`

func (q *Queries) CreateWorkspace(ctx context.Context, name string) (Workspace, error) {
	row := q.db.QueryRow(ctx, createWorkspace, name)
	var i Workspace
	err := row.Scan(&i.ID, &i.Name, &i.CreatedAt)
	return i, err
}

const getWorkspaceByName = `
SELECT id, name, created_at FROM workspaces WHERE name = $1`

func (q *Queries) GetWorkspaceByName(ctx context.Context, name string) (Workspace, error) {
	row := q.db.QueryRow(ctx, getWorkspaceByName, name)
	var i Workspace
	err := row.Scan(&i.ID, &i.Name, &i.CreatedAt)
	return i, err
}
