package content

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// LocalStore keeps campaign bodies as files under a base directory.
type LocalStore struct {
	basePath string
}

// NewLocalStore creates the base directory if needed.
func NewLocalStore(basePath string) (*LocalStore, error) {
	if err := os.MkdirAll(filepath.Join(basePath, "campaigns"), 0o750); err != nil {
		return nil, fmt.Errorf("content: create base directory: %w", err)
	}
	return &LocalStore{basePath: basePath}, nil
}

func (s *LocalStore) path(campaignID int64) string {
	return filepath.Join(s.basePath, filepath.FromSlash(Key(campaignID)))
}

// Put writes the body through a temp file and rename so readers never see
// a partial body.
func (s *LocalStore) Put(_ context.Context, campaignID int64, body []byte) error {
	finalPath := s.path(campaignID)
	dir := filepath.Dir(finalPath)

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("content: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("content: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("content: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, finalPath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("content: rename temp file: %w", err)
	}
	return nil
}

func (s *LocalStore) Get(_ context.Context, campaignID int64) ([]byte, error) {
	data, err := os.ReadFile(s.path(campaignID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("content: read file: %w", err)
	}
	return data, nil
}

// Delete is idempotent.
func (s *LocalStore) Delete(_ context.Context, campaignID int64) error {
	if err := os.Remove(s.path(campaignID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("content: remove file: %w", err)
	}
	return nil
}
