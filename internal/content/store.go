// Package content stores campaign bodies outside the database.
package content

import (
	"context"
	"errors"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/sungwon/campaign-dispatch/internal/config"
)

// ErrNotFound is returned when a campaign has no stored body.
var ErrNotFound = errors.New("content: not found")

// Store persists campaign bodies keyed by campaign id.
type Store interface {
	Put(ctx context.Context, campaignID int64, body []byte) error
	Get(ctx context.Context, campaignID int64) ([]byte, error)
	Delete(ctx context.Context, campaignID int64) error
}

// Key returns the object key for a campaign body.
func Key(campaignID int64) string {
	return "campaigns/" + strconv.FormatInt(campaignID, 10) + ".html"
}

// New creates a Store from configuration.
// Empty or unknown types fall back to local storage with a warning.
func New(cfg config.ContentConfig, logger zerolog.Logger) (Store, error) {
	switch cfg.Type {
	case "local":
		return NewLocalStore(cfg.Path)
	case "s3":
		return NewS3StoreFromConfig(context.Background(), cfg)
	default:
		logger.Warn().
			Str("type", cfg.Type).
			Msg("unsupported or empty content store type, defaulting to local")
		return NewLocalStore(cfg.Path)
	}
}
