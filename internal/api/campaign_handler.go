package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/sungwon/campaign-dispatch/internal/auth"
	"github.com/sungwon/campaign-dispatch/internal/content"
	"github.com/sungwon/campaign-dispatch/internal/dispatch"
	"github.com/sungwon/campaign-dispatch/internal/logger"
	"github.com/sungwon/campaign-dispatch/internal/storage"
)

// maxContentBytes bounds campaign bodies accepted over the API.
const maxContentBytes = 10 << 20

// Dispatcher runs a campaign through the dispatch pipeline.
type Dispatcher interface {
	Run(ctx context.Context, campaign *storage.Campaign) (dispatch.Summary, error)
}

type campaignStatsResponse struct {
	CampaignID int64                 `json:"campaign_id"`
	Status     string                `json:"status"`
	Stats      storage.CampaignStats `json:"stats"`
}

type contentResponse struct {
	CampaignID int64  `json:"campaign_id"`
	Key        string `json:"key"`
	Bytes      int    `json:"bytes"`
}

// loadCampaign resolves the {id} parameter to a campaign owned by the
// authenticated workspace, writing the error response when it cannot.
func loadCampaign(w http.ResponseWriter, r *http.Request, queries storage.Querier) (*storage.Campaign, bool) {
	workspaceID := auth.WorkspaceFromContext(r.Context())
	if workspaceID == 0 {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}

	id, ok := parseIDParam(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid campaign id")
		return nil, false
	}

	campaign, err := queries.GetWorkspaceCampaign(r.Context(), storage.GetWorkspaceCampaignParams{
		ID:          id,
		WorkspaceID: workspaceID,
	})
	if err != nil {
		if storage.IsNotFound(err) {
			respondError(w, http.StatusNotFound, "campaign not found")
			return nil, false
		}
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Int64("campaign_id", id).Msg("failed to load campaign")
		respondError(w, http.StatusInternalServerError, "internal server error")
		return nil, false
	}
	return &campaign, true
}

type dispatchIncompleteResponse struct {
	Error   string           `json:"error"`
	Summary dispatch.Summary `json:"summary"`
}

// DispatchCampaignHandler handles POST /api/v1/campaigns/{id}/dispatch.
// It runs the campaign synchronously and returns the run summary. A run with
// failed subscribers answers 503 and leaves the campaign resumable.
func DispatchCampaignHandler(queries storage.Querier, runner Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		campaign, ok := loadCampaign(w, r, queries)
		if !ok {
			return
		}

		log := logger.FromContext(r.Context())
		summary, err := runner.Run(r.Context(), campaign)
		if err != nil {
			if errors.Is(err, dispatch.ErrNotDispatchable) {
				respondError(w, http.StatusConflict, "campaign is "+campaign.Status)
				return
			}
			if errors.Is(err, dispatch.ErrIncomplete) {
				log.Warn().Err(err).
					Int64("campaign_id", campaign.ID).
					Int("failed", summary.Failed).
					Msg("campaign dispatch incomplete")
				w.Header().Set("Retry-After", "30")
				respondJSON(w, http.StatusServiceUnavailable, dispatchIncompleteResponse{
					Error:   "dispatch incomplete, retry to resume",
					Summary: summary,
				})
				return
			}
			log.Error().Err(err).
				Int64("campaign_id", campaign.ID).
				Int("created", summary.Created).
				Msg("campaign dispatch failed")
			respondError(w, http.StatusInternalServerError, "dispatch failed")
			return
		}

		respondJSON(w, http.StatusOK, summary)
	}
}

// CampaignStatsHandler handles GET /api/v1/campaigns/{id}/stats.
func CampaignStatsHandler(queries storage.Querier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		campaign, ok := loadCampaign(w, r, queries)
		if !ok {
			return
		}

		stats, err := queries.GetCampaignStats(r.Context(), campaign.ID)
		if err != nil {
			log := logger.FromContext(r.Context())
			log.Error().Err(err).Int64("campaign_id", campaign.ID).Msg("failed to load campaign stats")
			respondError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		respondJSON(w, http.StatusOK, campaignStatsResponse{
			CampaignID: campaign.ID,
			Status:     campaign.Status,
			Stats:      stats,
		})
	}
}

// PutContentHandler handles PUT /api/v1/campaigns/{id}/content.
// The request body is stored verbatim as the campaign's HTML body.
func PutContentHandler(queries storage.Querier, store content.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		campaign, ok := loadCampaign(w, r, queries)
		if !ok {
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxContentBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				respondError(w, http.StatusRequestEntityTooLarge, "content too large")
				return
			}
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if len(body) == 0 {
			respondError(w, http.StatusBadRequest, "content must not be empty")
			return
		}

		if err := store.Put(r.Context(), campaign.ID, body); err != nil {
			log := logger.FromContext(r.Context())
			log.Error().Err(err).Int64("campaign_id", campaign.ID).Msg("failed to store campaign content")
			respondError(w, http.StatusInternalServerError, "failed to store content")
			return
		}

		respondJSON(w, http.StatusOK, contentResponse{
			CampaignID: campaign.ID,
			Key:        content.Key(campaign.ID),
			Bytes:      len(body),
		})
	}
}

// GetContentHandler handles GET /api/v1/campaigns/{id}/content.
func GetContentHandler(queries storage.Querier, store content.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		campaign, ok := loadCampaign(w, r, queries)
		if !ok {
			return
		}

		body, err := store.Get(r.Context(), campaign.ID)
		if err != nil {
			if errors.Is(err, content.ErrNotFound) {
				respondError(w, http.StatusNotFound, "content not found")
				return
			}
			log := logger.FromContext(r.Context())
			log.Error().Err(err).Int64("campaign_id", campaign.ID).Msg("failed to load campaign content")
			respondError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}
}
