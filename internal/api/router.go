package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/sungwon/campaign-dispatch/internal/auth"
	"github.com/sungwon/campaign-dispatch/internal/content"
	"github.com/sungwon/campaign-dispatch/internal/metrics"
	"github.com/sungwon/campaign-dispatch/internal/queue"
	"github.com/sungwon/campaign-dispatch/internal/storage"
)

// Deps are the collaborators the HTTP API is built from.
// DLQ is optional; when nil, DLQ reprocess endpoints are not registered.
type Deps struct {
	Queries storage.Querier
	DB      Pinger
	Runner  Dispatcher
	Content content.Store
	DLQ     queue.DeadLetterQueue
	JWT     *auth.JWTService
}

// NewRouter creates a chi.Mux with all routes, middleware, and handlers configured.
func NewRouter(deps Deps, log zerolog.Logger) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(CorrelationIDMiddleware(log))
	r.Use(LoggingMiddleware(log))
	r.Use(RecoverMiddleware(log))

	// Health and metrics endpoints (no auth required)
	r.Get("/healthz", HealthzHandler())
	r.Get("/readyz", ReadyzHandler(deps.DB))
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.BearerAuth(deps.JWT))

		r.Route("/campaigns/{id}", func(r chi.Router) {
			r.Post("/dispatch", DispatchCampaignHandler(deps.Queries, deps.Runner))
			r.Get("/stats", CampaignStatsHandler(deps.Queries))
			r.Put("/content", PutContentHandler(deps.Queries, deps.Content))
			r.Get("/content", GetContentHandler(deps.Queries, deps.Content))
		})

		if deps.DLQ != nil {
			r.Post("/dlq/reprocess", DLQReprocessHandler(deps.DLQ))
		}
	})

	return r
}
