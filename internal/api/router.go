package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Aman-CERP/amandrive/internal/async"
	"github.com/Aman-CERP/amandrive/internal/engine"
	"github.com/Aman-CERP/amandrive/internal/index"
	"github.com/Aman-CERP/amandrive/internal/search"
)

// Service is the part of the engine the HTTP layer calls.
type Service interface {
	Search(ctx context.Context, req search.Request) (*search.Response, error)
	NotifyChanged(ctx context.Context, ids ...string) (int, error)
	NotifyDeleted(ctx context.Context, ids ...string) error
	NotifyOwnerPurged(ctx context.Context, ownerID string) error
	StartReindex(ctx context.Context) error
	ReindexProgress() async.ProgressSnapshot
	CheckConsistency(ctx context.Context) (bool, error)
	Audit(ctx context.Context) (*index.AuditResult, error)
	Stats() (*engine.Stats, error)
}

var _ Service = (*engine.Engine)(nil)

// Handler serves the HTTP API.
type Handler struct {
	svc    Service
	logger *slog.Logger
}

// NewRouter returns the chi router for svc with request logging and
// metrics middleware installed.
func NewRouter(svc Service, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{svc: svc, logger: logger}

	r := chi.NewRouter()
	r.Use(Recoverer(logger))
	r.Use(RequestLogger(logger))
	r.Use(MetricsMiddleware())

	r.Get("/health", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/search", h.handleSearch)
		r.Get("/stats", h.handleStats)
		r.Route("/index", func(r chi.Router) {
			r.Post("/changed", h.handleChanged)
			r.Post("/deleted", h.handleDeleted)
			r.Post("/purge", h.handlePurge)
			r.Post("/reindex", h.handleStartReindex)
			r.Get("/reindex", h.handleReindexStatus)
			r.Get("/consistency", h.handleConsistency)
			r.Get("/audit", h.handleAudit)
		})
	})
	return r
}
