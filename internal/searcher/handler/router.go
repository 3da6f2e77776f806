package handler

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// NewRouter mounts the query API, health probes and, when m is set, the
// scrape endpoint. checker may be nil.
func NewRouter(h *Handler, checker *health.Checker, m *metrics.Metrics, timeout time.Duration) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Metrics(m))
	if timeout > 0 {
		r.Use(chimw.Timeout(timeout))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/query", h.Query)
		r.Get("/indexes", h.Indexes)
		r.Get("/indexes/{name}/stats", h.IndexStats)
		r.Get("/indexes/{name}/keys", h.Keys)
		r.Get("/indexes/{name}/documents/{id}", h.Document)
		r.Get("/cache/stats", h.CacheStats)
		r.Post("/cache/invalidate", h.CacheInvalidate)
	})
	if checker != nil {
		r.Get("/health/live", checker.LiveHandler())
		r.Get("/health/ready", checker.ReadyHandler())
	}
	if m != nil {
		r.Handle("/metrics", metrics.Handler())
	}
	return r
}
