// Package handler serves the query API: boolean and range queries across
// indexes, index introspection and query cache management.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/temporal"
	apperrors "github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/resilience"
	"github.com/go-chi/chi/v5"
	"github.com/samber/mo"
)

// Catalog is what the handler needs from catalog.Catalog.
type Catalog interface {
	Route(name string) (*indexer.Engine, error)
	Engines() []*indexer.Engine
	Version() uint64
}

type Handler struct {
	catalog  Catalog
	executor *executor.MultiExecutor
	cache    *cache.QueryCache
	metrics  *metrics.Metrics
	timeout  time.Duration
	logger   *slog.Logger
}

// New builds a handler. queryCache and m may be nil.
func New(cat Catalog, exec *executor.MultiExecutor, queryCache *cache.QueryCache, m *metrics.Metrics, timeout time.Duration) *Handler {
	return &Handler{
		catalog:  cat,
		executor: exec,
		cache:    queryCache,
		metrics:  m,
		timeout:  timeout,
		logger:   slog.Default().With("component", "query-handler"),
	}
}

// Query evaluates a parser.Request posted as JSON.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	var req parser.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	planned, err := h.executor.Plan(req)
	if err != nil {
		h.metrics.Query(strings.Join(req.Indexes, ","), "invalid", "error", time.Since(start).Seconds(), "none", 0)
		h.writeAppError(w, err)
		return
	}
	indexLabel, mode := labels(planned)
	candidates := executor.Candidates(req)
	ctx = logger.WithAttrs(ctx, "indexes", indexLabel, "mode", mode)
	log := logger.FromContext(ctx)

	var result *executor.Result
	cacheStatus := "disabled"
	if h.cache != nil {
		key := cache.BuildKey(planned, candidates, h.catalog.Version())
		var hit bool
		result, hit, err = h.cache.GetOrCompute(ctx, key, func() (*executor.Result, error) {
			return h.run(ctx, planned, candidates)
		})
		cacheStatus = "miss"
		if hit {
			cacheStatus = "hit"
		}
		if err == nil {
			h.metrics.Cache(hit)
		}
	} else {
		result, err = h.run(ctx, planned, candidates)
	}

	elapsed := time.Since(start)
	if err != nil {
		h.metrics.Query(indexLabel, mode, "error", elapsed.Seconds(), cacheStatus, 0)
		log.Error("query execution failed", "error", err)
		if errors.Is(err, context.DeadlineExceeded) {
			err = apperrors.New(apperrors.ErrTimeout, http.StatusGatewayTimeout, "query timed out")
		}
		h.writeAppError(w, err)
		return
	}

	outcome := "ok"
	if result.Total == 0 {
		outcome = "empty"
	}
	h.metrics.Query(indexLabel, mode, outcome, elapsed.Seconds(), cacheStatus, result.Total)
	log.Info("query completed",
		"total", result.Total,
		"cache", cacheStatus,
		"latency_ms", elapsed.Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) run(ctx context.Context, planned []executor.Planned, candidates mo.Option[index.PostingSet]) (*executor.Result, error) {
	return resilience.WithTimeout(ctx, h.timeout, "query", func(ctx context.Context) (*executor.Result, error) {
		return h.executor.Run(ctx, planned, candidates)
	})
}

func labels(planned []executor.Planned) (indexes, mode string) {
	names := make([]string, 0, len(planned))
	mode = parser.ModePoint.String()
	for _, p := range planned {
		names = append(names, p.Plan.Index)
		if p.Plan.Mode == parser.ModeRange {
			mode = parser.ModeRange.String()
		}
	}
	return strings.Join(names, ","), mode
}

// Indexes lists the stats of every index.
func (h *Handler) Indexes(w http.ResponseWriter, r *http.Request) {
	engines := h.catalog.Engines()
	stats := make([]indexer.Stats, 0, len(engines))
	for _, e := range engines {
		stats = append(stats, e.Stats())
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"indexes": stats})
}

func (h *Handler) IndexStats(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.route(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, engine.Stats())
}

// Document returns the occurrence keys of one document.
func (h *Handler) Document(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.route(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "document id must be an unsigned 32-bit integer")
		return
	}
	keys, found := engine.Entry(uint32(id))
	if !found {
		h.writeAppError(w, apperrors.Newf(apperrors.ErrDocumentNotFound, http.StatusNotFound, "document %d is not in index %s", id, engine.Name()))
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"index":       engine.Name(),
		"document_id": uint32(id),
		"keys":        keys,
		"occurrences": occurrences(keys.All()),
	})
}

// Keys lists the distinct occurrence keys, optionally bounded by the min
// and max query parameters.
func (h *Handler) Keys(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.route(w, r)
	if !ok {
		return
	}
	norm := engine.Normalizer()
	bound := func(name string) (mo.Option[temporal.Key], error) {
		raw := r.URL.Query().Get(name)
		if raw == "" {
			return mo.None[temporal.Key](), nil
		}
		k, err := norm.Key(raw)
		if err != nil {
			return mo.None[temporal.Key](), err
		}
		return mo.Some(k), nil
	}
	lo, err := bound("min")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("min: %v", err))
		return
	}
	hi, err := bound("max")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("max: %v", err))
		return
	}
	keys := engine.UniqueKeys(lo, hi)
	h.writeJSON(w, http.StatusOK, map[string]any{
		"index": engine.Name(),
		"keys":  keys,
		"total": len(keys),
	})
}

func occurrences(seq iter.Seq[uint32]) []string {
	out := []string{}
	for k := range seq {
		out = append(out, temporal.Key(k).String())
	}
	return out
}

func (h *Handler) route(w http.ResponseWriter, r *http.Request) (*indexer.Engine, bool) {
	engine, err := h.catalog.Route(chi.URLParam(r, "name"))
	if err != nil {
		h.writeAppError(w, err)
		return nil, false
	}
	return engine, true
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
		"circuit":  h.cache.Circuit().String(),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}

	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) writeAppError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	message := http.StatusText(status)
	if status < http.StatusInternalServerError {
		message = err.Error()
	}
	h.writeError(w, status, message)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// Resolver adapts the catalog lookup to the executor.
func Resolver(cat Catalog) executor.Resolver {
	return func(name string) (executor.IndexSource, error) {
		engine, err := cat.Route(name)
		if err != nil {
			return nil, err
		}
		return engine, nil
	}
}
