// Package handler is the HTTP front of the ingestion service. It accepts
// index and unindex events, validates them and hands them to the
// publisher; indexing itself happens asynchronously in the indexer.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/ingestion/feed"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/ingestion/publisher"
	apperrors "github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/logger"
	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// MaxBatch bounds the events of one batch request.
const MaxBatch = 1000

type Handler struct {
	publisher *publisher.Publisher
	logger    *slog.Logger
}

func New(pub *publisher.Publisher) *Handler {
	return &Handler{
		publisher: pub,
		logger:    slog.Default().With("component", "ingestion-handler"),
	}
}

// Routes mounts the event endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/events", h.Ingest)
	r.Post("/events/batch", h.IngestBatch)
	r.Delete("/indexes/{name}/documents/{id}", h.Unindex)
}

// Ingest publishes one event and answers 202.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	var event ingestion.IndexEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	resp, err := h.publisher.Publish(r.Context(), &event)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	logger.FromContext(r.Context()).Info("index event accepted",
		"doc_id", resp.DocumentID,
		"action", resp.Action,
	)
	h.writeJSON(w, http.StatusAccepted, resp)
}

type batchRequest struct {
	Events []ingestion.IndexEvent `json:"events"`
}

// IngestBatch publishes {"events": [...]} in one write. A single invalid
// event rejects the whole batch.
func (h *Handler) IngestBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	switch n := len(req.Events); {
	case n == 0:
		h.writeError(w, http.StatusBadRequest, "events must not be empty")
		return
	case n > MaxBatch:
		h.writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("at most %d events per batch", MaxBatch))
		return
	}
	if err := h.publisher.PublishBatch(r.Context(), req.Events); err != nil {
		h.fail(w, r, err)
		return
	}
	logger.FromContext(r.Context()).Info("index events accepted", "count", len(req.Events))
	h.writeJSON(w, http.StatusAccepted, map[string]any{
		"accepted": len(req.Events),
		"status":   "ACCEPTED",
	})
}

// Unindex publishes an unindex event for one document. The index name
// "_all" targets every index.
func (h *Handler) Unindex(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "document id must be an unsigned 32-bit integer")
		return
	}
	name := chi.URLParam(r, "name")
	if name == "_all" {
		name = ""
	}
	events := feed.Unindex(name, []uint32{uint32(id)})
	resp, err := h.publisher.Publish(r.Context(), &events[0])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, resp)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var fields validation.Errors
	if errors.As(err, &fields) {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"detail": err.Error(),
			"fields": fields,
		})
		return
	}
	status := apperrors.HTTPStatusCode(err)
	logger.FromContext(r.Context()).Error("publishing index event failed",
		"error", err,
		"status_code", status,
	)
	h.writeError(w, status, "publishing failed")
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
