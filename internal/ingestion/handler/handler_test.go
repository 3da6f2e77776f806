package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/kafka"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct{ events []kafka.Event }

func (r *recorder) Publish(_ context.Context, e kafka.Event) error {
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) PublishBatch(_ context.Context, es []kafka.Event) error {
	r.events = append(r.events, es...)
	return nil
}

func serve(h *Handler, method, path, body string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Route("/api/v1", h.Routes)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func post(h *Handler, body string) *httptest.ResponseRecorder {
	return serve(h, http.MethodPost, "/api/v1/events", body)
}

func TestIngestAccepted(t *testing.T) {
	prod := &recorder{}
	h := New(publisher.New(prod))

	rec := post(h, `{"action":"index","document_id":5,"start":"2024-01-01T09:00:00Z","recurrence":"RRULE:FREQ=DAILY;COUNT=2"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Len(t, prod.events, 1)
	assert.Contains(t, rec.Body.String(), `"document_id":5`)
}

func TestIngestValidationFailure(t *testing.T) {
	prod := &recorder{}
	h := New(publisher.New(prod))

	rec := post(h, `{"action":"index","document_id":5}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "validation failed", body.Error)
	assert.Contains(t, body.Fields, "start")
	assert.Empty(t, prod.events)
}

func TestIngestMalformedJSON(t *testing.T) {
	rec := post(New(publisher.New(&recorder{})), `{"action":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestBatch(t *testing.T) {
	prod := &recorder{}
	h := New(publisher.New(prod))

	rec := serve(h, http.MethodPost, "/api/v1/events/batch", `{"events":[
		{"action":"index","document_id":1,"start":"2024-01-01T09:00:00Z"},
		{"action":"unindex","document_id":2}
	]}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"accepted":2`)
	require.Len(t, prod.events, 2)
	assert.Equal(t, "1", prod.events[0].Key)
	assert.Equal(t, "2", prod.events[1].Key)
}

func TestIngestBatchRejectsWhole(t *testing.T) {
	prod := &recorder{}
	h := New(publisher.New(prod))

	rec := serve(h, http.MethodPost, "/api/v1/events/batch", `{"events":[
		{"action":"index","document_id":1,"start":"2024-01-01T09:00:00Z"},
		{"action":"index","document_id":2}
	]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, prod.events)

	rec = serve(h, http.MethodPost, "/api/v1/events/batch", `{"events":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnindexEndpoint(t *testing.T) {
	prod := &recorder{}
	h := New(publisher.New(prod))

	rec := serve(h, http.MethodDelete, "/api/v1/indexes/shifts/documents/42", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	rec = serve(h, http.MethodDelete, "/api/v1/indexes/_all/documents/43", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, prod.events, 2)
	assert.Equal(t, "42", prod.events[0].Key)

	rec = serve(h, http.MethodDelete, "/api/v1/indexes/shifts/documents/x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
