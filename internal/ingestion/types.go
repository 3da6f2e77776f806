// Package ingestion defines the Kafka event schemas that carry document
// changes to the indexer and cache invalidations to the searchers.
package ingestion

import (
	"bytes"
	"encoding/json"
	"time"
)

// Event actions.
const (
	ActionIndex   = "index"
	ActionUnindex = "unindex"
)

// IndexEvent asks the indexer to index or unindex one document. An empty
// Index targets every index of the catalog. Recurrence holds either a step
// in minutes or a rule payload, depending on the index strategy.
type IndexEvent struct {
	Action     string          `json:"action"`
	Index      string          `json:"index,omitempty"`
	DocumentID uint32          `json:"document_id"`
	Start      string          `json:"start,omitempty"`
	Recurrence json.RawMessage `json:"recurrence,omitempty"`
	Until      string          `json:"until,omitempty"`
	EmittedAt  time.Time       `json:"emitted_at"`
}

// IndexEvent reads as a document.
func (e IndexEvent) StartValue() (any, bool) { return text(e.Start) }
func (e IndexEvent) UntilValue() (any, bool) { return text(e.Until) }

// RecurrenceValue decodes the raw payload. Numbers become json.Number,
// strings stay strings and objects or arrays are passed through as JSON.
func (e IndexEvent) RecurrenceValue() (any, bool) {
	raw := bytes.TrimSpace(e.Recurrence)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, false
	}
	if raw[0] == '[' || raw[0] == '{' {
		return json.RawMessage(raw), true
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return json.RawMessage(raw), true
	}
	if s, ok := v.(string); ok {
		return text(s)
	}
	return v, true
}

// Document adapts the event to accessor.DocumentAccessor.
func (e IndexEvent) Document() Document {
	return Document{event: e}
}

// Document is the accessor view of an IndexEvent.
type Document struct {
	event IndexEvent
}

func (d Document) Start() (any, bool)      { return d.event.StartValue() }
func (d Document) Recurrence() (any, bool) { return d.event.RecurrenceValue() }
func (d Document) Until() (any, bool)      { return d.event.UntilValue() }

func text(s string) (any, bool) {
	if s == "" {
		return nil, false
	}
	return s, true
}

// CacheInvalidateEvent tells searchers that the named indexes changed.
type CacheInvalidateEvent struct {
	Indexes   []string  `json:"indexes"`
	Version   uint64    `json:"version"`
	EmittedAt time.Time `json:"emitted_at"`
}

// PublishResponse is returned to HTTP callers once an event is accepted.
type PublishResponse struct {
	DocumentID uint32 `json:"document_id"`
	Action     string `json:"action"`
	Status     string `json:"status"`
}
