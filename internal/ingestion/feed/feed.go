// Package feed turns calendar files into index events.
package feed

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/accessor"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/ingestion"
)

// FromDocument builds an index event for doc. Times are sent in RFC 3339 so
// the receiving index does not reinterpret their zone.
func FromDocument(indexName string, docID uint32, doc accessor.DocumentAccessor) (ingestion.IndexEvent, error) {
	event := ingestion.IndexEvent{
		Action:     ingestion.ActionIndex,
		Index:      indexName,
		DocumentID: docID,
	}
	if v, ok := doc.Start(); ok {
		s, err := text(v)
		if err != nil {
			return event, fmt.Errorf("start: %w", err)
		}
		event.Start = s
	}
	if v, ok := doc.Until(); ok {
		s, err := text(v)
		if err != nil {
			return event, fmt.Errorf("until: %w", err)
		}
		event.Until = s
	}
	if v, ok := doc.Recurrence(); ok {
		raw, err := json.Marshal(v)
		if err != nil {
			return event, fmt.Errorf("recurrence: %w", err)
		}
		event.Recurrence = raw
	}
	return event, nil
}

func text(v any) (string, error) {
	switch t := v.(type) {
	case time.Time:
		return t.Format(time.RFC3339), nil
	case *time.Time:
		return t.Format(time.RFC3339), nil
	case string:
		return t, nil
	case fmt.Stringer:
		return t.String(), nil
	default:
		return "", fmt.Errorf("unsupported value %T", v)
	}
}

// Calendar reads every VEVENT in r. Events without a UID are skipped and
// reported in the second return value. Document ids come from
// accessor.EventID so re-feeding a file updates the same documents.
func Calendar(r io.Reader, indexName string, loc *time.Location) ([]ingestion.IndexEvent, int, error) {
	vevents, err := accessor.DecodeEvents(r)
	if err != nil {
		return nil, 0, err
	}
	events := make([]ingestion.IndexEvent, 0, len(vevents))
	skipped := 0
	for i := range vevents {
		ev := accessor.FromEvent(&vevents[i], loc)
		if ev.UID() == "" {
			skipped++
			continue
		}
		event, err := FromDocument(indexName, accessor.EventID(ev.UID()), ev)
		if err != nil {
			return nil, skipped, fmt.Errorf("event %s: %w", ev.UID(), err)
		}
		events = append(events, event)
	}
	return events, skipped, nil
}

// Unindex builds unindex events for ids.
func Unindex(indexName string, ids []uint32) []ingestion.IndexEvent {
	events := make([]ingestion.IndexEvent, 0, len(ids))
	for _, id := range ids {
		events = append(events, ingestion.IndexEvent{
			Action:     ingestion.ActionUnindex,
			Index:      indexName,
			DocumentID: id,
		})
	}
	return events
}
