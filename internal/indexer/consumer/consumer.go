// Package consumer reads index events from Kafka and applies them to the
// catalog, writing the resulting entries through to the store and telling
// searchers which indexes changed.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/indexer/catalog"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/metrics"
)

// Persister stores the entry of a document. store.Store implements it.
type Persister interface {
	Save(ctx context.Context, indexName string, docID uint32, keys index.PostingSet) error
	Delete(ctx context.Context, indexName string, docID uint32) error
}

// Notifier announces changed indexes.
type Notifier interface {
	Invalidate(ctx context.Context, indexes []string, version uint64) error
}

// IndexConsumer wraps a Kafka consumer to drive the indexing pipeline.
type IndexConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

func New(kafkaConsumer *kafka.Consumer) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("index consumer starting")
	return ic.consumer.Start(ctx)
}

// HandleMessage returns a Kafka MessageHandler that applies index events to
// the catalog. Undecodable or invalid events are logged and dropped. A
// persistence failure is returned so the message is not committed and is
// delivered again; re-applying an event is harmless. persist and notify
// may be nil.
func HandleMessage(cat *catalog.Catalog, persist Persister, notify Notifier, m *metrics.Metrics) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ingestion.IndexEvent](value)
		if err != nil {
			logger.Error("failed to decode index event",
				"error", err,
				"key", string(key),
			)
			m.Event("unknown", "malformed")
			return nil
		}
		if err := validator.ValidateIndexEvent(&event); err != nil {
			logger.Warn("dropping invalid index event",
				"doc_id", event.DocumentID,
				"error", err,
			)
			m.Event(event.Action, "invalid")
			return nil
		}

		engines, err := targets(cat, event.Index)
		if err != nil {
			logger.Warn("dropping index event",
				"doc_id", event.DocumentID,
				"index", event.Index,
				"error", err,
			)
			m.Event(event.Action, "invalid")
			return nil
		}

		changed, err := apply(ctx, engines, event, persist)
		if err != nil {
			m.Event(event.Action, "error")
			return fmt.Errorf("applying %s event for document %d: %w", event.Action, event.DocumentID, err)
		}
		m.Event(event.Action, "ok")

		if len(changed) > 0 && notify != nil {
			if err := notify.Invalidate(ctx, changed, cat.Version()); err != nil {
				logger.Error("failed to publish cache invalidation",
					"indexes", changed,
					"error", err,
				)
			}
		}
		logger.Debug("index event applied",
			"doc_id", event.DocumentID,
			"action", event.Action,
			"changed", changed,
		)
		return nil
	}
}

func targets(cat *catalog.Catalog, name string) ([]*indexer.Engine, error) {
	if name == "" {
		return cat.Engines(), nil
	}
	engine, err := cat.Route(name)
	if err != nil {
		return nil, err
	}
	return []*indexer.Engine{engine}, nil
}

// apply returns the names of the indexes whose entries changed. Entries are
// persisted whether or not they changed so a redelivered event repairs a
// previous failed write.
func apply(ctx context.Context, engines []*indexer.Engine, event ingestion.IndexEvent, persist Persister) ([]string, error) {
	var changed []string
	var errs []error
	for _, engine := range engines {
		name := engine.Name()
		switch event.Action {
		case ingestion.ActionIndex:
			if engine.IndexDocument(event.DocumentID, event.Document()) {
				changed = append(changed, name)
			}
			if persist != nil {
				keys, _ := engine.Entry(event.DocumentID)
				if err := persist.Save(ctx, name, event.DocumentID, keys); err != nil {
					errs = append(errs, fmt.Errorf("saving %s entry: %w", name, err))
				}
			}
		case ingestion.ActionUnindex:
			if engine.Unindex(event.DocumentID) {
				changed = append(changed, name)
			}
			if persist != nil {
				if err := persist.Delete(ctx, name, event.DocumentID); err != nil {
					errs = append(errs, fmt.Errorf("deleting %s entry: %w", name, err))
				}
			}
		default:
			return nil, fmt.Errorf("%w: action %q", apperrors.ErrInvalidInput, event.Action)
		}
	}
	return changed, errors.Join(errs...)
}

// Invalidator publishes CacheInvalidateEvents to Kafka.
type Invalidator struct {
	producer *kafka.Producer
}

func NewInvalidator(producer *kafka.Producer) *Invalidator {
	return &Invalidator{producer: producer}
}

func (i *Invalidator) Invalidate(ctx context.Context, indexes []string, version uint64) error {
	return i.producer.Publish(ctx, kafka.Event{
		Key: "invalidate",
		Value: ingestion.CacheInvalidateEvent{
			Indexes:   indexes,
			Version:   version,
			EmittedAt: time.Now().UTC(),
		},
	})
}
