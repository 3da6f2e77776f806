// Package publisher validates index events and publishes them to Kafka,
// keyed by document id so every change to a document lands on the same
// partition in order.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/kafka"
)

// Producer is the subset of kafka.Producer the publisher needs.
type Producer interface {
	Publish(ctx context.Context, event kafka.Event) error
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

type Publisher struct {
	producer Producer
	logger   *slog.Logger
}

func New(producer Producer) *Publisher {
	return &Publisher{
		producer: producer,
		logger:   slog.Default().With("component", "publisher"),
	}
}

// Publish validates one event and writes it to Kafka.
func (p *Publisher) Publish(ctx context.Context, event *ingestion.IndexEvent) (*ingestion.PublishResponse, error) {
	msg, err := p.prepare(event)
	if err != nil {
		return nil, err
	}
	if err := p.producer.Publish(ctx, msg); err != nil {
		return nil, fmt.Errorf("publishing %s event for document %d: %w", event.Action, event.DocumentID, err)
	}
	p.logger.Debug("index event published",
		"doc_id", event.DocumentID,
		"action", event.Action,
		"index", event.Index,
	)
	return &ingestion.PublishResponse{
		DocumentID: event.DocumentID,
		Action:     event.Action,
		Status:     "ACCEPTED",
	}, nil
}

// PublishBatch validates all events first and publishes them in a single
// write.
func (p *Publisher) PublishBatch(ctx context.Context, events []ingestion.IndexEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Event, 0, len(events))
	for i := range events {
		msg, err := p.prepare(&events[i])
		if err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
		msgs = append(msgs, msg)
	}
	if err := p.producer.PublishBatch(ctx, msgs); err != nil {
		return fmt.Errorf("publishing %d index events: %w", len(msgs), err)
	}
	p.logger.Info("index events published", "count", len(msgs))
	return nil
}

func (p *Publisher) prepare(event *ingestion.IndexEvent) (kafka.Event, error) {
	if err := validator.ValidateIndexEvent(event); err != nil {
		return kafka.Event{}, apperrors.New(fmt.Errorf("%w: %w", apperrors.ErrInvalidInput, err), http.StatusBadRequest, err.Error())
	}
	if event.EmittedAt.IsZero() {
		event.EmittedAt = time.Now().UTC()
	}
	return kafka.Event{
		Key:   strconv.FormatUint(uint64(event.DocumentID), 10),
		Value: event,
	}, nil
}
