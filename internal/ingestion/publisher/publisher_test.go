package publisher

import (
	"context"
	"errors"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProducer struct {
	events []kafka.Event
	err    error
}

func (f *fakeProducer) Publish(_ context.Context, event kafka.Event) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeProducer) PublishBatch(_ context.Context, events []kafka.Event) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, events...)
	return nil
}

func TestPublish(t *testing.T) {
	prod := &fakeProducer{}
	p := New(prod)

	resp, err := p.Publish(context.Background(), &ingestion.IndexEvent{
		Action:     ingestion.ActionIndex,
		DocumentID: 42,
		Start:      "2024-01-01T09:00:00Z",
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(42), resp.DocumentID)
	assert.Equal(t, "ACCEPTED", resp.Status)

	require.Len(t, prod.events, 1)
	assert.Equal(t, "42", prod.events[0].Key)
	published := prod.events[0].Value.(*ingestion.IndexEvent)
	assert.False(t, published.EmittedAt.IsZero())
}

func TestPublishRejectsInvalid(t *testing.T) {
	prod := &fakeProducer{}
	_, err := New(prod).Publish(context.Background(), &ingestion.IndexEvent{Action: "index", DocumentID: 1})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Equal(t, 400, apperrors.HTTPStatusCode(err))
	assert.Empty(t, prod.events)
}

func TestPublishBatchIsAllOrNothing(t *testing.T) {
	prod := &fakeProducer{}
	p := New(prod)
	err := p.PublishBatch(context.Background(), []ingestion.IndexEvent{
		{Action: ingestion.ActionUnindex, DocumentID: 1},
		{Action: "bogus", DocumentID: 2},
	})
	assert.Error(t, err)
	assert.Empty(t, prod.events)

	require.NoError(t, p.PublishBatch(context.Background(), []ingestion.IndexEvent{
		{Action: ingestion.ActionUnindex, DocumentID: 1},
		{Action: ingestion.ActionUnindex, DocumentID: 2},
	}))
	assert.Len(t, prod.events, 2)
}

func TestPublishProducerError(t *testing.T) {
	prod := &fakeProducer{err: errors.New("broker down")}
	_, err := New(prod).Publish(context.Background(), &ingestion.IndexEvent{Action: "unindex", DocumentID: 3})
	assert.ErrorContains(t, err, "broker down")
}
