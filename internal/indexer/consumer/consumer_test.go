package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/indexer/catalog"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	rows map[string]map[uint32][]uint32
	err  error
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]map[uint32][]uint32)}
}

func (s *memStore) Save(_ context.Context, name string, docID uint32, keys index.PostingSet) error {
	if s.err != nil {
		return s.err
	}
	if keys.IsEmpty() {
		delete(s.rows[name], docID)
		return nil
	}
	if s.rows[name] == nil {
		s.rows[name] = make(map[uint32][]uint32)
	}
	s.rows[name][docID] = keys.Values()
	return nil
}

func (s *memStore) Delete(_ context.Context, name string, docID uint32) error {
	if s.err != nil {
		return s.err
	}
	delete(s.rows[name], docID)
	return nil
}

type notifications struct {
	calls [][]string
}

func (n *notifications) Invalidate(_ context.Context, indexes []string, _ uint64) error {
	n.calls = append(n.calls, indexes)
	return nil
}

func newCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	end := config.DefaultIndex()
	end.Name = "end"
	c, err := catalog.New([]config.IndexConfig{config.DefaultIndex(), end}, "", 2, nil)
	require.NoError(t, err)
	return c
}

func message(t *testing.T, e ingestion.IndexEvent) []byte {
	t.Helper()
	data, err := json.Marshal(e)
	require.NoError(t, err)
	return data
}

func TestHandleIndexAndUnindex(t *testing.T) {
	cat := newCatalog(t)
	store := newMemStore()
	notes := &notifications{}
	handle := HandleMessage(cat, store, notes, nil)
	ctx := context.Background()

	err := handle(ctx, []byte("1"), message(t, ingestion.IndexEvent{
		Action:     ingestion.ActionIndex,
		Index:      "start",
		DocumentID: 1,
		Start:      "2024-01-01T09:00:00Z",
		Recurrence: json.RawMessage(`"RRULE:FREQ=DAILY;COUNT=3"`),
	}))
	require.NoError(t, err)

	start, _ := cat.Route("start")
	keys, ok := start.Entry(1)
	require.True(t, ok)
	assert.Equal(t, 3, keys.Len())
	assert.Len(t, store.rows["start"][1], 3)
	assert.Equal(t, [][]string{{"start"}}, notes.calls)

	require.NoError(t, handle(ctx, []byte("1"), message(t, ingestion.IndexEvent{
		Action:     ingestion.ActionIndex,
		Index:      "start",
		DocumentID: 1,
		Start:      "2024-01-01T09:00:00Z",
		Recurrence: json.RawMessage(`"RRULE:FREQ=DAILY;COUNT=3"`),
	})))
	assert.Len(t, notes.calls, 1, "an unchanged document sends no invalidation")

	require.NoError(t, handle(ctx, []byte("1"), message(t, ingestion.IndexEvent{
		Action:     ingestion.ActionUnindex,
		DocumentID: 1,
	})))
	_, ok = start.Entry(1)
	assert.False(t, ok)
	assert.Empty(t, store.rows["start"])
	assert.Equal(t, []string{"start"}, notes.calls[1])
}

func TestHandleWithoutIndexTargetsAll(t *testing.T) {
	cat := newCatalog(t)
	handle := HandleMessage(cat, nil, nil, nil)

	require.NoError(t, handle(context.Background(), nil, message(t, ingestion.IndexEvent{
		Action:     ingestion.ActionIndex,
		DocumentID: 4,
		Start:      "2024-06-01T12:00:00Z",
	})))
	for _, engine := range cat.Engines() {
		_, ok := engine.Entry(4)
		assert.True(t, ok, engine.Name())
	}
}

func TestHandleDropsBadMessages(t *testing.T) {
	cat := newCatalog(t)
	handle := HandleMessage(cat, nil, nil, nil)
	ctx := context.Background()

	assert.NoError(t, handle(ctx, nil, []byte("{not json")))
	assert.NoError(t, handle(ctx, nil, message(t, ingestion.IndexEvent{Action: "explode", DocumentID: 1})))
	assert.NoError(t, handle(ctx, nil, message(t, ingestion.IndexEvent{
		Action:     ingestion.ActionIndex,
		Index:      "missing",
		DocumentID: 1,
		Start:      "2024-01-01",
	})))
	assert.Equal(t, uint64(0), cat.Version())
}

func TestHandlePersistFailureIsRetried(t *testing.T) {
	cat := newCatalog(t)
	store := newMemStore()
	store.err = errors.New("could not serialize access")
	handle := HandleMessage(cat, store, nil, nil)
	msg := message(t, ingestion.IndexEvent{
		Action:     ingestion.ActionIndex,
		Index:      "start",
		DocumentID: 2,
		Start:      "2024-01-01T09:00:00Z",
	})

	assert.Error(t, handle(context.Background(), nil, msg))

	store.err = nil
	require.NoError(t, handle(context.Background(), nil, msg))
	assert.Len(t, store.rows["start"][2], 1, "redelivery writes the entry even though the index is unchanged")
}
