package indexer

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/accessor"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/temporal"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/config"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T, recurrenceType, dst string, opts ...Option) *Engine {
	t.Helper()
	e, err := NewEngine(config.IndexConfig{
		Name:           "start",
		RecurrenceType: recurrenceType,
		DST:            dst,
		StartAttr:      "start",
		RecurrenceAttr: "recurrence",
		UntilAttr:      "until",
		DefaultZone:    "Europe/Vienna",
	}, opts...)
	require.NoError(t, err)
	return e
}

func keyTimes(t *testing.T, e *Engine, docID uint32) []time.Time {
	t.Helper()
	keys, ok := e.Entry(docID)
	require.True(t, ok)
	var out []time.Time
	for k := range keys.All() {
		out = append(out, temporal.Key(k).Time())
	}
	return out
}

func TestNewEngineRejectsBadConfig(t *testing.T) {
	_, err := NewEngine(config.IndexConfig{Name: "x", RecurrenceType: "cron", DST: "auto"})
	assert.Error(t, err)
	_, err = NewEngine(config.IndexConfig{Name: "x", RecurrenceType: "ical", DST: "never"})
	assert.Error(t, err)
}

func TestIndexTimeDelta(t *testing.T) {
	e := newEngine(t, config.RecurrenceTimeDelta, config.DSTKeep)

	changed := e.Index(1, "2010-01-01T00:00:00", 1440, "2010-01-05T00:00:00")
	require.True(t, changed)

	got := keyTimes(t, e, 1)
	require.Len(t, got, 5)
	assert.Equal(t, time.Date(2009, 12, 31, 23, 0, 0, 0, time.UTC), got[0])
	assert.Equal(t, time.Date(2010, 1, 4, 23, 0, 0, 0, time.UTC), got[4])

	assert.False(t, e.Index(1, "2010-01-01T00:00:00", "1440", "2010-01-05T00:00:00"))
	assert.Equal(t, Stats{
		Index:          "start",
		RecurrenceType: config.RecurrenceTimeDelta,
		DST:            config.DSTKeep,
		Documents:      1,
		Keys:           5,
		Generation:     1,
	}, e.Stats())
}

func TestIndexICalRules(t *testing.T) {
	e := newEngine(t, config.RecurrenceICal, config.DSTAuto)

	rules := "RRULE:FREQ=DAILY;COUNT=3\nEXDATE:20240102T090000\nRDATE:20240110T090000"
	require.True(t, e.Index(7, "2024-01-01T09:00:00", rules, nil))

	got := keyTimes(t, e, 7)
	want := []time.Time{
		time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 3, 8, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, want, got)
}

func TestIndexMissingStartSkips(t *testing.T) {
	e := newEngine(t, config.RecurrenceICal, config.DSTAuto)
	require.True(t, e.Index(1, "2024-01-01T09:00:00", nil, nil))

	assert.False(t, e.Index(1, nil, nil, nil))
	_, ok := e.Entry(1)
	assert.True(t, ok, "missing start must not touch the existing entry")

	assert.False(t, e.IndexDocument(2, accessor.Values{}))
	_, ok = e.Entry(2)
	assert.False(t, ok)
}

func TestIndexContainsInvalidValues(t *testing.T) {
	e := newEngine(t, config.RecurrenceICal, config.DSTAuto)

	assert.False(t, e.Index(1, "not a date", nil, nil))
	_, ok := e.Entry(1)
	assert.False(t, ok)

	require.True(t, e.Index(2, "2024-01-01T09:00:00", nil, nil))
	assert.True(t, e.Index(2, "2024-01-01T09:00:00", "RRULE:FREQ=SOMETIMES", nil))
	_, ok = e.Entry(2)
	assert.False(t, ok, "an invalid rule leaves the document without occurrences")
	assert.Equal(t, 0, e.Stats().Keys)
}

func TestIndexDocumentFromAttributes(t *testing.T) {
	e := newEngine(t, config.RecurrenceTimeDelta, config.DSTAuto)
	doc := accessor.FromMap(map[string]any{
		"start": "2024-03-01T10:00:00Z",
		"delta": 60,
		"end":   "2024-03-01T12:00:00Z",
	}, accessor.Names{Start: "start", Recurrence: "delta", Until: "end"})

	require.True(t, e.IndexDocument(3, doc))
	assert.Len(t, keyTimes(t, e, 3), 3)
}

func TestUnindexAndClear(t *testing.T) {
	e := newEngine(t, config.RecurrenceICal, config.DSTAuto)
	e.Index(1, "2024-01-01T09:00:00", nil, nil)
	e.Index(2, "2024-01-01T09:00:00", nil, nil)

	assert.True(t, e.Unindex(1))
	assert.False(t, e.Unindex(1))
	assert.Equal(t, 1, e.Stats().Documents)

	e.Clear()
	assert.Equal(t, 0, e.Stats().Documents)
	assert.Empty(t, e.UniqueKeys(mo.None[temporal.Key](), mo.None[temporal.Key]()))
}

func TestFlushAndReload(t *testing.T) {
	dir := t.TempDir()
	writer := newEngine(t, config.RecurrenceICal, config.DSTAuto, WithDataDir(dir), WithKeepSnapshots(1))
	writer.Index(1, "2024-01-01T09:00:00", "RRULE:FREQ=WEEKLY;COUNT=4", nil)
	writer.Index(2, "2024-01-08T09:00:00", nil, nil)

	require.NoError(t, writer.Flush())
	names, err := segment.List(dir)
	require.NoError(t, err)
	require.Len(t, names, 1)

	reader := newEngine(t, config.RecurrenceICal, config.DSTAuto, WithDataDir(dir))
	loaded, err := reader.Reload()
	require.NoError(t, err)
	require.True(t, loaded)
	assert.Equal(t, writer.Stats().Keys, reader.Stats().Keys)
	assert.Equal(t, keyTimes(t, writer, 1), keyTimes(t, reader, 1))

	loaded, err = reader.Reload()
	require.NoError(t, err)
	assert.False(t, loaded, "the same snapshot is not loaded twice")

	writer.Unindex(2)
	time.Sleep(time.Millisecond)
	require.NoError(t, writer.Flush())
	names, err = segment.List(dir)
	require.NoError(t, err)
	assert.Len(t, names, 1, "older snapshots are pruned")

	loaded, err = reader.Reload()
	require.NoError(t, err)
	assert.True(t, loaded)
	_, ok := reader.Entry(2)
	assert.False(t, ok)
}

func TestFlushWithoutChangesWritesNothing(t *testing.T) {
	dir := t.TempDir()
	e := newEngine(t, config.RecurrenceICal, config.DSTAuto, WithDataDir(dir))
	require.NoError(t, e.Flush())
	names, err := segment.List(dir)
	require.NoError(t, err)
	assert.Empty(t, names)
}
