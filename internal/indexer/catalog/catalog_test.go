package catalog

import (
	"net/http"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func indexes() []config.IndexConfig {
	end := config.DefaultIndex()
	end.Name = "end"
	end.StartAttr = "end"
	return []config.IndexConfig{config.DefaultIndex(), end}
}

func TestRoute(t *testing.T) {
	c, err := New(indexes(), "", 2, nil)
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, []string{"end", "start"}, c.Names())
	engine, err := c.Route("start")
	require.NoError(t, err)
	assert.Equal(t, "start", engine.Name())

	_, err = c.Route("middle")
	assert.ErrorIs(t, err, apperrors.ErrUnknownIndex)
	assert.Equal(t, http.StatusNotFound, apperrors.HTTPStatusCode(err))
}

func TestDuplicateIndexRejected(t *testing.T) {
	_, err := New([]config.IndexConfig{config.DefaultIndex(), config.DefaultIndex()}, "", 2, nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestUnindexAcrossIndexes(t *testing.T) {
	c, err := New(indexes(), "", 2, nil)
	require.NoError(t, err)

	start, _ := c.Route("start")
	end, _ := c.Route("end")
	start.Index(1, "2024-05-01T10:00:00Z", nil, nil)
	end.Index(1, "2024-05-01T12:00:00Z", nil, nil)
	before := c.Version()

	assert.True(t, c.Unindex(1))
	assert.False(t, c.Unindex(1))
	assert.Greater(t, c.Version(), before)
	assert.Equal(t, 0, start.Stats().Documents)
	assert.Equal(t, 0, end.Stats().Documents)
}

func TestFlushAndReloadAll(t *testing.T) {
	dir := t.TempDir()
	writer, err := New(indexes(), dir, 2, nil)
	require.NoError(t, err)
	start, _ := writer.Route("start")
	start.Index(9, "2024-05-01T10:00:00Z", "RRULE:FREQ=DAILY;COUNT=2", nil)
	require.NoError(t, writer.FlushAll())

	reader, err := New(indexes(), dir, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, reader.ReloadAll())

	loaded, _ := reader.Route("start")
	keys, ok := loaded.Entry(9)
	require.True(t, ok)
	assert.Equal(t, 2, keys.Len())
}
