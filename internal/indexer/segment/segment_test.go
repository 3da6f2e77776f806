package segment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEntries() []index.Entry {
	return []index.Entry{
		{DocID: 1, Keys: index.NewPostingSet(10, 20, 30)},
		{DocID: 7, Keys: index.NewPostingSet(20)},
		{DocID: 42, Keys: index.NewPostingSet(5, 30, 1_000_000)},
	}
}

func TestWriteAndRead(t *testing.T) {
	dir := t.TempDir()
	name, err := NewWriter(dir).Write(sampleEntries())
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, name))
	assert.NoFileExists(t, filepath.Join(dir, name+".tmp"))

	r, err := OpenReader(filepath.Join(dir, name))
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, name, r.Name())
	assert.Equal(t, uint32(3), r.DocCount())
	assert.Equal(t, uint32(5), r.KeyCount())

	entries, err := r.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i, want := range sampleEntries() {
		assert.Equal(t, want.DocID, entries[i].DocID)
		assert.Equal(t, want.Keys.Values(), entries[i].Keys.Values())
	}

	keys, ok, err := r.Lookup(42)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []uint32{5, 30, 1_000_000}, keys.Values())

	_, ok, err = r.Lookup(8)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWriteEmptySnapshot(t *testing.T) {
	dir := t.TempDir()
	name, err := NewWriter(dir).Write(nil)
	require.NoError(t, err)

	r, err := OpenReader(filepath.Join(dir, name))
	require.NoError(t, err)
	defer r.Close()

	entries, err := r.Entries()
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, uint32(0), r.KeyCount())
}

func TestCorruptSnapshotRejected(t *testing.T) {
	dir := t.TempDir()
	name, err := NewWriter(dir).Write(sampleEntries())
	require.NoError(t, err)
	path := filepath.Join(dir, name)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[HeaderSize+1] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = OpenReader(path)
	assert.ErrorIs(t, err, apperrors.ErrSnapshotCorrupt)
}

func TestBadMagicAndTruncation(t *testing.T) {
	dir := t.TempDir()

	short := filepath.Join(dir, "snap_1.drix")
	require.NoError(t, os.WriteFile(short, []byte("DRIX"), 0o644))
	_, err := OpenReader(short)
	assert.ErrorIs(t, err, apperrors.ErrSnapshotCorrupt)

	junk := filepath.Join(dir, "snap_2.drix")
	require.NoError(t, os.WriteFile(junk, make([]byte, HeaderSize+FooterSize), 0o644))
	_, err = OpenReader(junk)
	assert.ErrorIs(t, err, apperrors.ErrSnapshotCorrupt)
}

func TestListLatestPrune(t *testing.T) {
	dir := t.TempDir()

	latest, err := Latest(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Empty(t, latest)

	for _, n := range []string{"snap_30.drix", "snap_4.drix", "snap_100.drix", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), nil, 0o644))
	}

	names, err := List(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"snap_4.drix", "snap_30.drix", "snap_100.drix"}, names)

	latest, err = Latest(dir)
	require.NoError(t, err)
	assert.Equal(t, "snap_100.drix", latest)

	removed, err := Prune(dir, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	names, err = List(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"snap_30.drix", "snap_100.drix"}, names)
}
