package journal

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndReplay(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir)
	require.NoError(t, err)

	require.NoError(t, j.Record(EntryAdmitted, "run-1", "prov-1", map[string]string{"collection_type": "full"}))
	require.NoError(t, j.Record(EntryStarted, "run-1", "prov-1", nil))
	require.NoError(t, j.RecordError(EntryFailed, "run-1", "prov-1", nil, os.ErrDeadlineExceeded))
	require.NoError(t, j.Close())

	var entries []Entry
	err = Replay(dir, time.Time{}, func(e *Entry) error {
		entries = append(entries, *e)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, entries, 3)
	assert.Equal(t, EntryAdmitted, entries[0].Type)
	assert.Equal(t, int64(1), entries[0].Sequence)
	assert.Equal(t, "run-1", entries[0].RunID)
	assert.Equal(t, EntryFailed, entries[2].Type)
	assert.NotEmpty(t, entries[2].Error)
}

func TestReplaySinceFiltersEntries(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, j.Record(EntryAdmitted, "run-1", "prov-1", nil))
	require.NoError(t, j.Close())

	count := 0
	err = Replay(dir, time.Now().Add(time.Hour), func(*Entry) error {
		count++
		return nil
	})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRemoveOld(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, j.Record(EntryAdmitted, "run-1", "prov-1", nil))
	require.NoError(t, j.Close())

	removed, err := RemoveOld(dir, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, removed)

	removed, err = RemoveOld(dir, -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}
