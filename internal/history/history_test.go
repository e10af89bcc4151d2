package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecordAndLookup(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	taggedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := Entry{
		Path:        "/music/Queen/01 - Bohemian Rhapsody.mp3",
		RecordingID: "rec-1",
		Artist:      "Queen",
		Title:       "Bohemian Rhapsody",
		Album:       "A Night at the Opera",
		Year:        "1975",
		TaggedAt:    taggedAt,
	}
	require.NoError(t, s.Record(ctx, e))

	got, ok, err := s.Lookup(ctx, e.Path)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, e.RecordingID, got.RecordingID)
	assert.Equal(t, e.Album, got.Album)
	assert.True(t, taggedAt.Equal(got.TaggedAt))

	_, ok, err = s.Lookup(ctx, "/music/unknown.mp3")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecordOverwrites(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, Entry{Path: "a.mp3", RecordingID: "old", Title: "Old"}))
	require.NoError(t, s.Record(ctx, Entry{Path: "a.mp3", RecordingID: "new", Title: "New"}))

	entries, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "new", entries[0].RecordingID)
	assert.False(t, entries[0].TaggedAt.IsZero())
}

func TestRecordEmptyPath(t *testing.T) {
	s := openTestStore(t)
	assert.Error(t, s.Record(context.Background(), Entry{}))
}

func TestListOrdered(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, p := range []string{"c.mp3", "a.mp3", "b.mp3"} {
		require.NoError(t, s.Record(ctx, Entry{Path: p}))
	}

	entries, err := s.List(ctx)
	require.NoError(t, err)
	var paths []string
	for _, e := range entries {
		paths = append(paths, e.Path)
	}
	assert.Equal(t, []string{"a.mp3", "b.mp3", "c.mp3"}, paths)
}

func TestOpenPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Record(ctx, Entry{Path: "a.mp3", RecordingID: "rec"}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, ok, err := s.Lookup(ctx, "a.mp3")
	require.NoError(t, err)
	assert.True(t, ok)
}
