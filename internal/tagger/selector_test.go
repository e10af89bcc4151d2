package tagger

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cigoria/Music-downloader/internal/musicbrainz"
)

var sampleTracks = []musicbrainz.Track{
	{ID: "1", Title: "Song", Artist: "First", Album: "Album"},
	{ID: "2", Title: "Song", Artist: "Second", Album: musicbrainz.NoAlbum, Year: "1999"},
}

func TestAutoSelector(t *testing.T) {
	track, err := AutoSelector{}.Select(context.Background(), "a.mp3", sampleTracks)
	require.NoError(t, err)
	assert.Equal(t, "1", track.ID)

	track, err = AutoSelector{}.Select(context.Background(), "a.mp3", nil)
	assert.NoError(t, err)
	assert.Nil(t, track)
}

func TestPromptSelector(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		wantID string
	}{
		{"first", "1\n", "1"},
		{"second after invalid", "abc\n9\n2\n", "2"},
		{"skip", "0\n", ""},
		{"eof", "", ""},
		{"no trailing newline", "2", "2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			s := NewPromptSelector(strings.NewReader(tt.input), &out)

			track, err := s.Select(context.Background(), "song.mp3", sampleTracks)
			require.NoError(t, err)
			if tt.wantID == "" {
				assert.Nil(t, track)
			} else {
				require.NotNil(t, track)
				assert.Equal(t, tt.wantID, track.ID)
			}
			assert.Contains(t, out.String(), "song.mp3")
			assert.Contains(t, out.String(), "Skip")
		})
	}
}

func TestPromptSelectorCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewPromptSelector(strings.NewReader("1\n"), &bytes.Buffer{})
	_, err := s.Select(ctx, "song.mp3", sampleTracks)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTrackRow(t *testing.T) {
	row := trackRow(musicbrainz.Track{
		Artist: strings.Repeat("a", 40),
		Title:  "Short",
	})
	cells := strings.Split(row, " | ")
	require.Len(t, cells, 4)
	assert.Equal(t, "| "+strings.Repeat("a", 27)+"...", cells[0])
	assert.Equal(t, "Short"+strings.Repeat(" ", 35), cells[1])
	assert.Equal(t, "No album"+strings.Repeat(" ", 22), cells[2])
	assert.Equal(t, "---- |", cells[3])
}

func TestPadRunes(t *testing.T) {
	got := pad("Árvíztűrő tükörfúrógép", 10)
	assert.Equal(t, 10, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, "ÉV  ", pad("ÉV", 4))
}
