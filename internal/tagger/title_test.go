package tagger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractTitle(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"01. Queen - Bohemian Rhapsody.mp3", "Bohemian Rhapsody"},
		{"7 - Under Pressure.mp3", "Under Pressure"},
		{"  12-Artist - Song - Remix.mp3", "Song - Remix"},
		{"Imagine.mp3", "Imagine"},
		{"1984.mp3", "1984"},
		{"100. .mp3", ""},
		{"Queen - .mp3", "Queen -"},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractTitle(tt.filename))
		})
	}
}

func TestFindAudioFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.mp3", "A.MP3", "sub/c.Mp3", "sub/d.flac", "notes.txt"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, nil, 0644))
	}

	files, err := FindAudioFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "A.MP3"),
		filepath.Join(dir, "b.mp3"),
		filepath.Join(dir, "sub", "c.Mp3"),
	}, files)
}

func TestFindAudioFilesMissingDir(t *testing.T) {
	_, err := FindAudioFiles(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
