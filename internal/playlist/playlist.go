// Package playlist writes one M3U8 playlist per top-level folder of a
// music library.
package playlist

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cigoria/Music-downloader/internal/logger"
)

// DefaultExtensions は対象とする音声ファイルの拡張子
var DefaultExtensions = []string{".mp3", ".flac", ".wav", ".ogg", ".m4a", ".aac"}

const header = "#EXTM3U"

// Generate は baseDir 直下の各フォルダについて <baseDir>/<folder>.m3u8 を書き出す
// パスは baseDir からの相対パスで、ソート済み。音声ファイルがないフォルダは飛ばす
// 書き出したプレイリストのパスを返す
func Generate(baseDir string, exts []string) ([]string, error) {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	allowed := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[ext] = struct{}{}
	}

	dirents, err := os.ReadDir(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", baseDir, err)
	}

	var written []string
	for _, d := range dirents {
		if !d.IsDir() {
			continue
		}

		tracks, err := collect(baseDir, filepath.Join(baseDir, d.Name()), allowed)
		if err != nil {
			return written, err
		}
		if len(tracks) == 0 {
			continue
		}

		path := filepath.Join(baseDir, d.Name()+".m3u8")
		if err := write(path, tracks); err != nil {
			return written, err
		}
		logger.Info("playlist", "Created %s (%d tracks)", path, len(tracks))
		written = append(written, path)
	}
	return written, nil
}

func collect(baseDir, folder string, allowed map[string]struct{}) ([]string, error) {
	var tracks []string
	err := filepath.WalkDir(folder, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := allowed[strings.ToLower(filepath.Ext(path))]; !ok {
			return nil
		}
		rel, err := filepath.Rel(baseDir, path)
		if err != nil {
			return err
		}
		tracks = append(tracks, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", folder, err)
	}
	sort.Strings(tracks)
	return tracks, nil
}

func write(path string, tracks []string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create playlist: %w", err)
	}

	w := bufio.NewWriter(f)
	fmt.Fprintln(w, header)
	for _, track := range tracks {
		fmt.Fprintln(w, track)
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
