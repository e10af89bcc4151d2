package tagger

import (
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// trackNumber は "01. " や "7 - " のような先頭のトラック番号
var trackNumber = regexp.MustCompile(`^\s*\d{1,3}\s*[\.\-]\s*`)

// ExtractTitle はファイル名から検索用の曲名を推測する
// 拡張子とトラック番号を除き、"Artist - Title" なら Title 部分を返す
func ExtractTitle(filename string) string {
	name := strings.TrimSuffix(filename, filepath.Ext(filename))
	name = strings.TrimSpace(trackNumber.ReplaceAllString(name, ""))

	if _, title, ok := strings.Cut(name, " - "); ok {
		return strings.TrimSpace(title)
	}
	return name
}

// FindAudioFiles は dir 以下の MP3 ファイルを再帰的に探す（拡張子は大文字小文字を区別しない）
func FindAudioFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".mp3") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
