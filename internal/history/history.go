// Package history records which audio files have already been tagged so
// repeated runs can skip them.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS tagged_files (
	path         TEXT PRIMARY KEY,
	recording_id TEXT NOT NULL,
	artist       TEXT NOT NULL,
	title        TEXT NOT NULL,
	album        TEXT NOT NULL,
	year         TEXT NOT NULL,
	tagged_at    TIMESTAMP NOT NULL
);`

// Entry はタグ付け済みファイルの記録
type Entry struct {
	Path        string    `json:"path"`
	RecordingID string    `json:"recording_id"`
	Artist      string    `json:"artist"`
	Title       string    `json:"title"`
	Album       string    `json:"album"`
	Year        string    `json:"year,omitempty"`
	TaggedAt    time.Time `json:"tagged_at"`
}

// Store は sqlite に履歴を保存する
type Store struct {
	db *sql.DB
}

// Open は path のデータベースを開き、スキーマを作成する
// ":memory:" でメモリ上のデータベースになる
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	// sqlite への書き込みは 1 接続に直列化する
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Record はエントリを保存する（同じパスは上書き）
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.Path == "" {
		return errors.New("history entry path is empty")
	}
	if e.TaggedAt.IsZero() {
		e.TaggedAt = time.Now()
	}

	query := `INSERT INTO tagged_files (path, recording_id, artist, title, album, year, tagged_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?)
	          ON CONFLICT(path) DO UPDATE SET
	              recording_id = excluded.recording_id,
	              artist = excluded.artist,
	              title = excluded.title,
	              album = excluded.album,
	              year = excluded.year,
	              tagged_at = excluded.tagged_at`
	_, err := s.db.ExecContext(ctx, query, e.Path, e.RecordingID, e.Artist, e.Title, e.Album, e.Year, e.TaggedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to record %s: %w", e.Path, err)
	}
	return nil
}

// Lookup は path のエントリを返す。記録がなければ false
func (s *Store) Lookup(ctx context.Context, path string) (Entry, bool, error) {
	var e Entry
	query := `SELECT path, recording_id, artist, title, album, year, tagged_at
	          FROM tagged_files WHERE path = ?`
	err := s.db.QueryRowContext(ctx, query, path).Scan(
		&e.Path, &e.RecordingID, &e.Artist, &e.Title, &e.Album, &e.Year, &e.TaggedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("failed to look up %s: %w", path, err)
	}
	return e, true, nil
}

// List は全エントリをパス順で返す
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	query := `SELECT path, recording_id, artist, title, album, year, tagged_at
	          FROM tagged_files ORDER BY path`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Path, &e.RecordingID, &e.Artist, &e.Title, &e.Album, &e.Year, &e.TaggedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close はデータベースを閉じる
func (s *Store) Close() error {
	return s.db.Close()
}
