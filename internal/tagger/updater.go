package tagger

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/cigoria/Music-downloader/internal/coverart"
	"github.com/cigoria/Music-downloader/internal/history"
	"github.com/cigoria/Music-downloader/internal/logger"
	"github.com/cigoria/Music-downloader/internal/musicbrainz"
	"github.com/cigoria/Music-downloader/internal/worker"
)

const logSource = "tagger"

// Searcher は曲名で録音を検索する
type Searcher interface {
	Search(ctx context.Context, title string) ([]musicbrainz.Track, error)
}

// CoverFetcher はリリースのフロントカバーを取得する
type CoverFetcher interface {
	Front(ctx context.Context, releaseID string) (*coverart.Image, error)
}

// History はタグ付け済みファイルの記録
type History interface {
	Lookup(ctx context.Context, path string) (history.Entry, bool, error)
	Record(ctx context.Context, e history.Entry) error
}

// UpdaterConfig は Updater の設定
type UpdaterConfig struct {
	Searcher Searcher     // 必須
	Writer   TagWriter    // nil で ID3Writer
	Selector Selector     // nil で AutoSelector
	Covers   CoverFetcher // nil でカバーを書き込まない
	History  History      // nil で履歴を使わない
	Logger   *logger.Logger
	Auto     bool // 複数の結果があっても最初の結果を使う
	Force    bool // 履歴にあるファイルも処理する
}

// Stats は処理結果の件数
type Stats struct {
	Updated uint64 `json:"updated"`
	Skipped uint64 `json:"skipped"`
	NoMatch uint64 `json:"no_match"`
	Failed  uint64 `json:"failed"`
}

// Updater は 1 ファイルずつメタデータを検索してタグを書き込む
type Updater struct {
	search   Searcher
	writer   TagWriter
	selector Selector
	covers   CoverFetcher
	history  History
	log      *logger.Logger
	auto     bool
	force    bool

	updated atomic.Uint64
	skipped atomic.Uint64
	noMatch atomic.Uint64
	failed  atomic.Uint64
}

// NewUpdater は Updater を作成する
func NewUpdater(config UpdaterConfig) (*Updater, error) {
	if config.Searcher == nil {
		return nil, errors.New("searcher is required")
	}
	if config.Writer == nil {
		config.Writer = ID3Writer{}
	}
	if config.Selector == nil {
		config.Selector = AutoSelector{}
	}
	if config.Logger == nil {
		config.Logger = logger.Default
	}
	return &Updater{
		search:   config.Searcher,
		writer:   config.Writer,
		selector: config.Selector,
		covers:   config.Covers,
		history:  config.History,
		log:      config.Logger,
		auto:     config.Auto,
		force:    config.Force,
	}, nil
}

// Process は path のファイルを処理する
// 該当なし、スキップはエラーにならない
func (u *Updater) Process(ctx context.Context, path string) error {
	if err := u.process(ctx, path); err != nil {
		u.failed.Add(1)
		return err
	}
	return nil
}

func (u *Updater) process(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name := filepath.Base(path)

	if u.history != nil && !u.force {
		if _, ok, err := u.history.Lookup(ctx, path); err != nil {
			return err
		} else if ok {
			u.log.Debug(logSource, "%s already tagged, skipping", name)
			u.skipped.Add(1)
			return nil
		}
	}

	title := ExtractTitle(name)
	if title == "" {
		u.log.Warn(logSource, "Could not extract a title from %s, skipping", name)
		u.skipped.Add(1)
		return nil
	}

	u.log.Info(logSource, "Searching for %q (%s)", title, name)
	tracks, err := u.search.Search(ctx, title)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if len(tracks) == 0 {
		u.log.Info(logSource, "No match for %s", name)
		u.noMatch.Add(1)
		return nil
	}

	var track *musicbrainz.Track
	switch {
	case len(tracks) == 1:
		track = &tracks[0]
		u.log.Info(logSource, "Single match: %s - %s", track.Artist, track.Title)
	case u.auto:
		track = &tracks[0]
		u.log.Info(logSource, "Auto mode, first match: %s - %s", track.Artist, track.Title)
	default:
		track, err = u.selector.Select(ctx, name, tracks)
		if err != nil {
			return fmt.Errorf("%s: selection failed: %w", name, err)
		}
	}
	if track == nil {
		u.log.Info(logSource, "Skipped %s", name)
		u.skipped.Add(1)
		return nil
	}

	var cover *coverart.Image
	if u.covers != nil && track.ReleaseID != "" {
		cover, err = u.covers.Front(ctx, track.ReleaseID)
		if err != nil {
			// カバーなしで続行する
			u.log.Warn(logSource, "Cover art download failed for %s: %v", name, err)
			cover = nil
		}
	}

	if err := u.writer.Write(path, *track, cover); err != nil {
		return err
	}

	if u.history != nil {
		err := u.history.Record(ctx, history.Entry{
			Path:        path,
			RecordingID: track.ID,
			Artist:      track.Artist,
			Title:       track.Title,
			Album:       track.Album,
			Year:        track.Year,
			TaggedAt:    time.Now(),
		})
		if err != nil {
			return err
		}
	}

	u.updated.Add(1)
	u.log.Info(logSource, "Updated %s: %s - %s (cover: %t)", name, track.Artist, track.Title, cover != nil)
	return nil
}

// Jobs はファイルごとに Process を呼ぶジョブを返す
func (u *Updater) Jobs(ctx context.Context, paths []string) []worker.Job {
	jobs := make([]worker.Job, len(paths))
	for i, path := range paths {
		jobs[i] = func() error {
			return u.Process(ctx, path)
		}
	}
	return jobs
}

// Stats は現在までの処理結果を返す
func (u *Updater) Stats() Stats {
	return Stats{
		Updated: u.updated.Load(),
		Skipped: u.skipped.Load(),
		NoMatch: u.noMatch.Load(),
		Failed:  u.failed.Load(),
	}
}
