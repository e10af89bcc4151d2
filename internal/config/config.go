package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cigoria/Music-downloader/internal/coverart"
	"github.com/cigoria/Music-downloader/internal/httpclient"
	"github.com/cigoria/Music-downloader/internal/logger"
	"github.com/cigoria/Music-downloader/internal/musicbrainz"
	"github.com/cigoria/Music-downloader/internal/playlist"
	"github.com/cigoria/Music-downloader/internal/worker"

	"gopkg.in/yaml.v3"
)

// DefaultUserAgent は MusicBrainz と Cover Art Archive に送る User-Agent
const DefaultUserAgent = "MP3_Metadata_Interactive_Updater/1.4 (email@example.com)"

// FileConfig は設定ファイルの構造
type FileConfig struct {
	// Path は旧形式の config.json の "path"（library.path と同じ）
	Path string `yaml:"path,omitempty" json:"path,omitempty"`

	Library     LibraryConfig     `yaml:"library" json:"library"`
	Pool        PoolConfig        `yaml:"pool" json:"pool"`
	MusicBrainz MusicBrainzConfig `yaml:"musicbrainz" json:"musicbrainz"`
	CoverArt    CoverArtConfig    `yaml:"cover_art" json:"cover_art"`
	Playlist    PlaylistConfig    `yaml:"playlist" json:"playlist"`
	History     HistoryConfig     `yaml:"history" json:"history"`
	Log         LogConfig         `yaml:"log" json:"log"`
	API         APIConfig         `yaml:"api" json:"api"`
	Tracing     TracingConfig     `yaml:"tracing" json:"tracing"`
}

// LibraryConfig はタグ付け対象の設定
type LibraryConfig struct {
	Path  string `yaml:"path" json:"path"`
	Auto  bool   `yaml:"auto" json:"auto"`
	Force bool   `yaml:"force" json:"force"`
}

// PoolConfig はワーカープール設定
type PoolConfig struct {
	Workers      int    `yaml:"workers" json:"workers"`
	PollInterval string `yaml:"poll_interval" json:"poll_interval"`
	StopStrategy string `yaml:"stop_strategy" json:"stop_strategy"`
}

// MusicBrainzConfig は検索設定
type MusicBrainzConfig struct {
	BaseURL   string `yaml:"base_url" json:"base_url"`
	UserAgent string `yaml:"user_agent" json:"user_agent"`
	Limit     int    `yaml:"limit" json:"limit"`
	Rate      string `yaml:"rate" json:"rate"`
	Timeout   string `yaml:"timeout" json:"timeout"`
}

// CoverArtConfig はカバー画像設定
type CoverArtConfig struct {
	Enabled *bool  `yaml:"enabled" json:"enabled"`
	BaseURL string `yaml:"base_url" json:"base_url"`
	Timeout string `yaml:"timeout" json:"timeout"`
}

// PlaylistConfig はプレイリスト生成設定
type PlaylistConfig struct {
	BaseDir    string   `yaml:"base_dir" json:"base_dir"`
	Extensions []string `yaml:"extensions" json:"extensions"`
}

// HistoryConfig は履歴データベース設定
type HistoryConfig struct {
	Path string `yaml:"path" json:"path"`
}

// LogConfig はログ設定
type LogConfig struct {
	Level string `yaml:"level" json:"level"`
}

// APIConfig は制御APIサーバー設定
type APIConfig struct {
	Addr        string `yaml:"addr" json:"addr"`
	TokenSecret string `yaml:"token_secret" json:"token_secret"`
}

// TracingConfig はトレース設定
type TracingConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// Default はデフォルト値を埋めた設定を返す
func Default() *FileConfig {
	enabled := true
	return &FileConfig{
		Pool: PoolConfig{
			PollInterval: worker.DefaultPollInterval.String(),
			StopStrategy: worker.Cooperative.String(),
		},
		MusicBrainz: MusicBrainzConfig{
			BaseURL:   musicbrainz.DefaultBaseURL,
			UserAgent: DefaultUserAgent,
			Limit:     musicbrainz.DefaultLimit,
			Rate:      musicbrainz.DefaultRate.String(),
			Timeout:   httpclient.DefaultTimeout.String(),
		},
		CoverArt: CoverArtConfig{
			Enabled: &enabled,
			BaseURL: coverart.DefaultBaseURL,
			Timeout: httpclient.DefaultTimeout.String(),
		},
		Playlist: PlaylistConfig{
			Extensions: append([]string(nil), playlist.DefaultExtensions...),
		},
		History: HistoryConfig{
			Path: "tagger.db",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadFile は設定ファイルを読み込む
// ファイルにない項目はデフォルト値になる
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}

	if config.Library.Path == "" {
		config.Library.Path = config.Path
	}
	return config, nil
}

// Validate は設定を検証する
func (f *FileConfig) Validate() error {
	if f.Pool.Workers < 0 {
		return fmt.Errorf("pool.workers must be non-negative")
	}
	if f.MusicBrainz.Limit < 0 {
		return fmt.Errorf("musicbrainz.limit must be non-negative")
	}
	if _, err := worker.ParseStopStrategy(f.Pool.StopStrategy); err != nil {
		return fmt.Errorf("pool.stop_strategy: %w", err)
	}
	if _, err := logger.ParseLevel(f.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}

	durations := map[string]string{
		"pool.poll_interval":  f.Pool.PollInterval,
		"musicbrainz.rate":    f.MusicBrainz.Rate,
		"musicbrainz.timeout": f.MusicBrainz.Timeout,
		"cover_art.timeout":   f.CoverArt.Timeout,
	}
	for name, value := range durations {
		if _, err := parseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}

	return nil
}

// ToPoolConfig はワーカープールの設定に変換する
func (f *FileConfig) ToPoolConfig() (worker.PoolConfig, error) {
	config := worker.DefaultPoolConfig()

	if f.Pool.Workers > 0 {
		config.NumWorkers = f.Pool.Workers
	}
	interval, err := parseDuration(f.Pool.PollInterval)
	if err != nil {
		return config, fmt.Errorf("invalid poll interval: %w", err)
	}
	if interval > 0 {
		config.PollInterval = interval
	}
	strategy, err := worker.ParseStopStrategy(f.Pool.StopStrategy)
	if err != nil {
		return config, err
	}
	config.Strategy = strategy

	return config, nil
}

// ToMusicBrainzConfig は検索クライアントの設定に変換する
func (f *FileConfig) ToMusicBrainzConfig() (musicbrainz.Config, error) {
	rate, err := parseDuration(f.MusicBrainz.Rate)
	if err != nil {
		return musicbrainz.Config{}, fmt.Errorf("invalid musicbrainz rate: %w", err)
	}
	return musicbrainz.Config{
		BaseURL: f.MusicBrainz.BaseURL,
		Limit:   f.MusicBrainz.Limit,
		Rate:    rate,
	}, nil
}

// ToMusicBrainzHTTPConfig は検索に使う HTTP クライアントの設定に変換する
func (f *FileConfig) ToMusicBrainzHTTPConfig() (httpclient.Config, error) {
	return f.httpConfig(f.MusicBrainz.Timeout)
}

// ToCoverArtHTTPConfig はカバー取得に使う HTTP クライアントの設定に変換する
func (f *FileConfig) ToCoverArtHTTPConfig() (httpclient.Config, error) {
	return f.httpConfig(f.CoverArt.Timeout)
}

func (f *FileConfig) httpConfig(timeout string) (httpclient.Config, error) {
	d, err := parseDuration(timeout)
	if err != nil {
		return httpclient.Config{}, fmt.Errorf("invalid timeout: %w", err)
	}
	userAgent := f.MusicBrainz.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return httpclient.Config{
		UserAgent: userAgent,
		Timeout:   d,
	}, nil
}

// CoverArtEnabled はカバー画像を書き込むかを返す（未指定なら true）
func (f *FileConfig) CoverArtEnabled() bool {
	return f.CoverArt.Enabled == nil || *f.CoverArt.Enabled
}

// PlaylistBaseDir はプレイリストを作るディレクトリを返す（未指定なら library.path）
func (f *FileConfig) PlaylistBaseDir() string {
	if f.Playlist.BaseDir != "" {
		return f.Playlist.BaseDir
	}
	return f.Library.Path
}

// LogLevel はログレベルを返す
func (f *FileConfig) LogLevel() (logger.Level, error) {
	return logger.ParseLevel(f.Log.Level)
}

// parseDuration は空文字列を 0 として扱う
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration must be non-negative: %s", s)
	}
	return d, nil
}
