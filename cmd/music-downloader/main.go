// Package main is the entry point for the music library tagger.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/cigoria/Music-downloader/internal/api"
	"github.com/cigoria/Music-downloader/internal/config"
	"github.com/cigoria/Music-downloader/internal/coverart"
	"github.com/cigoria/Music-downloader/internal/events"
	"github.com/cigoria/Music-downloader/internal/history"
	"github.com/cigoria/Music-downloader/internal/httpclient"
	"github.com/cigoria/Music-downloader/internal/logger"
	"github.com/cigoria/Music-downloader/internal/metrics"
	"github.com/cigoria/Music-downloader/internal/musicbrainz"
	"github.com/cigoria/Music-downloader/internal/playlist"
	"github.com/cigoria/Music-downloader/internal/tagger"
	"github.com/cigoria/Music-downloader/internal/worker"
)

const (
	configPrefix = "MUSIC"
	// legacyConfigFile は --config がないときに探す旧形式の設定
	legacyConfigFile = "config.json"
)

var (
	version = "dev"
)

// cliConfig はフラグと環境変数（MUSIC_*）で指定する設定
// 指定された値は設定ファイルより優先する
type cliConfig struct {
	conf.Version
	Config          string        `conf:"help:config file (YAML/JSON)"`
	Mode            string        `conf:"default:tag,help:tag or playlist"`
	Path            string        `conf:"help:music library directory"`
	Auto            bool          `conf:"help:always take the first match"`
	Force           bool          `conf:"help:re-tag files already in the history"`
	Workers         int           `conf:"help:number of workers (0 uses every CPU)"`
	Strategy        string        `conf:"help:stop strategy on abort (cooperative or forceful)"`
	LogLevel        string        `conf:"help:debug|info|warn|error"`
	APIAddr         string        `conf:"help:control API address (empty disables it)"`
	Trace           bool          `conf:"help:print job traces to stdout"`
	ShutdownTimeout time.Duration `conf:"default:0s,help:limit for the final drain (0 waits forever)"`
}

func main() {
	if err := run(); err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			return
		}
		logger.Error("", "%v", err)
		os.Exit(1)
	}
}

func run() error {
	cli := cliConfig{
		Version: conf.Version{
			Build: version,
			Desc:  "Music Downloader - MP3 metadata tagger and playlist generator",
		},
	}
	help, err := conf.Parse(configPrefix, &cli)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
		}
		return err
	}

	fileConfig, err := buildConfig(cli)
	if err != nil {
		return err
	}

	level, err := fileConfig.LogLevel()
	if err != nil {
		return err
	}
	logger.Default.SetLevel(level)

	switch cli.Mode {
	case "tag":
		return runTagger(fileConfig, cli.ShutdownTimeout)
	case "playlist":
		return runPlaylist(fileConfig)
	default:
		return fmt.Errorf("unknown mode: %s (tag or playlist)", cli.Mode)
	}
}

// buildConfig は設定ファイルとフラグから設定を構築する
func buildConfig(cli cliConfig) (*config.FileConfig, error) {
	// 1. 設定ファイルから読み込み
	configFile := cli.Config
	if configFile == "" {
		if _, err := os.Stat(legacyConfigFile); err == nil {
			configFile = legacyConfigFile
		}
	}

	fileConfig := config.Default()
	if configFile != "" {
		var err error
		fileConfig, err = config.LoadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}

	// 2. フラグでオーバーライド
	if cli.Path != "" {
		fileConfig.Library.Path = cli.Path
	}
	if cli.Auto {
		fileConfig.Library.Auto = true
	}
	if cli.Force {
		fileConfig.Library.Force = true
	}
	if cli.Workers > 0 {
		fileConfig.Pool.Workers = cli.Workers
	}
	if cli.Strategy != "" {
		fileConfig.Pool.StopStrategy = cli.Strategy
	}
	if cli.LogLevel != "" {
		fileConfig.Log.Level = cli.LogLevel
	}
	if cli.APIAddr != "" {
		fileConfig.API.Addr = cli.APIAddr
	}
	if cli.Trace {
		fileConfig.Tracing.Enabled = true
	}

	// 3. ライブラリのパスがなければカレントディレクトリ
	if fileConfig.Library.Path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		fileConfig.Library.Path = wd
	}

	if err := fileConfig.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return fileConfig, nil
}

// runTagger はライブラリ内の MP3 ファイルをワーカープールでタグ付けする
func runTagger(cfg *config.FileConfig, shutdownTimeout time.Duration) error {
	root := cfg.Library.Path
	if _, err := os.Stat(root); err != nil {
		return fmt.Errorf("library directory does not exist: %s", root)
	}

	files, err := tagger.FindAudioFiles(root)
	if err != nil {
		return fmt.Errorf("scanning %s: %w", root, err)
	}
	if len(files) == 0 {
		logger.Info("", "No MP3 files found in %s", root)
		return nil
	}
	logger.Info("", "Found %d MP3 files in %s", len(files), root)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// トレース
	if cfg.Tracing.Enabled {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
		otel.SetTracerProvider(tp)
		defer func() { _ = tp.Shutdown(context.Background()) }()
	}

	// メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	m := metrics.New(reg)

	bus := events.NewBus()
	defer bus.Close()

	// 履歴
	var store *history.Store
	if cfg.History.Path != "" {
		store, err = history.Open(cfg.History.Path)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	updater, err := newUpdater(cfg, store)
	if err != nil {
		return err
	}

	poolConfig, err := cfg.ToPoolConfig()
	if err != nil {
		return err
	}
	poolConfig.Recorder = m
	poolConfig.Events = bus

	pool, err := worker.NewPoolWithConfig(ctx, poolConfig)
	if err != nil {
		return err
	}

	// 制御API
	if cfg.API.Addr != "" {
		server := api.NewServer(api.Config{
			Addr:        cfg.API.Addr,
			Pool:        pool,
			Metrics:     m,
			Events:      bus,
			Gatherer:    reg,
			TokenSecret: cfg.API.TokenSecret,
		})
		go func() {
			if err := server.Start(ctx); err != nil {
				logger.Error("", "API server error: %v", err)
			}
		}()
	}

	// シグナルハンドリング
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			logger.Warn("", "Received %v, aborting and discarding pending files", sig)
			pool.AbortAndClear()
		case <-ctx.Done():
		}
	}()

	if err := pool.Submit(updater.Jobs(pool.Context(), files)...); err != nil {
		return err
	}

	shutdownCtx := context.Background()
	if shutdownTimeout > 0 {
		var cancelShutdown context.CancelFunc
		shutdownCtx, cancelShutdown = context.WithTimeout(shutdownCtx, shutdownTimeout)
		defer cancelShutdown()
	}
	if err := pool.Shutdown(shutdownCtx); err != nil {
		pool.AbortAndClear()
		return fmt.Errorf("shutdown: %w", err)
	}

	printSummary(m.Snapshot(), updater.Stats(), pool.Aborted())
	return nil
}

func newUpdater(cfg *config.FileConfig, store *history.Store) (*tagger.Updater, error) {
	mbHTTPConfig, err := cfg.ToMusicBrainzHTTPConfig()
	if err != nil {
		return nil, err
	}
	mbConfig, err := cfg.ToMusicBrainzConfig()
	if err != nil {
		return nil, err
	}

	updaterConfig := tagger.UpdaterConfig{
		Searcher: musicbrainz.New(httpclient.New(mbHTTPConfig), mbConfig),
		Writer:   tagger.ID3Writer{},
		Auto:     cfg.Library.Auto,
		Force:    cfg.Library.Force,
	}
	if !cfg.Library.Auto {
		updaterConfig.Selector = tagger.NewPromptSelector(os.Stdin, os.Stdout)
	}
	if cfg.CoverArtEnabled() {
		caHTTPConfig, err := cfg.ToCoverArtHTTPConfig()
		if err != nil {
			return nil, err
		}
		updaterConfig.Covers = coverart.New(httpclient.New(caHTTPConfig), cfg.CoverArt.BaseURL)
	}
	if store != nil {
		updaterConfig.History = store
	}

	return tagger.NewUpdater(updaterConfig)
}

// runPlaylist はフォルダごとのプレイリストを生成する
func runPlaylist(cfg *config.FileConfig) error {
	written, err := playlist.Generate(cfg.PlaylistBaseDir(), cfg.Playlist.Extensions)
	if err != nil {
		return err
	}
	logger.Info("", "Created %d playlists", len(written))
	return nil
}

func printSummary(snap metrics.Snapshot, stats tagger.Stats, aborted bool) {
	fmt.Println()
	fmt.Println("====================================================")
	if aborted {
		fmt.Println("Aborted")
	} else {
		fmt.Println("Done")
	}
	fmt.Printf("Updated: %d, Skipped: %d, No match: %d, Failed: %d\n",
		stats.Updated, stats.Skipped, stats.NoMatch, stats.Failed)
	fmt.Printf("Jobs: %d submitted, %d discarded, avg %v, p99 %v\n",
		snap.Submitted, snap.Discarded, snap.AverageLatency, snap.P99Latency)
	fmt.Println("====================================================")
}
