package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/websocket"

	"github.com/cigoria/Music-downloader/internal/events"
	"github.com/cigoria/Music-downloader/internal/logger"
	"github.com/cigoria/Music-downloader/internal/metrics"
	"github.com/cigoria/Music-downloader/internal/worker"
)

const logSource = "api"

// Controller は API から操作するプール
type Controller interface {
	Status() worker.Status
	Workers() []worker.WorkerInfo
	Pause()
	Resume()
	Abort(clearQueue bool)
	Shutdown(ctx context.Context) error
}

// Subscriber はイベントの購読
type Subscriber interface {
	Subscribe() <-chan events.Event
	Unsubscribe(ch <-chan events.Event)
}

// Config はAPIサーバーの設定
type Config struct {
	Addr           string
	Pool           Controller
	Metrics        *metrics.Metrics    // nil なら /api/metrics は空
	Events         Subscriber          // nil なら /ws はステータスのみ
	Gatherer       prometheus.Gatherer // nil なら prometheus.DefaultGatherer
	TokenSecret    string              // 空なら認証なし
	StatusInterval time.Duration       // /ws のステータス送信間隔（0で1秒）
	Logger         *logger.Logger
}

// Server は制御APIサーバー
type Server struct {
	config  Config
	log     *logger.Logger
	handler http.Handler
	server  *http.Server
}

// NewServer は新しいAPIサーバーを作成する
func NewServer(config Config) *Server {
	if config.Gatherer == nil {
		config.Gatherer = prometheus.DefaultGatherer
	}
	if config.StatusInterval <= 0 {
		config.StatusInterval = time.Second
	}
	if config.Logger == nil {
		config.Logger = logger.Default
	}

	s := &Server{
		config: config,
		log:    config.Logger,
	}

	mux := http.NewServeMux()

	// API routes
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/workers", s.handleWorkers)
	mux.HandleFunc("GET /api/metrics", s.handleMetrics)
	mux.HandleFunc("POST /api/pause", requireToken(config.TokenSecret, s.handlePause))
	mux.HandleFunc("POST /api/resume", requireToken(config.TokenSecret, s.handleResume))
	mux.HandleFunc("POST /api/abort", requireToken(config.TokenSecret, s.handleAbort))
	mux.HandleFunc("POST /api/shutdown", requireToken(config.TokenSecret, s.handleShutdown))

	// WebSocket
	mux.Handle("GET /ws", websocket.Handler(s.handleWebSocket))

	// Prometheus
	mux.Handle("GET /metrics", promhttp.HandlerFor(config.Gatherer, promhttp.HandlerOpts{}))

	s.handler = mux
	return s
}

// Handler はルーティング済みのハンドラを返す
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start はサーバーを開始する。ctx の終了で停止する
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.log.Info(logSource, "API Server starting on http://%s", s.config.Addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.config.Pool.Status())
}

func (s *Server) handleWorkers(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.config.Pool.Workers())
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.config.Metrics == nil {
		s.writeJSON(w, http.StatusOK, metrics.Snapshot{})
		return
	}
	s.writeJSON(w, http.StatusOK, s.config.Metrics.Snapshot())
}

// ActionResponse は操作系エンドポイントのレスポンス
type ActionResponse struct {
	Status string        `json:"status"`
	Pool   worker.Status `json:"pool"`
	Error  string        `json:"error,omitempty"`
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.config.Pool.Pause()
	s.log.Info(logSource, "Pause requested")
	s.writeAction(w, http.StatusOK, "paused", nil)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.config.Pool.Resume()
	s.log.Info(logSource, "Resume requested")
	s.writeAction(w, http.StatusOK, "resumed", nil)
}

func (s *Server) handleAbort(w http.ResponseWriter, r *http.Request) {
	clearQueue := true
	if v := r.URL.Query().Get("clear"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "Invalid clear parameter", http.StatusBadRequest)
			return
		}
		clearQueue = b
	}

	s.log.Warn(logSource, "Abort requested (clear=%t)", clearQueue)
	s.config.Pool.Abort(clearQueue)
	s.writeAction(w, http.StatusOK, "aborted", nil)
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	s.log.Info(logSource, "Shutdown requested")
	if err := s.config.Pool.Shutdown(r.Context()); err != nil {
		s.writeAction(w, http.StatusServiceUnavailable, "shutting_down", err)
		return
	}
	s.writeAction(w, http.StatusOK, "stopped", nil)
}

// WebSocket handling
func (s *Server) handleWebSocket(ws *websocket.Conn) {
	defer func() { _ = ws.Close() }()

	var sub <-chan events.Event
	if s.config.Events != nil {
		sub = s.config.Events.Subscribe()
		defer s.config.Events.Unsubscribe(sub)
	}

	// クライアントの切断を検出する
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			var msg string
			if err := websocket.Message.Receive(ws, &msg); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.config.StatusInterval)
	defer ticker.Stop()

	if err := s.sendStatus(ws); err != nil {
		return
	}

	for {
		select {
		case <-closed:
			return
		case e, ok := <-sub:
			if !ok {
				sub = nil
				continue
			}
			if err := websocket.JSON.Send(ws, e); err != nil {
				return
			}
		case <-ticker.C:
			if err := s.sendStatus(ws); err != nil {
				return
			}
		}
	}
}

// StatusMessage は /ws で定期送信するステータス
type StatusMessage struct {
	Type   string        `json:"type"`
	Status worker.Status `json:"status"`
}

func (s *Server) sendStatus(ws *websocket.Conn) error {
	return websocket.JSON.Send(ws, StatusMessage{Type: "status", Status: s.config.Pool.Status()})
}

func (s *Server) writeAction(w http.ResponseWriter, code int, status string, err error) {
	resp := ActionResponse{
		Status: status,
		Pool:   s.config.Pool.Status(),
	}
	if err != nil {
		resp.Error = err.Error()
	}
	s.writeJSON(w, code, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error(logSource, "Failed to encode JSON: %v", err)
	}
}
