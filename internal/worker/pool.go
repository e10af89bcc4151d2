package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/cigoria/Music-downloader/internal/events"
	"github.com/cigoria/Music-downloader/internal/gate"
	"github.com/cigoria/Music-downloader/internal/logger"
	"github.com/cigoria/Music-downloader/internal/queue"
)

const (
	// DefaultPollInterval はキューが空のときにワーカーが制御状態を確認し直す間隔
	DefaultPollInterval = 2 * time.Second

	tracerName = "github.com/cigoria/Music-downloader/internal/worker"
	logSource  = "pool"
)

// Recorder はジョブ実行の統計を受け取る
type Recorder interface {
	JobsSubmitted(n int)
	JobStarted()
	JobFinished(latency time.Duration, err error)
	JobsDiscarded(n int)
	JobAbandoned()
}

type noopRecorder struct{}

func (noopRecorder) JobsSubmitted(int) {}
func (noopRecorder) JobStarted() {}
func (noopRecorder) JobFinished(time.Duration, error) {}
func (noopRecorder) JobsDiscarded(int) {}
func (noopRecorder) JobAbandoned() {}

// PoolConfig はワーカープールの設定
type PoolConfig struct {
	NumWorkers     int                 // ワーカー数（0以下でCPU数）
	PollInterval   time.Duration       // キューのポーリング間隔（0でデフォルト）
	Strategy       StopStrategy        // Abort 時の停止戦略（nil で Cooperative）
	Recorder       Recorder            // メトリクス（任意）
	Events         events.Publisher    // イベント通知先（任意）
	Logger         *logger.Logger      // nil で logger.Default
	TracerProvider trace.TracerProvider // nil で otel のグローバル設定
	OnError        func(*JobError)     // ジョブ失敗時のコールバック（任意）
}

// DefaultPoolConfig はデフォルト設定を返す
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		NumWorkers:   0, // CPU数
		PollInterval: DefaultPollInterval,
		Strategy:     Cooperative,
	}
}

// PoolState はプールのライフサイクル状態
type PoolState int

const (
	PoolRunning PoolState = iota
	PoolShuttingDown
	PoolStopped
	PoolAborted
)

func (s PoolState) String() string {
	switch s {
	case PoolRunning:
		return "running"
	case PoolShuttingDown:
		return "shutting_down"
	case PoolStopped:
		return "stopped"
	case PoolAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Pool は固定数のワーカーと共有キュー、ゲート、中断フラグを管理する
type Pool struct {
	numWorkers   int
	pollInterval time.Duration
	strategy     StopStrategy

	queue   *queue.Queue[entry]
	gate    *gate.Gate
	aborted atomic.Bool

	// abortCtx は Abort でキャンセルされ、待機中のワーカーを起こす
	abortCtx    context.Context
	abortCancel context.CancelFunc
	// jobCtx はジョブに渡すコンテキスト
	jobCtx    context.Context
	jobCancel context.CancelFunc
	// doneCtx は全ワーカーの終了でキャンセルされる
	doneCtx    context.Context
	doneCancel context.CancelFunc
	stopParent func() bool

	workers []*Worker
	wg      sync.WaitGroup

	mu    sync.Mutex
	state PoolState

	recorder Recorder
	events   events.Publisher
	log      *logger.Logger
	tracer   trace.Tracer
	onError  func(*JobError)
}

// NewPool は numWorkers 個のワーカーでプールを作成し起動する
// numWorkers が 0 以下の場合は CPU 数を使用
func NewPool(ctx context.Context, numWorkers int) (*Pool, error) {
	config := DefaultPoolConfig()
	config.NumWorkers = numWorkers
	return NewPoolWithConfig(ctx, config)
}

// NewPoolWithConfig は設定を指定してプールを作成し起動する
// ctx がキャンセルされるとプールはキューを残したまま Abort する
func NewPoolWithConfig(ctx context.Context, config PoolConfig) (*Pool, error) {
	if ctx == nil {
		return nil, errors.New("ctx cannot be nil")
	}
	if config.PollInterval < 0 {
		return nil, fmt.Errorf("poll interval must be non-negative, got %v", config.PollInterval)
	}

	numWorkers := config.NumWorkers
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	pollInterval := config.PollInterval
	if pollInterval == 0 {
		pollInterval = DefaultPollInterval
	}
	strategy := config.Strategy
	if strategy == nil {
		strategy = Cooperative
	}
	var recorder Recorder = noopRecorder{}
	if config.Recorder != nil {
		recorder = config.Recorder
	}
	log := config.Logger
	if log == nil {
		log = logger.Default
	}
	tp := config.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	p := &Pool{
		numWorkers:   numWorkers,
		pollInterval: pollInterval,
		strategy:     strategy,
		queue:        queue.New[entry](),
		gate:         gate.New(),
		recorder:     recorder,
		events:       config.Events,
		log:          log,
		tracer:       tp.Tracer(tracerName),
		onError:      config.OnError,
	}
	p.abortCtx, p.abortCancel = context.WithCancel(context.Background())
	p.jobCtx, p.jobCancel = context.WithCancel(context.WithoutCancel(ctx))
	p.doneCtx, p.doneCancel = context.WithCancel(context.Background())

	p.workers = make([]*Worker, numWorkers)
	p.wg.Add(numWorkers)
	for i := range numWorkers {
		w := newWorker(p)
		p.workers[i] = w
		go w.run()
	}

	p.stopParent = context.AfterFunc(ctx, func() {
		p.log.Warn(logSource, "Parent context done, aborting pool")
		p.Abort(false)
	})
	go p.awaitWorkers()

	p.log.Info(logSource, "Worker pool started with %d workers (%s)", numWorkers, strategy)
	return p, nil
}

// awaitWorkers は全ワーカーの終了を待って後始末をする
func (p *Pool) awaitWorkers() {
	p.wg.Wait()

	p.mu.Lock()
	if p.state == PoolShuttingDown {
		p.state = PoolStopped
	}
	state := p.state
	p.mu.Unlock()

	p.stopParent()
	p.jobCancel()
	p.doneCancel()

	p.log.Info(logSource, "Worker pool stopped (%s)", state)
	p.publish(events.NewPoolEvent(events.EventPoolStopped))
}

// Submit はジョブを投入順にキューへ追加する
// nil のジョブが含まれる場合は ErrInvalidArgument を返し、1 件も追加しない
// Abort 後またはシャットダウン開始後は ErrInvalidState を返す
func (p *Pool) Submit(jobs ...Job) error {
	for i, job := range jobs {
		if job == nil {
			return fmt.Errorf("%w: job %d is nil", ErrInvalidArgument, i)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != PoolRunning {
		return fmt.Errorf("%w: pool is %s", ErrInvalidState, p.state)
	}
	if len(jobs) == 0 {
		return nil
	}

	entries := make([]entry, len(jobs))
	for i, job := range jobs {
		entries[i] = workEntry(job)
	}
	p.queue.Put(entries...)
	p.recorder.JobsSubmitted(len(jobs))
	return nil
}

// Pause はジョブの取り出しを止める（冪等）
// 実行中のジョブには影響しない
func (p *Pool) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != PoolRunning || !p.gate.IsOpen() {
		return
	}
	p.gate.Close()
	p.log.Info(logSource, "Worker pool paused")
	p.publish(events.NewPoolEvent(events.EventPoolPaused))
}

// Resume はジョブの取り出しを再開する（冪等）
func (p *Pool) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.gate.IsOpen() {
		return
	}
	p.gate.Open()
	p.log.Info(logSource, "Worker pool resumed")
	p.publish(events.NewPoolEvent(events.EventPoolResumed))
}

// Abort はプールを中断する（冪等、以後 Submit は失敗する）
// clearQueue が true なら未着手のジョブをすべて破棄する
// Forceful 戦略では全ワーカーの終了を待ってから戻る
func (p *Pool) Abort(clearQueue bool) {
	p.mu.Lock()
	if p.state == PoolAborted || p.state == PoolStopped {
		p.mu.Unlock()
		return
	}

	p.aborted.Store(true)
	p.state = PoolAborted
	p.abortCancel()
	if p.strategy.cancelJobs() {
		p.jobCancel()
	}
	// 一時停止中のワーカーを起こして中断を観測させる
	p.gate.Open()

	discarded := 0
	if clearQueue {
		for _, e := range p.queue.Drain() {
			if e.kind == entryWork {
				discarded++
			}
		}
		p.recorder.JobsDiscarded(discarded)
	}
	p.mu.Unlock()

	p.log.Warn(logSource, "Worker pool aborted (%s, cleared=%t, discarded=%d)", p.strategy, clearQueue, discarded)
	p.publish(events.NewAbortEvent(p.strategy.String(), clearQueue, discarded))

	if p.strategy.joinOnAbort() {
		p.wg.Wait()
	}
}

// AbortAndClear は未着手のジョブを破棄して中断する
func (p *Pool) AbortAndClear() {
	p.Abort(true)
}

// Shutdown はグレースフルに停止する
// 呼び出し前に投入されたジョブをすべて実行し、全ワーカーの終了を待つ
// ctx が先に終了した場合は ctx.Err() を返す（停止処理自体は継続する）
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.state == PoolRunning {
		p.state = PoolShuttingDown
		// 一時停止中でも停止マーカーまで処理を進められるようにする
		p.gate.Open()

		stops := make([]entry, p.numWorkers)
		for i := range stops {
			stops[i] = stopEntry()
		}
		p.queue.Put(stops...)

		p.log.Info(logSource, "Worker pool shutting down")
		p.publish(events.NewPoolEvent(events.EventPoolShutdown))
	}
	p.mu.Unlock()

	joinCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	// Abort された場合はキューの完了を待たない
	stop := context.AfterFunc(p.abortCtx, cancel)
	defer stop()

	if err := p.queue.JoinContext(joinCtx); err != nil && ctx.Err() != nil {
		return ctx.Err()
	}

	select {
	case <-p.doneCtx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait はキューが空になり実行中のジョブがなくなるまでブロックする
// プールが停止済みで、それ以上ジョブが完了し得ない場合も戻る
func (p *Pool) Wait() {
	_ = p.WaitContext(context.Background())
}

// WaitContext は Wait と同じだが ctx の終了でも戻る
func (p *Pool) WaitContext(ctx context.Context) error {
	joinCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(p.doneCtx, cancel)
	defer stop()

	if err := p.queue.JoinContext(joinCtx); err != nil {
		return ctx.Err()
	}
	return nil
}

// Done は全ワーカーが終了すると close されるチャネルを返す
func (p *Pool) Done() <-chan struct{} {
	return p.doneCtx.Done()
}

// Context はジョブ用のコンテキストを返す
// Forceful 戦略の Abort 時、または全ワーカーの終了時にキャンセルされる
func (p *Pool) Context() context.Context {
	return p.jobCtx
}

// NumWorkers はワーカー数を返す
func (p *Pool) NumWorkers() int {
	return p.numWorkers
}

// QueueSize は未着手のジョブ数を返す
func (p *Pool) QueueSize() int {
	return p.queue.Len()
}

// Unfinished は未完了のジョブ数（未着手 + 実行中）を返す
func (p *Pool) Unfinished() int {
	return p.queue.Unfinished()
}

// Paused は一時停止中かを返す
func (p *Pool) Paused() bool {
	return !p.gate.IsOpen()
}

// Aborted は中断済みかを返す
func (p *Pool) Aborted() bool {
	return p.aborted.Load()
}

// Strategy は停止戦略を返す
func (p *Pool) Strategy() StopStrategy {
	return p.strategy
}

// State はプールの状態を返す
func (p *Pool) State() PoolState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Workers は各ワーカーの情報を返す
func (p *Pool) Workers() []WorkerInfo {
	infos := make([]WorkerInfo, len(p.workers))
	for i, w := range p.workers {
		infos[i] = w.Info()
	}
	return infos
}

// Status はプールの状態のスナップショット
type Status struct {
	State      string `json:"state"`
	Strategy   string `json:"strategy"`
	Workers    int    `json:"workers"`
	Executing  int    `json:"executing"`
	Paused     bool   `json:"paused"`
	Aborted    bool   `json:"aborted"`
	QueueSize  int    `json:"queue_size"`
	Unfinished int    `json:"unfinished"`
}

// Status は現在の状態を返す
func (p *Pool) Status() Status {
	executing := 0
	for _, w := range p.workers {
		if w.State() == StateExecuting {
			executing++
		}
	}
	return Status{
		State:      p.State().String(),
		Strategy:   p.strategy.String(),
		Workers:    p.numWorkers,
		Executing:  executing,
		Paused:     p.Paused(),
		Aborted:    p.Aborted(),
		QueueSize:  p.QueueSize(),
		Unfinished: p.Unfinished(),
	}
}

func (p *Pool) markDone() {
	if err := p.queue.Done(); err != nil {
		p.log.Error(logSource, "Completion accounting failed: %v", err)
	}
}

func (p *Pool) publish(event events.Event) {
	if p.events != nil {
		p.events.Publish(event)
	}
}
