package worker

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cigoria/Music-downloader/internal/events"
)

// State はワーカーの状態を表す
type State int32

const (
	StateIdle State = iota
	StateExecuting
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateExecuting:
		return "executing"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Worker はキューからジョブを取り出して 1 件ずつ実行する
type Worker struct {
	id    string
	pool  *Pool
	state atomic.Int32

	processed atomic.Uint64
	failed    atomic.Uint64
}

func newWorker(p *Pool) *Worker {
	return &Worker{
		id:   uuid.New().String(),
		pool: p,
	}
}

// ID はワーカーIDを返す
func (w *Worker) ID() string {
	return w.id
}

// State は現在の状態を返す
func (w *Worker) State() State {
	return State(w.state.Load())
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
}

// WorkerInfo はワーカーの状態のスナップショット
type WorkerInfo struct {
	ID        string `json:"id"`
	State     string `json:"state"`
	Processed uint64 `json:"processed"`
	Failed    uint64 `json:"failed"`
}

// Info はワーカー情報を返す
func (w *Worker) Info() WorkerInfo {
	return WorkerInfo{
		ID:        w.id,
		State:     w.State().String(),
		Processed: w.processed.Load(),
		Failed:    w.failed.Load(),
	}
}

// run はワーカーのメインループ
func (w *Worker) run() {
	p := w.pool
	defer p.wg.Done()
	defer func() {
		w.setState(StateTerminated)
		p.log.Debug(w.id, "Worker terminated")
		p.publish(events.NewWorkerEvent(events.EventWorkerStopped, w.id))
	}()

	p.log.Debug(w.id, "Worker started")
	p.publish(events.NewWorkerEvent(events.EventWorkerStarted, w.id))

	for {
		if p.aborted.Load() {
			return
		}

		// 一時停止中はここで待つ（Abort はゲートを開け abortCtx をキャンセルする）
		if err := p.gate.Wait(p.abortCtx); err != nil {
			return
		}

		e, ok := p.queue.Get(p.abortCtx, p.pollInterval)
		if !ok {
			continue
		}

		if e.kind == entryStop {
			p.markDone()
			return
		}

		// 取り出した後に一時停止された場合、実行前に再開を待つ
		if err := p.gate.Wait(p.abortCtx); err != nil || p.aborted.Load() {
			p.markDone()
			p.recorder.JobsDiscarded(1)
			return
		}

		if !w.execute(e.job) {
			return
		}
	}
}

// execute はジョブを実行し、完了を記録する
// 強制停止で見捨てた場合は false を返す（完了は記録しない）
func (w *Worker) execute(job Job) bool {
	p := w.pool

	w.setState(StateExecuting)
	p.recorder.JobStarted()

	abandoned := false
	defer func() {
		if !abandoned {
			p.markDone()
			w.setState(StateIdle)
		}
	}()

	_, span := p.tracer.Start(p.jobCtx, "worker.job",
		trace.WithAttributes(
			attribute.String("worker.id", w.id),
			attribute.String("pool.strategy", p.strategy.String()),
		),
	)
	defer span.End()

	start := time.Now()
	finished, err := p.strategy.run(p.abortCtx.Done(), func() error {
		return invoke(job)
	})
	latency := time.Since(start)

	if !finished {
		abandoned = true
		span.SetStatus(codes.Error, "abandoned on abort")
		p.recorder.JobAbandoned()
		p.log.Warn(w.id, "Job abandoned after %v", latency)
		p.publish(events.NewWorkerEvent(events.EventJobAbandoned, w.id))
		return false
	}

	w.processed.Add(1)
	p.recorder.JobFinished(latency, err)

	if err != nil {
		w.failed.Add(1)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		jobErr := &JobError{WorkerID: w.id, Err: err}
		p.log.Error(w.id, "Job failed: %v", err)
		p.publish(events.NewJobFailedEvent(w.id, err))
		if p.onError != nil {
			p.onError(jobErr)
		}
		return true
	}

	p.log.Debug(w.id, "Completed a job in %v", latency)
	return true
}
