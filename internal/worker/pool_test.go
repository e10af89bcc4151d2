package worker

import (
	"context"
	"errors"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/cigoria/Music-downloader/internal/events"
	"github.com/cigoria/Music-downloader/internal/logger"
	"github.com/cigoria/Music-downloader/internal/metrics"
)

func testConfig(n int) PoolConfig {
	config := DefaultPoolConfig()
	config.NumWorkers = n
	config.PollInterval = 20 * time.Millisecond
	config.Logger = logger.New(io.Discard, logger.LevelError)
	return config
}

func newTestPool(t *testing.T, config PoolConfig) *Pool {
	t.Helper()
	p, err := NewPoolWithConfig(context.Background(), config)
	require.NoError(t, err)
	t.Cleanup(func() {
		p.Abort(true)
	})
	return p
}

func waitDone(t *testing.T, p *Pool) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("workers did not stop")
	}
}

func TestNewPool(t *testing.T) {
	p, err := NewPool(context.Background(), 4)
	require.NoError(t, err)
	defer p.Abort(true)
	assert.Equal(t, 4, p.NumWorkers())
	assert.Len(t, p.Workers(), 4)
	assert.Equal(t, PoolRunning, p.State())
	assert.Equal(t, Cooperative, p.Strategy())

	p2, err := NewPool(context.Background(), 0)
	require.NoError(t, err)
	defer p2.Abort(true)
	assert.Equal(t, runtime.NumCPU(), p2.NumWorkers())
}

func TestNewPoolInvalidConfig(t *testing.T) {
	//nolint:staticcheck // nil context is the case under test
	_, err := NewPoolWithConfig(nil, DefaultPoolConfig())
	assert.Error(t, err)

	config := DefaultPoolConfig()
	config.PollInterval = -time.Second
	_, err = NewPoolWithConfig(context.Background(), config)
	assert.Error(t, err)
}

func TestPoolRunsEveryJobOnce(t *testing.T) {
	p := newTestPool(t, testConfig(4))

	var counts [10]atomic.Int32
	jobs := make([]Job, len(counts))
	for i := range jobs {
		jobs[i] = Func(func() { counts[i].Add(1) })
	}
	require.NoError(t, p.Submit(jobs...))

	p.Wait()
	for i := range counts {
		assert.Equal(t, int32(1), counts[i].Load(), "job %d", i)
	}
	assert.Equal(t, 0, p.Unfinished())
	assert.Equal(t, 0, p.QueueSize())
}

func TestPoolExactlyOnceUnderLoad(t *testing.T) {
	p := newTestPool(t, testConfig(8))

	const n = 2000
	var mu sync.Mutex
	seen := make(map[int]int, n)

	var wg sync.WaitGroup
	for g := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range n / 4 {
				id := g*(n/4) + i
				assert.NoError(t, p.Submit(Func(func() {
					mu.Lock()
					seen[id]++
					mu.Unlock()
				})))
			}
		}()
	}
	wg.Wait()
	p.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, n)
	for id, c := range seen {
		assert.Equal(t, 1, c, "job %d", id)
	}
}

func TestPoolWaitWithNothingPending(t *testing.T) {
	p := newTestPool(t, testConfig(2))

	done := make(chan struct{})
	go func() {
		p.Wait()
		p.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait blocked on an idle pool")
	}
}

func TestPoolWaitContext(t *testing.T) {
	p := newTestPool(t, testConfig(1))

	release := make(chan struct{})
	defer close(release)
	require.NoError(t, p.Submit(Func(func() { <-release })))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.WaitContext(ctx), context.DeadlineExceeded)
}

func TestPoolPauseResume(t *testing.T) {
	p := newTestPool(t, testConfig(2))

	p.Pause()
	p.Pause()
	assert.True(t, p.Paused())

	var executed atomic.Int32
	for range 5 {
		require.NoError(t, p.Submit(Func(func() { executed.Add(1) })))
	}

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), executed.Load())
	assert.Equal(t, 5, p.Unfinished())

	p.Resume()
	p.Resume()
	assert.False(t, p.Paused())

	p.Wait()
	assert.Equal(t, int32(5), executed.Load())
}

func TestPoolPauseLetsRunningJobFinish(t *testing.T) {
	p := newTestPool(t, testConfig(1))

	started := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool
	require.NoError(t, p.Submit(Func(func() {
		close(started)
		<-release
		finished.Store(true)
	})))

	<-started
	p.Pause()

	var next atomic.Bool
	require.NoError(t, p.Submit(Func(func() { next.Store(true) })))

	close(release)
	require.Eventually(t, finished.Load, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.False(t, next.Load(), "job started while paused")
	assert.Equal(t, 1, p.Unfinished())

	p.Resume()
	p.Wait()
	assert.True(t, next.Load())
}

func TestPoolFailingJob(t *testing.T) {
	config := testConfig(2)
	var mu sync.Mutex
	var jobErrs []*JobError
	config.OnError = func(err *JobError) {
		mu.Lock()
		jobErrs = append(jobErrs, err)
		mu.Unlock()
	}
	m := metrics.New(nil)
	config.Recorder = m
	p := newTestPool(t, config)

	boom := errors.New("boom")
	var first, third atomic.Bool
	require.NoError(t, p.Submit(
		Func(func() { first.Store(true) }),
		func() error { return boom },
		Func(func() { third.Store(true) }),
	))

	p.Wait()
	assert.True(t, first.Load())
	assert.True(t, third.Load())
	assert.Equal(t, 0, p.Unfinished())

	mu.Lock()
	require.Len(t, jobErrs, 1)
	assert.ErrorIs(t, jobErrs[0], boom)
	assert.NotEmpty(t, jobErrs[0].WorkerID)
	mu.Unlock()

	assert.Equal(t, uint64(3), m.Submitted())
	assert.Equal(t, uint64(2), m.Succeeded())
	assert.Equal(t, uint64(1), m.Failed())

	var failed uint64
	for _, info := range p.Workers() {
		failed += info.Failed
	}
	assert.Equal(t, uint64(1), failed)
}

func TestPoolPanickingJob(t *testing.T) {
	config := testConfig(1)
	errCh := make(chan *JobError, 1)
	config.OnError = func(err *JobError) { errCh <- err }
	p := newTestPool(t, config)

	var after atomic.Bool
	require.NoError(t, p.Submit(
		func() error { panic("kaboom") },
		Func(func() { after.Store(true) }),
	))

	p.Wait()
	assert.True(t, after.Load())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrJobPanicked)
		assert.Contains(t, err.Error(), "kaboom")
	default:
		t.Fatal("panic was not reported")
	}
}

func TestPoolSubmitInvalidArgument(t *testing.T) {
	p := newTestPool(t, testConfig(1))

	var ran atomic.Bool
	err := p.Submit(Func(func() { ran.Store(true) }), nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Equal(t, 0, p.Unfinished())

	assert.ErrorIs(t, p.Submit(Func(nil)), ErrInvalidArgument)
	assert.NoError(t, p.Submit())

	time.Sleep(30 * time.Millisecond)
	assert.False(t, ran.Load())
}

func TestPoolAbortAndClear(t *testing.T) {
	m := metrics.New(nil)
	config := testConfig(2)
	config.Recorder = m
	p := newTestPool(t, config)

	var started sync.WaitGroup
	started.Add(2)
	release := make(chan struct{})
	var longDone atomic.Int32
	for range 2 {
		require.NoError(t, p.Submit(Func(func() {
			started.Done()
			<-release
			longDone.Add(1)
		})))
	}
	started.Wait()

	var queued atomic.Int32
	for range 3 {
		require.NoError(t, p.Submit(Func(func() { queued.Add(1) })))
	}

	p.AbortAndClear()
	assert.True(t, p.Aborted())
	assert.Equal(t, PoolAborted, p.State())
	assert.Equal(t, 0, p.QueueSize())
	assert.ErrorIs(t, p.Submit(Func(func() {})), ErrInvalidState)

	close(release)
	waitDone(t, p)

	assert.Equal(t, int32(2), longDone.Load())
	assert.Equal(t, int32(0), queued.Load())
	assert.Equal(t, 0, p.Unfinished())
	assert.Equal(t, uint64(3), m.Discarded())
	p.Wait()

	for _, info := range p.Workers() {
		assert.Equal(t, StateTerminated.String(), info.State)
	}
}

func TestPoolAbortKeepsQueue(t *testing.T) {
	p := newTestPool(t, testConfig(1))

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.Submit(Func(func() {
		close(started)
		<-release
	})))
	<-started
	require.NoError(t, p.Submit(Func(func() {}), Func(func() {})))

	p.Abort(false)
	p.Abort(false)
	assert.Equal(t, 2, p.QueueSize())

	close(release)
	waitDone(t, p)
	assert.Equal(t, 2, p.QueueSize())

	// 停止済みなら未完了が残っていても戻る
	p.Wait()
}

func TestPoolAbortWhilePaused(t *testing.T) {
	p := newTestPool(t, testConfig(3))
	p.Pause()
	require.NoError(t, p.Submit(Func(func() {})))

	p.Abort(true)
	waitDone(t, p)
	assert.False(t, p.Paused())
}

func TestPoolForcefulAbort(t *testing.T) {
	m := metrics.New(nil)
	config := testConfig(2)
	config.Strategy = Forceful
	config.Recorder = m
	bus := events.NewBus()
	defer bus.Close()
	sub := bus.Subscribe()
	config.Events = bus
	p := newTestPool(t, config)

	var started sync.WaitGroup
	started.Add(2)
	release := make(chan struct{})
	defer close(release)
	var finished atomic.Int32
	for range 2 {
		require.NoError(t, p.Submit(Func(func() {
			started.Done()
			<-release
			finished.Add(1)
		})))
	}
	started.Wait()

	aborted := make(chan struct{})
	go func() {
		p.Abort(true)
		close(aborted)
	}()

	select {
	case <-aborted:
	case <-time.After(2 * time.Second):
		t.Fatal("forceful Abort did not return")
	}

	// Abort は全ワーカーの終了を待つ
	for _, info := range p.Workers() {
		assert.Equal(t, StateTerminated.String(), info.State)
	}
	assert.Equal(t, int32(0), finished.Load())
	assert.Error(t, p.Context().Err())
	assert.Equal(t, uint64(2), m.Abandoned())
	// 見捨てたジョブの完了は記録されない
	assert.Equal(t, 2, p.Unfinished())

	abandoned := 0
	timeout := time.After(time.Second)
	for abandoned < 2 {
		select {
		case e := <-sub:
			if e.Type == events.EventJobAbandoned {
				abandoned++
			}
		case <-timeout:
			t.Fatalf("got %d job_abandoned events, want 2", abandoned)
		}
	}
}

func TestPoolForcefulJobObservesContext(t *testing.T) {
	config := testConfig(1)
	config.Strategy = Forceful
	p := newTestPool(t, config)

	started := make(chan struct{})
	stopped := make(chan struct{})
	require.NoError(t, p.Submit(Func(func() {
		close(started)
		<-p.Context().Done()
		close(stopped)
	})))
	<-started

	p.Abort(false)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("job context was not cancelled")
	}
}

func TestPoolCooperativeAbortDoesNotCancelJobs(t *testing.T) {
	p := newTestPool(t, testConfig(1))

	started := make(chan struct{})
	release := make(chan struct{})
	ctxErr := make(chan error, 1)
	require.NoError(t, p.Submit(Func(func() {
		close(started)
		<-release
		ctxErr <- p.Context().Err()
	})))
	<-started

	p.Abort(false)
	close(release)
	assert.NoError(t, <-ctxErr)
	waitDone(t, p)
	assert.Equal(t, 0, p.Unfinished())
}

func TestPoolShutdown(t *testing.T) {
	p := newTestPool(t, testConfig(2))

	var executed atomic.Int32
	for range 6 {
		require.NoError(t, p.Submit(Func(func() {
			time.Sleep(10 * time.Millisecond)
			executed.Add(1)
		})))
	}

	require.NoError(t, p.Shutdown(context.Background()))
	assert.Equal(t, int32(6), executed.Load())
	assert.Equal(t, PoolStopped, p.State())
	assert.Equal(t, 0, p.Unfinished())
	for _, info := range p.Workers() {
		assert.Equal(t, StateTerminated.String(), info.State)
	}
	waitDone(t, p)

	assert.ErrorIs(t, p.Submit(Func(func() {})), ErrInvalidState)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestPoolShutdownWhilePaused(t *testing.T) {
	p := newTestPool(t, testConfig(2))
	p.Pause()

	var executed atomic.Int32
	require.NoError(t, p.Submit(Func(func() { executed.Add(1) })))

	require.NoError(t, p.Shutdown(context.Background()))
	assert.Equal(t, int32(1), executed.Load())
}

func TestPoolShutdownContext(t *testing.T) {
	p := newTestPool(t, testConfig(1))

	release := make(chan struct{})
	require.NoError(t, p.Submit(Func(func() { <-release })))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Shutdown(ctx), context.DeadlineExceeded)
	assert.Equal(t, PoolShuttingDown, p.State())

	close(release)
	require.NoError(t, p.Shutdown(context.Background()))
	assert.Equal(t, PoolStopped, p.State())
}

func TestPoolShutdownAfterAbort(t *testing.T) {
	p := newTestPool(t, testConfig(2))
	p.Abort(false)

	done := make(chan error, 1)
	go func() { done <- p.Shutdown(context.Background()) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown after Abort did not return")
	}
	assert.Equal(t, PoolAborted, p.State())
}

func TestPoolParentContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p, err := NewPoolWithConfig(ctx, testConfig(2))
	require.NoError(t, err)

	cancel()
	waitDone(t, p)
	assert.True(t, p.Aborted())
	assert.ErrorIs(t, p.Submit(Func(func() {})), ErrInvalidState)
}

func TestPoolStatus(t *testing.T) {
	p := newTestPool(t, testConfig(3))
	p.Pause()
	require.NoError(t, p.Submit(Func(func() {}), Func(func() {})))

	status := p.Status()
	assert.Equal(t, "running", status.State)
	assert.Equal(t, "cooperative", status.Strategy)
	assert.Equal(t, 3, status.Workers)
	assert.True(t, status.Paused)
	assert.False(t, status.Aborted)
	assert.Equal(t, 2, status.Unfinished)
}

func TestPoolEvents(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	sub := bus.Subscribe()

	config := testConfig(1)
	config.Events = bus
	p := newTestPool(t, config)

	p.Pause()
	p.Resume()
	require.NoError(t, p.Shutdown(context.Background()))

	want := []events.EventType{
		events.EventPoolPaused,
		events.EventPoolResumed,
		events.EventPoolShutdown,
		events.EventPoolStopped,
	}
	var got []events.EventType
	timeout := time.After(2 * time.Second)
	for len(got) < len(want) {
		select {
		case e := <-sub:
			switch e.Type {
			case events.EventWorkerStarted, events.EventWorkerStopped:
				continue
			}
			got = append(got, e.Type)
		case <-timeout:
			t.Fatalf("got events %v, want %v", got, want)
		}
	}
	assert.Equal(t, want, got)
}

func TestPoolTracesJobs(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	config := testConfig(2)
	config.TracerProvider = tp
	p := newTestPool(t, config)

	require.NoError(t, p.Submit(
		func() error { return nil },
		func() error { return errors.New("failed") },
	))
	p.Wait()

	spans := sr.Ended()
	require.Len(t, spans, 2)
	errored := 0
	for _, s := range spans {
		assert.Equal(t, "worker.job", s.Name())
		if len(s.Events()) > 0 {
			errored++
		}
	}
	assert.Equal(t, 1, errored)
}

func TestParseStopStrategy(t *testing.T) {
	tests := []struct {
		input string
		want  StopStrategy
	}{
		{"", Cooperative},
		{"cooperative", Cooperative},
		{"Threads", Cooperative},
		{"forceful", Forceful},
		{" processes ", Forceful},
	}
	for _, tt := range tests {
		got, err := ParseStopStrategy(tt.input)
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.want, got, tt.input)
	}

	_, err := ParseStopStrategy("kill")
	assert.Error(t, err)
}

func TestWorkerStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "executing", StateExecuting.String())
	assert.Equal(t, "terminated", StateTerminated.String())
	assert.Equal(t, "unknown", State(99).String())
	assert.Equal(t, "shutting_down", PoolShuttingDown.String())
	assert.Equal(t, "unknown", PoolState(99).String())
}
