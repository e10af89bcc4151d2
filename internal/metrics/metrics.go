package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "music_downloader"

// Metrics はジョブ実行のメトリクスを収集する
type Metrics struct {
	submitted      atomic.Uint64
	succeeded      atomic.Uint64
	failed         atomic.Uint64
	discarded      atomic.Uint64
	abandoned      atomic.Uint64
	inFlight       atomic.Int64
	totalLatencyNs atomic.Uint64

	mu                sync.RWMutex
	startTime         time.Time
	latencies         []time.Duration
	maxLatencySamples int

	promSubmitted prometheus.Counter
	promJobs      *prometheus.CounterVec
	promInFlight  prometheus.Gauge
	promDuration  prometheus.Histogram
}

// New は新しいメトリクスを作成する
// reg が nil の場合 Prometheus への登録は行わない
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		startTime:         time.Now(),
		latencies:         make([]time.Duration, 0, 1000),
		maxLatencySamples: 1000,

		promSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_submitted_total",
			Help:      "Total number of jobs submitted to the pool",
		}),
		promJobs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Total number of jobs that left the queue, by result",
		}, []string{"result"}), // result: success, failure, discarded, abandoned
		promInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_in_flight",
			Help:      "Number of jobs currently executing",
		}),
		promDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Job execution duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		}),
	}
}

// JobsSubmitted はキューに投入されたジョブ数を記録する
func (m *Metrics) JobsSubmitted(n int) {
	if n <= 0 {
		return
	}
	m.submitted.Add(uint64(n))
	m.promSubmitted.Add(float64(n))
}

// JobStarted はジョブの実行開始を記録する
func (m *Metrics) JobStarted() {
	m.inFlight.Add(1)
	m.promInFlight.Inc()
}

// JobFinished はジョブの実行終了を記録する（err が nil なら成功）
func (m *Metrics) JobFinished(latency time.Duration, err error) {
	m.inFlight.Add(-1)
	m.promInFlight.Dec()
	m.totalLatencyNs.Add(uint64(latency.Nanoseconds()))
	m.promDuration.Observe(latency.Seconds())

	if err != nil {
		m.failed.Add(1)
		m.promJobs.WithLabelValues("failure").Inc()
		return
	}

	m.succeeded.Add(1)
	m.promJobs.WithLabelValues("success").Inc()

	m.mu.Lock()
	if len(m.latencies) < m.maxLatencySamples {
		m.latencies = append(m.latencies, latency)
	}
	m.mu.Unlock()
}

// JobsDiscarded は実行されずに破棄されたジョブ数を記録する
func (m *Metrics) JobsDiscarded(n int) {
	if n <= 0 {
		return
	}
	m.discarded.Add(uint64(n))
	m.promJobs.WithLabelValues("discarded").Add(float64(n))
}

// JobAbandoned は強制停止で放棄されたジョブを記録する
func (m *Metrics) JobAbandoned() {
	m.inFlight.Add(-1)
	m.promInFlight.Dec()
	m.abandoned.Add(1)
	m.promJobs.WithLabelValues("abandoned").Inc()
}

// Submitted は投入されたジョブ数を返す
func (m *Metrics) Submitted() uint64 {
	return m.submitted.Load()
}

// Succeeded は成功したジョブ数を返す
func (m *Metrics) Succeeded() uint64 {
	return m.succeeded.Load()
}

// Failed は失敗したジョブ数を返す
func (m *Metrics) Failed() uint64 {
	return m.failed.Load()
}

// Discarded は破棄されたジョブ数を返す
func (m *Metrics) Discarded() uint64 {
	return m.discarded.Load()
}

// Abandoned は放棄されたジョブ数を返す
func (m *Metrics) Abandoned() uint64 {
	return m.abandoned.Load()
}

// InFlight は実行中のジョブ数を返す
func (m *Metrics) InFlight() int64 {
	return m.inFlight.Load()
}

// Completed は実行を終えたジョブ数（成功 + 失敗）を返す
func (m *Metrics) Completed() uint64 {
	return m.succeeded.Load() + m.failed.Load()
}

// JobsPerSecond は開始からの平均処理速度を返す
func (m *Metrics) JobsPerSecond() float64 {
	elapsed := time.Since(m.startTime).Seconds()
	if elapsed == 0 {
		return 0
	}
	return float64(m.Completed()) / elapsed
}

// AverageLatency は平均実行時間を返す
func (m *Metrics) AverageLatency() time.Duration {
	total := m.Completed()
	if total == 0 {
		return 0
	}
	return time.Duration(m.totalLatencyNs.Load() / total)
}

// P99Latency は成功ジョブの P99 実行時間を返す（サンプルベース）
func (m *Metrics) P99Latency() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.latencies) == 0 {
		return 0
	}

	sorted := make([]time.Duration, len(m.latencies))
	copy(sorted, m.latencies)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	idx := int(float64(len(sorted)) * 0.99)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// FailureRate は失敗率を返す（0.0〜1.0）
func (m *Metrics) FailureRate() float64 {
	total := m.Completed()
	if total == 0 {
		return 0
	}
	return float64(m.failed.Load()) / float64(total)
}

// Snapshot はメトリクスのスナップショット
type Snapshot struct {
	Submitted      uint64        `json:"submitted"`
	Succeeded      uint64        `json:"succeeded"`
	Failed         uint64        `json:"failed"`
	Discarded      uint64        `json:"discarded"`
	Abandoned      uint64        `json:"abandoned"`
	InFlight       int64         `json:"in_flight"`
	JobsPerSecond  float64       `json:"jobs_per_second"`
	AverageLatency time.Duration `json:"average_latency"`
	P99Latency     time.Duration `json:"p99_latency"`
	FailureRate    float64       `json:"failure_rate"`
	Elapsed        time.Duration `json:"elapsed"`
}

// Snapshot は現在のメトリクスのスナップショットを返す
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		Submitted:      m.Submitted(),
		Succeeded:      m.Succeeded(),
		Failed:         m.Failed(),
		Discarded:      m.Discarded(),
		Abandoned:      m.Abandoned(),
		InFlight:       m.InFlight(),
		JobsPerSecond:  m.JobsPerSecond(),
		AverageLatency: m.AverageLatency(),
		P99Latency:     m.P99Latency(),
		FailureRate:    m.FailureRate(),
		Elapsed:        time.Since(m.startTime),
	}
}
