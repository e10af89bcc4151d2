// Package metrics provides job execution metrics collection and reporting.
//
// Metrics counts submitted, succeeded, failed, discarded and abandoned jobs,
// tracks how many are in flight, and samples execution latency for average
// and P99 reporting. Every update is mirrored into Prometheus collectors
// registered on the Registerer passed to New.
//
// # Basic Usage
//
//	reg := prometheus.NewRegistry()
//	m := metrics.New(reg)
//
//	config := worker.DefaultPoolConfig()
//	config.Recorder = m
//	pool, err := worker.NewPoolWithConfig(ctx, config)
//
//	// Get a snapshot
//	snap := m.Snapshot()
//	fmt.Printf("done: %d, failed: %d, P99: %v\n",
//	    snap.Succeeded, snap.Failed, snap.P99Latency)
//
// Passing a nil Registerer keeps the collectors unregistered, which is
// convenient in tests.
//
// # Thread Safety
//
// Counters are atomic and latency samples are guarded by a RWMutex, so all
// operations are safe for concurrent access.
package metrics
