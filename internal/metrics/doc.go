// Package metrics provides dispatch and reply metrics for a coordinator run.
//
// Metrics counts items dispatched to workers and replies filed as successes
// or failures. Latency is measured from dispatch to reply and sampled for
// the P99 estimate. Counters are also kept per worker so uneven load across
// the pool is visible.
//
// # Basic Usage
//
//	m := metrics.New()
//
//	m.RecordDispatch(workerID)
//	// ... reply arrives ...
//	m.RecordSuccess(workerID, env.Latency())
//
//	snap := m.Snapshot()
//	fmt.Printf("done: %d, in flight: %d, P99: %v\n",
//	    snap.Succeeded+snap.Failed, snap.InFlight, snap.P99Latency)
//
// # Configuration
//
// Use NewWithConfig for custom settings:
//
//	m := metrics.NewWithConfig(metrics.Config{MaxLatencySamples: 5000})
//
// # Thread Safety
//
// Totals use atomic counters; samples and per-worker stats are guarded by a
// mutex. All operations are safe for concurrent access.
package metrics
