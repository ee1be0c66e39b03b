// ABOUTME: Stream health snapshot and counters
// ABOUTME: Snapshots are sampled on demand and carry no ownership
package stream

import "sync/atomic"

// Health is a read-only snapshot of a stream's buffering state
type Health struct {
	FillLevel float64 // 0.0 - 1.0
	Underruns uint64
	Overruns  uint64
	LatencyMs float64
	State     State
}

// counters are monotonic for the lifetime of a stream
type counters struct {
	underruns atomic.Uint64
	overruns  atomic.Uint64
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
