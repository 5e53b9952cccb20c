// Package step drives the per-step warmup→measure→snapshot cycle that
// escalates through a step plan, producing the step records the knee
// analyzer and summary assembler consume.
package step

import (
	"time"

	"github.com/docbench/docbench/internal/latency"
	"github.com/docbench/docbench/internal/loadgen"
	"github.com/docbench/docbench/internal/telemetry"
	"github.com/docbench/docbench/internal/workload"
)

// Record is one fully-derived step outcome.
type Record struct {
	Value    int
	Duration time.Duration

	Successes int64
	Errors    int64
	ErrorRate float64
	Throughput float64 // (successes+errors)/duration seconds

	// SampleCount is successes+errors; CorrectedCount additionally counts
	// the coordinated-omission back-filled synthetic samples, so
	// SampleCount <= CorrectedCount always holds.
	SampleCount    int64
	CorrectedCount int64
	// Bins holds the step's histogram buckets for optional export
	// when histogram artifacts are requested.
	Bins []latency.BinEdge

	BytesIn  int64
	BytesOut int64

	// Raw percentiles, in microseconds.
	P50, P75, P90, P95, P99, P999, P9999, Max int64

	// Normalized = max(0, raw - baselineFloor), in microseconds, for
	// every raw percentile point above.
	NormalizedP50, NormalizedP75, NormalizedP90, NormalizedP95   int64
	NormalizedP99, NormalizedP999, NormalizedP9999, NormalizedMax int64

	NetworkUtilization float64
	ClientCPU          float64
	ServerCounters     telemetry.ServerCounters

	// OpCounts is how many operations of each kind the workload emitted
	// during this step's measurement phase, for generators that track it
	// (currently the mixed profile).
	OpCounts map[workload.Kind]int64

	// RollingRate is populated only for rate-driven steps.
	RollingRate         *loadgen.RollingRateStats
	ScheduledOperations int64

	// ErrorDetails deduplicates transport failure messages by count for
	// the verbose end-of-run summary.
	ErrorDetails map[string]int64

	// StoppedRamp is true when this step's errorRate exceeded the
	// configured ceiling, so the controller halted after recording it.
	StoppedRamp bool
}

// P50f and P95f expose the raw percentiles as float64 microseconds for
// the knee analyzer's delta arithmetic.
func (r Record) P50f() float64 { return float64(r.P50) }
func (r Record) P95f() float64 { return float64(r.P95) }

func normalize(raw, floor int64) int64 {
	v := raw - floor
	if v < 0 {
		return 0
	}
	return v
}
