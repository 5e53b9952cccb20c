// Package loadgen runs one step's worth of operations against the
// target, either closed-loop (fixed concurrency, workers pull as fast as
// they complete) or rate-driven (a dispatcher paces arrivals at a target
// rate into a bounded worker-slot pool).
package loadgen

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/docbench/docbench/internal/latency"
	"github.com/docbench/docbench/internal/transport"
	"github.com/docbench/docbench/internal/workload"
)

// Metrics is the aggregated outcome of one generator run.
type Metrics struct {
	Successes int64
	Errors    int64
	Cancelled int64
	BytesOut  int64
	BytesIn   int64
	Snapshot  *latency.Snapshot
	// ErrorDetails deduplicates per-operation failure messages by count,
	// retained for the verbose end-of-run summary.
	ErrorDetails map[string]int64
	// Defect is non-empty when a recorded latency breached the
	// histogram's upper bound, which indicates a measurement defect and
	// aborts the step rather than folding into ErrorDetails.
	Defect string
}

// errorTally accumulates deduplicated error messages and the first
// measurement defect across all workers of one run.
type errorTally struct {
	mu      sync.Mutex
	details map[string]int64
	defect  string
	abort   context.CancelFunc
}

func newErrorTally(abort context.CancelFunc) *errorTally {
	return &errorTally{details: make(map[string]int64), abort: abort}
}

func (t *errorTally) addError(detail string) {
	if detail == "" {
		detail = "unknown error"
	}
	t.mu.Lock()
	t.details[detail]++
	t.mu.Unlock()
}

// addDefect records the first invariant violation and cancels the run so
// remaining workers stop promptly.
func (t *errorTally) addDefect(msg string) {
	t.mu.Lock()
	if t.defect == "" {
		t.defect = msg
	}
	t.mu.Unlock()
	t.abort()
}

func (t *errorTally) fill(m *Metrics) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.details) > 0 {
		m.ErrorDetails = t.details
	}
	m.Defect = t.defect
}

// ClosedConfig configures the closed-loop generator.
type ClosedConfig struct {
	Concurrency int
	Duration    time.Duration
	Workload    workload.Generator
	Transport   transport.Transport
	Recorder    *latency.Recorder
	// Seeds provides one *rand.Rand per worker index, isolated so no
	// worker shares mutable RNG state with another (see internal/rng).
	Seeds func(worker int) *rand.Rand
	// ExpectedIntervalMicros, when positive, enables coordinated-omission
	// correction. The closed-loop generator's expected interval is
	// derived from the warmup's observed mean service time, not a
	// fictitious target rate. Zero disables correction (e.g. the
	// warmup phase itself, which discards its own latencies).
	ExpectedIntervalMicros int64
}

// RunClosed creates Concurrency long-lived worker tasks, each running a
// tight loop until the shared deadline fires. Workers never spawn work
// faster than they complete it: concurrency is bounded by the worker
// count, not an arrival rate.
func RunClosed(ctx context.Context, cfg ClosedConfig) Metrics {
	deadline, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	var m Metrics
	tally := newErrorTally(cancel)
	var wg sync.WaitGroup
	wg.Add(cfg.Concurrency)

	for w := 0; w < cfg.Concurrency; w++ {
		go func(worker int) {
			defer wg.Done()
			rng := cfg.Seeds(worker)
			for {
				select {
				case <-deadline.Done():
					return
				default:
				}
				runOneClosed(deadline, worker, cfg, rng, &m, tally)
			}
		}(w)
	}

	wg.Wait()
	m.Snapshot = cfg.Recorder.Snapshot()
	tally.fill(&m)
	return m
}

func runOneClosed(ctx context.Context, worker int, cfg ClosedConfig, rng *rand.Rand, m *Metrics, tally *errorTally) {
	op := cfg.Workload.NextOperation(rng)
	start := time.Now()
	res, err := cfg.Transport.Execute(ctx, op)
	elapsed := time.Since(start)

	atomic.AddInt64(&m.BytesOut, res.BytesOut)
	atomic.AddInt64(&m.BytesIn, res.BytesIn)

	if res.Cancelled {
		atomic.AddInt64(&m.Cancelled, 1)
		return
	}

	record := func(micros int64) {
		var rerr error
		if cfg.ExpectedIntervalMicros > 0 {
			rerr = cfg.Recorder.RecordWithExpectedInterval(worker, micros, cfg.ExpectedIntervalMicros)
		} else {
			rerr = cfg.Recorder.Record(worker, micros)
		}
		if rerr != nil {
			tally.addDefect(rerr.Error())
		}
	}

	if err != nil || !res.Success {
		atomic.AddInt64(&m.Errors, 1)
		detail := res.ErrorDetail
		if err != nil {
			detail = err.Error()
		}
		tally.addError(detail)
		record(elapsed.Microseconds())
		return
	}
	atomic.AddInt64(&m.Successes, 1)
	record(elapsed.Microseconds())
}
