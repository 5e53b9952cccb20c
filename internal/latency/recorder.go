// Package latency records per-operation latencies into a high-dynamic-
// range histogram with coordinated-omission correction, and hands off
// immutable per-step snapshots to the step controller.
//
// Concurrency model: rather than guarding one shared histogram with a
// mutex on every RecordValue call, each worker gets its own
// *hdrhistogram.Histogram, merged at snapshot time. A worker is the
// sole writer to its own histogram, so the hot path never contends;
// Snapshot is the single reader, called only once all workers for the
// current phase have stopped advancing (the step controller never
// overlaps measurement with snapshotting).
package latency

import (
	"fmt"

	"github.com/codahale/hdrhistogram"
)

const (
	// MinTrackableMicros is the lowest latency value the histogram can
	// distinguish (1 microsecond).
	MinTrackableMicros = 1
	// MaxTrackableMicros is the highest latency the histogram tracks (60
	// seconds). A sample above this is a measurement defect and is
	// rejected rather than clamped.
	MaxTrackableMicros = 60 * 1000 * 1000
	// SignificantFigures is the precision hdrhistogram preserves (~0.1%).
	SignificantFigures = 3
)

// Recorder owns one histogram per worker slot, reset at each step
// boundary.
type Recorder struct {
	workers []*hdrhistogram.Histogram
}

// NewRecorder allocates a Recorder with numWorkers independent
// histograms.
func NewRecorder(numWorkers int) *Recorder {
	if numWorkers < 1 {
		numWorkers = 1
	}
	r := &Recorder{workers: make([]*hdrhistogram.Histogram, numWorkers)}
	for i := range r.workers {
		r.workers[i] = hdrhistogram.New(MinTrackableMicros, MaxTrackableMicros, SignificantFigures)
	}
	return r
}

// Record stores a plain latency sample, in microseconds, for worker.
// Returns an error if micros exceeds MaxTrackableMicros, a measurement
// defect that should abort the step.
func (r *Recorder) Record(worker int, micros int64) error {
	if micros > MaxTrackableMicros {
		return fmt.Errorf("latency: sample %dus exceeds %dus upper bound, measurement defect", micros, int64(MaxTrackableMicros))
	}
	if err := r.workers[worker%len(r.workers)].RecordValue(micros); err != nil {
		return fmt.Errorf("latency: record: %w", err)
	}
	return nil
}

// RecordWithExpectedInterval stores an observed latency and back-fills
// synthetic samples at expectedIntervalMicros whenever observed is much
// larger than the expected interval, correcting for coordinated omission.
func (r *Recorder) RecordWithExpectedInterval(worker int, observedMicros, expectedIntervalMicros int64) error {
	if observedMicros > MaxTrackableMicros {
		return fmt.Errorf("latency: sample %dus exceeds %dus upper bound, measurement defect", observedMicros, int64(MaxTrackableMicros))
	}
	if expectedIntervalMicros <= 0 {
		return r.Record(worker, observedMicros)
	}
	if err := r.workers[worker%len(r.workers)].RecordCorrectedValue(observedMicros, expectedIntervalMicros); err != nil {
		return fmt.Errorf("latency: record corrected: %w", err)
	}
	return nil
}

// Snapshot merges every worker histogram into one immutable histogram and
// resets all worker histograms so the next step's warmup starts clean.
// Must only be called once no worker is concurrently recording (i.e.
// between the measurement phase ending and the next warmup starting).
func (r *Recorder) Snapshot() *Snapshot {
	merged := hdrhistogram.New(MinTrackableMicros, MaxTrackableMicros, SignificantFigures)
	for _, h := range r.workers {
		merged.Merge(h)
		h.Reset()
	}
	return &Snapshot{hist: merged}
}

// Reset clears every worker histogram without producing a snapshot, used
// to discard warmup-phase latencies before measurement begins.
func (r *Recorder) Reset() {
	for _, h := range r.workers {
		h.Reset()
	}
}

// Snapshot is an immutable view of one step's recorded latencies.
type Snapshot struct {
	hist *hdrhistogram.Histogram
}

// ValueAtPercentile returns the latency, in microseconds, at percentile p
// (0..100). Returns 0 if no samples were recorded.
func (s *Snapshot) ValueAtPercentile(p float64) int64 {
	if s.hist.TotalCount() == 0 {
		return 0
	}
	return s.hist.ValueAtQuantile(p)
}

// TotalCount returns the number of samples (including coordinated-
// omission-corrected synthetic ones) in the snapshot.
func (s *Snapshot) TotalCount() int64 {
	return s.hist.TotalCount()
}

// Max returns the highest recorded latency in microseconds, or 0 if
// empty.
func (s *Snapshot) Max() int64 {
	return s.hist.Max()
}

// Mean returns the arithmetic mean of recorded latencies in microseconds,
// or 0 if empty. Used as the closed-loop generator's coordinated-omission
// expected interval, derived from a warmup's observed mean service time.
func (s *Snapshot) Mean() float64 {
	if s.hist.TotalCount() == 0 {
		return 0
	}
	return s.hist.Mean()
}

// BinEdge is one (from, to, count) bucket of the underlying histogram,
// exported for JSON serialization of histogram artifacts.
type BinEdge struct {
	FromMicros int64 `json:"from_us"`
	ToMicros   int64 `json:"to_us"`
	Count      int64 `json:"count"`
}

// Bins returns the non-empty bin edges and counts backing this snapshot,
// suitable for reconstructing approximate percentiles externally.
func (s *Snapshot) Bins() []BinEdge {
	bars := s.hist.Distribution()
	edges := make([]BinEdge, 0, len(bars))
	for _, b := range bars {
		if b.Count == 0 {
			continue
		}
		edges = append(edges, BinEdge{FromMicros: b.From, ToMicros: b.To, Count: b.Count})
	}
	return edges
}
