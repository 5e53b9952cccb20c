package loadgen

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/paulbellamy/ratecounter"

	"github.com/docbench/docbench/internal/latency"
	"github.com/docbench/docbench/internal/transport"
	"github.com/docbench/docbench/internal/workload"
)

// RollingWindow is the window over which RPS is averaged for reporting.
const RollingWindow = 3 * time.Second

// rateSampleInterval is how often the dispatcher samples the rolling
// counter to build the distribution backing RollingRateStats.
const rateSampleInterval = 100 * time.Millisecond

// defaultMaxWorkerSlots upper-bounds the auto-sized worker pool so an
// unreasonably high target rate cannot spawn unbounded goroutines.
const defaultMaxWorkerSlots = 4096

// RollingRateStats summarizes the rolling completed-ops-per-second
// series sampled across a step.
type RollingRateStats struct {
	Median      float64
	Mean        float64
	Min         float64
	Max         float64
	Last        float64
	SampleCount int
}

// RateConfig configures the rate-driven generator.
type RateConfig struct {
	RateOpsPerSec float64
	Duration      time.Duration
	Workload      workload.Generator
	Transport     transport.Transport
	Recorder      *latency.Recorder
	Seeds         func(slot int) *rand.Rand
	// MaxWorkerSlots overrides defaultMaxWorkerSlots when positive.
	MaxWorkerSlots int
}

// RateMetrics extends Metrics with rate-generator-specific figures.
type RateMetrics struct {
	Metrics
	ScheduledOperations int64
	RollingRate         RollingRateStats
}

// autoSizeSlots picks a worker-slot pool size from the target rate,
// upper-bounded to avoid unbounded goroutine growth. One slot can
// comfortably sustain on the order of 50 ops/sec against a typical
// document-database round trip; this is a sizing heuristic, not a
// correctness requirement, since slots that stay busy simply cause the
// dispatcher to record missed-slot events.
func autoSizeSlots(rate float64, max int) int {
	if max <= 0 {
		max = defaultMaxWorkerSlots
	}
	slots := int(rate/50) + 1
	if slots < 1 {
		slots = 1
	}
	if slots > max {
		slots = max
	}
	return slots
}

// RunRate dispatches operations at average inter-arrival 1/R into a
// K-slot worker pool. Coordinated-omission correction
// uses expectedInterval = 1e6/R microseconds.
func RunRate(ctx context.Context, cfg RateConfig) RateMetrics {
	deadline, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	slots := autoSizeSlots(cfg.RateOpsPerSec, cfg.MaxWorkerSlots)
	expectedIntervalMicros := int64(1e6 / cfg.RateOpsPerSec)
	interArrival := time.Duration(float64(time.Second) / cfg.RateOpsPerSec)

	var m RateMetrics
	tally := newErrorTally(cancel)
	// sem is a channel of slot tokens rather than a bare counting
	// semaphore: handing out the token's own index (instead of a
	// round-robin counter decoupled from actual occupancy) guarantees
	// two concurrently in-flight operations never share a slot index, so
	// each slot's private RNG and recorder bucket never race.
	sem := make(chan int, slots)
	for i := 0; i < slots; i++ {
		sem <- i
	}
	completed := ratecounter.NewRateCounter(RollingWindow)

	var samples []float64
	var samplesMu sync.Mutex
	sampleDone := make(chan struct{})
	go func() {
		defer close(sampleDone)
		ticker := time.NewTicker(rateSampleInterval)
		defer ticker.Stop()
		for {
			select {
			case <-deadline.Done():
				return
			case <-ticker.C:
				rps := float64(completed.Rate()) / RollingWindow.Seconds()
				samplesMu.Lock()
				samples = append(samples, rps)
				samplesMu.Unlock()
			}
		}
	}()

	var wg sync.WaitGroup
	ticker := time.NewTicker(interArrival)
	defer ticker.Stop()

dispatch:
	for {
		select {
		case <-deadline.Done():
			break dispatch
		case <-ticker.C:
			atomic.AddInt64(&m.ScheduledOperations, 1)
			select {
			case s := <-sem:
				wg.Add(1)
				rng := cfg.Seeds(s)
				go func() {
					defer wg.Done()
					defer func() { sem <- s }()
					runOneRate(deadline, s, cfg, rng, expectedIntervalMicros, &m.Metrics, completed, tally)
				}()
			default:
				// every slot busy; the scheduled count above still grew,
				// the completion rate simply lags it.
			}
		}
	}

	wg.Wait()
	<-sampleDone

	m.Metrics.Snapshot = cfg.Recorder.Snapshot()
	m.RollingRate = summarize(samples)
	tally.fill(&m.Metrics)
	return m
}

func runOneRate(ctx context.Context, slot int, cfg RateConfig, rng *rand.Rand, expectedIntervalMicros int64, m *Metrics, rc *ratecounter.RateCounter, tally *errorTally) {
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

	rc.Incr(1)
	if err != nil || !res.Success {
		atomic.AddInt64(&m.Errors, 1)
		detail := res.ErrorDetail
		if err != nil {
			detail = err.Error()
		}
		tally.addError(detail)
	} else {
		atomic.AddInt64(&m.Successes, 1)
	}
	if rerr := cfg.Recorder.RecordWithExpectedInterval(slot, elapsed.Microseconds(), expectedIntervalMicros); rerr != nil {
		tally.addDefect(rerr.Error())
	}
}

func summarize(samples []float64) RollingRateStats {
	if len(samples) == 0 {
		return RollingRateStats{}
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}

	return RollingRateStats{
		Median:      sorted[len(sorted)/2],
		Mean:        sum / float64(len(sorted)),
		Min:         sorted[0],
		Max:         sorted[len(sorted)-1],
		Last:        samples[len(samples)-1],
		SampleCount: len(samples),
	}
}
