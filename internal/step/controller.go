package step

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/docbench/docbench/internal/latency"
	"github.com/docbench/docbench/internal/loadgen"
	"github.com/docbench/docbench/internal/telemetry"
	"github.com/docbench/docbench/internal/transport"
	"github.com/docbench/docbench/internal/workload"
)

// LoadShape selects which generator escalates through the plan.
type LoadShape string

const (
	ShapeClosed LoadShape = "closed"
	ShapeRate   LoadShape = "rate"
)

// Config bundles everything the controller needs to escalate through a
// step plan.
type Config struct {
	Plan               []int
	Shape              LoadShape
	WarmupDuration     time.Duration
	MeasurementDuration time.Duration
	MaxErrorRate       float64
	BaselineFloorMicros int64
	// LinkBps is the known link speed in bits/sec, used for
	// networkUtilization; 0 means unknown (verdict falls back from
	// network-limited).
	LinkBps float64

	Workload  workload.Generator
	Transport transport.Transport
	Recorder  *latency.Recorder
	CPU       *telemetry.CPUSampler

	// RESTTelemetry / SNMPTelemetry are optional; either may be nil.
	RESTTelemetry *telemetry.Poller[telemetry.RESTCounters]
	SNMPTelemetry *telemetry.Poller[telemetry.SNMPCounters]
	SNMPEnabled   bool
	// SNMPInterval overrides telemetry.DefaultSNMPInterval when positive.
	SNMPInterval time.Duration

	Seeds func(worker int) *rand.Rand

	// WarmupRounds is fixed at 1; exposed as a field rather than a
	// constant so a future convergence heuristic has somewhere to live.
	WarmupRounds int
}

// Controller escalates through Config.Plan, producing one Record per
// step, stopping early if a step's error rate exceeds the ceiling.
type Controller struct {
	cfg Config
}

// New builds a Controller. WarmupRounds defaults to 1 when unset.
func New(cfg Config) *Controller {
	if cfg.WarmupRounds <= 0 {
		cfg.WarmupRounds = 1
	}
	return &Controller{cfg: cfg}
}

// Run executes the full plan, returning every recorded step. It returns
// early (with the records gathered so far) once a step's error rate
// breaches the ceiling.
func (c *Controller) Run(ctx context.Context) ([]Record, error) {
	records := make([]Record, 0, len(c.cfg.Plan))
	for _, v := range c.cfg.Plan {
		rec, err := c.runStep(ctx, v)
		if err != nil {
			return records, err
		}
		records = append(records, rec)
		if rec.StoppedRamp {
			break
		}
	}
	return records, nil
}

func (c *Controller) runStep(ctx context.Context, value int) (Record, error) {
	// Phase 1: warmup, discarding latencies but touching the server. The
	// warmup's own histogram is retained only long enough to derive the
	// mean service time used as the closed-loop generator's coordinated-
	// omission expected interval.
	var warmup generatorOutcome
	for i := 0; i < c.cfg.WarmupRounds; i++ {
		warmup = c.runGenerator(ctx, value, c.cfg.Workload.WarmupVariant(), c.cfg.WarmupDuration, 0)
	}
	var expectedIntervalMicros int64
	if warmup.metrics.Snapshot != nil {
		expectedIntervalMicros = int64(warmup.metrics.Snapshot.Mean())
	}

	// Phase 2: reset the recorder, start telemetry, measure.
	c.cfg.Recorder.Reset()
	if c.cfg.RESTTelemetry != nil {
		c.cfg.RESTTelemetry.Start(ctx, telemetry.DefaultInterval)
	}
	if c.cfg.SNMPTelemetry != nil {
		interval := c.cfg.SNMPInterval
		if interval <= 0 {
			interval = telemetry.DefaultSNMPInterval
		}
		c.cfg.SNMPTelemetry.Start(ctx, interval)
	}
	if c.cfg.CPU != nil {
		c.cfg.CPU.MarkStart()
	}
	var opBase map[workload.Kind]int64
	if kc, ok := c.cfg.Workload.(workload.KindCounted); ok {
		opBase = kc.OpCounts()
	}

	measured := c.runGenerator(ctx, value, c.cfg.Workload, c.cfg.MeasurementDuration, expectedIntervalMicros)

	// Phase 3: snapshot, stop pollers, derive the record.
	if c.cfg.RESTTelemetry != nil {
		c.cfg.RESTTelemetry.Stop()
	}
	if c.cfg.SNMPTelemetry != nil {
		c.cfg.SNMPTelemetry.Stop()
	}

	if measured.metrics.Defect != "" {
		return Record{}, fmt.Errorf("step: value %d: %s", value, measured.metrics.Defect)
	}

	rec := c.deriveRecord(value, measured)
	if kc, ok := c.cfg.Workload.(workload.KindCounted); ok {
		rec.OpCounts = opCountDelta(opBase, kc.OpCounts())
	}

	if rec.ErrorRate > ErrorCeiling(c.cfg.MaxErrorRate) {
		rec.StoppedRamp = true
	}
	return rec, nil
}

// ErrorCeiling floors the configured error-rate ceiling at 5%, so the
// ramp-stop check and the knee analyzer agree on what counts as too many
// errors.
func ErrorCeiling(configured float64) float64 {
	if configured < 0.05 {
		return 0.05
	}
	return configured
}

// opCountDelta subtracts a baseline snapshot of cumulative op counts
// from the current one, yielding this step's emissions only.
func opCountDelta(base, current map[workload.Kind]int64) map[workload.Kind]int64 {
	out := make(map[workload.Kind]int64, len(current))
	for kind, n := range current {
		out[kind] = n - base[kind]
	}
	return out
}

type generatorOutcome struct {
	metrics             loadgen.Metrics
	rollingRate         *loadgen.RollingRateStats
	scheduledOperations int64
}

func (c *Controller) runGenerator(ctx context.Context, value int, gen workload.Generator, dur time.Duration, expectedIntervalMicros int64) generatorOutcome {
	switch c.cfg.Shape {
	case ShapeRate:
		// Rate mode's expected interval is always 1e6/R directly, not
		// the warmup-derived value.
		m := loadgen.RunRate(ctx, loadgen.RateConfig{
			RateOpsPerSec: float64(value),
			Duration:      dur,
			Workload:      gen,
			Transport:     c.cfg.Transport,
			Recorder:      c.cfg.Recorder,
			Seeds:         c.cfg.Seeds,
		})
		return generatorOutcome{metrics: m.Metrics, rollingRate: &m.RollingRate, scheduledOperations: m.ScheduledOperations}
	default:
		m := loadgen.RunClosed(ctx, loadgen.ClosedConfig{
			Concurrency:            value,
			Duration:               dur,
			Workload:               gen,
			Transport:              c.cfg.Transport,
			Recorder:               c.cfg.Recorder,
			Seeds:                  c.cfg.Seeds,
			ExpectedIntervalMicros: expectedIntervalMicros,
		})
		return generatorOutcome{metrics: m}
	}
}

func (c *Controller) deriveRecord(value int, outcome generatorOutcome) Record {
	m := outcome.metrics
	total := m.Successes + m.Errors
	durationSeconds := c.cfg.MeasurementDuration.Seconds()

	rec := Record{
		Value:               value,
		Duration:            c.cfg.MeasurementDuration,
		Successes:           m.Successes,
		Errors:              m.Errors,
		BytesIn:             m.BytesIn,
		BytesOut:            m.BytesOut,
		RollingRate:         outcome.rollingRate,
		ScheduledOperations: outcome.scheduledOperations,
		ErrorDetails:        m.ErrorDetails,
	}

	if total > 0 {
		rec.ErrorRate = float64(m.Errors) / float64(total)
	}
	if durationSeconds > 0 {
		rec.Throughput = float64(total) / durationSeconds
		rec.NetworkUtilization = networkUtilization(m.BytesIn, m.BytesOut, c.cfg.LinkBps, durationSeconds)
	}

	rec.SampleCount = total
	if m.Snapshot != nil {
		rec.CorrectedCount = m.Snapshot.TotalCount()
		rec.Bins = m.Snapshot.Bins()
		rec.P50 = m.Snapshot.ValueAtPercentile(50)
		rec.P75 = m.Snapshot.ValueAtPercentile(75)
		rec.P90 = m.Snapshot.ValueAtPercentile(90)
		rec.P95 = m.Snapshot.ValueAtPercentile(95)
		rec.P99 = m.Snapshot.ValueAtPercentile(99)
		rec.P999 = m.Snapshot.ValueAtPercentile(99.9)
		rec.P9999 = m.Snapshot.ValueAtPercentile(99.99)
		rec.Max = m.Snapshot.Max()

		rec.NormalizedP50 = normalize(rec.P50, c.cfg.BaselineFloorMicros)
		rec.NormalizedP75 = normalize(rec.P75, c.cfg.BaselineFloorMicros)
		rec.NormalizedP90 = normalize(rec.P90, c.cfg.BaselineFloorMicros)
		rec.NormalizedP95 = normalize(rec.P95, c.cfg.BaselineFloorMicros)
		rec.NormalizedP99 = normalize(rec.P99, c.cfg.BaselineFloorMicros)
		rec.NormalizedP999 = normalize(rec.P999, c.cfg.BaselineFloorMicros)
		rec.NormalizedP9999 = normalize(rec.P9999, c.cfg.BaselineFloorMicros)
		rec.NormalizedMax = normalize(rec.Max, c.cfg.BaselineFloorMicros)
	}

	if c.cfg.CPU != nil {
		rec.ClientCPU = c.cfg.CPU.Utilization()
	}

	if c.cfg.SNMPEnabled && c.cfg.SNMPTelemetry != nil {
		snmp := c.cfg.SNMPTelemetry.Current()
		var rest telemetry.RESTCounters
		if c.cfg.RESTTelemetry != nil {
			rest = c.cfg.RESTTelemetry.Current()
		}
		rec.ServerCounters = telemetry.Merge(rest, snmp, true)
	} else if c.cfg.RESTTelemetry != nil {
		rec.ServerCounters = telemetry.Merge(c.cfg.RESTTelemetry.Current(), telemetry.SNMPCounters{}, false)
	}

	return rec
}

func networkUtilization(bytesIn, bytesOut int64, linkBps, durationSeconds float64) float64 {
	if linkBps <= 0 || durationSeconds <= 0 {
		return 0
	}
	bits := float64(bytesIn+bytesOut) * 8
	return bits / (linkBps * durationSeconds)
}
