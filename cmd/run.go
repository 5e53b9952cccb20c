package cmd

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/docbench/docbench/internal/calibrate"
	"github.com/docbench/docbench/internal/keydist"
	"github.com/docbench/docbench/internal/knee"
	"github.com/docbench/docbench/internal/latency"
	"github.com/docbench/docbench/internal/payload"
	"github.com/docbench/docbench/internal/rng"
	"github.com/docbench/docbench/internal/step"
	"github.com/docbench/docbench/internal/stepplan"
	"github.com/docbench/docbench/internal/summary"
	"github.com/docbench/docbench/internal/telemetry"
	"github.com/docbench/docbench/internal/transport"
	"github.com/docbench/docbench/internal/workload"
)

// rateWorkerSlotCap mirrors loadgen's defaultMaxWorkerSlots so the
// recorder can be sized for the largest worker index the rate generator
// will ever hand it, without reaching into loadgen's unexported sizing
// heuristic.
const rateWorkerSlotCap = 4096

// runBench wires every package together for one invocation: build the
// transport and negotiate its protocol, calibrate the baseline, preload
// the keyspace, escalate through the ramp, analyze the knee, and persist
// the summary. shape selects closed-loop vs rate-driven escalation.
func runBench(cmd *cobra.Command, shape step.LoadShape, rampPlanStr string) error {
	if err := setupLogging(); err != nil {
		return fmt.Errorf("cmd: %w", err)
	}
	if opts.URL == "" {
		return fmt.Errorf("cmd: --url is required")
	}

	fc, err := loadFileConfig(opts.Config)
	if err != nil {
		return err
	}
	opts.applyFileDefaults(fc, cmd.Flags().Changed)

	docSizeBytes, err := parseSizeBytes(opts.DocSize)
	if err != nil {
		return fmt.Errorf("cmd: --doc-size: %w", err)
	}
	warmup, err := parseDurationUnit(opts.Warmup)
	if err != nil {
		return fmt.Errorf("cmd: --warmup: %w", err)
	}
	duration, err := parseDurationUnit(opts.Duration)
	if err != nil {
		return fmt.Errorf("cmd: --duration: %w", err)
	}
	maxErrors, err := parsePercent(opts.MaxErrors)
	if err != nil {
		return fmt.Errorf("cmd: --max-errors: %w", err)
	}
	dThr, dP95, err := parseKneeRule(opts.KneeRule)
	if err != nil {
		return fmt.Errorf("cmd: --knee-rule: %w", err)
	}
	plan, err := parseRampPlan(rampPlanStr)
	if err != nil {
		return fmt.Errorf("cmd: ramp plan: %w", err)
	}
	planValues, err := stepplan.Expand(plan)
	if err != nil {
		return fmt.Errorf("cmd: %w", err)
	}
	maxPlanValue := planValues[0]
	for _, v := range planValues {
		if v > maxPlanValue {
			maxPlanValue = v
		}
	}
	numWorkers := maxPlanValue
	if shape == step.ShapeRate {
		numWorkers = maxPlanValue/50 + 1
		if numWorkers > rateWorkerSlotCap {
			numWorkers = rateWorkerSlotCap
		}
	}

	partitioned := rng.NewPartitioned(rng.Seed(opts.Seed))

	dist, err := keydist.New(keydist.Kind(opts.Distribution), opts.ZipfianTheta, 0)
	if err != nil {
		return fmt.Errorf("cmd: --distribution: %w", err)
	}

	pool := payload.NewPool(opts.Seed, docSizeBytes)
	// The counter starts at the preload high-water mark; preload writes
	// ids 1..Preload directly so only run-time inserts draw from it. High
	// worker counts get the sharded counter to spread insert contention.
	var counter workload.SizedCounter = workload.NewAtomicCounter(int64(opts.Preload))
	if numWorkers > workload.ShardedCounterWorkers {
		counter = workload.NewShardedCounter(int64(opts.Preload), workload.ShardedCounterShards)
	}
	space := &workload.Keyspace{Dist: dist, Payloads: pool, Counter: counter, BulkBatchSize: 100}

	profile, vectorExact, err := resolveProfile(opts.Profile)
	if err != nil {
		return err
	}
	mix := workload.NormalizeMix(opts.Reads, opts.Writes, opts.Updates)
	gen, err := workload.New(workload.Config{Profile: profile, Mix: mix, Space: space, VectorExact: vectorExact})
	if err != nil {
		return fmt.Errorf("cmd: --profile: %w", err)
	}

	endpoints := transport.EndpointsFor(opts.Database)
	rawCfg := transport.RawConfig{
		BaseURL:        opts.URL,
		Endpoints:      endpoints,
		Compression:    transport.Compression(opts.Compression),
		RequestTimeout: 10 * time.Second,
	}

	ctx := context.Background()
	prober := transport.HTTPProber{URL: opts.URL + endpoints.BuildVer}
	negotiated, err := transport.Negotiate(ctx, prober, transport.ProtocolVersion(opts.HTTPVersion), opts.StrictHTTPVersion)
	if err != nil {
		return fmt.Errorf("cmd: negotiate protocol: %w", err)
	}
	rawCfg.Protocol = negotiated

	var tr transport.Transport
	switch opts.Transport {
	case "client":
		tr, err = transport.NewClient(rawCfg)
	default:
		tr, err = transport.NewRaw(rawCfg)
	}
	if err != nil {
		return fmt.Errorf("cmd: build transport: %w", err)
	}
	defer tr.Close()

	if err := tr.Validate(ctx); err != nil {
		return fmt.Errorf("cmd: validate target: %w", err)
	}

	logrus.Infof("negotiated HTTP/%s, preloading %d documents", negotiated, opts.Preload)
	logrus.Infof("profile %s: %s", gen.Name(), gen.Describe())
	preloadRNG := partitioned.ForSubsystem(rng.Primary)
	for id := int64(1); id <= int64(opts.Preload); id++ {
		if err := tr.PutDocument(ctx, id, pool.Get(preloadRNG)); err != nil {
			return fmt.Errorf("cmd: preload document %d: %w", id, err)
		}
	}

	calibrator := calibrate.New(tr, partitioned.ForSubsystem(rng.Primary))
	calResult, err := calibrator.Run(ctx, []string{endpoints.BuildVer, endpoints.License})
	if err != nil {
		return fmt.Errorf("cmd: calibrate: %w", err)
	}
	if calResult.Disabled {
		logrus.Warnf("calibration failed on every endpoint (%d attempts, %d failed); latency normalization disabled",
			calResult.Diagnostics.TotalAttempts, calResult.Diagnostics.Failed)
		for reason, n := range calResult.Diagnostics.FailureReasons {
			logrus.Warnf("  calibration failure ×%d: %s", n, reason)
		}
	}

	recorder := latency.NewRecorder(numWorkers)
	cpuSampler := telemetry.NewCPUSampler()

	restAdapter := telemetry.NewRESTAdapter(opts.URL+endpoints.AdminMem, opts.URL+endpoints.AdminCPU, opts.URL+endpoints.AdminIO, 1)
	restPoller := telemetry.NewPoller[telemetry.RESTCounters](restAdapter.Sample, func(err error) {
		logrus.Debugf("rest telemetry sample failed: %v", err)
	})

	var snmpPoller *telemetry.Poller[telemetry.SNMPCounters]
	var snmpInterval time.Duration
	if opts.SNMPEnabled {
		snmpInterval, err = parseDurationUnit(opts.SNMPInterval)
		if err != nil {
			return fmt.Errorf("cmd: --snmp-interval: %w", err)
		}
		snmpTimeout, err := parseDurationUnit(opts.SNMPTimeout)
		if err != nil {
			return fmt.Errorf("cmd: --snmp-timeout: %w", err)
		}
		snmpAdapter := telemetry.NewSNMPAdapter(hostOnly(opts.URL), uint16(opts.SNMPPort), telemetry.DefaultSNMPCommunity, telemetry.SNMPProfile(opts.SNMPProfile), snmpTimeout)
		snmpPoller = telemetry.NewPoller[telemetry.SNMPCounters](snmpAdapter.Sample, func(err error) {
			logrus.Debugf("snmp telemetry sample failed: %v", err)
		})
		snmpPoller.KeepHistory()
	}

	linkBps := opts.LinkMbps * 1_000_000

	ctrl := step.New(step.Config{
		Plan:                planValues,
		Shape:               shape,
		WarmupDuration:      warmup,
		MeasurementDuration: duration,
		MaxErrorRate:        maxErrors,
		BaselineFloorMicros: calResult.FloorMicros,
		LinkBps:             linkBps,
		Workload:            gen,
		Transport:           tr,
		Recorder:            recorder,
		CPU:                 cpuSampler,
		RESTTelemetry:       restPoller,
		SNMPTelemetry:       snmpPoller,
		SNMPEnabled:         opts.SNMPEnabled,
		SNMPInterval:        snmpInterval,
		Seeds: func(worker int) *rand.Rand {
			return partitioned.ForSubsystem(rng.Worker(worker))
		},
	})

	// A ramp error (e.g. a measurement defect aborting a step) still
	// yields a summary for every step completed before it.
	records, rampErr := ctrl.Run(ctx)
	if rampErr != nil {
		logrus.Errorf("ramp stopped early: %v", rampErr)
	}

	thresholds := knee.Thresholds{DThr: dThr, DP95: dP95, MaxErr: maxErrors}
	kneeResult := knee.Analyze(records, thresholds)
	verdict := knee.VerdictUnknown
	linkSpeedKnown := opts.LinkMbps > 0 || opts.NetworkLimited
	if kneeResult.KneeIndex >= 0 && kneeResult.KneeIndex < len(records) {
		verdict = knee.Classify(records[kneeResult.KneeIndex], linkSpeedKnown)
	}

	var histograms []summary.HistogramArtifact
	if opts.Latencies != "" {
		histograms = make([]summary.HistogramArtifact, 0, len(records))
		for _, rec := range records {
			artifact := summary.HistogramArtifact{StepValue: rec.Value}
			switch opts.Latencies {
			case "normalized":
				artifact.Bins = normalizeBins(rec.Bins, calResult.FloorMicros)
			case "both":
				artifact.Bins = rec.Bins
				artifact.NormalizedBins = normalizeBins(rec.Bins, calResult.FloorMicros)
			default:
				artifact.Bins = rec.Bins
			}
			histograms = append(histograms, artifact)
		}
	}

	sOpts := summary.Options{
		URL:          opts.URL,
		Database:     opts.Database,
		Profile:      opts.Profile,
		Distribution: opts.Distribution,
		DocSizeBytes: docSizeBytes,
		Transport:    opts.Transport,
		Compression:  opts.Compression,
		HTTPVersion:  string(negotiated),
		LoadShape:    string(shape),
		Seed:         opts.Seed,
	}
	var cal *calibrate.Result
	if !calResult.Disabled {
		cal = &calResult
	}
	s := summary.Build(sOpts, records, kneeResult, verdict, cal, histograms, time.Now())
	s.ClientCompression = opts.Compression
	s.EffectiveHTTPVersion = string(negotiated)
	if snmpPoller != nil {
		s.SNMPTimeSeries = snmpPoller.History()
		s.SNMPAggregations = summary.AggregateSNMP(s.SNMPTimeSeries)
	}

	if err := summary.WriteJSON(s, opts.Out); err != nil {
		return fmt.Errorf("cmd: %w", err)
	}
	if opts.OutCSV != "" {
		if err := summary.WriteCSV(s, opts.OutCSV); err != nil {
			return fmt.Errorf("cmd: %w", err)
		}
	}

	if logrus.IsLevelEnabled(logrus.DebugLevel) {
		for _, rec := range records {
			for detail, n := range rec.ErrorDetails {
				logrus.Debugf("step %d: ×%d %s", rec.Value, n, detail)
			}
		}
	}

	if kneeResult.KneeIndex >= 0 {
		logrus.Infof("knee at step value %d (%s), verdict %s", records[kneeResult.KneeIndex].Value, kneeResult.Reason, verdict)
	} else {
		logrus.Warn("no knee identified within the configured ramp")
	}

	return rampErr
}

// normalizeBins shifts each histogram bucket's edges down by floorMicros,
// clamped at 0, mirroring the percentile normalization rule
// (normalized = max(0, raw - baselineFloor)).
func normalizeBins(bins []latency.BinEdge, floorMicros int64) []latency.BinEdge {
	out := make([]latency.BinEdge, len(bins))
	for i, b := range bins {
		out[i] = latency.BinEdge{
			FromMicros: clampSub(b.FromMicros, floorMicros),
			ToMicros:   clampSub(b.ToMicros, floorMicros),
			Count:      b.Count,
		}
	}
	return out
}

func clampSub(v, floor int64) int64 {
	d := v - floor
	if d < 0 {
		return 0
	}
	return d
}

func hostOnly(url string) string {
	s := url
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.Index(s, "/"); i >= 0 {
		s = s[:i]
	}
	if i := strings.Index(s, ":"); i >= 0 {
		s = s[:i]
	}
	return s
}
