// Package summary assembles step records, the knee verdict, histogram
// artifacts, calibration diagnostics, and telemetry time series into the
// persisted JSON/CSV outputs.
package summary

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/docbench/docbench/internal/calibrate"
	"github.com/docbench/docbench/internal/knee"
	"github.com/docbench/docbench/internal/latency"
	"github.com/docbench/docbench/internal/step"
	"github.com/docbench/docbench/internal/telemetry"
)

// Options mirrors the run configuration fields worth echoing back into
// the persisted summary for reproducibility.
type Options struct {
	URL              string `json:"url"`
	Database         string `json:"database"`
	Profile          string `json:"profile"`
	Distribution     string `json:"distribution"`
	DocSizeBytes     int    `json:"docSizeBytes"`
	Transport        string `json:"transport"`
	Compression      string `json:"compression"`
	HTTPVersion      string `json:"httpVersion"`
	LoadShape        string `json:"loadShape"`
	Seed             int64  `json:"seed"`
}

// StepRow is the JSON-serializable projection of a step.Record.
type StepRow struct {
	Value               int      `json:"value"`
	Successes           int64    `json:"successes"`
	Errors              int64    `json:"errors"`
	ErrorRate           float64  `json:"errorRate"`
	Throughput          float64  `json:"throughput"`
	BytesIn             int64    `json:"bytesIn"`
	BytesOut            int64    `json:"bytesOut"`
	SampleCount         int64    `json:"sampleCount"`
	CorrectedCount      int64    `json:"correctedCount"`
	P50Micros           int64    `json:"p50Us"`
	P75Micros           int64    `json:"p75Us"`
	P90Micros           int64    `json:"p90Us"`
	P95Micros           int64    `json:"p95Us"`
	P99Micros           int64    `json:"p99Us"`
	P999Micros          int64    `json:"p999Us"`
	P9999Micros         int64    `json:"p9999Us"`
	MaxMicros           int64    `json:"maxUs"`
	NormalizedP50Micros   int64  `json:"normalizedP50Us"`
	NormalizedP75Micros   int64  `json:"normalizedP75Us"`
	NormalizedP90Micros   int64  `json:"normalizedP90Us"`
	NormalizedP95Micros   int64  `json:"normalizedP95Us"`
	NormalizedP99Micros   int64  `json:"normalizedP99Us"`
	NormalizedP999Micros  int64  `json:"normalizedP999Us"`
	NormalizedP9999Micros int64  `json:"normalizedP9999Us"`
	NormalizedMaxMicros   int64  `json:"normalizedMaxUs"`
	NetworkUtilization  float64  `json:"networkUtilization"`
	ClientCPU           float64  `json:"clientCpu"`
	ServerMemoryMiB     float64  `json:"serverMemoryMiB"`
	ServerCPU           float64  `json:"serverCpu"`
	ServerIOReadMiBps   float64  `json:"serverIoReadMiBps"`
	ServerIOWriteMiBps  float64  `json:"serverIoWriteMiBps"`
	ServerIOAdvisory    bool     `json:"serverIoAdvisory"`
	ScheduledOperations int64    `json:"scheduledOperations,omitempty"`
	OpCounts            map[string]int64 `json:"opCounts,omitempty"`
	TargetThroughput    *float64 `json:"targetThroughput,omitempty"`
	RollingRateMedian   *float64 `json:"rollingRateMedian,omitempty"`
	RollingRateMean     *float64 `json:"rollingRateMean,omitempty"`
	ErrorDetails        map[string]int64 `json:"errorDetails,omitempty"`
	StoppedRamp         bool     `json:"stoppedRamp"`
}

// Knee is the persisted knee verdict.
type Knee struct {
	StepIndex int          `json:"stepIndex"`
	Reason    string       `json:"reason"`
	Verdict   knee.Verdict `json:"verdict"`
}

// Calibration is the persisted calibration summary.
type Calibration struct {
	PerEndpoint []calibrate.EndpointSample `json:"perEndpointSamples"`
	Disabled    bool                       `json:"normalizationDisabled"`
	FloorMicros int64                      `json:"floorUs"`
}

// HistogramArtifact is an optional per-step latency histogram export.
// NormalizedBins is populated only when --latencies=both asked for both
// variants at once; otherwise Bins alone holds whichever variant (raw or
// normalized) was requested.
type HistogramArtifact struct {
	StepValue      int               `json:"stepValue"`
	Bins           []latency.BinEdge `json:"bins"`
	NormalizedBins []latency.BinEdge `json:"normalizedBins,omitempty"`
}

// SNMPFieldAggregate is min/mean/max over one SNMP gauge across a run.
type SNMPFieldAggregate struct {
	Min  float64 `json:"min"`
	Mean float64 `json:"mean"`
	Max  float64 `json:"max"`
}

// SNMPAggregations condenses the polled SNMP series into per-field
// run-level aggregates.
type SNMPAggregations struct {
	MachineCPU SNMPFieldAggregate `json:"machineCpu"`
	ProcessCPU SNMPFieldAggregate `json:"processCpu"`
	MemoryMiB  SNMPFieldAggregate `json:"memoryMiB"`
}

// Summary is the full persisted JSON document.
type Summary struct {
	Options              Options                                   `json:"options"`
	Steps                []StepRow                                 `json:"steps"`
	Knee                 *Knee                                     `json:"knee,omitempty"`
	Verdict              string                                    `json:"verdict"`
	ClientCompression    string                                    `json:"clientCompression"`
	EffectiveHTTPVersion string                                    `json:"effectiveHttpVersion"`
	Calibration          *Calibration                              `json:"calibration,omitempty"`
	SNMPTimeSeries       []telemetry.Timed[telemetry.SNMPCounters] `json:"snmpTimeSeries,omitempty"`
	SNMPAggregations     *SNMPAggregations                         `json:"snmpAggregations,omitempty"`
	Histograms           []HistogramArtifact                       `json:"histograms,omitempty"`
	GeneratedAt          time.Time                                 `json:"generatedAt"`
}

// AggregateSNMP reduces an SNMP sample series to per-field min/mean/max,
// or nil for an empty series.
func AggregateSNMP(series []telemetry.Timed[telemetry.SNMPCounters]) *SNMPAggregations {
	if len(series) == 0 {
		return nil
	}
	agg := func(pick func(telemetry.SNMPCounters) float64) SNMPFieldAggregate {
		out := SNMPFieldAggregate{Min: pick(series[0].Value), Max: pick(series[0].Value)}
		var sum float64
		for _, s := range series {
			v := pick(s.Value)
			sum += v
			if v < out.Min {
				out.Min = v
			}
			if v > out.Max {
				out.Max = v
			}
		}
		out.Mean = sum / float64(len(series))
		return out
	}
	return &SNMPAggregations{
		MachineCPU: agg(func(c telemetry.SNMPCounters) float64 { return c.MachineCPU }),
		ProcessCPU: agg(func(c telemetry.SNMPCounters) float64 { return c.ProcessCPU }),
		MemoryMiB:  agg(func(c telemetry.SNMPCounters) float64 { return c.ManagedMemoryMiB + c.UnmanagedMemoryMiB }),
	}
}

// Build assembles a Summary from the run's raw components.
func Build(opts Options, steps []step.Record, kneeResult knee.Result, verdict knee.Verdict, cal *calibrate.Result, histograms []HistogramArtifact, generatedAt time.Time) Summary {
	rows := make([]StepRow, len(steps))
	for i, s := range steps {
		rows[i] = toRow(s)
	}

	s := Summary{
		Options:     opts,
		Steps:       rows,
		Verdict:     string(verdict),
		Histograms:  histograms,
		GeneratedAt: generatedAt,
	}

	if kneeResult.KneeIndex >= 0 {
		s.Knee = &Knee{StepIndex: kneeResult.KneeIndex, Reason: kneeResult.Reason, Verdict: verdict}
	}

	if cal != nil {
		s.Calibration = &Calibration{
			PerEndpoint: cal.PerEndpoint,
			Disabled:    cal.Disabled,
			FloorMicros: cal.FloorMicros,
		}
	}

	return s
}

func toRow(s step.Record) StepRow {
	row := StepRow{
		Value:               s.Value,
		Successes:           s.Successes,
		Errors:              s.Errors,
		ErrorRate:           s.ErrorRate,
		Throughput:          s.Throughput,
		BytesIn:             s.BytesIn,
		BytesOut:            s.BytesOut,
		SampleCount:         s.SampleCount,
		CorrectedCount:      s.CorrectedCount,
		P50Micros:           s.P50,
		P75Micros:           s.P75,
		P90Micros:           s.P90,
		P95Micros:           s.P95,
		P99Micros:           s.P99,
		P999Micros:          s.P999,
		P9999Micros:         s.P9999,
		MaxMicros:           s.Max,
		NormalizedP50Micros:   s.NormalizedP50,
		NormalizedP75Micros:   s.NormalizedP75,
		NormalizedP90Micros:   s.NormalizedP90,
		NormalizedP95Micros:   s.NormalizedP95,
		NormalizedP99Micros:   s.NormalizedP99,
		NormalizedP999Micros:  s.NormalizedP999,
		NormalizedP9999Micros: s.NormalizedP9999,
		NormalizedMaxMicros:   s.NormalizedMax,
		NetworkUtilization:  s.NetworkUtilization,
		ClientCPU:           s.ClientCPU,
		ServerMemoryMiB:     s.ServerCounters.MemoryMiB,
		ServerCPU:           s.ServerCounters.CPUUtil,
		ServerIOReadMiBps:   s.ServerCounters.IOReadMiBps,
		ServerIOWriteMiBps:  s.ServerCounters.IOWriteMiBps,
		ServerIOAdvisory:    s.ServerCounters.IOAdvisory,
		ScheduledOperations: s.ScheduledOperations,
		StoppedRamp:         s.StoppedRamp,
	}
	if s.RollingRate != nil {
		median := s.RollingRate.Median
		mean := s.RollingRate.Mean
		target := float64(s.Value)
		row.RollingRateMedian = &median
		row.RollingRateMean = &mean
		row.TargetThroughput = &target
	}
	row.ErrorDetails = s.ErrorDetails
	if len(s.OpCounts) > 0 {
		row.OpCounts = make(map[string]int64, len(s.OpCounts))
		for kind, n := range s.OpCounts {
			row.OpCounts[string(kind)] = n
		}
	}
	return row
}

// WriteJSON persists the summary as indented JSON to path.
func WriteJSON(s Summary, path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("summary: marshal json: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("summary: write %s: %w", path, err)
	}
	return nil
}
