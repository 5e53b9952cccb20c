package summary

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/docbench/docbench/internal/knee"
	"github.com/docbench/docbench/internal/loadgen"
	"github.com/docbench/docbench/internal/step"
	"github.com/docbench/docbench/internal/telemetry"
	"github.com/docbench/docbench/internal/workload"
)

func sampleSteps() []step.Record {
	return []step.Record{
		{Value: 10, Successes: 100, Errors: 0, Throughput: 100, P50: 1000, P95: 2000},
		{Value: 20, Successes: 190, Errors: 10, Throughput: 190, P50: 1200, P95: 3000, ErrorRate: 0.05,
			RollingRate: &loadgen.RollingRateStats{Median: 95, Mean: 94},
			OpCounts:    map[workload.Kind]int64{workload.KindReadByID: 150, workload.KindInsert: 50}},
	}
}

func TestBuild_PopulatesKneeWhenFound(t *testing.T) {
	s := Build(Options{URL: "http://x"}, sampleSteps(), knee.Result{KneeIndex: 0, Reason: "errors>maxErr"}, knee.VerdictUnknown, nil, nil, time.Unix(0, 0))
	require.NotNil(t, s.Knee)
	require.Equal(t, 0, s.Knee.StepIndex)
	require.Len(t, s.Steps, 2)
}

func TestWriteJSON_ProducesValidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")
	s := Build(Options{URL: "http://x"}, sampleSteps(), knee.Result{KneeIndex: 1, Reason: "end-of-range"}, knee.VerdictUnknown, nil, nil, time.Unix(0, 0))
	require.NoError(t, WriteJSON(s, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var parsed map[string]any
	require.NoError(t, json.Unmarshal(data, &parsed))
	require.Contains(t, parsed, "steps")
}

func TestSummaryJSON_RoundTripPreservesValues(t *testing.T) {
	orig := Build(Options{URL: "http://x", Profile: "mixed", Seed: 7}, sampleSteps(),
		knee.Result{KneeIndex: 0, Reason: "end-of-range"}, knee.VerdictUnknown, nil, nil, time.Unix(100, 0).UTC())
	data, err := json.Marshal(orig)
	require.NoError(t, err)

	var decoded Summary
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, orig.Options, decoded.Options)
	require.Equal(t, orig.Steps, decoded.Steps)
	require.Equal(t, orig.Knee, decoded.Knee)
	require.Equal(t, orig.Verdict, decoded.Verdict)
}

func TestAggregateSNMP_EmptySeriesIsNil(t *testing.T) {
	require.Nil(t, AggregateSNMP(nil))
}

func TestAggregateSNMP_ComputesMinMeanMax(t *testing.T) {
	series := []telemetry.Timed[telemetry.SNMPCounters]{
		{Value: telemetry.SNMPCounters{MachineCPU: 0.2, ManagedMemoryMiB: 100, UnmanagedMemoryMiB: 50}},
		{Value: telemetry.SNMPCounters{MachineCPU: 0.6, ManagedMemoryMiB: 200, UnmanagedMemoryMiB: 50}},
	}
	agg := AggregateSNMP(series)
	require.NotNil(t, agg)
	require.Equal(t, 0.2, agg.MachineCPU.Min)
	require.Equal(t, 0.6, agg.MachineCPU.Max)
	require.InDelta(t, 0.4, agg.MachineCPU.Mean, 1e-9)
	require.Equal(t, 250.0, agg.MemoryMiB.Max)
}

func TestBuild_RateStepsCarryTargetThroughput(t *testing.T) {
	s := Build(Options{LoadShape: "rate"}, sampleSteps(), knee.Result{KneeIndex: -1}, knee.VerdictUnknown, nil, nil, time.Unix(0, 0))
	require.Nil(t, s.Steps[0].TargetThroughput)
	require.NotNil(t, s.Steps[1].TargetThroughput)
	require.Equal(t, 20.0, *s.Steps[1].TargetThroughput)
}

func TestWriteCSV_IncludesRateColumnsWhenPresent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")
	s := Build(Options{}, sampleSteps(), knee.Result{KneeIndex: -1}, knee.VerdictUnknown, nil, nil, time.Unix(0, 0))
	require.NoError(t, WriteCSV(s, path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Contains(t, rows[0], "rollingRateMedian")
	require.Contains(t, rows[0], "normalizedP9999Us")
	require.Contains(t, rows[0], "opReads")
	require.Len(t, rows, 3) // header + 2 steps
}

func TestBuild_StepOpCountsSurviveAsStrings(t *testing.T) {
	s := Build(Options{}, sampleSteps(), knee.Result{KneeIndex: -1}, knee.VerdictUnknown, nil, nil, time.Unix(0, 0))
	require.Nil(t, s.Steps[0].OpCounts)
	require.Equal(t, int64(150), s.Steps[1].OpCounts["read_by_id"])
	require.Equal(t, int64(50), s.Steps[1].OpCounts["insert"])
}
