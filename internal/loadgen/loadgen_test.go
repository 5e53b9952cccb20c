package loadgen

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/docbench/docbench/internal/latency"
	"github.com/docbench/docbench/internal/transport"
	"github.com/docbench/docbench/internal/workload"
)

type alwaysOKTransport struct{}

func (alwaysOKTransport) Execute(ctx context.Context, op workload.Operation) (transport.Result, error) {
	return transport.Result{Success: true, BytesOut: 10, BytesIn: 20}, nil
}
func (alwaysOKTransport) Calibrate(ctx context.Context, path string) (transport.CalibrationSample, error) {
	return transport.CalibrationSample{}, nil
}
func (alwaysOKTransport) PutDocument(ctx context.Context, id int64, payload []byte) error { return nil }
func (alwaysOKTransport) GetServerCounters(ctx context.Context) (transport.ServerCounters, error) {
	return transport.ServerCounters{}, nil
}
func (alwaysOKTransport) Validate(ctx context.Context) error { return nil }
func (alwaysOKTransport) Close() error                       { return nil }

type readOnlyGen struct{}

func (readOnlyGen) Name() string { return "test" }
func (readOnlyGen) NextOperation(rng *rand.Rand) workload.Operation {
	return workload.Operation{Kind: workload.KindReadByID, ID: rng.Int63()}
}
func (readOnlyGen) WarmupVariant() workload.Generator { return readOnlyGen{} }
func (readOnlyGen) Describe() string                  { return "test reads" }

func TestRunClosed_CountsSuccessesAndBytes(t *testing.T) {
	rec := latency.NewRecorder(4)
	m := RunClosed(context.Background(), ClosedConfig{
		Concurrency: 4,
		Duration:    50 * time.Millisecond,
		Workload:    readOnlyGen{},
		Transport:   alwaysOKTransport{},
		Recorder:    rec,
		Seeds:       func(w int) *rand.Rand { return rand.New(rand.NewSource(int64(w))) },
	})
	require.Greater(t, m.Successes, int64(0))
	require.Zero(t, m.Errors)
	require.Greater(t, m.BytesOut, int64(0))
	require.NotNil(t, m.Snapshot)
	require.Equal(t, m.Successes, m.Snapshot.TotalCount())
}

func TestRunClosed_RespectsDeadline(t *testing.T) {
	rec := latency.NewRecorder(2)
	start := time.Now()
	RunClosed(context.Background(), ClosedConfig{
		Concurrency: 2,
		Duration:    30 * time.Millisecond,
		Workload:    readOnlyGen{},
		Transport:   alwaysOKTransport{},
		Recorder:    rec,
		Seeds:       func(w int) *rand.Rand { return rand.New(rand.NewSource(int64(w))) },
	})
	require.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestAutoSizeSlots_ScalesWithRateAndRespectsUpperBound(t *testing.T) {
	require.Equal(t, 1, autoSizeSlots(1, 0))
	require.Equal(t, 10, autoSizeSlots(100, 0))
	require.Equal(t, 5, autoSizeSlots(10000, 5))
}

func TestRunRate_ReportsScheduledAndRollingStats(t *testing.T) {
	rec := latency.NewRecorder(8)
	m := RunRate(context.Background(), RateConfig{
		RateOpsPerSec:  50,
		Duration:       300 * time.Millisecond,
		Workload:       readOnlyGen{},
		Transport:      alwaysOKTransport{},
		Recorder:       rec,
		Seeds:          func(s int) *rand.Rand { return rand.New(rand.NewSource(int64(s))) },
		MaxWorkerSlots: 16,
	})
	require.Greater(t, m.ScheduledOperations, int64(0))
	require.Greater(t, m.Successes, int64(0))
	require.GreaterOrEqual(t, m.RollingRate.SampleCount, 0)
}

type alwaysFailTransport struct{}

func (alwaysFailTransport) Execute(ctx context.Context, op workload.Operation) (transport.Result, error) {
	return transport.Result{Success: false, BytesOut: 10, ErrorDetail: "http 503"}, nil
}
func (alwaysFailTransport) Calibrate(ctx context.Context, path string) (transport.CalibrationSample, error) {
	return transport.CalibrationSample{}, nil
}
func (alwaysFailTransport) PutDocument(ctx context.Context, id int64, payload []byte) error {
	return nil
}
func (alwaysFailTransport) GetServerCounters(ctx context.Context) (transport.ServerCounters, error) {
	return transport.ServerCounters{}, nil
}
func (alwaysFailTransport) Validate(ctx context.Context) error { return nil }
func (alwaysFailTransport) Close() error                       { return nil }

func TestRunClosed_DeduplicatesErrorDetails(t *testing.T) {
	rec := latency.NewRecorder(2)
	m := RunClosed(context.Background(), ClosedConfig{
		Concurrency: 2,
		Duration:    30 * time.Millisecond,
		Workload:    readOnlyGen{},
		Transport:   alwaysFailTransport{},
		Recorder:    rec,
		Seeds:       func(w int) *rand.Rand { return rand.New(rand.NewSource(int64(w))) },
	})
	require.Greater(t, m.Errors, int64(0))
	require.Len(t, m.ErrorDetails, 1)
	require.Equal(t, m.Errors, m.ErrorDetails["http 503"])
}

func TestErrorTally_FirstDefectWinsAndAborts(t *testing.T) {
	aborted := false
	tally := newErrorTally(func() { aborted = true })
	tally.addDefect("first")
	tally.addDefect("second")
	var m Metrics
	tally.fill(&m)
	require.True(t, aborted)
	require.Equal(t, "first", m.Defect)
}

func TestSummarize_EmptyReturnsZeroValue(t *testing.T) {
	stats := summarize(nil)
	require.Equal(t, RollingRateStats{}, stats)
}

func TestSummarize_ComputesMedianMeanMinMax(t *testing.T) {
	stats := summarize([]float64{1, 2, 3, 4, 5})
	require.Equal(t, 3.0, stats.Median)
	require.Equal(t, 3.0, stats.Mean)
	require.Equal(t, 1.0, stats.Min)
	require.Equal(t, 5.0, stats.Max)
	require.Equal(t, 5.0, stats.Last)
	require.Equal(t, 5, stats.SampleCount)
}
