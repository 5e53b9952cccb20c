package step

import (
	"context"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/docbench/docbench/internal/latency"
	"github.com/docbench/docbench/internal/transport"
	"github.com/docbench/docbench/internal/workload"
)

type fakeTransport struct {
	errorRate float64
}

func (f fakeTransport) Execute(ctx context.Context, op workload.Operation) (transport.Result, error) {
	if ctx.Err() != nil {
		return transport.Result{Cancelled: true}, nil
	}
	if f.errorRate > 0 && rand.Float64() < f.errorRate {
		return transport.Result{Success: false, BytesOut: 10, ErrorDetail: "boom"}, nil
	}
	return transport.Result{Success: true, BytesOut: 10, BytesIn: 20}, nil
}
func (fakeTransport) Calibrate(ctx context.Context, path string) (transport.CalibrationSample, error) {
	return transport.CalibrationSample{}, nil
}
func (fakeTransport) PutDocument(ctx context.Context, id int64, payload []byte) error { return nil }
func (fakeTransport) GetServerCounters(ctx context.Context) (transport.ServerCounters, error) {
	return transport.ServerCounters{}, nil
}
func (fakeTransport) Validate(ctx context.Context) error { return nil }
func (fakeTransport) Close() error                       { return nil }

type readOnlyGen struct{}

func (readOnlyGen) Name() string { return "test" }
func (readOnlyGen) NextOperation(rng *rand.Rand) workload.Operation {
	return workload.Operation{Kind: workload.KindReadByID, ID: rng.Int63()}
}
func (readOnlyGen) WarmupVariant() workload.Generator { return readOnlyGen{} }
func (readOnlyGen) Describe() string                  { return "test reads" }

func seeds(w int) *rand.Rand { return rand.New(rand.NewSource(int64(w))) }

func TestController_RunProducesMonotonicPercentilesAndSampleCounts(t *testing.T) {
	rec := latency.NewRecorder(4)
	ctrl := New(Config{
		Plan:                []int{4, 8},
		Shape:               ShapeClosed,
		WarmupDuration:      20 * time.Millisecond,
		MeasurementDuration: 30 * time.Millisecond,
		MaxErrorRate:        0.05,
		Workload:            readOnlyGen{},
		Transport:           fakeTransport{},
		Recorder:            rec,
		Seeds:               seeds,
	})

	records, err := ctrl.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	for _, r := range records {
		require.Equal(t, r.Successes+r.Errors, r.SampleCount)
		require.GreaterOrEqual(t, r.CorrectedCount, r.SampleCount)
		require.LessOrEqual(t, r.P50, r.P90)
		require.LessOrEqual(t, r.P90, r.P95)
		require.LessOrEqual(t, r.P95, r.P99)
		require.LessOrEqual(t, r.P99, r.P999)
		require.LessOrEqual(t, r.P999, r.P9999)
		require.LessOrEqual(t, r.P9999, r.Max)
		require.False(t, r.StoppedRamp)
	}
}

func TestController_NormalizesEveryPercentileAgainstFloor(t *testing.T) {
	rec := latency.NewRecorder(2)
	const floor = int64(1) << 40 // far above any observed latency
	ctrl := New(Config{
		Plan:                []int{2},
		Shape:               ShapeClosed,
		WarmupDuration:      5 * time.Millisecond,
		MeasurementDuration: 15 * time.Millisecond,
		MaxErrorRate:        0.05,
		BaselineFloorMicros: floor,
		Workload:            readOnlyGen{},
		Transport:           fakeTransport{},
		Recorder:            rec,
		Seeds:               seeds,
	})

	records, err := ctrl.Run(context.Background())
	require.NoError(t, err)
	r := records[0]
	require.Greater(t, r.Max, int64(0))
	for _, normalized := range []int64{
		r.NormalizedP50, r.NormalizedP75, r.NormalizedP90, r.NormalizedP95,
		r.NormalizedP99, r.NormalizedP999, r.NormalizedP9999, r.NormalizedMax,
	} {
		require.Zero(t, normalized)
	}
}

type countingGen struct {
	reads int64
}

func (g *countingGen) Name() string     { return "counting" }
func (g *countingGen) Describe() string { return "counting reads" }
func (g *countingGen) NextOperation(rng *rand.Rand) workload.Operation {
	atomic.AddInt64(&g.reads, 1)
	return workload.Operation{Kind: workload.KindReadByID, ID: rng.Int63()}
}
func (g *countingGen) WarmupVariant() workload.Generator { return readOnlyGen{} }
func (g *countingGen) OpCounts() map[workload.Kind]int64 {
	return map[workload.Kind]int64{workload.KindReadByID: atomic.LoadInt64(&g.reads)}
}

func TestController_RecordsPerStepOpCountDeltas(t *testing.T) {
	rec := latency.NewRecorder(2)
	ctrl := New(Config{
		Plan:                []int{2, 4},
		Shape:               ShapeClosed,
		WarmupDuration:      5 * time.Millisecond,
		MeasurementDuration: 15 * time.Millisecond,
		MaxErrorRate:        0.05,
		Workload:            &countingGen{},
		Transport:           fakeTransport{},
		Recorder:            rec,
		Seeds:               seeds,
	})

	records, err := ctrl.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, r := range records {
		// Emissions include any in-flight operation cancelled at the
		// deadline, so the delta is at least the recorded sample count.
		require.GreaterOrEqual(t, r.OpCounts[workload.KindReadByID], r.SampleCount)
	}
}

func TestErrorCeiling_FloorsAtFivePercent(t *testing.T) {
	require.Equal(t, 0.05, ErrorCeiling(0))
	require.Equal(t, 0.05, ErrorCeiling(0.02))
	require.Equal(t, 0.1, ErrorCeiling(0.1))
}

func TestController_StopsRampOnExcessiveErrors(t *testing.T) {
	rec := latency.NewRecorder(4)
	ctrl := New(Config{
		Plan:                []int{4, 8, 16},
		Shape:               ShapeClosed,
		WarmupDuration:      10 * time.Millisecond,
		MeasurementDuration: 20 * time.Millisecond,
		MaxErrorRate:        0.05,
		Workload:            readOnlyGen{},
		Transport:           fakeTransport{errorRate: 1.0},
		Recorder:            rec,
		Seeds:               seeds,
	})

	records, err := ctrl.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.True(t, records[0].StoppedRamp)
	require.Equal(t, 1.0, records[0].ErrorRate)
}

func TestController_ZeroLinkSpeedReportsZeroNetworkUtilization(t *testing.T) {
	rec := latency.NewRecorder(2)
	ctrl := New(Config{
		Plan:                []int{2},
		Shape:               ShapeClosed,
		WarmupDuration:      5 * time.Millisecond,
		MeasurementDuration: 10 * time.Millisecond,
		MaxErrorRate:        0.05,
		LinkBps:             0,
		Workload:            readOnlyGen{},
		Transport:           fakeTransport{},
		Recorder:            rec,
		Seeds:               seeds,
	})

	records, err := ctrl.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0.0, records[0].NetworkUtilization)
}
