package knee

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/docbench/docbench/internal/step"
)

func rec(p50, p95 int64, thr, errRate float64) step.Record {
	return step.Record{P50: p50, P95: p95, Throughput: thr, ErrorRate: errRate}
}

func TestAnalyze_ZeroSteps(t *testing.T) {
	result := Analyze(nil, Thresholds{})
	require.Equal(t, -1, result.KneeIndex)
	require.Equal(t, "no-steps", result.Reason)
}

func TestAnalyze_SingleStep(t *testing.T) {
	result := Analyze([]step.Record{rec(1000, 2000, 100, 0)}, Thresholds{})
	require.Equal(t, 0, result.KneeIndex)
	require.Equal(t, "single-step", result.Reason)
}

func TestAnalyze_ErrorsAboveCeilingPicksPreviousStep(t *testing.T) {
	steps := []step.Record{
		rec(1000, 2000, 100, 0),
		rec(1000, 2000, 100, 0.2),
	}
	result := Analyze(steps, Thresholds{MaxErr: 0.1})
	require.Equal(t, 0, result.KneeIndex)
	require.Equal(t, "errors>10%", result.Reason)
}

func TestAnalyze_ConfiguredCeilingBelowFivePercentIsFloored(t *testing.T) {
	steps := []step.Record{
		rec(1000, 2000, 100, 0),
		rec(1000, 2000, 100, 0.04), // above the configured 2%, below the 5% floor
	}
	result := Analyze(steps, Thresholds{MaxErr: 0.02})
	require.Equal(t, 1, result.KneeIndex)
	require.Equal(t, "end-of-range", result.Reason)
}

func TestAnalyze_BelowDangerZoneContinuesToEndOfRange(t *testing.T) {
	steps := []step.Record{
		rec(1000, 2000, 100, 0),
		rec(2000, 3000, 10, 0), // p50 well below 100ms danger-zone floor
	}
	result := Analyze(steps, Thresholds{DThr: -0.05, DP95: 0.1})
	require.Equal(t, 1, result.KneeIndex)
	require.Equal(t, "end-of-range", result.Reason)
}

func TestAnalyze_DeltaRuleFiresInDangerZone(t *testing.T) {
	steps := []step.Record{
		rec(150_000, 150_000, 1000, 0),
		rec(200_000, 400_000, 600, 0), // throughput drops 40%, p95 roughly triples
	}
	result := Analyze(steps, Thresholds{DThr: -0.1, DP95: 0.5})
	require.Equal(t, 0, result.KneeIndex)
	require.Contains(t, result.Reason, "Δthr")
}

func TestAnalyze_DefersWhenNextStepRecovers(t *testing.T) {
	steps := []step.Record{
		rec(150_000, 150_000, 1000, 0),
		rec(200_000, 400_000, 600, 0), // looks like a knee...
		rec(200_000, 180_000, 1100, 0), // ...but throughput recovers well past +3%
	}
	result := Analyze(steps, Thresholds{DThr: -0.1, DP95: 0.5})
	require.Equal(t, 2, result.KneeIndex)
	require.Equal(t, "end-of-range", result.Reason)
}

func TestAnalyze_MonotonicDegradation(t *testing.T) {
	steps := []step.Record{
		rec(150_000, 150_000, 1000, 0),
		rec(160_000, 200_000, 900, 0), // thr down, p95 up, but deltas too mild to trip the rule
	}
	result := Analyze(steps, Thresholds{DThr: -0.5, DP95: 5})
	require.Equal(t, 0, result.KneeIndex)
	require.Equal(t, "Thr↓ & p95↑", result.Reason)
}

func TestClassify_NetworkLimited(t *testing.T) {
	s := step.Record{NetworkUtilization: 0.9}
	require.Equal(t, VerdictNetworkLimited, Classify(s, true))
}

func TestClassify_ClientLimited(t *testing.T) {
	s := step.Record{ClientCPU: 0.95}
	require.Equal(t, VerdictClientLimited, Classify(s, false))
}

func TestClassify_Unknown(t *testing.T) {
	s := step.Record{NetworkUtilization: 0.9, ClientCPU: 0.1}
	require.Equal(t, VerdictUnknown, Classify(s, false))
}
