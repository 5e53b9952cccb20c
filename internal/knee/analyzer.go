// Package knee inspects the sequence of step records and identifies the
// last step considered "safe" before the target's performance degrades.
package knee

import (
	"fmt"
	"math"

	"github.com/docbench/docbench/internal/step"
)

// Thresholds are the knee rule's tunable inputs.
type Thresholds struct {
	DThr   float64 // minimum acceptable throughput-delta fraction (negative)
	DP95   float64 // maximum acceptable p95-delta fraction (positive)
	MaxErr float64
}

// dangerZoneFloorMicros is the p50 latency (100ms) above which the knee
// rule's delta checks engage at all.
const dangerZoneFloorMicros = 100 * 1000

// epsilon guards the Δp95 denominator against a near-zero previous p95.
const epsilon = 1e-9

// recoveryThreshold is how much a throughput dip must bounce back by in
// steps[i+1] for the analyzer to defer picking i-1 as the knee.
const recoveryThreshold = 0.03

// Result is the knee analyzer's verdict.
type Result struct {
	KneeIndex int
	Reason    string
}

// Analyze walks the step sequence in a fixed check order: errors check,
// danger-zone gate, direct delta rule, smoothed delta rule (i≥2 only),
// deferral-on-recovery, monotonic degradation, end-of-range fallback.
func Analyze(steps []step.Record, th Thresholds) Result {
	if len(steps) == 0 {
		return Result{KneeIndex: -1, Reason: "no-steps"}
	}
	if len(steps) == 1 {
		return Result{KneeIndex: 0, Reason: "single-step"}
	}

	// Same floor as the controller's ramp-stop check, so both agree on
	// what counts as too many errors.
	maxErr := step.ErrorCeiling(th.MaxErr)

	for i := 1; i < len(steps); i++ {
		cur := steps[i]
		prev := steps[i-1]

		if cur.ErrorRate > maxErr {
			return Result{KneeIndex: i - 1, Reason: fmt.Sprintf("errors>%g%%", maxErr*100)}
		}

		if math.Max(prev.P50f(), cur.P50f()) < dangerZoneFloorMicros {
			continue
		}

		dThr := deltaThroughput(prev, cur)
		dP95 := deltaP95(prev, cur)

		fires := dThr < th.DThr && dP95 > th.DP95
		if !fires && i >= 2 {
			prevDThr := deltaThroughput(steps[i-2], prev)
			prevDP95 := deltaP95(steps[i-2], prev)
			smoothedDThr := (dThr + prevDThr) / 2
			smoothedDP95 := (dP95 + prevDP95) / 2
			fires = smoothedDThr < th.DThr && smoothedDP95 > th.DP95
		}

		if fires {
			if i+1 < len(steps) {
				recovered := deltaThroughput(prev, steps[i+1]) > recoveryThreshold
				if recovered {
					continue
				}
			}
			return Result{KneeIndex: i - 1, Reason: "Δthr<dThr & Δp95>dP95"}
		}

		if cur.Throughput < prev.Throughput && cur.P95f() > prev.P95f() {
			return Result{KneeIndex: i - 1, Reason: "Thr↓ & p95↑"}
		}
	}

	return Result{KneeIndex: len(steps) - 1, Reason: "end-of-range"}
}

func deltaThroughput(prev, cur step.Record) float64 {
	if prev.Throughput == 0 {
		return 0
	}
	return (cur.Throughput - prev.Throughput) / prev.Throughput
}

func deltaP95(prev, cur step.Record) float64 {
	return (cur.P95f() - prev.P95f()) / (prev.P95f() + epsilon)
}
