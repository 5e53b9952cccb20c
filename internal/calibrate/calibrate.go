// Package calibrate measures a per-endpoint floor latency before the
// ramp begins, so later steps can report normalized latency with the
// network/server baseline subtracted out.
package calibrate

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/docbench/docbench/internal/transport"
)

// DefaultAttempts is the number of calibration requests issued per
// endpoint.
const DefaultAttempts = 32

// delay bounds for the inter-request jitter, drawn from N(150ms, 25ms)
// clamped to [20ms, 200ms].
const (
	delayMean   = 150 * time.Millisecond
	delayStdDev = 25 * time.Millisecond
	delayMin    = 20 * time.Millisecond
	delayMax    = 200 * time.Millisecond
)

// EndpointSample is the calibrated floor for one endpoint.
type EndpointSample struct {
	Path            string
	TTFBP5Micros    int64
	TotalP5Micros   int64
	Attempts        int
	Successful      int
	Failed          int
	FailureReasons  map[string]int
}

// Diagnostics summarizes calibration across every endpoint.
type Diagnostics struct {
	TotalAttempts  int
	Successful     int
	Failed         int
	FailureReasons map[string]int
}

// Result is the calibrator's output.
type Result struct {
	PerEndpoint []EndpointSample
	Diagnostics Diagnostics
	// FloorMicros is the minimum observed total-time across every sample from
	// every endpoint (resolves an otherwise-unspecified normalization
	// reference point: see the project's design notes).
	FloorMicros int64
	// Disabled is true when every endpoint failed every attempt,
	// disabling per-step normalization for the rest of the run.
	Disabled bool
}

// Calibrator issues lightweight probe requests against a fixed set of
// endpoints to estimate a floor latency.
type Calibrator struct {
	tr    transport.Transport
	rng   *rand.Rand
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds a Calibrator using tr to issue probes and rng to jitter the
// inter-request delay. rng should be dedicated to the calibration
// subsystem (see internal/rng.Partitioned).
func New(tr transport.Transport, rng *rand.Rand) *Calibrator {
	return &Calibrator{tr: tr, rng: rng, sleep: ctxSleep}
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("calibrate: cancelled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

// Run calibrates every path in endpoints, issuing DefaultAttempts
// requests to each.
func (c *Calibrator) Run(ctx context.Context, endpoints []string) (Result, error) {
	var result Result
	result.Diagnostics.FailureReasons = map[string]int{}
	var allTotals []float64

	for _, path := range endpoints {
		sample := EndpointSample{Path: path, FailureReasons: map[string]int{}}
		var ttfbs, totals []float64

		for i := 0; i < DefaultAttempts; i++ {
			cal, err := c.tr.Calibrate(ctx, path)
			sample.Attempts++
			result.Diagnostics.TotalAttempts++
			if err != nil || !cal.Success {
				sample.Failed++
				result.Diagnostics.Failed++
				reason := "unknown error"
				if err != nil {
					reason = err.Error()
				} else if cal.ErrorDetail != "" {
					reason = cal.ErrorDetail
				}
				sample.FailureReasons[reason]++
				result.Diagnostics.FailureReasons[reason]++
			} else {
				sample.Successful++
				result.Diagnostics.Successful++
				ttfbs = append(ttfbs, float64(cal.TTFBMicros))
				totals = append(totals, float64(cal.TotalMicros))
				allTotals = append(allTotals, float64(cal.TotalMicros))
			}

			if i < DefaultAttempts-1 {
				if err := c.sleep(ctx, jitteredDelay(c.rng)); err != nil {
					return result, err
				}
			}
		}

		if len(ttfbs) > 0 {
			sample.TTFBP5Micros = int64(percentile5(ttfbs))
			sample.TotalP5Micros = int64(percentile5(totals))
		}
		result.PerEndpoint = append(result.PerEndpoint, sample)
	}

	if len(allTotals) == 0 {
		result.Disabled = true
		return result, nil
	}

	min := allTotals[0]
	for _, v := range allTotals {
		if v < min {
			min = v
		}
	}
	result.FloorMicros = int64(min)
	return result, nil
}

func percentile5(samples []float64) float64 {
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	return stat.Quantile(0.05, stat.Empirical, sorted, nil)
}

func jitteredDelay(rng *rand.Rand) time.Duration {
	d := rng.NormFloat64()*float64(delayStdDev) + float64(delayMean)
	d = math.Max(float64(delayMin), math.Min(float64(delayMax), d))
	return time.Duration(d)
}
