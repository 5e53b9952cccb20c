package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseSizeBytes(t *testing.T) {
	cases := map[string]int{
		"512B": 512,
		"4KB":  4 * 1024,
		"2MB":  2 * 1024 * 1024,
		"100":  100,
	}
	for in, want := range cases {
		got, err := parseSizeBytes(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
}

func TestParseDurationUnit(t *testing.T) {
	cases := map[string]time.Duration{
		"500ms": 500 * time.Millisecond,
		"30s":   30 * time.Second,
		"2m":    2 * time.Minute,
	}
	for in, want := range cases {
		got, err := parseDurationUnit(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
}

func TestParseDurationUnit_RejectsMissingSuffix(t *testing.T) {
	_, err := parseDurationUnit("30")
	require.Error(t, err)
}

func TestParsePercent(t *testing.T) {
	v, err := parsePercent("5%")
	require.NoError(t, err)
	require.InDelta(t, 0.05, v, 1e-9)
}

func TestParseRampPlan(t *testing.T) {
	plan, err := parseRampPlan("1..512x1.5")
	require.NoError(t, err)
	require.Equal(t, 1, plan.Start)
	require.Equal(t, 512, plan.End)
	require.InDelta(t, 1.5, plan.Factor, 1e-9)
}

func TestParseRampPlan_RejectsMalformed(t *testing.T) {
	_, err := parseRampPlan("not-a-plan")
	require.Error(t, err)
}

func TestParseKneeRule(t *testing.T) {
	dThr, dP95, err := parseKneeRule("dthr=-10%,dp95=20%")
	require.NoError(t, err)
	require.InDelta(t, -0.1, dThr, 1e-9)
	require.InDelta(t, 0.2, dP95, 1e-9)
}
