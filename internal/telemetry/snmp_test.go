package telemetry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRateFor_FirstSampleReturnsNil(t *testing.T) {
	rate := rateFor(nil, map[string]float64{"x": 10}, "x", 0, false)
	require.Nil(t, rate)
}

func TestRateFor_SecondSampleComputesDelta(t *testing.T) {
	prev := map[string]float64{"x": 10}
	raw := map[string]float64{"x": 30}
	rate := rateFor(prev, raw, "x", 2, true)
	require.NotNil(t, rate)
	require.InDelta(t, 10, *rate, 0.01)
}

func TestSNMPAdapter_ExtendedProfileIncludesMinimalOIDs(t *testing.T) {
	a := NewSNMPAdapter("127.0.0.1", 161, "", ProfileExtended, 0)
	require.Equal(t, DefaultSNMPCommunity, a.client.Community)
	specs := a.specs()
	require.Len(t, specs, len(minimalOIDs)+len(extendedOIDs))
}
