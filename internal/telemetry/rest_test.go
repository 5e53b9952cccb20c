package telemetry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseHumanSizeToMiB_Gigabytes(t *testing.T) {
	mib, err := parseHumanSizeToMiB("3.23 GBytes")
	require.NoError(t, err)
	require.InDelta(t, 3.23*1024, mib, 1)
}

func TestParseHumanSizeToMiB_Megabytes(t *testing.T) {
	mib, err := parseHumanSizeToMiB("512 MBytes")
	require.NoError(t, err)
	require.InDelta(t, 512, mib, 0.01)
}

func TestParseHumanSizeToMiB_Unparseable(t *testing.T) {
	_, err := parseHumanSizeToMiB("not a size")
	require.Error(t, err)
}

func TestExtractIOMetrics_WindowsToMostRecentTen(t *testing.T) {
	// The first entry falls outside the window of ten; if it were counted,
	// write throughput would be 110 MiB over 1.1s = 100 MiB/s.
	body := []byte(`{"RecentOperations":[
		{"Type":"Write","Size":"100 MBytes","DurationSeconds":0.1},
		{"Type":"Read","Size":"1 MBytes","DurationSeconds":0.1},
		{"Type":"Write","Size":"2 MBytes","DurationSeconds":0.1},
		{"Type":"Read","Size":"1 MBytes","DurationSeconds":0.1},
		{"Type":"Write","Size":"2 MBytes","DurationSeconds":0.1},
		{"Type":"Read","Size":"1 MBytes","DurationSeconds":0.1},
		{"Type":"Write","Size":"2 MBytes","DurationSeconds":0.1},
		{"Type":"Read","Size":"1 MBytes","DurationSeconds":0.1},
		{"Type":"Write","Size":"2 MBytes","DurationSeconds":0.1},
		{"Type":"Read","Size":"1 MBytes","DurationSeconds":0.1},
		{"Type":"Write","Size":"2 MBytes","DurationSeconds":0.1}
	]}`)
	readMiBps, writeMiBps, ops, err := extractIOMetrics(body)
	require.NoError(t, err)
	require.InDelta(t, 5.0, readMiBps, 1e-9)
	require.InDelta(t, 10.0, writeMiBps, 1e-9)
	require.InDelta(t, 10.0, ops, 1e-9)
}
