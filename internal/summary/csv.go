package summary

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/docbench/docbench/internal/workload"
)

// WriteCSV renders one row per step to path. The column set adapts to
// whether any step carries rolling-rate figures (rate-driven runs),
// server-side telemetry, or per-kind operation counts, so disabled
// subsystems do not leave empty columns.
func WriteCSV(s Summary, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("summary: create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	hasRate := false
	hasServerTelemetry := false
	hasOpCounts := false
	for _, row := range s.Steps {
		if row.RollingRateMedian != nil {
			hasRate = true
		}
		if row.ServerMemoryMiB != 0 || row.ServerCPU != 0 {
			hasServerTelemetry = true
		}
		if len(row.OpCounts) > 0 {
			hasOpCounts = true
		}
	}

	header := []string{
		"value", "throughput", "errorRate", "bytesIn", "bytesOut",
		"sampleCount", "correctedCount",
		"p50Us", "p75Us", "p90Us", "p95Us", "p99Us", "p999Us", "p9999Us", "maxUs",
		"normalizedP50Us", "normalizedP75Us", "normalizedP90Us", "normalizedP95Us",
		"normalizedP99Us", "normalizedP999Us", "normalizedP9999Us", "normalizedMaxUs",
		"successes", "errors", "clientCpu", "networkUtilization", "stoppedRamp",
	}
	if hasServerTelemetry {
		header = append(header, "serverCpu", "serverMemoryMiB", "serverIoReadMiBps", "serverIoWriteMiBps", "serverIoAdvisory")
	}
	if hasRate {
		header = append(header, "targetThroughput", "scheduledOperations", "rollingRateMedian", "rollingRateMean")
	}
	if hasOpCounts {
		header = append(header, "opReads", "opInserts", "opUpdates")
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, row := range s.Steps {
		rec := []string{
			strconv.Itoa(row.Value),
			formatFloat(row.Throughput),
			formatFloat(row.ErrorRate),
			strconv.FormatInt(row.BytesIn, 10),
			strconv.FormatInt(row.BytesOut, 10),
			strconv.FormatInt(row.SampleCount, 10),
			strconv.FormatInt(row.CorrectedCount, 10),
			strconv.FormatInt(row.P50Micros, 10),
			strconv.FormatInt(row.P75Micros, 10),
			strconv.FormatInt(row.P90Micros, 10),
			strconv.FormatInt(row.P95Micros, 10),
			strconv.FormatInt(row.P99Micros, 10),
			strconv.FormatInt(row.P999Micros, 10),
			strconv.FormatInt(row.P9999Micros, 10),
			strconv.FormatInt(row.MaxMicros, 10),
			strconv.FormatInt(row.NormalizedP50Micros, 10),
			strconv.FormatInt(row.NormalizedP75Micros, 10),
			strconv.FormatInt(row.NormalizedP90Micros, 10),
			strconv.FormatInt(row.NormalizedP95Micros, 10),
			strconv.FormatInt(row.NormalizedP99Micros, 10),
			strconv.FormatInt(row.NormalizedP999Micros, 10),
			strconv.FormatInt(row.NormalizedP9999Micros, 10),
			strconv.FormatInt(row.NormalizedMaxMicros, 10),
			strconv.FormatInt(row.Successes, 10),
			strconv.FormatInt(row.Errors, 10),
			formatFloat(row.ClientCPU),
			formatFloat(row.NetworkUtilization),
			strconv.FormatBool(row.StoppedRamp),
		}
		if hasServerTelemetry {
			rec = append(rec,
				formatFloat(row.ServerCPU),
				formatFloat(row.ServerMemoryMiB),
				formatFloat(row.ServerIOReadMiBps),
				formatFloat(row.ServerIOWriteMiBps),
				strconv.FormatBool(row.ServerIOAdvisory),
			)
		}
		if hasRate {
			target, median, mean := "", "", ""
			if row.TargetThroughput != nil {
				target = formatFloat(*row.TargetThroughput)
			}
			if row.RollingRateMedian != nil {
				median = formatFloat(*row.RollingRateMedian)
			}
			if row.RollingRateMean != nil {
				mean = formatFloat(*row.RollingRateMean)
			}
			rec = append(rec, target, strconv.FormatInt(row.ScheduledOperations, 10), median, mean)
		}
		if hasOpCounts {
			rec = append(rec,
				strconv.FormatInt(row.OpCounts[string(workload.KindReadByID)], 10),
				strconv.FormatInt(row.OpCounts[string(workload.KindInsert)], 10),
				strconv.FormatInt(row.OpCounts[string(workload.KindUpdate)], 10),
			)
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
