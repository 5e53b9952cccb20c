package knee

import "github.com/docbench/docbench/internal/step"

// Verdict classifies why the knee step was the limiting one.
type Verdict string

const (
	VerdictNetworkLimited Verdict = "network-limited"
	VerdictClientLimited  Verdict = "client-limited (CPU)"
	VerdictUnknown        Verdict = "unknown"
)

// utilizationThreshold is the fraction at or above which a resource is
// considered the bottleneck.
const utilizationThreshold = 0.85

// Classify attributes the bottleneck at the knee step. linkSpeedKnown
// distinguishes "no link speed configured" from "link speed configured
// but utilization below threshold" — only the former disables the
// network-limited check entirely.
func Classify(kneeStep step.Record, linkSpeedKnown bool) Verdict {
	if linkSpeedKnown && kneeStep.NetworkUtilization >= utilizationThreshold {
		return VerdictNetworkLimited
	}
	if kneeStep.ClientCPU >= utilizationThreshold {
		return VerdictClientLimited
	}
	return VerdictUnknown
}
