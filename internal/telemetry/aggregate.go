package telemetry

// ServerCounters is the merged view of target-side telemetry for one
// step: SNMP values win on any field both adapters cover. The REST I/O
// figures (a per-op windowed average) are retained and flagged advisory
// unless SNMP reports I/O byte rates, which then replace the REST
// read/write figures and clear the flag; IOOpsPerSec always comes from
// REST.
type ServerCounters struct {
	MemoryMiB float64
	CPUUtil   float64

	MachineCPU *float64

	IOReadMiBps      float64
	IOWriteMiBps     float64
	IOOpsPerSec      float64
	IOAdvisory       bool

	DirtyMemoryMiB *float64
	LoadAvg1m      *float64
	RequestsPerSec *float64
}

// Merge combines one REST sample and one SNMP sample (either of which
// may be the zero value if that adapter is disabled) into a single
// per-step record.
func Merge(rest RESTCounters, snmp SNMPCounters, snmpEnabled bool) ServerCounters {
	out := ServerCounters{
		MemoryMiB:    rest.MemoryMiB,
		CPUUtil:      rest.CPUUtil,
		IOReadMiBps:  rest.IOReadMiBps,
		IOWriteMiBps: rest.IOWriteMiBps,
		IOOpsPerSec:  rest.IOOpsPerSec,
	}

	if !snmpEnabled {
		out.IOAdvisory = true
		return out
	}

	// SNMP wins on every field it covers.
	out.MemoryMiB = snmp.ManagedMemoryMiB + snmp.UnmanagedMemoryMiB
	out.CPUUtil = snmp.ProcessCPU
	machineCPU := snmp.MachineCPU
	out.MachineCPU = &machineCPU
	out.DirtyMemoryMiB = snmp.DirtyMemoryMiB
	out.LoadAvg1m = snmp.LoadAvg1m
	out.RequestsPerSec = snmp.RequestsPerSec

	if snmp.IOReadBytesPerSec != nil && snmp.IOWriteBytesPerSec != nil {
		const bytesPerMiB = 1024 * 1024
		out.IOReadMiBps = *snmp.IOReadBytesPerSec / bytesPerMiB
		out.IOWriteMiBps = *snmp.IOWriteBytesPerSec / bytesPerMiB
		out.IOAdvisory = false
	} else {
		// SNMP didn't cover I/O this sample (e.g. minimal profile); the
		// REST-derived figures above remain but are advisory since SNMP
		// is nominally authoritative when enabled.
		out.IOAdvisory = true
	}

	return out
}
