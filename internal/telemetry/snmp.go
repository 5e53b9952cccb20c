package telemetry

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/gosnmp/gosnmp"
)

// DefaultSNMPInterval is how often the SNMP adapter polls.
const DefaultSNMPInterval = 250 * time.Millisecond

// DefaultSNMPCommunity is the community string used against the target
// by default.
const DefaultSNMPCommunity = "ravendb"

// SNMPProfile selects which OID set the adapter polls.
type SNMPProfile string

const (
	ProfileMinimal  SNMPProfile = "minimal"
	ProfileExtended SNMPProfile = "extended"
)

// oidKind distinguishes SNMP counter OIDs (which the adapter must
// convert to a rate) from gauge OIDs (which pass through unchanged).
type oidKind int

const (
	kindGauge oidKind = iota
	kindCounter
)

type oidSpec struct {
	field string
	oid   string
	kind  oidKind
}

// minimalOIDs covers {machineCpu, processCpu, managedMemoryMiB,
// unmanagedMemoryMiB}, all gauges under the vendor prefix.
var minimalOIDs = []oidSpec{
	{"MachineCPU", "1.3.6.1.4.1.45751.1.1.1.1", kindGauge},
	{"ProcessCPU", "1.3.6.1.4.1.45751.1.1.1.2", kindGauge},
	{"ManagedMemoryMiB", "1.3.6.1.4.1.45751.1.1.2.1", kindGauge},
	{"UnmanagedMemoryMiB", "1.3.6.1.4.1.45751.1.1.2.2", kindGauge},
}

// extendedOIDs adds dirty memory, load averages, I/O rates, and request
// counters on top of the minimal profile.
var extendedOIDs = []oidSpec{
	{"DirtyMemoryMiB", "1.3.6.1.4.1.45751.1.1.2.3", kindGauge},
	{"LoadAvg1m", "1.3.6.1.4.1.45751.1.1.3.1", kindGauge},
	{"LoadAvg5m", "1.3.6.1.4.1.45751.1.1.3.2", kindGauge},
	{"LoadAvg15m", "1.3.6.1.4.1.45751.1.1.3.3", kindGauge},
	{"IOReadOps", "1.3.6.1.4.1.45751.1.1.4.1", kindCounter},
	{"IOWriteOps", "1.3.6.1.4.1.45751.1.1.4.2", kindCounter},
	{"IOReadBytes", "1.3.6.1.4.1.45751.1.1.4.3", kindCounter},
	{"IOWriteBytes", "1.3.6.1.4.1.45751.1.1.4.4", kindCounter},
	{"TotalRequests", "1.3.6.1.4.1.45751.1.1.5.1", kindCounter},
}

// SNMPCounters is one sample of SNMP-derived metrics. Rate fields for
// counter-typed OIDs are nil until a second sample establishes a delta.
type SNMPCounters struct {
	MachineCPU         float64
	ProcessCPU         float64
	ManagedMemoryMiB   float64
	UnmanagedMemoryMiB float64

	DirtyMemoryMiB *float64
	LoadAvg1m      *float64
	LoadAvg5m      *float64
	LoadAvg15m     *float64

	IOReadOpsPerSec    *float64
	IOWriteOpsPerSec   *float64
	IOReadBytesPerSec  *float64
	IOWriteBytesPerSec *float64
	RequestsPerSec     *float64
	TotalRequests      *float64
}

// SNMPAdapter polls a fixed OID set and derives per-second rates for
// counter-typed OIDs from consecutive samples.
type SNMPAdapter struct {
	client    *gosnmp.GoSNMP
	profile   SNMPProfile
	connected bool

	mu       sync.Mutex
	prev     map[string]float64
	prevTime time.Time
	haveSamp bool
}

// NewSNMPAdapter builds an adapter against host:port with the given
// community string and profile. A zero timeout defaults to 2s.
func NewSNMPAdapter(host string, port uint16, community string, profile SNMPProfile, timeout time.Duration) *SNMPAdapter {
	if community == "" {
		community = DefaultSNMPCommunity
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &SNMPAdapter{
		client: &gosnmp.GoSNMP{
			Target:    host,
			Port:      port,
			Community: community,
			Version:   gosnmp.Version2c,
			Timeout:   timeout,
			Retries:   1,
		},
		profile: profile,
		prev:    map[string]float64{},
	}
}

func (a *SNMPAdapter) specs() []oidSpec {
	if a.profile == ProfileExtended {
		return append(append([]oidSpec{}, minimalOIDs...), extendedOIDs...)
	}
	return minimalOIDs
}

// Sample connects (if needed), issues one SNMP GET across the profile's
// OIDs, and returns the derived counters.
func (a *SNMPAdapter) Sample(ctx context.Context) (SNMPCounters, error) {
	if !a.connected {
		if err := a.client.Connect(); err != nil {
			return SNMPCounters{}, fmt.Errorf("telemetry: snmp connect: %w", err)
		}
		a.connected = true
	}

	specs := a.specs()
	oids := make([]string, len(specs))
	for i, s := range specs {
		oids[i] = s.oid
	}

	pkt, err := a.client.Get(oids)
	if err != nil {
		return SNMPCounters{}, fmt.Errorf("telemetry: snmp get: %w", err)
	}

	raw := make(map[string]float64, len(specs))
	for i, variable := range pkt.Variables {
		if i >= len(specs) {
			break
		}
		f, _ := new(big.Float).SetInt(gosnmp.ToBigInt(variable.Value)).Float64()
		raw[specs[i].field] = f
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	var elapsed float64
	if a.haveSamp {
		elapsed = now.Sub(a.prevTime).Seconds()
	}

	out := SNMPCounters{
		MachineCPU:         raw["MachineCPU"],
		ProcessCPU:         raw["ProcessCPU"],
		ManagedMemoryMiB:   raw["ManagedMemoryMiB"],
		UnmanagedMemoryMiB: raw["UnmanagedMemoryMiB"],
	}

	if a.profile == ProfileExtended {
		if v, ok := raw["DirtyMemoryMiB"]; ok {
			out.DirtyMemoryMiB = &v
		}
		if v, ok := raw["LoadAvg1m"]; ok {
			out.LoadAvg1m = &v
		}
		if v, ok := raw["LoadAvg5m"]; ok {
			out.LoadAvg5m = &v
		}
		if v, ok := raw["LoadAvg15m"]; ok {
			out.LoadAvg15m = &v
		}
		if v, ok := raw["TotalRequests"]; ok {
			out.TotalRequests = &v
		}

		for _, field := range []string{"IOReadOps", "IOWriteOps", "IOReadBytes", "IOWriteBytes", "TotalRequests"} {
			rate := rateFor(a.prev, raw, field, elapsed, a.haveSamp)
			switch field {
			case "IOReadOps":
				out.IOReadOpsPerSec = rate
			case "IOWriteOps":
				out.IOWriteOpsPerSec = rate
			case "IOReadBytes":
				out.IOReadBytesPerSec = rate
			case "IOWriteBytes":
				out.IOWriteBytesPerSec = rate
			case "TotalRequests":
				out.RequestsPerSec = rate
			}
		}
	}

	a.prev = raw
	a.prevTime = now
	a.haveSamp = true

	return out, nil
}

// rateFor returns the per-second delta for field between prev and raw,
// or nil if this is the first sample, which only establishes the
// baseline for later deltas.
func rateFor(prev, raw map[string]float64, field string, elapsed float64, haveSamp bool) *float64 {
	if !haveSamp || elapsed <= 0 {
		return nil
	}
	p, ok1 := prev[field]
	c, ok2 := raw[field]
	if !ok1 || !ok2 {
		return nil
	}
	rate := (c - p) / elapsed
	return &rate
}

// Close releases the SNMP connection.
func (a *SNMPAdapter) Close() error {
	if !a.connected {
		return nil
	}
	a.connected = false
	return a.client.Conn.Close()
}
