package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"code.cloudfoundry.org/bytefmt"
)

// RESTCounters is one sample of target-side metrics read from the admin
// debug REST endpoints.
type RESTCounters struct {
	MemoryMiB    float64
	CPUUtil      float64 // derived from consecutive samples; 0 on the first
	IOReadMiBps  float64
	IOWriteMiBps float64
	IOOpsPerSec  float64
	// Advisory is not set by RESTAdapter.Sample and is always false; Merge
	// derives ServerCounters.IOAdvisory on its own.
	Advisory bool
}

// RESTAdapter polls the target's admin memory/CPU/IO endpoints, parsing
// their human-readable sizes ("3.23 GBytes") into MiB.
type RESTAdapter struct {
	httpClient  *http.Client
	memoryURL   string
	cpuURL      string
	ioURL       string
	cores       float64

	mu          sync.Mutex
	prevCPUTime float64
	prevWall    time.Time
	haveSample  bool
}

// NewRESTAdapter builds an adapter against the given admin endpoint
// URLs.
func NewRESTAdapter(memoryURL, cpuURL, ioURL string, cores int) *RESTAdapter {
	if cores < 1 {
		cores = 1
	}
	return &RESTAdapter{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		memoryURL:  memoryURL,
		cpuURL:     cpuURL,
		ioURL:      ioURL,
		cores:      float64(cores),
	}
}

// DefaultInterval is how often the REST adapter polls.
const DefaultInterval = 2 * time.Second

// Sample fetches and parses one round of admin metrics.
func (a *RESTAdapter) Sample(ctx context.Context) (RESTCounters, error) {
	var out RESTCounters

	memBody, err := a.get(ctx, a.memoryURL)
	if err != nil {
		return out, fmt.Errorf("telemetry: rest memory: %w", err)
	}
	mem, err := extractHumanSize(memBody, "WorkingSet")
	if err == nil {
		out.MemoryMiB = mem
	}

	cpuBody, err := a.get(ctx, a.cpuURL)
	if err == nil {
		cpuSeconds, cerr := extractCPUSeconds(cpuBody)
		if cerr == nil {
			a.mu.Lock()
			now := time.Now()
			if a.haveSample {
				wallDelta := now.Sub(a.prevWall).Seconds()
				if wallDelta > 0 {
					out.CPUUtil = (cpuSeconds - a.prevCPUTime) / (wallDelta * a.cores)
				}
			}
			a.prevCPUTime = cpuSeconds
			a.prevWall = now
			a.haveSample = true
			a.mu.Unlock()
		}
	}

	ioBody, err := a.get(ctx, a.ioURL)
	if err == nil {
		readMiB, writeMiB, ops, ierr := extractIOMetrics(ioBody)
		if ierr == nil {
			out.IOReadMiBps = readMiB
			out.IOWriteMiBps = writeMiB
			out.IOOpsPerSec = ops
		}
	}

	return out, nil
}

func (a *RESTAdapter) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// humanSizePattern matches values like "3.23 GBytes", "512 MBytes".
var humanSizePattern = regexp.MustCompile(`(?i)([\d.]+)\s*(K|M|G|T)?Bytes?`)

// extractHumanSize finds key's value in a JSON body and parses its
// human-readable size string into MiB, using bytefmt for the
// byte-quantity math that follows the parse.
func extractHumanSize(body []byte, key string) (float64, error) {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return 0, err
	}
	raw, ok := doc[key]
	if !ok {
		return 0, fmt.Errorf("telemetry: key %q not found", key)
	}
	s, ok := raw.(string)
	if !ok {
		return 0, fmt.Errorf("telemetry: key %q is not a string", key)
	}
	return parseHumanSizeToMiB(s)
}

func parseHumanSizeToMiB(s string) (float64, error) {
	m := humanSizePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("telemetry: unparseable size %q", s)
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, err
	}
	var bytesTotal uint64
	switch strings.ToUpper(m[2]) {
	case "K":
		bytesTotal = uint64(value * float64(bytefmt.KILOBYTE))
	case "M":
		bytesTotal = uint64(value * float64(bytefmt.MEGABYTE))
	case "G":
		bytesTotal = uint64(value * float64(bytefmt.GIGABYTE))
	case "T":
		bytesTotal = uint64(value * float64(bytefmt.TERABYTE))
	default:
		bytesTotal = uint64(value)
	}
	return float64(bytesTotal) / float64(bytefmt.MEGABYTE), nil
}

func extractCPUSeconds(body []byte) (float64, error) {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return 0, err
	}
	raw, ok := doc["ProcessCpuSeconds"]
	if !ok {
		return 0, fmt.Errorf("telemetry: ProcessCpuSeconds not found")
	}
	v, ok := raw.(float64)
	if !ok {
		return 0, fmt.Errorf("telemetry: ProcessCpuSeconds not numeric")
	}
	return v, nil
}

// extractIOMetrics computes read/write MiB-per-second and ops-per-second
// from the most recent N=10 entries of the RecentOperations list; entries
// are not grouped by environment.
const ioWindowSize = 10

func extractIOMetrics(body []byte) (readMiBps, writeMiBps, opsPerSec float64, err error) {
	var doc struct {
		RecentOps []struct {
			Type         string  `json:"Type"`
			SizeHuman    string  `json:"Size"`
			DurationSecs float64 `json:"DurationSeconds"`
		} `json:"RecentOperations"`
	}
	if uerr := json.Unmarshal(body, &doc); uerr != nil {
		return 0, 0, 0, uerr
	}
	ops := doc.RecentOps
	if len(ops) > ioWindowSize {
		ops = ops[len(ops)-ioWindowSize:]
	}
	if len(ops) == 0 {
		return 0, 0, 0, nil
	}
	var readMiB, writeMiB, totalDuration float64
	for _, op := range ops {
		mib, perr := parseHumanSizeToMiB(op.SizeHuman)
		if perr != nil {
			continue
		}
		totalDuration += op.DurationSecs
		switch strings.ToLower(op.Type) {
		case "read":
			readMiB += mib
		case "write":
			writeMiB += mib
		}
	}
	if totalDuration <= 0 {
		return 0, 0, 0, nil
	}
	return readMiB / totalDuration, writeMiB / totalDuration, float64(len(ops)) / totalDuration, nil
}
