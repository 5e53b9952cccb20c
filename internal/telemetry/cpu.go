package telemetry

import (
	"runtime"
	"sync"
	"syscall"
	"time"
)

// CPUSample is a point-in-time reading of the generator process's own
// CPU consumption, taken at the start and end of a measurement window.
type CPUSample struct {
	WallTime time.Time
	CPUTime  time.Duration
}

// CPUSampler captures CPUSample readings for the generator's own
// process: total processor time and wall-clock sampled at the start and
// end of the window.
type CPUSampler struct {
	mu    sync.Mutex
	first CPUSample
}

// NewCPUSampler returns a sampler ready to take its first reading.
func NewCPUSampler() *CPUSampler {
	return &CPUSampler{}
}

// Sample reads the current wall-clock time and accumulated process CPU
// time (user+system) via getrusage.
func Sample() CPUSample {
	var ru syscall.Rusage
	_ = syscall.Getrusage(syscall.RUSAGE_SELF, &ru)
	cpu := time.Duration(ru.Utime.Sec)*time.Second + time.Duration(ru.Utime.Usec)*time.Microsecond +
		time.Duration(ru.Stime.Sec)*time.Second + time.Duration(ru.Stime.Usec)*time.Microsecond
	return CPUSample{WallTime: time.Now(), CPUTime: cpu}
}

// MarkStart records the first sample of a measurement window.
func (c *CPUSampler) MarkStart() {
	s := Sample()
	c.mu.Lock()
	c.first = s
	c.mu.Unlock()
}

// Utilization computes average CPU utilization in [0,1] between
// MarkStart and now: (ΔcpuTime / (Δwall · cores)).
func (c *CPUSampler) Utilization() float64 {
	c.mu.Lock()
	first := c.first
	c.mu.Unlock()

	end := Sample()
	wall := end.WallTime.Sub(first.WallTime)
	if wall <= 0 {
		return 0
	}
	cpuDelta := end.CPUTime - first.CPUTime
	cores := float64(runtime.NumCPU())
	util := cpuDelta.Seconds() / (wall.Seconds() * cores)
	if util < 0 {
		return 0
	}
	if util > 1 {
		return 1
	}
	return util
}
