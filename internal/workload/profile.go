// Package workload emits the operation stream for a run. Each profile is
// a small closed variant, not an open extension point: adding a profile
// means adding a case here, not a plugin surface.
package workload

import "math/rand"

// Profile names the closed set of workload shapes docbench supports.
type Profile string

const (
	ProfileMixed                         Profile = "mixed"
	ProfileWritesOnly                    Profile = "writes-only"
	ProfileReadsOnly                     Profile = "reads-only"
	ProfileQueryByID                     Profile = "query-by-id"
	ProfileBulkWrites                    Profile = "bulk-writes"
	ProfileRandomReadsOverTwoCollections Profile = "random-reads-over-two-collections"
	ProfileParameterizedEquality         Profile = "parameterized-equality"
	ProfileParameterizedRange            Profile = "parameterized-range"
	ProfileTextPrefix                    Profile = "text-prefix"
	ProfileFullText                      Profile = "full-text"
	ProfileVectorSearch                  Profile = "vector-search"
)

// Generator emits the next operation for a profile given a worker-private
// RNG. Implementations must be safe to call repeatedly from a single
// goroutine; a Generator is never shared across workers without its own
// synchronization (the shared pieces — the keyspace size and the key
// counter — are already safe for concurrent use).
type Generator interface {
	// NextOperation returns the next operation to execute.
	NextOperation(rng *rand.Rand) Operation
	// Name identifies the profile for logging and summaries.
	Name() string
	// Describe returns a one-line human-readable account of what the
	// profile emits, for verbose run logging.
	Describe() string
	// WarmupVariant returns a read-only generator sampling the preloaded
	// keyspace, for profiles that otherwise mutate state. Profiles that
	// are already read-only return themselves.
	WarmupVariant() Generator
}

// KindCounted is implemented by generators that keep a running tally of
// how many operations of each kind they have emitted, so the step
// controller can report per-step emission counts.
type KindCounted interface {
	OpCounts() map[Kind]int64
}

// MixWeights is a (reads, writes, updates) weight triple for the mixed
// profile, normalized to integer percentages summing to 100.
type MixWeights struct {
	Reads, Writes, Updates int
}

// NormalizeMix converts arbitrary non-negative weights into integer
// percentages summing to exactly 100, distributing the rounding remainder
// to the weights with the largest fractional part first (largest-
// remainder method). If all weights are zero, reads gets 100.
func NormalizeMix(reads, writes, updates float64) MixWeights {
	sum := reads + writes + updates
	if sum <= 0 {
		return MixWeights{Reads: 100}
	}
	rawR := reads / sum * 100
	rawW := writes / sum * 100
	rawU := updates / sum * 100

	r, w, u := int(rawR), int(rawW), int(rawU)
	remainder := 100 - (r + w + u)

	type frac struct {
		name string
		part float64
	}
	fracs := []frac{
		{"r", rawR - float64(r)},
		{"w", rawW - float64(w)},
		{"u", rawU - float64(u)},
	}
	// Stable selection of the `remainder` largest fractional parts,
	// ties broken by declaration order (r, w, u).
	for remainder > 0 {
		best := -1
		for i, f := range fracs {
			if best == -1 || f.part > fracs[best].part {
				best = i
			}
		}
		switch fracs[best].name {
		case "r":
			r++
		case "w":
			w++
		case "u":
			u++
		}
		fracs[best].part = -1 // consumed
		remainder--
	}
	return MixWeights{Reads: r, Writes: w, Updates: u}
}
