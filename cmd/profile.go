package cmd

import (
	"fmt"

	"github.com/docbench/docbench/internal/workload"
)

// profileAliases maps the CLI's documented --profile values (which include
// shorthand and query-shape-specific spellings) onto the canonical
// workload.Profile set. Several aliases collapse onto the same canonical
// profile since the underlying generator doesn't distinguish them.
var profileAliases = map[string]workload.Profile{
	"mixed":                          workload.ProfileMixed,
	"writes":                         workload.ProfileWritesOnly,
	"writes-only":                    workload.ProfileWritesOnly,
	"reads":                          workload.ProfileReadsOnly,
	"reads-only":                     workload.ProfileReadsOnly,
	"query-by-id":                    workload.ProfileQueryByID,
	"bulk-writes":                    workload.ProfileBulkWrites,
	"random-reads":                   workload.ProfileRandomReadsOverTwoCollections,
	"random-reads-over-two-collections": workload.ProfileRandomReadsOverTwoCollections,
	"parameterized-equality":         workload.ProfileParameterizedEquality,
	"range":                          workload.ProfileParameterizedRange,
	"parameterized-range":            workload.ProfileParameterizedRange,
	"text-prefix":                    workload.ProfileTextPrefix,
	"text-search":                    workload.ProfileFullText,
	"text-search-rare":               workload.ProfileFullText,
	"text-search-common":             workload.ProfileFullText,
	"text-search-mixed":              workload.ProfileFullText,
	"full-text":                      workload.ProfileFullText,
	"vector-search":                  workload.ProfileVectorSearch,
	"vector-search-exact":            workload.ProfileVectorSearch,
}

// resolveProfile maps a --profile flag value to its canonical
// workload.Profile, reporting whether it requested exact (rather than
// approximate) vector search.
func resolveProfile(flag string) (workload.Profile, bool, error) {
	p, ok := profileAliases[flag]
	if !ok {
		return "", false, fmt.Errorf("cmd: --profile: unknown value %q", flag)
	}
	return p, flag == "vector-search-exact", nil
}
