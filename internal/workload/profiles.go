package workload

import (
	"fmt"
	"math/rand"
	"sync/atomic"

	"github.com/docbench/docbench/internal/keydist"
	"github.com/docbench/docbench/internal/payload"
)

// Keyspace is the state shared by every Generator for a run: the key
// distribution, the pre-generated payload pool, and the counter tracking
// how many keys (preloaded + inserted) currently exist. It is safe for
// concurrent use by multiple workers.
type Keyspace struct {
	Dist     keydist.Distribution
	Payloads *payload.Pool
	Counter  SizedCounter

	// BulkBatchSize is the number of documents bulk-insert operations
	// batch together.
	BulkBatchSize int
}

func (k *Keyspace) readKey(rng *rand.Rand) int64 {
	n := k.Counter.Size()
	if n < 1 {
		n = 1
	}
	return k.Dist.Draw(rng, n)
}

// Config bundles everything needed to construct a profile's Generator.
type Config struct {
	Profile Profile
	Mix     MixWeights
	Space   *Keyspace

	// QueryParamCardinality bounds the synthetic parameter values used by
	// parameterized-equality / parameterized-range / text-prefix / full-text.
	QueryParamCardinality int

	// VectorDim is the dimensionality of synthetic query vectors for the
	// vector-search profile.
	VectorDim int
	VectorK   int
	// VectorExact requests exact (brute-force) nearest-neighbor search
	// instead of the default approximate mode.
	VectorExact bool
}

// New constructs the Generator for cfg.Profile.
func New(cfg Config) (Generator, error) {
	if cfg.QueryParamCardinality <= 0 {
		cfg.QueryParamCardinality = 1000
	}
	if cfg.VectorDim <= 0 {
		cfg.VectorDim = 128
	}
	if cfg.VectorK <= 0 {
		cfg.VectorK = 10
	}
	switch cfg.Profile {
	case ProfileMixed:
		return &mixedGen{space: cfg.Space, mix: cfg.Mix}, nil
	case ProfileWritesOnly:
		return &writesOnlyGen{space: cfg.Space}, nil
	case ProfileReadsOnly:
		return &readsOnlyGen{space: cfg.Space}, nil
	case ProfileQueryByID:
		return &queryByIDGen{space: cfg.Space}, nil
	case ProfileBulkWrites:
		return &bulkWritesGen{space: cfg.Space}, nil
	case ProfileRandomReadsOverTwoCollections:
		return &tworeadGen{space: cfg.Space}, nil
	case ProfileParameterizedEquality:
		return &paramGen{space: cfg.Space, cardinality: cfg.QueryParamCardinality, kind: paramEquality}, nil
	case ProfileParameterizedRange:
		return &paramGen{space: cfg.Space, cardinality: cfg.QueryParamCardinality, kind: paramRange}, nil
	case ProfileTextPrefix:
		return &paramGen{space: cfg.Space, cardinality: cfg.QueryParamCardinality, kind: paramTextPrefix}, nil
	case ProfileFullText:
		return &paramGen{space: cfg.Space, cardinality: cfg.QueryParamCardinality, kind: paramFullText}, nil
	case ProfileVectorSearch:
		return &vectorGen{space: cfg.Space, dim: cfg.VectorDim, k: cfg.VectorK, exact: cfg.VectorExact}, nil
	default:
		return nil, fmt.Errorf("workload: unknown profile %q", cfg.Profile)
	}
}

// readsOnlyGen issues ReadById over the preloaded keyspace. Already
// read-only, so it is its own warmup variant.
type readsOnlyGen struct{ space *Keyspace }

func (g *readsOnlyGen) Name() string { return string(ProfileReadsOnly) }

func (g *readsOnlyGen) NextOperation(rng *rand.Rand) Operation {
	return Operation{Kind: KindReadByID, ID: g.space.readKey(rng)}
}

func (g *readsOnlyGen) WarmupVariant() Generator { return g }

func (g *readsOnlyGen) Describe() string { return "reads by id over the preloaded keyspace" }

// writesOnlyGen issues Insert, growing the keyspace.
type writesOnlyGen struct{ space *Keyspace }

func (g *writesOnlyGen) Name() string { return string(ProfileWritesOnly) }

func (g *writesOnlyGen) NextOperation(rng *rand.Rand) Operation {
	id := g.space.Counter.Next()
	return Operation{Kind: KindInsert, ID: id, Payload: g.space.Payloads.Get(rng)}
}

func (g *writesOnlyGen) WarmupVariant() Generator { return &readsOnlyGen{space: g.space} }

func (g *writesOnlyGen) Describe() string { return "inserts growing the keyspace" }

// mixedGen honors a (reads, writes, updates) percentage split, keeping a
// running per-kind tally for the end-of-run accounting.
type mixedGen struct {
	space *Keyspace
	mix   MixWeights

	reads   int64
	writes  int64
	updates int64
}

func (g *mixedGen) Name() string { return string(ProfileMixed) }

func (g *mixedGen) NextOperation(rng *rand.Rand) Operation {
	roll := rng.Intn(100)
	switch {
	case roll < g.mix.Reads:
		atomic.AddInt64(&g.reads, 1)
		return Operation{Kind: KindReadByID, ID: g.space.readKey(rng)}
	case roll < g.mix.Reads+g.mix.Writes:
		atomic.AddInt64(&g.writes, 1)
		id := g.space.Counter.Next()
		return Operation{Kind: KindInsert, ID: id, Payload: g.space.Payloads.Get(rng)}
	default:
		atomic.AddInt64(&g.updates, 1)
		return Operation{Kind: KindUpdate, ID: g.space.readKey(rng), Payload: g.space.Payloads.Get(rng)}
	}
}

// OpCounts reports how many operations of each kind this generator has
// emitted so far.
func (g *mixedGen) OpCounts() map[Kind]int64 {
	return map[Kind]int64{
		KindReadByID: atomic.LoadInt64(&g.reads),
		KindInsert:   atomic.LoadInt64(&g.writes),
		KindUpdate:   atomic.LoadInt64(&g.updates),
	}
}

func (g *mixedGen) WarmupVariant() Generator { return &readsOnlyGen{space: g.space} }

func (g *mixedGen) Describe() string {
	return fmt.Sprintf("%d%% reads / %d%% inserts / %d%% updates", g.mix.Reads, g.mix.Writes, g.mix.Updates)
}

// queryByIDGen is a synonym for reads-only, kept distinct for CLI/profile
// selection clarity and future divergence (e.g. distinct REST path).
type queryByIDGen struct{ space *Keyspace }

func (g *queryByIDGen) Name() string { return string(ProfileQueryByID) }

func (g *queryByIDGen) NextOperation(rng *rand.Rand) Operation {
	return Operation{Kind: KindReadByID, ID: g.space.readKey(rng)}
}

func (g *queryByIDGen) WarmupVariant() Generator { return g }

func (g *queryByIDGen) Describe() string { return "id-equality queries over the preloaded keyspace" }

// bulkWritesGen batches BulkBatchSize inserts per operation.
type bulkWritesGen struct{ space *Keyspace }

func (g *bulkWritesGen) Name() string { return string(ProfileBulkWrites) }

func (g *bulkWritesGen) NextOperation(rng *rand.Rand) Operation {
	n := g.space.BulkBatchSize
	if n < 1 {
		n = 1
	}
	docs := make([][]byte, n)
	for i := range docs {
		docs[i] = g.space.Payloads.Get(rng)
		g.space.Counter.Next()
	}
	return Operation{Kind: KindBulkInsert, Documents: docs}
}

func (g *bulkWritesGen) WarmupVariant() Generator { return &readsOnlyGen{space: g.space} }

func (g *bulkWritesGen) Describe() string {
	return fmt.Sprintf("bulk inserts, %d documents per batch", g.space.BulkBatchSize)
}

// tworeadGen models random reads spread across two collections by tagging
// each operation's QueryParams with collection "a" or, on odd rolls, "b";
// the id is drawn the same way for both. The raw and client transports'
// read-by-id requests do not send this tag.
type tworeadGen struct{ space *Keyspace }

func (g *tworeadGen) Name() string {
	return string(ProfileRandomReadsOverTwoCollections)
}

func (g *tworeadGen) NextOperation(rng *rand.Rand) Operation {
	id := g.space.readKey(rng)
	params := map[string]any{"collection": "a"}
	if rng.Intn(2) == 1 {
		params["collection"] = "b"
	}
	return Operation{Kind: KindReadByID, ID: id, QueryParams: params}
}

func (g *tworeadGen) WarmupVariant() Generator { return g }

func (g *tworeadGen) Describe() string { return "reads by id spread across two collections" }

type paramKind int

const (
	paramEquality paramKind = iota
	paramRange
	paramTextPrefix
	paramFullText
)

// paramGen covers the query-shaped profiles: parameterized-equality,
// parameterized-range, text-prefix, full-text. They differ only in how
// the query text/parameters are constructed from a bounded cardinality of
// synthetic values.
type paramGen struct {
	space       *Keyspace
	cardinality int
	kind        paramKind
}

func (g *paramGen) Name() string {
	switch g.kind {
	case paramRange:
		return string(ProfileParameterizedRange)
	case paramTextPrefix:
		return string(ProfileTextPrefix)
	case paramFullText:
		return string(ProfileFullText)
	default:
		return string(ProfileParameterizedEquality)
	}
}

func (g *paramGen) NextOperation(rng *rand.Rand) Operation {
	v := rng.Intn(g.cardinality)
	switch g.kind {
	case paramRange:
		lo := v
		hi := v + 1 + rng.Intn(g.cardinality/10+1)
		return Operation{
			Kind:        KindQuery,
			QueryText:   "from Docs where field0 between $lo and $hi",
			QueryParams: map[string]any{"lo": lo, "hi": hi},
		}
	case paramTextPrefix:
		return Operation{
			Kind:        KindQuery,
			QueryText:   "from Docs where startsWith(field0, $prefix)",
			QueryParams: map[string]any{"prefix": fmt.Sprintf("v%d", v)},
		}
	case paramFullText:
		return Operation{
			Kind:        KindQuery,
			QueryText:   "from Docs where search(field0, $term)",
			QueryParams: map[string]any{"term": fmt.Sprintf("term%d", v)},
		}
	default:
		return Operation{
			Kind:        KindQuery,
			QueryText:   "from Docs where field0 = $value",
			QueryParams: map[string]any{"value": v},
		}
	}
}

func (g *paramGen) WarmupVariant() Generator { return g }

func (g *paramGen) Describe() string {
	switch g.kind {
	case paramRange:
		return fmt.Sprintf("range queries over %d synthetic values", g.cardinality)
	case paramTextPrefix:
		return fmt.Sprintf("text-prefix queries over %d synthetic values", g.cardinality)
	case paramFullText:
		return fmt.Sprintf("full-text queries over %d synthetic terms", g.cardinality)
	default:
		return fmt.Sprintf("equality queries over %d synthetic values", g.cardinality)
	}
}

// vectorGen issues VectorSearch operations against synthetic query
// vectors of fixed dimensionality.
type vectorGen struct {
	space *Keyspace
	dim   int
	k     int
	exact bool
}

func (g *vectorGen) Name() string { return string(ProfileVectorSearch) }

func (g *vectorGen) NextOperation(rng *rand.Rand) Operation {
	vec := make([]float32, g.dim)
	for i := range vec {
		vec[i] = rng.Float32()*2 - 1
	}
	mode := "approximate"
	if g.exact {
		mode = "exact"
	}
	return Operation{
		Kind:            KindVectorSearch,
		Vector:          vec,
		VectorField:     "embedding",
		VectorK:         g.k,
		VectorThreshold: 0,
		VectorMode:      mode,
	}
}

func (g *vectorGen) WarmupVariant() Generator { return g }

func (g *vectorGen) Describe() string {
	mode := "approximate"
	if g.exact {
		mode = "exact"
	}
	return fmt.Sprintf("%s vector search, dim=%d k=%d", mode, g.dim, g.k)
}
