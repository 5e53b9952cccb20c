// Package payload generates byte-exact synthetic documents for the write
// path, backed by a seeded pool so the hot loop never allocates.
package payload

import (
	"encoding/json"
	"fmt"
	"math/rand"
)

const (
	fieldCount   = 10
	fieldNameFmt = "field%d"
	alphabet     = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// poolSize is the number of distinct pre-generated payloads kept per
	// requested size, so callers sampling the pool see varied content
	// without paying an allocation per document.
	poolSize = 1000
)

// Pool produces synthetic documents targeting a fixed serialized size.
// Callers must not mutate the bytes Get returns.
type Pool struct {
	size     int
	docs     [][]byte
	minBytes int
}

// NewPool builds a pool of poolSize pre-generated documents, each targeting
// sizeBytes once serialized. If sizeBytes is smaller than the minimum
// structural overhead of the ten-field document shape, every field is
// filled with a single filler character instead of random content.
func NewPool(seed int64, sizeBytes int) *Pool {
	r := rand.New(rand.NewSource(seed))
	p := &Pool{size: sizeBytes, docs: make([][]byte, poolSize)}
	p.minBytes = structuralOverhead()
	for i := range p.docs {
		p.docs[i] = p.generate(r)
	}
	return p
}

// Get returns a shareable serialized payload from the pool, chosen
// deterministically from rng so repeated runs with the same seed draw the
// same sequence of payloads.
func (p *Pool) Get(rng *rand.Rand) []byte {
	return p.docs[rng.Intn(len(p.docs))]
}

// Size reports the configured target size in bytes.
func (p *Pool) Size() int {
	return p.size
}

func structuralOverhead() int {
	empty := make(map[string]string, fieldCount)
	for i := 0; i < fieldCount; i++ {
		empty[fmt.Sprintf(fieldNameFmt, i)] = ""
	}
	b, _ := json.Marshal(empty)
	return len(b)
}

func (p *Pool) generate(r *rand.Rand) []byte {
	fields := make(map[string]string, fieldCount)
	if p.size <= p.minBytes {
		for i := 0; i < fieldCount; i++ {
			fields[fmt.Sprintf(fieldNameFmt, i)] = "x"
		}
		b, _ := json.Marshal(fields)
		return b
	}
	remaining := p.size - p.minBytes
	perField := remaining / fieldCount
	extra := remaining - perField*fieldCount
	for i := 0; i < fieldCount; i++ {
		n := perField
		if i == fieldCount-1 {
			n += extra
		}
		fields[fmt.Sprintf(fieldNameFmt, i)] = randomString(r, n)
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return []byte("{}")
	}
	return b
}

func randomString(r *rand.Rand, n int) string {
	if n < 0 {
		n = 0
	}
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = alphabet[r.Intn(len(alphabet))]
	}
	return string(buf)
}
