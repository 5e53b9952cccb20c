package payload

import (
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewPool_TargetsApproximateSize(t *testing.T) {
	p := NewPool(1, 1024)
	r := rand.New(rand.NewSource(2))
	doc := p.Get(r)
	require.InDelta(t, 1024, len(doc), 32)
}

func TestNewPool_BelowStructuralOverheadUsesSingleFillerCharacter(t *testing.T) {
	p := NewPool(1, 4)
	r := rand.New(rand.NewSource(2))
	doc := p.Get(r)
	var fields map[string]string
	require.NoError(t, json.Unmarshal(doc, &fields))
	require.Len(t, fields, 10)
	for _, v := range fields {
		require.Equal(t, "x", v)
	}
}

func TestPool_DeterministicGivenSeed(t *testing.T) {
	a := NewPool(99, 256)
	b := NewPool(99, 256)
	require.Equal(t, a.docs, b.docs)
}

func TestPool_GetIsShareable(t *testing.T) {
	p := NewPool(5, 128)
	r := rand.New(rand.NewSource(1))
	first := p.Get(r)
	cp := append([]byte(nil), first...)
	require.Equal(t, cp, first)
}
