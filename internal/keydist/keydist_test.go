package keydist

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_UnknownKind(t *testing.T) {
	_, err := New(Kind("bogus"), 0, 0)
	require.Error(t, err)
}

func TestUniform_RangeAndSpread(t *testing.T) {
	d, err := New(Uniform, 0, 0)
	require.NoError(t, err)
	r := rand.New(rand.NewSource(1))
	seen := map[int64]bool{}
	for i := 0; i < 10000; i++ {
		k := d.Draw(r, 100)
		require.GreaterOrEqual(t, k, int64(1))
		require.LessOrEqual(t, k, int64(100))
		seen[k] = true
	}
	require.Greater(t, len(seen), 50) // broad coverage across the keyspace
}

func TestZipfian_SkewsLow(t *testing.T) {
	d, err := New(Zipfian, DefaultZipfianTheta, 0)
	require.NoError(t, err)
	r := rand.New(rand.NewSource(2))
	counts := make(map[int64]int)
	const n = 1000
	for i := 0; i < 20000; i++ {
		counts[d.Draw(r, n)]++
	}
	require.Greater(t, counts[1], counts[n])
}

func TestLatest_FavorsHotPortion(t *testing.T) {
	d, err := New(Latest, 0, DefaultHotPortion)
	require.NoError(t, err)
	r := rand.New(rand.NewSource(3))
	const n = 1000
	hotThreshold := int64(float64(n) * (1 - DefaultHotPortion))
	hot := 0
	total := 20000
	for i := 0; i < total; i++ {
		if d.Draw(r, n) > hotThreshold {
			hot++
		}
	}
	require.Greater(t, float64(hot)/float64(total), 0.5)
}

func TestDistributions_DegenerateKeyspace(t *testing.T) {
	r := rand.New(rand.NewSource(4))
	for _, kind := range []Kind{Uniform, Zipfian, Latest} {
		d, err := New(kind, 0, 0)
		require.NoError(t, err)
		require.Equal(t, int64(1), d.Draw(r, 1))
	}
}
