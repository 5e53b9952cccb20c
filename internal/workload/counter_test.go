package workload

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAtomicCounter_DistinctUnderConcurrency(t *testing.T) {
	c := NewAtomicCounter(0)
	const n = 1000
	seen := make(chan int64, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			seen <- c.Next()
		}()
	}
	wg.Wait()
	close(seen)
	set := map[int64]bool{}
	for v := range seen {
		require.False(t, set[v], "duplicate key %d", v)
		set[v] = true
	}
	require.Len(t, set, n)
}

func TestShardedCounter_DistinctUnderConcurrency(t *testing.T) {
	c := NewShardedCounter(0, 4)
	set := map[int64]bool{}
	var mu sync.Mutex
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				v := c.Next()
				mu.Lock()
				require.False(t, set[v], "duplicate key %d", v)
				set[v] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Len(t, set, 4000)
}

func TestShardedCounter_SizeBoundsAllocatedKeys(t *testing.T) {
	c := NewShardedCounter(100, 2)
	require.Equal(t, int64(100), c.Size())
	v := c.Next()
	require.Greater(t, v, int64(100))
	require.GreaterOrEqual(t, c.Size(), v)
}
