package workload

import (
	"sync"
	"sync/atomic"
)

// KeyCounter hands out distinct, monotonically increasing keys to
// insert-heavy workloads. Implementations must be safe for concurrent use.
type KeyCounter interface {
	// Next returns a fresh key, distinct from every other call's result.
	Next() int64
}

// SizedCounter additionally reports how many keys have been allocated so
// far, so read/update generators know the current bound of the preloaded
// plus inserted keyspace.
type SizedCounter interface {
	KeyCounter
	Size() int64
}

// AtomicCounter is a single atomically-incremented counter, sufficient
// whenever insert contention is modest.
type AtomicCounter struct {
	v int64
}

// NewAtomicCounter returns a counter whose first Next() call yields
// start+1.
func NewAtomicCounter(start int64) *AtomicCounter {
	return &AtomicCounter{v: start}
}

func (c *AtomicCounter) Next() int64 {
	return atomic.AddInt64(&c.v, 1)
}

// Size returns the number of keys allocated so far.
func (c *AtomicCounter) Size() int64 {
	return atomic.LoadInt64(&c.v)
}

// ShardedCounterWorkers is the worker-count threshold above which the
// run selects a sharded counter over a plain AtomicCounter, trading a
// small amount of key-ordering locality for reduced contention on
// insert-heavy workloads.
const ShardedCounterWorkers = 64

// ShardedCounterShards is how many independently locked shards a sharded
// counter stripes allocation across.
const ShardedCounterShards = 16

// shardRangeSize is how many keys each shard reserves from the shared
// high-water mark before falling back to the slow path again.
const shardRangeSize = 256

// ShardedCounter stripes key allocation across a fixed number of
// independently locked shards, each reserving a range of keys from a
// shared high-water mark, so concurrent inserts mostly contend on
// different shard locks rather than one hot counter.
type ShardedCounter struct {
	highWater int64
	rr        uint32
	shards    []shard
}

type shard struct {
	mu   sync.Mutex
	next int64
	end  int64
}

// NewShardedCounter returns a counter with numShards independent shards,
// each lazily reserving shardRangeSize keys at a time above start.
func NewShardedCounter(start int64, numShards int) *ShardedCounter {
	if numShards < 1 {
		numShards = 1
	}
	return &ShardedCounter{
		highWater: start,
		shards:    make([]shard, numShards),
	}
}

// Next returns a fresh key, striping callers across shards round-robin
// and reserving a new range from the shared high-water mark when the
// chosen shard's current range is exhausted.
func (c *ShardedCounter) Next() int64 {
	s := &c.shards[int(atomic.AddUint32(&c.rr, 1))%len(c.shards)]
	s.mu.Lock()
	if s.next >= s.end {
		s.next = atomic.AddInt64(&c.highWater, shardRangeSize) - shardRangeSize + 1
		s.end = s.next + shardRangeSize
	}
	v := s.next
	s.next++
	s.mu.Unlock()
	return v
}

// Size returns an approximate upper bound on allocated keys: the shared
// high-water mark, which may be slightly ahead of keys actually inserted
// by a shard that reserved but hasn't consumed its whole range yet. Good
// enough for bounding read/update sampling, not for exact accounting.
func (c *ShardedCounter) Size() int64 {
	return atomic.LoadInt64(&c.highWater)
}
