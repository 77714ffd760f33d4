// Package rescache provides a fixed-capacity, generation-tagged cache of
// loaded resources.
//
// The cache is keyed by insertion order, not by content: Next issues a
// fresh Handle and evicts the oldest slot round-robin. Callers remember
// which Handle corresponds to which logical resource and request a new one
// whenever theirs goes stale. The generation check in Live and Get is the
// sole guard against dangling handles; there is no reference counting.
//
// A Cache is confined to one goroutine; only the atomic hit/miss counters
// may be read concurrently.
package rescache

import (
	"fmt"
	"math"
	"math/bits"
	"sync/atomic"
)

// DefaultCapacity is used when New is given a non-positive capacity.
const DefaultCapacity = 8

// Handle names a cache slot at a particular generation. The zero Handle is
// invalid and never matches a slot.
type Handle struct {
	index uint32
	gen   uint32
}

// IsZero reports whether h is the zero (invalid) handle.
func (h Handle) IsZero() bool { return h.gen == 0 }

// Index returns the slot position named by the handle.
func (h Handle) Index() int { return int(h.index) }

// Generation returns the handle's generation tag.
func (h Handle) Generation() uint32 { return h.gen }

// Pack encodes the handle into a single word for cheap storage.
func (h Handle) Pack() uint64 {
	return uint64(h.gen)<<32 | uint64(h.index)
}

// Unpack decodes a handle produced by Pack.
func Unpack(v uint64) Handle {
	return Handle{index: uint32(v), gen: uint32(v >> 32)}
}

func (h Handle) String() string {
	return fmt.Sprintf("Handle{%d@%d}", h.index, h.gen)
}

type slot[R any] struct {
	gen    uint32
	loaded bool
	res    R
}

// Cache is a fixed power-of-two capacity slot table with round-robin
// eviction. R is the decoded resource type; the release callback runs
// exactly once for every loaded resource that is evicted, overwritten or
// cleared.
type Cache[R any] struct {
	slots   []slot[R]
	mask    uint64
	counter uint64
	release func(R)

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// New creates a cache with the given capacity, rounded up to a power of
// two. release may be nil when resources need no cleanup.
func New[R any](capacity int, release func(R)) *Cache[R] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	capacity = 1 << bits.Len(uint(capacity-1))
	return &Cache[R]{
		slots:   make([]slot[R], capacity),
		mask:    uint64(capacity - 1),
		release: release,
	}
}

// Cap returns the slot count.
func (c *Cache[R]) Cap() int { return len(c.slots) }

// Next claims the next slot round-robin and returns a fresh handle for it.
// The slot's previous occupant, if loaded, is released; the previous
// handle for the slot goes stale. Eviction is eager: it happens here, not
// on a later access.
func (c *Cache[R]) Next() Handle {
	idx := uint32(c.counter & c.mask)
	c.counter++

	s := &c.slots[idx]
	if s.loaded {
		c.evict(s) // bumps the generation
	} else {
		s.gen = nextGeneration(s.gen)
	}
	return Handle{index: idx, gen: s.gen}
}

// Live reports whether h still names its slot: the handle is nonzero and
// its generation matches. A stale handle means the slot has been recycled;
// the caller should request a new handle and reload.
func (c *Cache[R]) Live(h Handle) bool {
	return !h.IsZero() && c.slots[h.index].gen == h.gen
}

// Get returns the loaded resource named by h. It misses when the handle is
// stale or the slot has not been loaded yet; a miss is expected
// control flow, not an error.
func (c *Cache[R]) Get(h Handle) (*R, bool) {
	if !c.Live(h) {
		c.misses.Add(1)
		return nil, false
	}
	s := &c.slots[h.index]
	if !s.loaded {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return &s.res, true
}

// Store places a loaded resource into the slot named by h. It fails when
// the handle is stale, in which case the caller still owns res and must
// release it itself.
func (c *Cache[R]) Store(h Handle, res R) bool {
	if !c.Live(h) {
		return false
	}
	s := &c.slots[h.index]
	if s.loaded {
		c.evict(s)
		s.gen = h.gen // evict bumps the generation; the handle keeps the slot
	}
	s.res = res
	s.loaded = true
	return true
}

// Clear evicts every loaded slot and restarts the round-robin order. All
// outstanding handles go stale.
func (c *Cache[R]) Clear() {
	for i := range c.slots {
		s := &c.slots[i]
		if s.loaded {
			c.evict(s)
		} else {
			s.gen = nextGeneration(s.gen)
		}
	}
	c.counter = 0
}

// Len returns the number of loaded slots.
func (c *Cache[R]) Len() int {
	n := 0
	for i := range c.slots {
		if c.slots[i].loaded {
			n++
		}
	}
	return n
}

func (c *Cache[R]) evict(s *slot[R]) {
	if c.release != nil {
		c.release(s.res)
	}
	var zero R
	s.res = zero
	s.loaded = false
	s.gen = nextGeneration(s.gen)
	c.evictions.Add(1)
}

// nextGeneration increments a generation, wrapping past the maximum and
// skipping zero so that the zero Handle stays invalid forever.
func nextGeneration(gen uint32) uint32 {
	if gen == math.MaxUint32 {
		return 1
	}
	return gen + 1
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Loaded    int
	Capacity  int
}

// Stats returns the current cache statistics.
func (c *Cache[R]) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Loaded:    c.Len(),
		Capacity:  c.Cap(),
	}
}
