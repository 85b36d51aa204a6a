// Package spvcache caches SPIR-V compiled from WGSL source.
//
// The cache is sharded by an FNV-1a hash of the source and evicts the
// least recently used module per shard. Concurrent misses on the same
// source share one compilation.
package spvcache

import (
	"container/list"
	"hash/fnv"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

const (
	// shardCount must be a power of 2.
	shardCount = 8
	shardMask  = shardCount - 1

	// DefaultCapacity is the default number of modules per shard.
	DefaultCapacity = 32
)

// CompileFunc compiles WGSL source to SPIR-V words.
type CompileFunc func(source string) ([]uint32, error)

// Cache maps WGSL source to SPIR-V words. It is safe for concurrent use.
//
// Returned slices are shared between callers and must not be modified.
type Cache struct {
	shards   [shardCount]*shard
	capacity int
	flight   singleflight.Group

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
	failures  atomic.Uint64
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List // front is most recent
}

type entry struct {
	source string
	words  []uint32
}

// New returns a cache holding up to capacity modules per shard. A
// non-positive capacity selects DefaultCapacity.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c := &Cache{capacity: capacity}
	for i := range c.shards {
		c.shards[i] = &shard{
			entries: make(map[string]*list.Element),
			lru:     list.New(),
		}
	}
	return c
}

func (c *Cache) shard(source string) *shard {
	h := fnv.New64a()
	_, _ = h.Write([]byte(source))
	return c.shards[h.Sum64()&shardMask]
}

// Get returns the cached words for source.
func (c *Cache) Get(source string) ([]uint32, bool) {
	words, ok := c.lookup(source)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return words, ok
}

func (c *Cache) lookup(source string) ([]uint32, bool) {
	s := c.shard(source)
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.entries[source]
	if !ok {
		return nil, false
	}
	s.lru.MoveToFront(el)
	return el.Value.(*entry).words, true
}

// GetOrCompile returns the cached words for source, compiling them on a
// miss. Compilation runs without any shard lock held. Failures are not
// cached.
func (c *Cache) GetOrCompile(source string, compile CompileFunc) ([]uint32, error) {
	if words, ok := c.Get(source); ok {
		return words, nil
	}
	v, err, shared := c.flight.Do(source, func() (any, error) {
		if words, ok := c.lookup(source); ok {
			return words, nil
		}
		words, err := compile(source)
		if err != nil {
			c.failures.Add(1)
			return nil, err
		}
		if n := c.put(source, words); n > 0 {
			slogger().Debug("spvcache: evicted modules", "count", n)
		}
		return words, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		slogger().Debug("spvcache: shared compilation", "bytes", len(source))
	}
	return v.([]uint32), nil
}

// put stores words and returns the number of modules evicted for them.
func (c *Cache) put(source string, words []uint32) int {
	s := c.shard(source)
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.entries[source]; ok {
		el.Value.(*entry).words = words
		s.lru.MoveToFront(el)
		return 0
	}
	evicted := 0
	for s.lru.Len() >= c.capacity {
		oldest := s.lru.Back()
		s.lru.Remove(oldest)
		delete(s.entries, oldest.Value.(*entry).source)
		evicted++
	}
	c.evictions.Add(uint64(evicted)) //nolint:gosec // non-negative
	s.entries[source] = s.lru.PushFront(&entry{source: source, words: words})
	return evicted
}

// Purge drops every cached module. Counters are kept.
func (c *Cache) Purge() {
	for _, s := range c.shards {
		s.mu.Lock()
		clear(s.entries)
		s.lru.Init()
		s.mu.Unlock()
	}
}

// Len returns the number of cached modules.
func (c *Cache) Len() int {
	n := 0
	for _, s := range c.shards {
		s.mu.Lock()
		n += s.lru.Len()
		s.mu.Unlock()
	}
	return n
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Len:       c.Len(),
		Capacity:  c.capacity * shardCount,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Failures:  c.failures.Load(),
	}
}

// Stats holds cache counters.
type Stats struct {
	Len       int
	Capacity  int // total, across shards
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Failures  uint64
}

// HitRate returns hits / (hits + misses), or 0 before any lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// LogValue implements slog.LogValuer.
func (s Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("len", s.Len),
		slog.Uint64("hits", s.Hits),
		slog.Uint64("misses", s.Misses),
		slog.Uint64("evictions", s.Evictions),
		slog.Uint64("failures", s.Failures),
	)
}
