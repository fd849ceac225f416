package rtdispatch

import (
	"slices"
	"sync"

	"github.com/golang/groupcache/lru"

	"mdisp/internal/registry"
)

type cacheKey struct {
	name string
	hash uint64
}

type cached struct {
	ids    []uint64
	method *registry.Method
}

type shard struct {
	mu  sync.Mutex
	lru *lru.Cache
}

// cache is the bounded overflow cache keyed by the full identity tuple.
// Each shard has its own lock; concurrent misses on one key store the same
// method, so the last writer wins harmlessly.
type cache struct {
	shards []*shard
}

func newCache(size, shards int) *cache {
	if size == 0 {
		return nil
	}
	per := max(1, (size+shards-1)/shards)
	c := &cache{shards: make([]*shard, shards)}
	for i := range c.shards {
		c.shards[i] = &shard{lru: lru.New(per)}
	}
	return c
}

func (c *cache) shard(k cacheKey) *shard {
	return c.shards[k.hash%uint64(len(c.shards))]
}

func (c *cache) get(k cacheKey, ids []uint64) (*registry.Method, bool) {
	if c == nil {
		return nil, false
	}
	s := c.shard(k)
	s.mu.Lock()
	v, ok := s.lru.Get(k)
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	e := v.(cached)
	if !slices.Equal(e.ids, ids) {
		return nil, false
	}
	return e.method, true
}

func (c *cache) put(k cacheKey, ids []uint64, m *registry.Method) {
	if c == nil {
		return
	}
	s := c.shard(k)
	s.mu.Lock()
	s.lru.Add(k, cached{ids: slices.Clone(ids), method: m})
	s.mu.Unlock()
}

func (c *cache) len() int {
	if c == nil {
		return 0
	}
	n := 0
	for _, s := range c.shards {
		s.mu.Lock()
		n += s.lru.Len()
		s.mu.Unlock()
	}
	return n
}
