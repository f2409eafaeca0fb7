package security

import (
	"hash/fnv"
	"strconv"
	"sync"
)

const defaultShards = 32

// pairKey joins two caller-supplied parts unambiguously. The first part is
// length prefixed, so no choice of separator characters in either part can
// make two different pairs share a key.
func pairKey(a, b string) string {
	return strconv.Itoa(len(a)) + ":" + a + b
}

type shard[V any] struct {
	mu    sync.Mutex
	items map[string]V
}

// shardedMap spreads keys over independently locked shards so that
// operations on unrelated keys never contend on one mutex. All mutation of
// a key happens under its shard lock.
type shardedMap[V any] struct {
	shards []*shard[V]
}

func newShardedMap[V any](n int) *shardedMap[V] {
	if n <= 0 {
		n = defaultShards
	}
	m := &shardedMap[V]{shards: make([]*shard[V], n)}
	for i := range m.shards {
		m.shards[i] = &shard[V]{items: make(map[string]V)}
	}
	return m
}

func (m *shardedMap[V]) shardFor(key string) *shard[V] {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return m.shards[h.Sum32()%uint32(len(m.shards))]
}

// with runs fn holding the lock of the shard that owns key.
func (m *shardedMap[V]) with(key string, fn func(items map[string]V)) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.items)
}

// sweep visits every entry one shard at a time and deletes those for which
// drop returns true. It returns the number of deleted entries.
func (m *shardedMap[V]) sweep(drop func(key string, v V) bool) int {
	removed := 0
	for _, s := range m.shards {
		s.mu.Lock()
		for k, v := range s.items {
			if drop(k, v) {
				delete(s.items, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// each visits every entry one shard at a time. fn must not retain v.
func (m *shardedMap[V]) each(fn func(key string, v V)) {
	for _, s := range m.shards {
		s.mu.Lock()
		for k, v := range s.items {
			fn(k, v)
		}
		s.mu.Unlock()
	}
}

func (m *shardedMap[V]) len() int {
	n := 0
	for _, s := range m.shards {
		s.mu.Lock()
		n += len(s.items)
		s.mu.Unlock()
	}
	return n
}
