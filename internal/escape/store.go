package escape

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const shardCount = 32

type shard[V any] struct {
	mu sync.Mutex
	m  map[string]V
}

// shardedMap spreads session ids over independently locked shards. All
// operations on one key take the same shard lock, so they are linearizable.
type shardedMap[V any] struct {
	shards [shardCount]*shard[V]
}

func newShardedMap[V any]() *shardedMap[V] {
	s := &shardedMap[V]{}
	for i := range s.shards {
		s.shards[i] = &shard[V]{m: make(map[string]V)}
	}
	return s
}

func (s *shardedMap[V]) shardFor(key string) *shard[V] {
	return s.shards[xxhash.Sum64String(key)%shardCount]
}

// update runs fn under the key's shard lock. fn receives the current value and
// whether it exists, and returns the new value and whether to keep it.
func (s *shardedMap[V]) update(key string, fn func(cur V, ok bool) (V, bool)) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	cur, ok := sh.m[key]
	next, keep := fn(cur, ok)
	if keep {
		sh.m[key] = next
	} else if ok {
		delete(sh.m, key)
	}
}

func (s *shardedMap[V]) get(key string) (V, bool) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	v, ok := sh.m[key]
	return v, ok
}

func (s *shardedMap[V]) delete(key string) bool {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	_, ok := sh.m[key]
	delete(sh.m, key)
	return ok
}

// sweep visits every entry shard by shard, holding that shard's lock, and
// lets fn replace or drop it. Returns the number of dropped entries.
func (s *shardedMap[V]) sweep(fn func(key string, v V) (V, bool)) int {
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, v := range sh.m {
			next, keep := fn(k, v)
			if keep {
				sh.m[k] = next
			} else {
				delete(sh.m, k)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

func (s *shardedMap[V]) len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.m)
		sh.mu.Unlock()
	}
	return n
}
