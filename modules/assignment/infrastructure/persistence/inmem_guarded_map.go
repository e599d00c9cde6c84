package persistence

import (
	"sync"
)

// guardedMap backs the in-memory repositories. Values are returned as stored,
// so callers keep their own copy-on-write discipline.
type guardedMap[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]V
}

func newGuardedMap[K comparable, V any]() *guardedMap[K, V] {
	return &guardedMap[K, V]{items: map[K]V{}}
}

func (g *guardedMap[K, V]) Store(key K, v V) {
	g.mu.Lock()
	g.items[key] = v
	g.mu.Unlock()
}

func (g *guardedMap[K, V]) Load(key K) (V, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	v, ok := g.items[key]
	return v, ok
}

// LoadOrCreate calls create at most once per key.
func (g *guardedMap[K, V]) LoadOrCreate(key K, create func() V) V {
	g.mu.Lock()
	defer g.mu.Unlock()
	if v, ok := g.items[key]; ok {
		return v
	}
	v := create()
	g.items[key] = v
	return v
}

// All returns the values matching keep, in no particular order. A nil keep matches everything.
func (g *guardedMap[K, V]) All(keep func(V) bool) []V {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]V, 0, len(g.items))
	for _, v := range g.items {
		if keep == nil || keep(v) {
			out = append(out, v)
		}
	}
	return out
}
