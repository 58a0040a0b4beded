package handler

import (
	"fmt"
	"sort"
	"sync"
)

// Registry provides a shared name -> handler registry. It is only written
// during startup; Snapshot hands out the read-only view used afterwards.
type Registry[T any] struct {
	handlers map[string]T
	sealed   bool
	mu       sync.Mutex
}

func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{
		handlers: make(map[string]T),
	}
}

func (r *Registry[T]) Register(name string, handler T) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" {
		return fmt.Errorf("handler name empty")
	}
	if r.sealed {
		return fmt.Errorf("registry sealed, cannot register %s", name)
	}
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("%s already registered", name)
	}
	r.handlers[name] = handler
	return nil
}

// Snapshot seals the registry and returns an immutable copy. Later calls
// return equivalent tables.
func (r *Registry[T]) Snapshot() Table[T] {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sealed = true
	items := make(map[string]T, len(r.handlers))
	for k, v := range r.handlers {
		items[k] = v
	}
	return Table[T]{items: items}
}

// Table is a read-only name -> handler mapping; safe for concurrent use
// without locking because nothing mutates it after construction.
type Table[T any] struct {
	items map[string]T
}

func (t Table[T]) Get(name string) (T, bool) {
	h, ok := t.items[name]
	return h, ok
}

func (t Table[T]) Len() int {
	return len(t.items)
}

func (t Table[T]) Names() []string {
	names := make([]string, 0, len(t.items))
	for k := range t.items {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
