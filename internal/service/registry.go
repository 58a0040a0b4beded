// internal/service/registry.go
package service

import (
	"fmt"
	"sort"
	"sync"

	"game-bridge/internal/handler"
)

type Registry struct {
	modules    map[string]Module
	operations *handler.Registry[Operation]
	mu         sync.Mutex
}

func NewRegistry() *Registry {
	return &Registry{
		modules:    make(map[string]Module),
		operations: handler.NewRegistry[Operation](),
	}
}

func (r *Registry) Register(m Module) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := m.Name()
	if _, exists := r.modules[name]; exists {
		return fmt.Errorf("module %s already registered", name)
	}

	if err := m.Init(); err != nil {
		return fmt.Errorf("init module %s failed: %w", name, err)
	}

	ops := m.Operations()
	names := make([]string, 0, len(ops))
	for op := range ops {
		names = append(names, op)
	}
	sort.Strings(names)
	for _, op := range names {
		if ops[op] == nil {
			return fmt.Errorf("module %s: operation %s is nil", name, op)
		}
		if err := r.operations.Register(op, ops[op]); err != nil {
			return fmt.Errorf("module %s: %w", name, err)
		}
	}

	r.modules[name] = m
	return nil
}

// Seal ends registration and returns the table used for every request.
func (r *Registry) Seal() handler.Table[Operation] {
	return r.operations.Snapshot()
}

func (r *Registry) Modules() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
