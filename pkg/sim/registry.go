package sim

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Factory builds an environment from construction keyword arguments.
type Factory func(ctx context.Context, kw Kwargs) (Env, error)

// Registry maps backend names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds or replaces a backend.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Make builds an environment with the named backend.
func (r *Registry) Make(ctx context.Context, name string, kw Kwargs) (Env, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown backend %q (have %s)", name, strings.Join(r.Names(), ", "))
	}
	env, err := f(ctx, kw)
	if err != nil {
		return nil, fmt.Errorf("make %s environment: %w", name, err)
	}
	return env, nil
}

// Names returns the registered backends, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
