package strategy

import (
	"fmt"
	"sort"
	"sync"
)

// Registry manages the signal sources that can be selected by name. It is
// safe for concurrent use.
type Registry struct {
	sources map[string]SignalSource
	mu      sync.RWMutex
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]SignalSource)}
}

// DefaultRegistry returns a registry holding the built-in sources.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewIchimoku(DefaultIchimokuParams()))
	return r
}

// Register adds a source under its Name, replacing any previous one.
func (r *Registry) Register(s SignalSource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[s.Name()] = s
}

// Get retrieves a source by name.
func (r *Registry) Get(name string) (SignalSource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sources[name]
	if !ok {
		return nil, fmt.Errorf("strategy %q: not registered", name)
	}
	return s, nil
}

// List returns the registered names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.sources))
	for n := range r.sources {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
