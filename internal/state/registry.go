package state

import (
	"fmt"
	"sync"
)

// Registry maps strategy names to implementations.
// Safe for concurrent reads; Register should only be called at startup.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry creates a Registry pre-populated with the built-in strategies.
func NewRegistry() *Registry {
	r := &Registry{strategies: make(map[string]Strategy)}
	r.Register(EntityAction{})
	r.Register(ActorAction{})
	r.Register(ActionOnly{})
	r.Register(EntityActionStage{})
	return r
}

// Register adds a strategy. Panics on duplicate name to surface
// misconfiguration early.
func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.strategies[s.Name()]; exists {
		panic(fmt.Sprintf("state registry: duplicate strategy %q", s.Name()))
	}
	r.strategies[s.Name()] = s
}

// Get returns the strategy registered under name.
func (r *Registry) Get(name string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[name]
	if !ok {
		return nil, fmt.Errorf("no strategy registered under %q", name)
	}
	return s, nil
}

// Names returns all registered strategy names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.strategies))
	for k := range r.strategies {
		out = append(out, k)
	}
	return out
}
