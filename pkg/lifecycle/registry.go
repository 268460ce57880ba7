package lifecycle

import "sync"

// Registry tracks one Agent per agent id. GetOrCreate creates an agent on
// first use; Lookup reports whether one exists without creating it.
type Registry struct {
	mu     sync.Mutex
	agents map[string]*Agent
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]*Agent)}
}

// GetOrCreate returns the Agent for id, creating it in BOOTING state if
// this is the first time id has been seen.
func (r *Registry) GetOrCreate(id string) *Agent {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok {
		a = New(id)
		r.agents[id] = a
	}
	return a
}

// Lookup returns the Agent for id without creating it.
func (r *Registry) Lookup(id string) (*Agent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	return a, ok
}

// All returns a snapshot of every tracked agent.
func (r *Registry) All() []*Agent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a)
	}
	return out
}
