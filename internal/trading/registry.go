package trading

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"airdrop-optimizer/internal/domain"
)

// Registry indexes live and recently finished agents by id. It backs the
// status surface: snapshots, start and stop commands.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*Agent
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]*Agent)}
}

// Register adds an agent. Returns ErrAgentExists for a duplicate id.
func (r *Registry) Register(a *Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[a.ID()]; exists {
		return fmt.Errorf("%w: %s", ErrAgentExists, a.ID())
	}
	r.agents[a.ID()] = a
	return nil
}

// Get returns the agent with id.
func (r *Registry) Get(id string) (*Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	return a, nil
}

// List returns snapshots of every registered agent ordered by agent id.
func (r *Registry) List() []domain.AgentSnapshot {
	r.mu.RLock()
	agents := make([]*Agent, 0, len(r.agents))
	for _, a := range r.agents {
		agents = append(agents, a)
	}
	r.mu.RUnlock()

	out := make([]domain.AgentSnapshot, 0, len(agents))
	for _, a := range agents {
		out = append(out, a.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out
}

// Start starts the agent with id.
func (r *Registry) Start(id string) error {
	a, err := r.Get(id)
	if err != nil {
		return err
	}
	return a.Start()
}

// Stop stops the agent with id.
func (r *Registry) Stop(id string) error {
	a, err := r.Get(id)
	if err != nil {
		return err
	}
	return a.Stop()
}

// Remove drops an agent from the registry.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.agents, id)
	r.mu.Unlock()
}

// Prune removes terminal agents whose last update is before cutoff and
// returns how many were removed.
func (r *Registry) Prune(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, a := range r.agents {
		s := a.Snapshot()
		if s.Status.IsTerminal() && s.LastUpdate.Before(cutoff) {
			delete(r.agents, id)
			removed++
		}
	}
	return removed
}
