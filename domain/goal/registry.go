package goal

import (
	"fmt"
	"sync"
)

// Registry holds the goals available to runs. It is safe for concurrent use
// and can be swapped atomically when a goals file is reloaded.
type Registry struct {
	mu    sync.RWMutex
	order []string
	goals map[string]Spec
}

// NewRegistry creates a registry seeded with the given goals.
func NewRegistry(specs ...Spec) (*Registry, error) {
	r := &Registry{goals: make(map[string]Spec)}
	for _, s := range specs {
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// NewBuiltinRegistry creates a registry with the built-in goals.
func NewBuiltinRegistry() *Registry {
	r, err := NewRegistry(Builtin()...)
	if err != nil {
		panic(fmt.Sprintf("goal: invalid builtin catalog: %v", err))
	}
	return r
}

// Register adds a goal. Ids must be unique.
func (r *Registry) Register(s Spec) error {
	if err := s.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.goals[s.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateGoal, s.ID)
	}
	r.goals[s.ID] = s
	r.order = append(r.order, s.ID)
	return nil
}

// Replace swaps the whole catalog. The registry is unchanged on error.
func (r *Registry) Replace(specs []Spec) error {
	next, err := NewRegistry(specs...)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.goals = next.goals
	r.order = next.order
	return nil
}

// Get returns the goal with the given id.
func (r *Registry) Get(id string) (Spec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.goals[id]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %s", ErrGoalNotFound, id)
	}
	return s, nil
}

// List returns all goals in registration order.
func (r *Registry) List() []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Spec, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.goals[id])
	}
	return out
}

// Len returns the number of registered goals.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
