package task

import (
	"fmt"
	"sync"
)

// Builder constructs an actor from its spec parameters.
type Builder func(params map[string]any) (Actor, error)

// Registry resolves actor names to builders. The zero value is not usable;
// call NewRegistry.
type Registry struct {
	mu       sync.RWMutex
	builders map[string]Builder
}

// NewRegistry returns an empty actor registry.
func NewRegistry() *Registry {
	return &Registry{builders: make(map[string]Builder)}
}

// Register installs a builder under the given name. Registering the same
// name twice is an error to surface accidental collisions early.
func (r *Registry) Register(name string, builder Builder) error {
	if name == "" {
		return fmt.Errorf("task: actor name must not be empty")
	}
	if builder == nil {
		return fmt.Errorf("task: nil builder for actor %q", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.builders[name]; ok {
		return fmt.Errorf("task: actor %q already registered", name)
	}
	r.builders[name] = builder
	return nil
}

// MustRegister is Register that panics on error, for package init wiring.
func (r *Registry) MustRegister(name string, builder Builder) {
	if err := r.Register(name, builder); err != nil {
		panic(err)
	}
}

// New instantiates a fresh actor for the given spec.
func (r *Registry) New(spec Spec) (Actor, error) {
	r.mu.RLock()
	builder, ok := r.builders[spec.Actor]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("task: unknown actor %q", spec.Actor)
	}
	actor, err := builder(spec.Params)
	if err != nil {
		return nil, fmt.Errorf("task: building actor %q: %w", spec.Actor, err)
	}
	return actor, nil
}
