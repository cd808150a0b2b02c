package agent

import (
	"errors"
	"fmt"
	"sync"

	"nightwatch-agent/src/contracts"
	"nightwatch-agent/src/logger"
)

// ErrNotRegistered is returned when creating an agent type the registry
// does not know. This is a configuration error, never retried.
var ErrNotRegistered = errors.New("agent type not registered")

// Constructor builds one agent instance.
type Constructor func(cfg Config, log logger.Logger) (Agent, error)

// Registry maps agent types to constructors. The pipeline owns one instance
// and receives it by injection; there is no package-level registry.
type Registry struct {
	mu    sync.RWMutex
	ctors map[contracts.AgentType]Constructor
	log   logger.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log logger.Logger) *Registry {
	if log == nil {
		log = logger.NewSilentLogger()
	}
	return &Registry{
		ctors: make(map[contracts.AgentType]Constructor),
		log:   log,
	}
}

// Register associates an agent type with a constructor. Re-registering an
// existing type overwrites it; last registration wins, with a warning so
// the overwrite is explicit rather than silent.
func (r *Registry) Register(t contracts.AgentType, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.ctors[t]; exists {
		r.log.Info("[Registry] Overwriting constructor for agent type %q", t)
	}
	r.ctors[t] = ctor
}

// Create instantiates an agent of the given type.
func (r *Registry) Create(t contracts.AgentType, cfg Config, log logger.Logger) (Agent, error) {
	r.mu.RLock()
	ctor, ok := r.ctors[t]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotRegistered, t)
	}
	return ctor(cfg, log)
}

// List returns the registered agent types as a copy; mutating the returned
// slice never affects the registry.
func (r *Registry) List() []contracts.AgentType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]contracts.AgentType, 0, len(r.ctors))
	for t := range r.ctors {
		out = append(out, t)
	}
	return out
}
