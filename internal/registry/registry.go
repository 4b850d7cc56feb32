// Package registry maintains the catalog of agents eligible for task
// assignment.
package registry

import (
	"sort"
	"sync"

	"github.com/swarmroute/swarmroute/pkg/models"
)

// AgentRegistry is the read-mostly catalog of agent metadata. Registration
// normally happens before scheduling starts, but the generic fallback agent
// can be created mid-run, so lookups are serialized against registration.
type AgentRegistry struct {
	// agents maps agent name to metadata.
	agents map[string]*models.AgentMetadata
	// names holds agent names in sorted order for deterministic lookups.
	names []string
	// mu protects all fields.
	mu sync.RWMutex
}

// New creates an empty AgentRegistry.
func New() *AgentRegistry {
	return &AgentRegistry{
		agents: make(map[string]*models.AgentMetadata),
	}
}

// Register adds a specialist agent to the catalog. Registering a name twice
// overwrites the previous metadata.
func (r *AgentRegistry) Register(name, specialty string, capabilities, toolCategories []string) {
	r.register(&models.AgentMetadata{
		Name:           name,
		Specialty:      specialty,
		Class:          models.AgentClassSpecialist,
		Capabilities:   capabilities,
		ToolCategories: toolCategories,
	})
}

// register inserts metadata and keeps the name index sorted.
func (r *AgentRegistry) register(meta *models.AgentMetadata) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[meta.Name]; !exists {
		r.names = append(r.names, meta.Name)
		sort.Strings(r.names)
	}
	r.agents[meta.Name] = meta
}

// Get returns the metadata for an agent name, or nil if not registered.
func (r *AgentRegistry) Get(name string) *models.AgentMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.agents[name]
}

// FindBySpecialty returns the first agent (by name order) whose specialty
// matches, or nil if none does.
func (r *AgentRegistry) FindBySpecialty(specialty string) *models.AgentMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.names {
		if r.agents[name].Specialty == specialty {
			return r.agents[name]
		}
	}
	return nil
}

// FindByCapability returns the first agent (by name order) advertising the
// capability tag, or nil if none does.
func (r *AgentRegistry) FindByCapability(capability string) *models.AgentMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.names {
		if r.agents[name].HasCapability(capability) {
			return r.agents[name]
		}
	}
	return nil
}

// All returns a snapshot of all registered agents in name order.
func (r *AgentRegistry) All() []*models.AgentMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agents := make([]*models.AgentMetadata, 0, len(r.names))
	for _, name := range r.names {
		agents = append(agents, r.agents[name])
	}
	return agents
}

// Count returns the number of registered agents.
func (r *AgentRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// EnsureGeneric returns the designated generic fallback agent, creating it
// if it was never registered. This is the one write the registry accepts
// after scheduling has started.
func (r *AgentRegistry) EnsureGeneric() *models.AgentMetadata {
	if meta := r.Get(models.GenericAgentName); meta != nil {
		return meta
	}

	r.register(&models.AgentMetadata{
		Name:           models.GenericAgentName,
		Specialty:      "generic",
		Class:          models.AgentClassGeneric,
		Capabilities:   []string{"execution"},
		ToolCategories: []string{"file_ops", "code_ops"},
	})
	return r.Get(models.GenericAgentName)
}
