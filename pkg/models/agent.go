package models

import "time"

// AgentClass distinguishes specialists from the generic fallback agent.
type AgentClass string

const (
	// AgentClassSpecialist indicates an agent registered for a specific specialty.
	AgentClassSpecialist AgentClass = "specialist"
	// AgentClassGeneric indicates the always-present fallback agent.
	AgentClassGeneric AgentClass = "generic"
)

// GenericAgentName is the designated fallback agent. The registry creates it
// on first use if no agent with this name was registered at startup.
const GenericAgentName = "generic_agent"

// AgentMetadata describes a registered agent. Metadata is written once at
// registration and read-only afterwards.
type AgentMetadata struct {
	// Name is the unique agent name.
	Name string `json:"name"`
	// Specialty is the task type this agent is best suited for.
	Specialty string `json:"specialty"`
	// Class marks the agent as a specialist or the generic fallback.
	Class AgentClass `json:"class"`
	// Capabilities lists the capability tags this agent advertises.
	Capabilities []string `json:"capabilities,omitempty"`
	// ToolCategories lists the tool categories available to this agent.
	ToolCategories []string `json:"tool_categories,omitempty"`
}

// HasCapability returns true if the agent advertises the given capability tag.
func (m *AgentMetadata) HasCapability(capability string) bool {
	for _, c := range m.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// AgentWorkload tracks the mutable per-agent execution state. All mutation
// goes through the workload tracker, which guards it with a single lock.
type AgentWorkload struct {
	// AgentName is the name of the tracked agent.
	AgentName string `json:"agent_name"`
	// CurrentTask is the ID of the task the agent is executing, or empty.
	// An agent holds at most one task at a time.
	CurrentTask string `json:"current_task,omitempty"`
	// TasksCompleted is the number of tasks this agent has finished.
	TasksCompleted int `json:"tasks_completed"`
	// TotalWorkTime is the cumulative execution time across tasks.
	TotalWorkTime time.Duration `json:"total_work_time"`
	// EfficiencyScore is tasks completed per hour of work time.
	EfficiencyScore float64 `json:"efficiency_score"`
	// IsAvailable is the administrative availability flag.
	IsAvailable bool `json:"is_available"`
	// SuccessCount is the number of successful completions.
	SuccessCount int `json:"success_count"`
	// ErrorCount is the number of failed completions.
	ErrorCount int `json:"error_count"`
	// LastActivity is when the workload last changed.
	LastActivity time.Time `json:"last_activity,omitempty"`
}

// Busy returns true if the agent is currently executing a task.
func (w *AgentWorkload) Busy() bool {
	return w.CurrentTask != ""
}
