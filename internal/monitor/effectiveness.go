package monitor

import (
	"sort"
	"sync"
	"time"

	"github.com/swarmroute/swarmroute/internal/swarm"
)

// AgentStats aggregates one agent's observed outcomes. Routing quality shows
// up here: an agent drowning in retries was matched to work it cannot do.
type AgentStats struct {
	// AgentName is the agent these counters describe.
	AgentName string `json:"agent_name"`
	// Completed counts successful completions.
	Completed int `json:"completed"`
	// Failed counts terminal failures attributed to the agent.
	Failed int `json:"failed"`
	// Retried counts recoverable failures attributed to the agent.
	Retried int `json:"retried"`
	// TotalWorkTime sums completed task durations.
	TotalWorkTime time.Duration `json:"total_work_time"`
}

// SuccessRate returns completed over completed+failed, or zero.
func (a AgentStats) SuccessRate() float64 {
	finished := a.Completed + a.Failed
	if finished == 0 {
		return 0
	}
	return float64(a.Completed) / float64(finished)
}

// MeanTaskTime returns the average completed-task duration, or zero.
func (a AgentStats) MeanTaskTime() time.Duration {
	if a.Completed == 0 {
		return 0
	}
	return a.TotalWorkTime / time.Duration(a.Completed)
}

// Effectiveness tracks per-agent outcome statistics across a run.
type Effectiveness struct {
	mu     sync.Mutex
	agents map[string]*AgentStats
}

// NewEffectiveness creates an empty tracker.
func NewEffectiveness() *Effectiveness {
	return &Effectiveness{agents: make(map[string]*AgentStats)}
}

// observe folds one event into the per-agent counters. Caller coordination
// comes from the monitor; the internal lock guards direct Report callers.
func (e *Effectiveness) observe(event swarm.SwarmEvent) {
	if event.AgentName == "" {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	stats, exists := e.agents[event.AgentName]
	if !exists {
		stats = &AgentStats{AgentName: event.AgentName}
		e.agents[event.AgentName] = stats
	}

	switch event.Type {
	case swarm.EventTaskCompleted:
		stats.Completed++
		stats.TotalWorkTime += event.Duration
	case swarm.EventTaskFailed:
		stats.Failed++
	case swarm.EventTaskRetrying:
		stats.Retried++
	}
}

// Agent returns a copy of one agent's stats, or a zero value if unseen.
func (e *Effectiveness) Agent(name string) AgentStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	if stats, exists := e.agents[name]; exists {
		return *stats
	}
	return AgentStats{AgentName: name}
}

// Report returns every agent's stats sorted by name.
func (e *Effectiveness) Report() []AgentStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	report := make([]AgentStats, 0, len(e.agents))
	for _, stats := range e.agents {
		report = append(report, *stats)
	}
	sort.Slice(report, func(i, j int) bool { return report[i].AgentName < report[j].AgentName })
	return report
}
