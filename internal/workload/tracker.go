// Package workload tracks per-agent execution state: current task, counters,
// efficiency, and availability.
package workload

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/swarmroute/swarmroute/pkg/models"
)

// ErrAgentBusy indicates an assignment was attempted while the agent already
// holds a task. The single-task-per-agent invariant is enforced here, not by
// caller discipline.
var ErrAgentBusy = errors.New("agent already has a task assigned")

// ErrUnknownAgent indicates an operation referenced an untracked agent.
var ErrUnknownAgent = errors.New("agent not tracked")

// Tracker owns the mutable per-agent workload map. All reads and writes go
// through the tracker's lock; callers never touch workloads directly. The
// tracker's lock is distinct from the orchestrator's queue lock and the two
// are never held at the same time.
type Tracker struct {
	// workloads maps agent name to its workload record.
	workloads map[string]*models.AgentWorkload
	// mu protects the workload map and every record in it.
	mu sync.RWMutex
}

// NewTracker creates an empty workload tracker.
func NewTracker() *Tracker {
	return &Tracker{
		workloads: make(map[string]*models.AgentWorkload),
	}
}

// Track starts tracking an agent. Tracking an already-tracked agent is a
// no-op so registration code can call it unconditionally.
func (t *Tracker) Track(agentName string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.workloads[agentName]; exists {
		return
	}
	t.workloads[agentName] = &models.AgentWorkload{
		AgentName:   agentName,
		IsAvailable: true,
	}
}

// Assign records that the agent started working on taskID. It rejects
// double-assignment: an agent holds at most one task.
func (t *Tracker) Assign(agentName, taskID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	w, exists := t.workloads[agentName]
	if !exists {
		return fmt.Errorf("assign %s: %w", agentName, ErrUnknownAgent)
	}
	if w.CurrentTask != "" {
		return fmt.Errorf("assign %s to %s (holds %s): %w", taskID, agentName, w.CurrentTask, ErrAgentBusy)
	}

	w.CurrentTask = taskID
	w.LastActivity = time.Now()
	return nil
}

// Complete clears the agent's current task and updates its counters.
// Efficiency is tasks completed per hour of cumulative work time; a floor on
// the denominator guards division by zero for near-instant completions.
func (t *Tracker) Complete(agentName string, success bool, duration time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	w, exists := t.workloads[agentName]
	if !exists {
		return fmt.Errorf("complete %s: %w", agentName, ErrUnknownAgent)
	}

	w.CurrentTask = ""
	w.TotalWorkTime += duration
	w.LastActivity = time.Now()

	if success {
		w.SuccessCount++
		w.TasksCompleted++
	} else {
		w.ErrorCount++
	}

	hours := w.TotalWorkTime.Hours()
	if hours < 0.001 {
		hours = 0.001
	}
	w.EfficiencyScore = float64(w.TasksCompleted) / hours

	return nil
}

// IsAvailable reports whether the agent can accept a new task: it is
// tracked, administratively available, and holds no current task. Circuit
// state is layered on top by the router, which also consults the healer.
func (t *Tracker) IsAvailable(agentName string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	w, exists := t.workloads[agentName]
	if !exists {
		return false
	}
	return w.IsAvailable && w.CurrentTask == ""
}

// SetAvailable flips the administrative availability flag for an agent.
func (t *Tracker) SetAvailable(agentName string, available bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if w, exists := t.workloads[agentName]; exists {
		w.IsAvailable = available
	}
}

// Get returns a copy of the agent's workload record, or nil if untracked.
// Returning a copy keeps all mutation behind the tracker's lock.
func (t *Tracker) Get(agentName string) *models.AgentWorkload {
	t.mu.RLock()
	defer t.mu.RUnlock()

	w, exists := t.workloads[agentName]
	if !exists {
		return nil
	}
	copied := *w
	return &copied
}

// CurrentTask returns the task the agent is executing, or empty.
func (t *Tracker) CurrentTask(agentName string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if w, exists := t.workloads[agentName]; exists {
		return w.CurrentTask
	}
	return ""
}

// InFlightCount returns how many tracked agents currently hold a task.
func (t *Tracker) InFlightCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	count := 0
	for _, w := range t.workloads {
		if w.CurrentTask != "" {
			count++
		}
	}
	return count
}
