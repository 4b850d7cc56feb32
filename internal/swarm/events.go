// Package swarm coordinates the scheduling loop: it loads tasks, routes them
// to agents, bounds concurrency, and drives retries and recovery.
package swarm

import (
	"time"
)

// EventType represents the type of swarm event.
type EventType string

const (
	// EventSwarmStarted indicates the scheduling loop has started.
	EventSwarmStarted EventType = "swarm_started"
	// EventSwarmPaused indicates dispatch has been suspended.
	EventSwarmPaused EventType = "swarm_paused"
	// EventSwarmResumed indicates dispatch has resumed after a pause.
	EventSwarmResumed EventType = "swarm_resumed"
	// EventSwarmCompleted indicates every task reached a terminal state.
	EventSwarmCompleted EventType = "swarm_completed"
	// EventTaskQueued indicates a task was accepted into the queue.
	EventTaskQueued EventType = "task_queued"
	// EventTaskStarted indicates a task has been handed to an agent.
	EventTaskStarted EventType = "task_started"
	// EventTaskCompleted indicates a task completed successfully.
	EventTaskCompleted EventType = "task_completed"
	// EventTaskFailed indicates a task failed terminally.
	EventTaskFailed EventType = "task_failed"
	// EventTaskRetrying indicates a failed task was requeued for another
	// attempt.
	EventTaskRetrying EventType = "task_retrying"
	// EventTaskDeferred indicates routing chose to hold the task for a
	// later cycle.
	EventTaskDeferred EventType = "task_deferred"
	// EventTaskBlocked indicates a task can never run because a dependency
	// failed.
	EventTaskBlocked EventType = "task_blocked"
)

// SwarmEvent is emitted by the orchestrator as the run progresses. Consumers
// (monitors, persistence) read them off the emitter's channel.
type SwarmEvent struct {
	// Type is the kind of event.
	Type EventType
	// TaskID is the ID of the related task, if applicable.
	TaskID string
	// TaskTitle is the title of the related task, if applicable.
	TaskTitle string
	// AgentName is the agent involved, if applicable.
	AgentName string
	// Message provides additional context about the event.
	Message string
	// Error contains error details for failure events.
	Error error
	// Duration is the task's execution time for completion events.
	Duration time.Duration
	// Timestamp is when the event occurred.
	Timestamp time.Time
}
