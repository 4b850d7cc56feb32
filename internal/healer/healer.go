// Package healer classifies execution failures and applies the recovery
// policy: bounded retries, wait-and-retry for transient conditions, and
// per-agent circuit breakers for structural ones.
package healer

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/swarmroute/swarmroute/pkg/models"
)

// taskRetryBudget caps retries for task and communication failures.
const taskRetryBudget = 3

// SelfHealer owns the failure history, per-agent+task attempt counts, and
// per-agent circuit breakers. One instance serves a whole swarm run.
type SelfHealer struct {
	// resetAfter is the circuit cooldown before half-open probing.
	// Zero keeps opened circuits open for the rest of the run.
	resetAfter time.Duration
	// waitInitial and waitMax bound the wait-and-retry delay growth.
	waitInitial time.Duration
	waitMax     time.Duration
	// history is the append-only log of consulted failures.
	history []models.FailureEvent
	// attempts counts consulted failures per agent+task+kind.
	attempts map[string]int
	// breakers holds one circuit breaker per agent, created lazily.
	breakers map[string]*agentBreaker
	// waits holds one exponential backoff per agent for wait-and-retry kinds.
	waits map[string]*backoff.ExponentialBackOff
	// logf is an optional debug logging function.
	logf func(format string, args ...interface{})
	// mu protects all fields.
	mu sync.Mutex
}

// Option configures a SelfHealer.
type Option func(*SelfHealer)

// WithResetAfter sets the circuit breaker cooldown. After the cooldown the
// breaker goes half-open and a single probe assignment is allowed through.
// Zero (the default) keeps opened circuits open permanently.
func WithResetAfter(d time.Duration) Option {
	return func(h *SelfHealer) { h.resetAfter = d }
}

// WithWaitBackoff bounds the wait-and-retry delay for transient failures.
func WithWaitBackoff(initial, max time.Duration) Option {
	return func(h *SelfHealer) {
		h.waitInitial = initial
		h.waitMax = max
	}
}

// WithLogger sets a debug logging function.
func WithLogger(logf func(format string, args ...interface{})) Option {
	return func(h *SelfHealer) { h.logf = logf }
}

// New creates a SelfHealer with all circuits closed.
func New(opts ...Option) *SelfHealer {
	h := &SelfHealer{
		waitInitial: 500 * time.Millisecond,
		waitMax:     30 * time.Second,
		attempts:    make(map[string]int),
		breakers:    make(map[string]*agentBreaker),
		waits:       make(map[string]*backoff.ExponentialBackOff),
		logf:        func(format string, args ...interface{}) {},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// DetectAndRecover classifies the error and applies the recovery policy for
// its kind. It returns whether the failure is recoverable along with the
// recorded FailureEvent. If the agent's circuit is already open the taxonomy
// is not consulted and the result is immediately unrecoverable.
//
// Policy per kind:
//   - task failure / communication error: retry while the consulted-failure
//     count for this agent+task stays within the retry budget
//   - timeout: retry once more, then unrecoverable (the task should be split)
//   - invalid output: retry once, then open the agent's circuit
//   - dependency failure / resource exhaustion / deadlock: always recovered,
//     with a backoff-derived wait before re-dispatch
func (h *SelfHealer) DetectAndRecover(agentName string, execErr error, taskID string) (bool, models.FailureEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.circuitOpenLocked(agentName) {
		h.logf("[healer] %s: circuit open, not consulting taxonomy for task %s", agentName, taskID)
		return false, models.FailureEvent{
			AgentName: agentName,
			TaskID:    taskID,
			Strategy:  models.StrategyNone,
			Message:   "circuit open",
			Timestamp: time.Now(),
		}
	}

	kind := ClassifyError(execErr)
	key := agentName + "|" + taskID + "|" + string(kind)
	h.attempts[key]++
	count := h.attempts[key]

	event := models.FailureEvent{
		AgentName: agentName,
		TaskID:    taskID,
		Kind:      kind,
		Message:   execErr.Error(),
		Timestamp: time.Now(),
	}

	switch kind {
	case models.FailureTask, models.FailureCommunication:
		if count <= taskRetryBudget {
			event.Recovered = true
			event.Strategy = models.StrategyRetry
		} else {
			event.Strategy = models.StrategyNone
		}

	case models.FailureTimeout:
		// One more attempt; persistent timeouts signal the task is too big.
		if count <= 1 {
			event.Recovered = true
			event.Strategy = models.StrategyRetry
		} else {
			event.Strategy = models.StrategyNone
		}

	case models.FailureInvalidOutput:
		if count <= 1 {
			event.Recovered = true
			event.Strategy = models.StrategyRetry
		} else {
			// Persistent bad output is structural: take the agent out of rotation.
			h.openCircuitLocked(agentName)
			event.Strategy = models.StrategyOpenCircuit
		}

	default:
		// Dependency failure, resource exhaustion, deadlock: the condition
		// clears on its own, so wait and retry without a fixed budget.
		event.Recovered = true
		event.Strategy = models.StrategyWaitRetry
		event.RetryDelay = h.nextWaitLocked(agentName)
	}

	h.history = append(h.history, event)
	h.logf("[healer] %s task %s: kind=%s attempt=%d strategy=%s recovered=%v",
		agentName, taskID, kind, count, event.Strategy, event.Recovered)

	return event.Recovered, event
}

// RecordSuccess resets the agent's wait-and-retry backoff after a successful
// completion.
func (h *SelfHealer) RecordSuccess(agentName string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if bo, exists := h.waits[agentName]; exists {
		bo.Reset()
	}
}

// CircuitOpen reports whether the agent's circuit is currently open. A
// half-open circuit (cooldown elapsed) reads as closed so a probe assignment
// can go through.
func (h *SelfHealer) CircuitOpen(agentName string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.circuitOpenLocked(agentName)
}

// OpenCircuits returns the names of agents with an open circuit.
func (h *SelfHealer) OpenCircuits() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	var open []string
	for name, b := range h.breakers {
		if b.open() {
			open = append(open, name)
		}
	}
	return open
}

// History returns a copy of the append-only failure history.
func (h *SelfHealer) History() []models.FailureEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	history := make([]models.FailureEvent, len(h.history))
	copy(history, h.history)
	return history
}

// nextWaitLocked returns the next wait-and-retry delay for the agent.
// Caller must hold h.mu.
func (h *SelfHealer) nextWaitLocked(agentName string) time.Duration {
	bo, exists := h.waits[agentName]
	if !exists {
		bo = backoff.NewExponentialBackOff()
		bo.InitialInterval = h.waitInitial
		bo.MaxInterval = h.waitMax
		bo.MaxElapsedTime = 0 // no overall budget for wait-and-retry
		bo.Reset()
		h.waits[agentName] = bo
	}
	return bo.NextBackOff()
}
