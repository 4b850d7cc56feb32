package models

import "time"

// FailureKind classifies an execution failure for recovery-policy dispatch.
type FailureKind string

const (
	// FailureTask is an ordinary task execution failure.
	FailureTask FailureKind = "task_failure"
	// FailureCommunication is a transport error talking to the execution surface.
	FailureCommunication FailureKind = "communication_error"
	// FailureTimeout is a per-task timeout expiry. Counted separately from
	// application failures.
	FailureTimeout FailureKind = "timeout"
	// FailureInvalidOutput is structurally unusable output from an agent.
	FailureInvalidOutput FailureKind = "invalid_output"
	// FailureDependency is a failure caused by an upstream task.
	FailureDependency FailureKind = "dependency_failure"
	// FailureResourceExhaustion is a transient resource shortage.
	FailureResourceExhaustion FailureKind = "resource_exhaustion"
	// FailureDeadlock is a detected stall between agents.
	FailureDeadlock FailureKind = "deadlock"
)

// RecoveryStrategy is the action the self-healer chose for a failure.
type RecoveryStrategy string

const (
	// StrategyRetry re-queues the task for another attempt.
	StrategyRetry RecoveryStrategy = "retry"
	// StrategyWaitRetry re-queues the task after letting the condition clear.
	StrategyWaitRetry RecoveryStrategy = "wait_retry"
	// StrategyOpenCircuit removes the agent from rotation.
	StrategyOpenCircuit RecoveryStrategy = "open_circuit"
	// StrategyNone means the failure was not recoverable.
	StrategyNone RecoveryStrategy = "none"
)

// FailureEvent records one consulted failure and the chosen recovery. Events
// are appended to the self-healer's history and never mutated.
type FailureEvent struct {
	// AgentName is the agent whose execution failed.
	AgentName string `json:"agent_name"`
	// TaskID is the task being executed when the failure occurred.
	TaskID string `json:"task_id"`
	// Kind is the classified failure kind.
	Kind FailureKind `json:"kind"`
	// Message is the underlying error text.
	Message string `json:"message"`
	// Strategy is the recovery strategy the policy selected.
	Strategy RecoveryStrategy `json:"strategy"`
	// Recovered reports whether the policy considered the failure recoverable.
	Recovered bool `json:"recovered"`
	// RetryDelay is how long the task should wait before re-dispatch when
	// the strategy is StrategyWaitRetry. Zero otherwise.
	RetryDelay time.Duration `json:"retry_delay,omitempty"`
	// Timestamp is when the failure was consulted.
	Timestamp time.Time `json:"timestamp"`
}

// ExecutionResult is what the execution surface returns for one dispatch.
type ExecutionResult struct {
	// TaskID is the executed task's ID.
	TaskID string `json:"task_id"`
	// AgentName is the agent that executed the task.
	AgentName string `json:"agent_name"`
	// Success reports whether execution succeeded.
	Success bool `json:"success"`
	// Output is the produced output, if any.
	Output string `json:"output,omitempty"`
	// Error is the failure message when Success is false.
	Error string `json:"error,omitempty"`
	// Duration is how long execution took.
	Duration time.Duration `json:"duration"`
}
