package healer

import (
	"context"
	"errors"
	"strings"

	"github.com/swarmroute/swarmroute/pkg/models"
)

// Sentinel errors execution surfaces can wrap to make classification exact.
// Errors that wrap none of these fall back to message matching.
var (
	// ErrCommunication marks a transport failure reaching the agent.
	ErrCommunication = errors.New("communication error")
	// ErrInvalidOutput marks structurally unusable agent output.
	ErrInvalidOutput = errors.New("invalid output")
	// ErrDependencyFailure marks a failure caused by an upstream task.
	ErrDependencyFailure = errors.New("dependency failure")
	// ErrResourceExhausted marks a transient resource shortage.
	ErrResourceExhausted = errors.New("resource exhausted")
	// ErrDeadlock marks a detected stall between agents.
	ErrDeadlock = errors.New("deadlock")
)

// ClassifyError maps an execution error to a failure kind. Context deadline
// expiry is always a timeout, keeping timeouts counted separately from
// application failures.
func ClassifyError(err error) models.FailureKind {
	if err == nil {
		return models.FailureTask
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.FailureTimeout
	case errors.Is(err, ErrCommunication):
		return models.FailureCommunication
	case errors.Is(err, ErrInvalidOutput):
		return models.FailureInvalidOutput
	case errors.Is(err, ErrDependencyFailure):
		return models.FailureDependency
	case errors.Is(err, ErrResourceExhausted):
		return models.FailureResourceExhaustion
	case errors.Is(err, ErrDeadlock):
		return models.FailureDeadlock
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return models.FailureTimeout
	case strings.Contains(msg, "connection") || strings.Contains(msg, "unreachable") || strings.Contains(msg, "communication"):
		return models.FailureCommunication
	case strings.Contains(msg, "invalid output") || strings.Contains(msg, "malformed") || strings.Contains(msg, "unparseable"):
		return models.FailureInvalidOutput
	case strings.Contains(msg, "dependency"):
		return models.FailureDependency
	case strings.Contains(msg, "resource") || strings.Contains(msg, "memory") || strings.Contains(msg, "exhaust"):
		return models.FailureResourceExhaustion
	case strings.Contains(msg, "deadlock"):
		return models.FailureDeadlock
	default:
		return models.FailureTask
	}
}
