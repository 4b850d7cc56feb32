package healer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/swarmroute/swarmroute/pkg/models"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want models.FailureKind
	}{
		{"context deadline", context.DeadlineExceeded, models.FailureTimeout},
		{"wrapped deadline", fmt.Errorf("execute: %w", context.DeadlineExceeded), models.FailureTimeout},
		{"communication sentinel", fmt.Errorf("dial: %w", ErrCommunication), models.FailureCommunication},
		{"invalid output sentinel", ErrInvalidOutput, models.FailureInvalidOutput},
		{"dependency sentinel", ErrDependencyFailure, models.FailureDependency},
		{"resource sentinel", ErrResourceExhausted, models.FailureResourceExhaustion},
		{"deadlock sentinel", ErrDeadlock, models.FailureDeadlock},
		{"timeout by message", errors.New("request timeout after 30s"), models.FailureTimeout},
		{"connection by message", errors.New("connection refused"), models.FailureCommunication},
		{"malformed by message", errors.New("malformed response body"), models.FailureInvalidOutput},
		{"memory by message", errors.New("out of memory"), models.FailureResourceExhaustion},
		{"plain failure", errors.New("assertion failed"), models.FailureTask},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestTaskFailureRetryBudget(t *testing.T) {
	h := New()
	err := errors.New("task blew up")

	// First three failures for the same agent+task are recoverable.
	for i := 1; i <= 3; i++ {
		recovered, event := h.DetectAndRecover("coder", err, "task-1")
		if !recovered {
			t.Fatalf("attempt %d: expected recovered", i)
		}
		if event.Strategy != models.StrategyRetry {
			t.Errorf("attempt %d: expected retry strategy, got %s", i, event.Strategy)
		}
	}

	// The fourth is not.
	recovered, event := h.DetectAndRecover("coder", err, "task-1")
	if recovered {
		t.Error("fourth failure must exhaust the retry budget")
	}
	if event.Strategy != models.StrategyNone {
		t.Errorf("expected none strategy, got %s", event.Strategy)
	}

	// A different task has its own budget.
	if recovered, _ := h.DetectAndRecover("coder", err, "task-2"); !recovered {
		t.Error("a different task must not share the exhausted budget")
	}
}

func TestTimeoutRetriesOnce(t *testing.T) {
	h := New()

	recovered, event := h.DetectAndRecover("coder", context.DeadlineExceeded, "task-1")
	if !recovered {
		t.Fatal("first timeout should be recoverable")
	}
	if event.Kind != models.FailureTimeout {
		t.Errorf("expected timeout kind, got %s", event.Kind)
	}

	recovered, _ = h.DetectAndRecover("coder", context.DeadlineExceeded, "task-1")
	if recovered {
		t.Error("second timeout must be unrecoverable (task should be split)")
	}
	if h.CircuitOpen("coder") {
		t.Error("timeouts must not open the circuit")
	}
}

func TestInvalidOutputOpensCircuit(t *testing.T) {
	h := New()

	recovered, _ := h.DetectAndRecover("coder", ErrInvalidOutput, "task-1")
	if !recovered {
		t.Fatal("first invalid output should get one retry")
	}
	if h.CircuitOpen("coder") {
		t.Fatal("circuit must not open on the first invalid output")
	}

	recovered, event := h.DetectAndRecover("coder", ErrInvalidOutput, "task-1")
	if recovered {
		t.Error("second invalid output must be unrecoverable")
	}
	if event.Strategy != models.StrategyOpenCircuit {
		t.Errorf("expected open_circuit strategy, got %s", event.Strategy)
	}
	if !h.CircuitOpen("coder") {
		t.Error("circuit must be open after persistent invalid output")
	}
}

func TestOpenCircuitShortCircuits(t *testing.T) {
	h := New()

	// Open the circuit via persistent invalid output.
	h.DetectAndRecover("coder", ErrInvalidOutput, "task-1")
	h.DetectAndRecover("coder", ErrInvalidOutput, "task-1")

	before := len(h.History())

	// A kind that is normally always recoverable must now short-circuit.
	recovered, event := h.DetectAndRecover("coder", ErrResourceExhausted, "task-2")
	if recovered {
		t.Error("open circuit must short-circuit to unrecoverable")
	}
	if event.Strategy != models.StrategyNone {
		t.Errorf("expected none strategy, got %s", event.Strategy)
	}
	if len(h.History()) != before {
		t.Error("short-circuited failures are not consulted and must not join the history")
	}
}

func TestWaitRetryKindsAlwaysRecover(t *testing.T) {
	h := New()

	for _, err := range []error{ErrDependencyFailure, ErrResourceExhausted, ErrDeadlock} {
		// No fixed budget: many consecutive failures all recover.
		for i := 0; i < 10; i++ {
			recovered, event := h.DetectAndRecover("coder", err, "task-1")
			if !recovered {
				t.Fatalf("%v attempt %d: expected recovered", err, i)
			}
			if event.Strategy != models.StrategyWaitRetry {
				t.Fatalf("%v: expected wait_retry strategy, got %s", err, event.Strategy)
			}
			if event.RetryDelay <= 0 {
				t.Fatalf("%v: expected positive retry delay", err)
			}
		}
	}
}

func TestWaitRetryDelayGrows(t *testing.T) {
	h := New(WithWaitBackoff(100*time.Millisecond, 10*time.Second))

	_, first := h.DetectAndRecover("coder", ErrDeadlock, "task-1")
	var later models.FailureEvent
	for i := 0; i < 5; i++ {
		_, later = h.DetectAndRecover("coder", ErrDeadlock, "task-1")
	}

	if later.RetryDelay <= first.RetryDelay {
		t.Errorf("expected delay growth, first=%v later=%v", first.RetryDelay, later.RetryDelay)
	}

	h.RecordSuccess("coder")
	_, reset := h.DetectAndRecover("coder", ErrDeadlock, "task-1")
	if reset.RetryDelay >= later.RetryDelay {
		t.Errorf("expected delay reset after success, got %v (was %v)", reset.RetryDelay, later.RetryDelay)
	}
}

func TestHistoryIsAppendOnlyCopy(t *testing.T) {
	h := New()
	h.DetectAndRecover("coder", errors.New("boom"), "task-1")

	history := h.History()
	if len(history) != 1 {
		t.Fatalf("expected 1 event, got %d", len(history))
	}

	// Mutating the returned slice must not affect the healer's history.
	history[0].AgentName = "tampered"
	if h.History()[0].AgentName != "coder" {
		t.Error("History must return a copy")
	}
}

func TestCircuitResetAfterCooldown(t *testing.T) {
	h := New(WithResetAfter(50 * time.Millisecond))

	h.DetectAndRecover("coder", ErrInvalidOutput, "task-1")
	h.DetectAndRecover("coder", ErrInvalidOutput, "task-1")
	if !h.CircuitOpen("coder") {
		t.Fatal("circuit should be open")
	}

	time.Sleep(80 * time.Millisecond)

	// Cooldown elapsed: the breaker goes half-open, which reads as closed
	// so a probe assignment can go through.
	if h.CircuitOpen("coder") {
		t.Error("circuit should allow probing after the cooldown")
	}
}

func TestOpenCircuitsListing(t *testing.T) {
	h := New()

	if got := h.OpenCircuits(); len(got) != 0 {
		t.Fatalf("expected no open circuits, got %v", got)
	}

	h.DetectAndRecover("coder", ErrInvalidOutput, "task-1")
	h.DetectAndRecover("coder", ErrInvalidOutput, "task-1")

	got := h.OpenCircuits()
	if len(got) != 1 || got[0] != "coder" {
		t.Errorf("expected [coder], got %v", got)
	}
}
