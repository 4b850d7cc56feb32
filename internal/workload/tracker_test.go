package workload

import (
	"errors"
	"testing"
	"time"
)

func TestAssignAndComplete(t *testing.T) {
	tr := NewTracker()
	tr.Track("coder")

	if !tr.IsAvailable("coder") {
		t.Fatal("freshly tracked agent should be available")
	}

	if err := tr.Assign("coder", "task-1"); err != nil {
		t.Fatalf("assign failed: %v", err)
	}

	if tr.IsAvailable("coder") {
		t.Error("agent must be unavailable immediately after assign")
	}
	if got := tr.CurrentTask("coder"); got != "task-1" {
		t.Errorf("expected current task task-1, got %q", got)
	}

	if err := tr.Complete("coder", true, 30*time.Minute); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	if !tr.IsAvailable("coder") {
		t.Error("agent must be available again after complete")
	}

	w := tr.Get("coder")
	if w.TasksCompleted != 1 {
		t.Errorf("expected 1 completed, got %d", w.TasksCompleted)
	}
	if w.SuccessCount != 1 || w.ErrorCount != 0 {
		t.Errorf("expected success=1 error=0, got %d/%d", w.SuccessCount, w.ErrorCount)
	}
	if w.EfficiencyScore != 2.0 {
		t.Errorf("expected 2 tasks/hr, got %f", w.EfficiencyScore)
	}
}

func TestAssignRejectsDoubleAssignment(t *testing.T) {
	tr := NewTracker()
	tr.Track("coder")

	if err := tr.Assign("coder", "task-1"); err != nil {
		t.Fatalf("first assign failed: %v", err)
	}

	err := tr.Assign("coder", "task-2")
	if !errors.Is(err, ErrAgentBusy) {
		t.Fatalf("expected ErrAgentBusy, got %v", err)
	}

	// The original assignment must be untouched.
	if got := tr.CurrentTask("coder"); got != "task-1" {
		t.Errorf("expected task-1 still assigned, got %q", got)
	}
}

func TestAssignUnknownAgent(t *testing.T) {
	tr := NewTracker()

	if err := tr.Assign("ghost", "task-1"); !errors.Is(err, ErrUnknownAgent) {
		t.Errorf("expected ErrUnknownAgent, got %v", err)
	}
	if err := tr.Complete("ghost", true, time.Minute); !errors.Is(err, ErrUnknownAgent) {
		t.Errorf("expected ErrUnknownAgent, got %v", err)
	}
}

func TestCompleteFailureCountsError(t *testing.T) {
	tr := NewTracker()
	tr.Track("coder")

	if err := tr.Assign("coder", "task-1"); err != nil {
		t.Fatalf("assign failed: %v", err)
	}
	if err := tr.Complete("coder", false, 10*time.Minute); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	w := tr.Get("coder")
	if w.TasksCompleted != 0 {
		t.Errorf("failed completion must not count as completed, got %d", w.TasksCompleted)
	}
	if w.ErrorCount != 1 {
		t.Errorf("expected 1 error, got %d", w.ErrorCount)
	}
}

func TestEfficiencyGuardsDivideByZero(t *testing.T) {
	tr := NewTracker()
	tr.Track("coder")

	if err := tr.Assign("coder", "task-1"); err != nil {
		t.Fatalf("assign failed: %v", err)
	}
	if err := tr.Complete("coder", true, 0); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	w := tr.Get("coder")
	if w.EfficiencyScore <= 0 {
		t.Errorf("expected positive efficiency with zero duration, got %f", w.EfficiencyScore)
	}
}

func TestSetAvailable(t *testing.T) {
	tr := NewTracker()
	tr.Track("coder")

	tr.SetAvailable("coder", false)
	if tr.IsAvailable("coder") {
		t.Error("agent marked unavailable must not be available")
	}

	tr.SetAvailable("coder", true)
	if !tr.IsAvailable("coder") {
		t.Error("agent marked available again must be available")
	}
}

func TestInFlightCount(t *testing.T) {
	tr := NewTracker()
	tr.Track("a")
	tr.Track("b")
	tr.Track("c")

	if err := tr.Assign("a", "t1"); err != nil {
		t.Fatal(err)
	}
	if err := tr.Assign("b", "t2"); err != nil {
		t.Fatal(err)
	}

	if got := tr.InFlightCount(); got != 2 {
		t.Errorf("expected 2 in flight, got %d", got)
	}
}
