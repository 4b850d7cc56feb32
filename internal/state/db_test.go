package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/swarmroute/swarmroute/pkg/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	if err := db.Migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	var version int
	row := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&version); err != nil {
		t.Fatal(err)
	}
	if version != 3 {
		t.Errorf("expected schema version 3, got %d", version)
	}
}

func TestSaveTaskRoundTrip(t *testing.T) {
	store := NewStore(openTestDB(t))

	started := time.Now().Truncate(time.Second)
	task := &models.Task{
		ID:            "t1",
		Title:         "Fix the cache",
		Description:   "eviction is broken",
		Priority:      2,
		DependsOn:     []string{"t0a", "t0b"},
		Status:        models.TaskStatusInProgress,
		AssignedAgent: "debugging_specialist",
		RetryCount:    1,
		MaxRetries:    3,
		CreatedAt:     started.Add(-time.Minute),
		StartedAt:     &started,
		Classification: &models.Classification{
			TaskID:       "t1",
			DetectedType: "debugging",
			Confidence:   0.8,
		},
	}
	if err := store.SaveTask(task); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.GetTask("t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("expected a task")
	}
	if got.Status != models.TaskStatusInProgress || got.AssignedAgent != "debugging_specialist" {
		t.Errorf("unexpected task: %+v", got)
	}
	if len(got.DependsOn) != 2 || got.DependsOn[0] != "t0a" {
		t.Errorf("unexpected depends_on: %v", got.DependsOn)
	}
	if got.Classification == nil || got.Classification.DetectedType != "debugging" {
		t.Errorf("classification not restored: %+v", got.Classification)
	}
	if got.StartedAt == nil {
		t.Error("started_at not restored")
	}

	// Upsert: a second save with a new status replaces the row.
	task.Status = models.TaskStatusCompleted
	if err := store.SaveTask(task); err != nil {
		t.Fatalf("resave: %v", err)
	}
	got, err = store.GetTask("t1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.TaskStatusCompleted {
		t.Errorf("expected completed after upsert, got %s", got.Status)
	}

	tasks, err := store.ListTasks()
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 1 {
		t.Errorf("expected 1 task, got %d", len(tasks))
	}
}

func TestGetTaskMissing(t *testing.T) {
	store := NewStore(openTestDB(t))
	got, err := store.GetTask("nope")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("expected nil for a missing task, got %+v", got)
	}
}

func TestDecisionLogAppends(t *testing.T) {
	store := NewStore(openTestDB(t))

	for _, tier := range []models.RoutingTier{models.TierPerfectMatch, models.TierFallback} {
		err := store.SaveDecision(&models.RoutingDecision{
			TaskID:         "t1",
			TaskTitle:      "Fix the cache",
			SelectedAgent:  "debugging_specialist",
			Tier:           tier,
			TierConfidence: tier.Confidence(),
			Timestamp:      time.Now(),
		})
		if err != nil {
			t.Fatalf("save decision: %v", err)
		}
	}

	decisions, err := store.DecisionsForTask("t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(decisions) != 2 {
		t.Fatalf("expected 2 decisions, got %d", len(decisions))
	}
	if decisions[0].Tier != models.TierPerfectMatch || decisions[1].Tier != models.TierFallback {
		t.Errorf("decision order not preserved: %v, %v", decisions[0].Tier, decisions[1].Tier)
	}
}

func TestFailureEventRoundTrip(t *testing.T) {
	store := NewStore(openTestDB(t))

	err := store.SaveFailure(&models.FailureEvent{
		AgentName:  "coder",
		TaskID:     "t1",
		Kind:       models.FailureResourceExhaustion,
		Message:    "out of memory",
		Strategy:   models.StrategyWaitRetry,
		Recovered:  true,
		RetryDelay: 750 * time.Millisecond,
		Timestamp:  time.Now(),
	})
	if err != nil {
		t.Fatalf("save failure: %v", err)
	}

	events, err := store.FailuresForAgent("coder")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	e := events[0]
	if e.Kind != models.FailureResourceExhaustion || !e.Recovered {
		t.Errorf("unexpected event: %+v", e)
	}
	if e.RetryDelay != 750*time.Millisecond {
		t.Errorf("expected 750ms retry delay, got %v", e.RetryDelay)
	}
}
