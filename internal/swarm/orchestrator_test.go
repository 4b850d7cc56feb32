package swarm

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/swarmroute/swarmroute/internal/healer"
	"github.com/swarmroute/swarmroute/pkg/models"
)

// scriptedExecutor counts attempts per task and delegates to a script
// function. It records completion order for dependency assertions.
type scriptedExecutor struct {
	mu    sync.Mutex
	calls map[string]int
	order []string
	fn    func(ctx context.Context, task *models.Task, agentName string, attempt int) (*models.ExecutionResult, error)
}

func newScriptedExecutor(fn func(ctx context.Context, task *models.Task, agentName string, attempt int) (*models.ExecutionResult, error)) *scriptedExecutor {
	return &scriptedExecutor{calls: make(map[string]int), fn: fn}
}

func (e *scriptedExecutor) Execute(ctx context.Context, task *models.Task, agentName string) (*models.ExecutionResult, error) {
	e.mu.Lock()
	e.calls[task.ID]++
	attempt := e.calls[task.ID]
	e.mu.Unlock()

	result, err := e.fn(ctx, task, agentName, attempt)

	if err == nil {
		e.mu.Lock()
		e.order = append(e.order, task.ID)
		e.mu.Unlock()
	}
	return result, err
}

func (e *scriptedExecutor) attempts(taskID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[taskID]
}

func (e *scriptedExecutor) completionOrder() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.order))
	copy(out, e.order)
	return out
}

func succeed(ctx context.Context, task *models.Task, agentName string, attempt int) (*models.ExecutionResult, error) {
	return &models.ExecutionResult{TaskID: task.ID, AgentName: agentName, Success: true, Output: "done"}, nil
}

func runToCompletion(t *testing.T, o *Orchestrator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := o.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if o.State() != StateCompleted {
		t.Fatalf("expected completed state, got %s", o.State())
	}
}

func TestRunRequiresLoadedTasks(t *testing.T) {
	o := New(newScriptedExecutor(succeed))
	if err := o.Run(context.Background()); !errors.Is(err, ErrNoTasks) {
		t.Fatalf("expected ErrNoTasks, got %v", err)
	}
}

func TestLoadRejectsDuplicateIDs(t *testing.T) {
	o := New(newScriptedExecutor(succeed))
	err := o.Load([]*models.Task{
		{ID: "a", Title: "one"},
		{ID: "a", Title: "two"},
	})
	if err == nil {
		t.Fatal("expected duplicate ID error")
	}
}

func TestLoadAssignsIDsAndClassifies(t *testing.T) {
	o := New(newScriptedExecutor(succeed))
	task := &models.Task{Title: "Write unit tests for the cache"}
	if err := o.Load([]*models.Task{task}); err != nil {
		t.Fatal(err)
	}
	if task.ID == "" {
		t.Error("expected a generated task ID")
	}
	if task.Classification == nil {
		t.Fatal("expected the task to be classified at load time")
	}
	if task.Classification.DetectedType != "testing" {
		t.Errorf("expected testing classification, got %s", task.Classification.DetectedType)
	}
}

func TestIndependentTasksDispatchTogether(t *testing.T) {
	var mu sync.Mutex
	inFlight, peak := 0, 0

	exec := newScriptedExecutor(func(ctx context.Context, task *models.Task, agentName string, attempt int) (*models.ExecutionResult, error) {
		mu.Lock()
		inFlight++
		if inFlight > peak {
			peak = inFlight
		}
		mu.Unlock()

		time.Sleep(20 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
		return succeed(ctx, task, agentName, attempt)
	})

	o := New(exec, WithMaxConcurrent(3), WithPollInterval(time.Millisecond))
	o.RegisterAgent("documentation_specialist", "documentation", []string{"documentation"}, nil)
	o.RegisterAgent("testing_specialist", "testing", []string{"testing"}, nil)
	o.RegisterAgent("debugging_specialist", "debugging", []string{"fix_bug"}, nil)

	if err := o.Load([]*models.Task{
		{ID: "docs", Title: "Document the API guide readme"},
		{ID: "tests", Title: "Write unit test coverage"},
		{ID: "bug", Title: "Fix crash debugging the stack trace"},
	}); err != nil {
		t.Fatal(err)
	}
	runToCompletion(t, o)

	if peak != 3 {
		t.Errorf("expected all three tasks in flight together, peak was %d", peak)
	}
	for _, id := range []string{"docs", "tests", "bug"} {
		if got := o.Task(id).Status; got != models.TaskStatusCompleted {
			t.Errorf("task %s: expected completed, got %s", id, got)
		}
	}
}

func TestDependentRunsAfterDependency(t *testing.T) {
	exec := newScriptedExecutor(succeed)
	o := New(exec, WithPollInterval(time.Millisecond))

	if err := o.Load([]*models.Task{
		{ID: "b", Title: "second", DependsOn: []string{"a"}},
		{ID: "a", Title: "first"},
	}); err != nil {
		t.Fatal(err)
	}
	runToCompletion(t, o)

	order := exec.completionOrder()
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Errorf("expected [a b], got %v", order)
	}
}

func TestTimeoutRecoveredThenCompleted(t *testing.T) {
	exec := newScriptedExecutor(func(ctx context.Context, task *models.Task, agentName string, attempt int) (*models.ExecutionResult, error) {
		if attempt == 1 {
			return nil, context.DeadlineExceeded
		}
		return succeed(ctx, task, agentName, attempt)
	})

	o := New(exec, WithPollInterval(time.Millisecond))
	if err := o.Load([]*models.Task{{ID: "a", Title: "flaky once"}}); err != nil {
		t.Fatal(err)
	}
	runToCompletion(t, o)

	if got := o.Task("a").Status; got != models.TaskStatusCompleted {
		t.Fatalf("expected completed, got %s", got)
	}
	if exec.attempts("a") != 2 {
		t.Errorf("expected 2 attempts, got %d", exec.attempts("a"))
	}

	history := o.Healer().History()
	if len(history) != 1 {
		t.Fatalf("expected exactly one failure event, got %d", len(history))
	}
	if history[0].Kind != models.FailureTimeout || !history[0].Recovered {
		t.Errorf("expected recovered timeout event, got %+v", history[0])
	}
}

func TestTransientFailureWaitsBeforeRetry(t *testing.T) {
	exec := newScriptedExecutor(func(ctx context.Context, task *models.Task, agentName string, attempt int) (*models.ExecutionResult, error) {
		if attempt == 1 {
			return nil, healer.ErrResourceExhausted
		}
		return succeed(ctx, task, agentName, attempt)
	})

	h := healer.New(healer.WithWaitBackoff(10*time.Millisecond, 50*time.Millisecond))
	o := New(exec, WithPollInterval(time.Millisecond), WithHealer(h))
	if err := o.Load([]*models.Task{{ID: "a", Title: "starved once"}}); err != nil {
		t.Fatal(err)
	}
	runToCompletion(t, o)

	if got := o.Task("a"); got.Status != models.TaskStatusCompleted || got.RetryCount != 1 {
		t.Errorf("expected completed after one retry, got status=%s retries=%d", got.Status, got.RetryCount)
	}
}

func TestTerminalFailureBlocksDependents(t *testing.T) {
	exec := newScriptedExecutor(func(ctx context.Context, task *models.Task, agentName string, attempt int) (*models.ExecutionResult, error) {
		if task.ID == "root" {
			return nil, errors.New("unfixable")
		}
		return succeed(ctx, task, agentName, attempt)
	})

	o := New(exec, WithPollInterval(time.Millisecond), WithAutoRetry(true, 1))
	if err := o.Load([]*models.Task{
		{ID: "root", Title: "doomed"},
		{ID: "child", Title: "needs root", DependsOn: []string{"root"}},
		{ID: "free", Title: "independent"},
	}); err != nil {
		t.Fatal(err)
	}
	runToCompletion(t, o)

	if got := o.Task("root").Status; got != models.TaskStatusFailed {
		t.Errorf("expected root failed, got %s", got)
	}
	if got := o.Task("child").Status; got != models.TaskStatusBlocked {
		t.Errorf("expected child blocked, got %s", got)
	}
	if got := o.Task("free").Status; got != models.TaskStatusCompleted {
		t.Errorf("expected free completed, got %s", got)
	}
	// One initial attempt plus the single allowed retry.
	if exec.attempts("root") != 2 {
		t.Errorf("expected 2 attempts on root, got %d", exec.attempts("root"))
	}
	if exec.attempts("child") != 0 {
		t.Errorf("blocked task must never execute, ran %d times", exec.attempts("child"))
	}
}

func TestBusySpecialistDefersSecondTask(t *testing.T) {
	var deferredStatus models.TaskStatus
	var o *Orchestrator

	exec := newScriptedExecutor(func(ctx context.Context, task *models.Task, agentName string, attempt int) (*models.ExecutionResult, error) {
		if task.ID == "a" {
			// While a runs, b was deferred during admission this cycle.
			deferredStatus = o.Task("b").Status
		}
		return succeed(ctx, task, agentName, attempt)
	})

	o = New(exec, WithMaxConcurrent(2), WithPollInterval(time.Millisecond))
	o.RegisterAgent("documentation_specialist", "documentation", []string{"documentation"}, nil)

	if err := o.Load([]*models.Task{
		{ID: "a", Title: "Document the readme guide"},
		{ID: "b", Title: "Document the changelog guide"},
	}); err != nil {
		t.Fatal(err)
	}
	runToCompletion(t, o)

	if deferredStatus != models.TaskStatusBlocked {
		t.Errorf("deferred task should read blocked while the specialist is busy, got %s", deferredStatus)
	}
	for _, id := range []string{"a", "b"} {
		if got := o.Task(id).Status; got != models.TaskStatusCompleted {
			t.Errorf("task %s: expected completed, got %s", id, got)
		}
	}
	if exec.attempts("a")+exec.attempts("b") != 2 {
		t.Error("each task should run exactly once")
	}
}

func TestPauseSuspendsDispatch(t *testing.T) {
	var o *Orchestrator
	exec := newScriptedExecutor(func(ctx context.Context, task *models.Task, agentName string, attempt int) (*models.ExecutionResult, error) {
		if task.ID == "a" {
			o.Pause()
		}
		return succeed(ctx, task, agentName, attempt)
	})

	o = New(exec, WithMaxConcurrent(1), WithPollInterval(time.Millisecond))
	if err := o.Load([]*models.Task{
		{ID: "a", Title: "first"},
		{ID: "b", Title: "second", DependsOn: []string{"a"}},
	}); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- o.Run(context.Background()) }()

	time.Sleep(50 * time.Millisecond)
	if got := o.State(); got != StatePaused {
		t.Errorf("expected paused state, got %s", got)
	}
	if exec.attempts("b") != 0 {
		t.Error("no task may be dispatched while paused")
	}

	o.Resume()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := o.Task("b").Status; got != models.TaskStatusCompleted {
		t.Errorf("expected b completed after resume, got %s", got)
	}
}

func TestStopAbortsRun(t *testing.T) {
	var o *Orchestrator
	exec := newScriptedExecutor(func(ctx context.Context, task *models.Task, agentName string, attempt int) (*models.ExecutionResult, error) {
		o.Stop()
		return succeed(ctx, task, agentName, attempt)
	})

	o = New(exec, WithMaxConcurrent(1), WithPollInterval(time.Millisecond))
	if err := o.Load([]*models.Task{
		{ID: "a", Title: "first"},
		{ID: "b", Title: "second", DependsOn: []string{"a"}},
	}); err != nil {
		t.Fatal(err)
	}

	if err := o.Run(context.Background()); err == nil {
		t.Fatal("expected an error from a stopped run")
	}
	if got := o.State(); got != StateError {
		t.Errorf("expected error state, got %s", got)
	}
	if exec.attempts("b") != 0 {
		t.Error("no task may be dispatched after stop")
	}
}

func TestProgressCensus(t *testing.T) {
	exec := newScriptedExecutor(func(ctx context.Context, task *models.Task, agentName string, attempt int) (*models.ExecutionResult, error) {
		if task.ID == "bad" {
			return nil, errors.New("unfixable")
		}
		return succeed(ctx, task, agentName, attempt)
	})

	o := New(exec, WithPollInterval(time.Millisecond), WithAutoRetry(false, 0))
	if err := o.Load([]*models.Task{
		{ID: "ok", Title: "fine"},
		{ID: "bad", Title: "doomed"},
		{ID: "stuck", Title: "needs bad", DependsOn: []string{"bad"}},
	}); err != nil {
		t.Fatal(err)
	}
	runToCompletion(t, o)

	p := o.Progress()
	if p.Completed != 1 || p.Failed != 1 || p.Blocked != 1 {
		t.Errorf("unexpected census: %+v", p)
	}
	if p.PercentDone() != 1.0 {
		t.Errorf("expected 100%% done, got %.2f", p.PercentDone())
	}
}

func TestRandomDAGRespectsDependencies(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	var tasks []*models.Task
	deps := make(map[string][]string)
	idFor := func(i int) string { return string(rune('a'+i/10)) + string(rune('0'+i%10)) }
	for i := 0; i < 20; i++ {
		id := idFor(i)
		var dependsOn []string
		for j := 0; j < i; j++ {
			if rng.Intn(5) == 0 {
				dependsOn = append(dependsOn, idFor(j))
			}
		}
		deps[id] = dependsOn
		tasks = append(tasks, &models.Task{ID: id, Title: "task " + id, DependsOn: dependsOn})
	}

	exec := newScriptedExecutor(succeed)
	o := New(exec, WithMaxConcurrent(4), WithPollInterval(time.Millisecond))
	if err := o.Load(tasks); err != nil {
		t.Fatal(err)
	}
	runToCompletion(t, o)

	pos := make(map[string]int)
	for i, id := range exec.completionOrder() {
		pos[id] = i
	}
	if len(pos) != 20 {
		t.Fatalf("expected 20 completions, got %d", len(pos))
	}
	for id, dependsOn := range deps {
		for _, dep := range dependsOn {
			if pos[dep] > pos[id] {
				t.Errorf("task %s completed before its dependency %s", id, dep)
			}
		}
	}
}

// Progress, Task, and State are the observability surface for callers on
// other goroutines; polling them while the loop mutates task records must be
// race-free. This test only has teeth under the race detector.
func TestObserversSafeDuringRun(t *testing.T) {
	exec := newScriptedExecutor(func(ctx context.Context, task *models.Task, agentName string, attempt int) (*models.ExecutionResult, error) {
		time.Sleep(2 * time.Millisecond)
		return succeed(ctx, task, agentName, attempt)
	})

	o := New(exec, WithMaxConcurrent(2), WithPollInterval(time.Millisecond))
	var tasks []*models.Task
	for i := 0; i < 8; i++ {
		task := &models.Task{ID: fmt.Sprintf("t%d", i), Title: fmt.Sprintf("work %d", i)}
		if i > 0 {
			task.DependsOn = []string{fmt.Sprintf("t%d", i-1)}
		}
		tasks = append(tasks, task)
	}
	if err := o.Load(tasks); err != nil {
		t.Fatal(err)
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			if p := o.Progress(); p.Total != 8 {
				t.Errorf("census lost tasks: %+v", p)
				return
			}
			o.Task("t3")
			o.State()
		}
	}()

	runToCompletion(t, o)
	close(stop)
	wg.Wait()
}

func TestAddEnqueuesMidRun(t *testing.T) {
	var o *Orchestrator
	var addErr error
	var once sync.Once

	exec := newScriptedExecutor(func(ctx context.Context, task *models.Task, agentName string, attempt int) (*models.ExecutionResult, error) {
		once.Do(func() {
			addErr = o.Add([]*models.Task{{ID: "late", Title: "arrived while running"}})
		})
		return succeed(ctx, task, agentName, attempt)
	})

	o = New(exec, WithPollInterval(time.Millisecond))
	if err := o.Load([]*models.Task{{ID: "a", Title: "first"}}); err != nil {
		t.Fatal(err)
	}
	runToCompletion(t, o)

	if addErr != nil {
		t.Fatalf("add: %v", addErr)
	}
	if got := o.Task("late").Status; got != models.TaskStatusCompleted {
		t.Errorf("expected the added task to complete, got %s", got)
	}
}

func TestAddSkipsKnownIDs(t *testing.T) {
	exec := newScriptedExecutor(succeed)
	o := New(exec, WithPollInterval(time.Millisecond))
	if err := o.Load([]*models.Task{{ID: "a", Title: "first"}}); err != nil {
		t.Fatal(err)
	}

	// A reloaded workflow file re-delivers the tasks it always had plus the
	// new one; only the new one may be enqueued.
	if err := o.Add([]*models.Task{
		{ID: "a", Title: "first"},
		{ID: "b", Title: "new in the reloaded file"},
	}); err != nil {
		t.Fatal(err)
	}
	runToCompletion(t, o)

	if exec.attempts("a") != 1 {
		t.Errorf("re-adding a known ID must not rerun it, got %d attempts", exec.attempts("a"))
	}
	if got := o.Task("b").Status; got != models.TaskStatusCompleted {
		t.Errorf("expected b completed, got %s", got)
	}
}

func TestAddRejectedAfterCompletion(t *testing.T) {
	o := New(newScriptedExecutor(succeed), WithPollInterval(time.Millisecond))
	if err := o.Load([]*models.Task{{ID: "a", Title: "only"}}); err != nil {
		t.Fatal(err)
	}
	runToCompletion(t, o)

	if err := o.Add([]*models.Task{{ID: "b", Title: "too late"}}); err == nil {
		t.Fatal("expected an error adding to a completed run")
	}
}

func TestEventsCarryLifecycle(t *testing.T) {
	exec := newScriptedExecutor(succeed)
	o := New(exec, WithPollInterval(time.Millisecond))
	if err := o.Load([]*models.Task{{ID: "a", Title: "only"}}); err != nil {
		t.Fatal(err)
	}
	runToCompletion(t, o)

	seen := make(map[EventType]bool)
	for {
		select {
		case ev := <-o.Events():
			seen[ev.Type] = true
		default:
			for _, want := range []EventType{EventSwarmStarted, EventTaskQueued, EventTaskStarted, EventTaskCompleted, EventSwarmCompleted} {
				if !seen[want] {
					t.Errorf("missing %s event", want)
				}
			}
			return
		}
	}
}
