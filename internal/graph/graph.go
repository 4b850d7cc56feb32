// Package graph provides the task dependency graph consulted by the
// scheduling loop: cycle validation, ready-set computation, and completion
// bookkeeping.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/gammazero/toposort"

	"github.com/swarmroute/swarmroute/pkg/models"
)

// ErrCycleDetected indicates a circular dependency in the task set.
var ErrCycleDetected = errors.New("circular dependency detected")

// ErrUnknownDependency indicates a task depends on an ID that was never
// loaded. Only returned in strict mode; lenient mode drops the edge.
var ErrUnknownDependency = errors.New("dependency references unknown task")

// DependencyGraph is a DAG of tasks. Edges point from a task to the tasks it
// is blocked by. The graph also tracks which tasks have finished, so the
// ready set can be recomputed cheaply every scheduling cycle.
type DependencyGraph struct {
	// nodes maps task ID to the task.
	nodes map[string]*models.Task
	// edges maps task ID to the IDs it depends on.
	edges map[string][]string
	// completed marks tasks whose results dependents may build on.
	completed map[string]bool
	// failed marks tasks that terminally failed; dependents become blocked.
	failed map[string]bool
	// strict rejects unknown dependency IDs at build time instead of
	// dropping the edge.
	strict bool
	// debugLog is an optional logging function.
	debugLog func(format string, args ...interface{})
	mu       sync.RWMutex
}

// New creates an empty dependency graph. strict controls how unknown
// dependency IDs are handled at build time.
func New(strict bool) *DependencyGraph {
	return &DependencyGraph{
		nodes:     make(map[string]*models.Task),
		edges:     make(map[string][]string),
		completed: make(map[string]bool),
		failed:    make(map[string]bool),
		strict:    strict,
		debugLog:  func(format string, args ...interface{}) {},
	}
}

// SetDebugLog sets the debug logging function.
func (g *DependencyGraph) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		g.debugLog = fn
	}
}

// Build constructs the graph from a task slice and validates it with a
// topological sort. Unknown dependency IDs are an error in strict mode and a
// dropped edge otherwise. A cycle is always an error.
func (g *DependencyGraph) Build(tasks []*models.Task) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.debugLog("[graph.Build] building graph from %d tasks (strict=%v)", len(tasks), g.strict)

	for _, task := range tasks {
		g.nodes[task.ID] = task
		if _, exists := g.edges[task.ID]; !exists {
			g.edges[task.ID] = nil
		}
	}

	for _, task := range tasks {
		for _, depID := range task.DependsOn {
			if _, exists := g.nodes[depID]; !exists {
				if g.strict {
					return fmt.Errorf("task %s: %w: %s", task.ID, ErrUnknownDependency, depID)
				}
				g.debugLog("[graph.Build] task %s: dropping edge to unknown task %s", task.ID, depID)
				continue
			}
			g.edges[task.ID] = append(g.edges[task.ID], depID)
		}
	}

	if _, err := g.sortLocked(); err != nil {
		return err
	}

	g.debugLog("[graph.Build] graph built with %d nodes", len(g.nodes))
	return nil
}

// Add inserts tasks into an already-built graph and revalidates it. On any
// error the graph is left unchanged. It returns the IDs of inserted tasks
// that depend, directly or through other inserted tasks, on a task that has
// already failed; those can never run and the caller should mark them
// blocked.
func (g *DependencyGraph) Add(tasks []*models.Task) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	inserted := make(map[string]bool, len(tasks))
	rollback := func() {
		for id := range inserted {
			delete(g.nodes, id)
			delete(g.edges, id)
		}
	}

	for _, task := range tasks {
		g.nodes[task.ID] = task
		g.edges[task.ID] = nil
		inserted[task.ID] = true
	}
	for _, task := range tasks {
		for _, depID := range task.DependsOn {
			if _, exists := g.nodes[depID]; !exists {
				if g.strict {
					rollback()
					return nil, fmt.Errorf("task %s: %w: %s", task.ID, ErrUnknownDependency, depID)
				}
				g.debugLog("[graph.Add] task %s: dropping edge to unknown task %s", task.ID, depID)
				continue
			}
			g.edges[task.ID] = append(g.edges[task.ID], depID)
		}
	}

	sorted, err := g.sortLocked()
	if err != nil {
		rollback()
		return nil, err
	}

	// Walking the topological order propagates existing failures into the new
	// tasks, including chains that run through other new tasks.
	var blocked []string
	for _, id := range sorted {
		if g.failed[id] {
			continue
		}
		for _, depID := range g.edges[id] {
			if g.failed[depID] {
				g.failed[id] = true
				if inserted[id] {
					blocked = append(blocked, id)
				}
				break
			}
		}
	}

	sort.Strings(blocked)
	g.debugLog("[graph.Add] added %d tasks, %d blocked by prior failures", len(tasks), len(blocked))
	return blocked, nil
}

// TopologicalSort returns task IDs in an order where every dependency comes
// before its dependents. Returns ErrCycleDetected for cyclic graphs.
func (g *DependencyGraph) TopologicalSort() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.sortLocked()
}

// sortLocked runs the topological sort. Caller must hold g.mu.
func (g *DependencyGraph) sortLocked() ([]string, error) {
	var edges []toposort.Edge
	for id := range g.nodes {
		deps := g.edges[id]
		if len(deps) == 0 {
			// Edge from nil keeps dependency-free tasks in the sort.
			edges = append(edges, toposort.Edge{nil, id})
			continue
		}
		for _, depID := range deps {
			edges = append(edges, toposort.Edge{depID, id})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCycleDetected, err)
	}

	order := make([]string, 0, len(g.nodes))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}
	return order, nil
}

// GetReady returns pending tasks whose dependencies have all completed, in
// priority order with ID as tie-break so the schedule is deterministic.
// Tasks with a failed or blocked dependency are excluded (they will be
// marked blocked by MarkFailed, not run).
func (g *DependencyGraph) GetReady() []*models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []*models.Task
	for id, task := range g.nodes {
		if g.completed[id] || g.failed[id] {
			continue
		}
		// Blocked is transient when no dependency failed (a routing
		// deferral); those tasks re-enter the ready set. Dependency
		// failures live in the failed map and were skipped above.
		if task.Status != models.TaskStatusPending && task.Status != models.TaskStatusBlocked {
			continue
		}

		satisfied := true
		for _, depID := range g.edges[id] {
			if !g.completed[depID] {
				satisfied = false
				break
			}
		}
		if satisfied {
			ready = append(ready, task)
		}
	}

	sort.Slice(ready, func(i, j int) bool {
		if ready[i].Priority != ready[j].Priority {
			return ready[i].Priority < ready[j].Priority
		}
		return ready[i].ID < ready[j].ID
	})

	g.debugLog("[graph.GetReady] %d ready of %d nodes", len(ready), len(g.nodes))
	return ready
}

// MarkComplete records that a task finished successfully, unblocking its
// dependents on the next GetReady.
func (g *DependencyGraph) MarkComplete(taskID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.completed[taskID] = true
	g.debugLog("[graph.MarkComplete] task %s complete", taskID)
}

// MarkFailed records a terminal failure and returns the IDs of all transitive
// dependents, which can never run. The caller flips their task status to
// blocked.
func (g *DependencyGraph) MarkFailed(taskID string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.failed[taskID] = true

	var blocked []string
	seen := map[string]bool{taskID: true}
	frontier := []string{taskID}
	for len(frontier) > 0 {
		next := frontier[0]
		frontier = frontier[1:]
		for _, dep := range g.dependentsLocked(next) {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			g.failed[dep] = true
			blocked = append(blocked, dep)
			frontier = append(frontier, dep)
		}
	}

	sort.Strings(blocked)
	g.debugLog("[graph.MarkFailed] task %s failed, blocking %v", taskID, blocked)
	return blocked
}

// dependentsLocked returns direct dependents of taskID. Caller must hold g.mu.
func (g *DependencyGraph) dependentsLocked(taskID string) []string {
	var dependents []string
	for id, deps := range g.edges {
		for _, depID := range deps {
			if depID == taskID {
				dependents = append(dependents, id)
				break
			}
		}
	}
	return dependents
}

// GetTask returns the task for an ID, or nil.
func (g *DependencyGraph) GetTask(taskID string) *models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[taskID]
}

// GetDependencies returns the IDs the task depends on.
func (g *DependencyGraph) GetDependencies(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.edges[taskID]
}

// GetDependents returns the IDs of tasks directly depending on taskID.
func (g *DependencyGraph) GetDependents(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.dependentsLocked(taskID)
}

// Size returns the number of tasks in the graph.
func (g *DependencyGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Done reports whether every task has either completed or failed.
func (g *DependencyGraph) Done() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for id := range g.nodes {
		if !g.completed[id] && !g.failed[id] {
			return false
		}
	}
	return true
}
