package swarm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/swarmroute/swarmroute/internal/classifier"
	"github.com/swarmroute/swarmroute/internal/graph"
	"github.com/swarmroute/swarmroute/internal/healer"
	"github.com/swarmroute/swarmroute/internal/registry"
	"github.com/swarmroute/swarmroute/internal/router"
	"github.com/swarmroute/swarmroute/internal/workload"
	"github.com/swarmroute/swarmroute/pkg/models"
)

// SwarmState is the lifecycle state of a swarm run.
type SwarmState string

const (
	// StateIdle means tasks may be loaded but the loop has not started.
	StateIdle SwarmState = "idle"
	// StateActive means the scheduling loop is dispatching tasks.
	StateActive SwarmState = "active"
	// StatePaused means the loop is running but dispatch is suspended.
	StatePaused SwarmState = "paused"
	// StateCompleted means every task reached a terminal state.
	StateCompleted SwarmState = "completed"
	// StateError means the run aborted before completion.
	StateError SwarmState = "error"
)

// Executor runs one task on one agent. Implementations are expected to honor
// ctx cancellation; the orchestrator applies the per-task timeout through it.
type Executor interface {
	Execute(ctx context.Context, task *models.Task, agentName string) (*models.ExecutionResult, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, task *models.Task, agentName string) (*models.ExecutionResult, error)

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, task *models.Task, agentName string) (*models.ExecutionResult, error) {
	return f(ctx, task, agentName)
}

// Store persists tasks and routing decisions. A nil store disables
// persistence; the run is then in-memory only.
type Store interface {
	SaveTask(task *models.Task) error
	SaveDecision(decision *models.RoutingDecision) error
}

// Orchestrator owns a swarm run end to end: task queue, dependency graph,
// routing, bounded dispatch, and failure recovery.
//
// Locking: o.mu guards the queue: the tasks map, every field of the task
// records in it, state, notBefore, and results. The workload tracker has its
// own lock; o.mu and the tracker lock are never held at the same time.
type Orchestrator struct {
	// registry is the agent catalog.
	registry *registry.AgentRegistry
	// workloads tracks per-agent execution state.
	workloads *workload.Tracker
	// healer applies the failure recovery policy.
	healer *healer.SelfHealer
	// router matches tasks to agents.
	router *router.Router
	// graph is the task dependency graph, built at load time.
	graph *graph.DependencyGraph
	// executor runs tasks.
	executor Executor
	// store persists tasks and decisions. Optional.
	store Store
	// emitter publishes run events.
	emitter *EventEmitter
	// pauseCtrl gates dispatch.
	pauseCtrl *PauseController
	// logger is the file-backed debug logger.
	logger *DebugLogger

	// maxConcurrent bounds tasks in flight per dispatch batch.
	maxConcurrent int
	// taskTimeout bounds a single task execution.
	taskTimeout time.Duration
	// pollInterval is the initial delay between idle cycles.
	pollInterval time.Duration
	// maxIdleInterval caps the idle delay growth.
	maxIdleInterval time.Duration
	// autoRetry enables requeueing recoverable failures.
	autoRetry bool
	// maxRetries is the default per-task retry cap.
	maxRetries int
	// strictDeps rejects unknown dependency IDs at load time.
	strictDeps bool

	// mu is the queue lock.
	mu sync.Mutex
	// tasks maps task ID to the task.
	tasks map[string]*models.Task
	// state is the run lifecycle state.
	state SwarmState
	// notBefore holds earliest re-dispatch times for waiting tasks.
	notBefore map[string]time.Time
	// results maps task ID to its last execution result.
	results map[string]*models.ExecutionResult
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMaxConcurrent bounds how many tasks run at once.
func WithMaxConcurrent(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxConcurrent = n
		}
	}
}

// WithTaskTimeout bounds a single task execution.
func WithTaskTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.taskTimeout = d
		}
	}
}

// WithPollInterval sets the initial idle delay between scheduling cycles.
func WithPollInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithMaxIdleInterval caps the idle delay growth between empty cycles.
func WithMaxIdleInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.maxIdleInterval = d
		}
	}
}

// WithAutoRetry toggles requeueing of recoverable failures and sets the
// default per-task retry cap.
func WithAutoRetry(enabled bool, maxRetries int) Option {
	return func(o *Orchestrator) {
		o.autoRetry = enabled
		if maxRetries > 0 {
			o.maxRetries = maxRetries
		}
	}
}

// WithStrictDependencies makes unknown dependency IDs a load-time error
// instead of a dropped edge.
func WithStrictDependencies(strict bool) Option {
	return func(o *Orchestrator) { o.strictDeps = strict }
}

// WithHealer replaces the default self-healer.
func WithHealer(h *healer.SelfHealer) Option {
	return func(o *Orchestrator) { o.healer = h }
}

// WithStore enables task and decision persistence.
func WithStore(s Store) Option {
	return func(o *Orchestrator) { o.store = s }
}

// WithLogger sets the file-backed debug logger.
func WithLogger(l *DebugLogger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithEventBuffer sets the event channel buffer size.
func WithEventBuffer(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.emitter = NewEventEmitter(n)
		}
	}
}

// New creates an Orchestrator around the given executor.
func New(executor Executor, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:        registry.New(),
		workloads:       workload.NewTracker(),
		executor:        executor,
		emitter:         NewEventEmitter(256),
		pauseCtrl:       NewPauseController(),
		logger:          NopLogger(),
		maxConcurrent:   3,
		taskTimeout:     10 * time.Minute,
		pollInterval:    100 * time.Millisecond,
		maxIdleInterval: 5 * time.Second,
		autoRetry:       true,
		maxRetries:      3,
		state:           StateIdle,
		tasks:           make(map[string]*models.Task),
		notBefore:       make(map[string]time.Time),
		results:         make(map[string]*models.ExecutionResult),
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.healer == nil {
		o.healer = healer.New(healer.WithLogger(o.logger.Log))
	}
	o.router = router.New(o.registry, o.workloads, o.healer)
	o.router.SetDebugLog(o.logger.Log)
	return o
}

// RegisterAgent adds a specialist agent to the catalog and starts tracking
// its workload.
func (o *Orchestrator) RegisterAgent(name, specialty string, capabilities, toolCategories []string) {
	o.registry.Register(name, specialty, capabilities, toolCategories)
	o.workloads.Track(name)
	o.logger.Log("[swarm] registered agent %s (specialty=%s)", name, specialty)
}

// prepTaskLocked fills a task's derived fields before it enters the queue:
// generated ID, default status, timestamps, retry cap, and classification, so
// routing never sees an unclassified task. Caller must hold o.mu.
func (o *Orchestrator) prepTaskLocked(task *models.Task) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.Status == "" {
		task.Status = models.TaskStatusPending
	}
	if !task.Status.Valid() {
		return fmt.Errorf("task %s has invalid status %q", task.ID, task.Status)
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	if task.MaxRetries == 0 {
		task.MaxRetries = o.maxRetries
	}
	if task.Classification == nil {
		task.Classification = classifier.Classify(task.ID, task.Title, task.Description)
	}
	return nil
}

// Load classifies and enqueues tasks, then builds and validates the
// dependency graph. It may only be called before Run, on an idle swarm; use
// Add to enqueue onto a swarm that is already running.
func (o *Orchestrator) Load(tasks []*models.Task) error {
	o.mu.Lock()
	if o.state != StateIdle {
		o.mu.Unlock()
		return fmt.Errorf("load: swarm is %s, tasks can only be loaded while idle", o.state)
	}

	for _, task := range tasks {
		if err := o.prepTaskLocked(task); err != nil {
			o.mu.Unlock()
			return fmt.Errorf("load: %w", err)
		}
		if _, exists := o.tasks[task.ID]; exists {
			o.mu.Unlock()
			return fmt.Errorf("load: duplicate task ID %s", task.ID)
		}
		o.tasks[task.ID] = task
	}

	g := graph.New(o.strictDeps)
	g.SetDebugLog(o.logger.Log)
	all := make([]*models.Task, 0, len(o.tasks))
	for _, task := range o.tasks {
		all = append(all, task)
	}
	if err := g.Build(all); err != nil {
		o.mu.Unlock()
		return fmt.Errorf("load: %w", err)
	}
	o.graph = g
	o.mu.Unlock()

	for _, task := range all {
		o.saveTask(task)
		o.emitter.Emit(SwarmEvent{
			Type:      EventTaskQueued,
			TaskID:    task.ID,
			TaskTitle: task.Title,
			Timestamp: time.Now(),
		})
	}

	o.logger.Log("[swarm] loaded %d tasks", len(tasks))
	return nil
}

// Add enqueues tasks onto an idle, active, or paused swarm. Unlike Load it
// tolerates already-known IDs by skipping them, so a reloaded workflow file
// can be re-applied without erroring on the tasks that already ran. Tasks
// whose dependencies have already failed are enqueued blocked.
func (o *Orchestrator) Add(tasks []*models.Task) error {
	o.mu.Lock()
	if o.state == StateCompleted || o.state == StateError {
		o.mu.Unlock()
		return fmt.Errorf("add: swarm is %s, no further tasks accepted", o.state)
	}
	if o.graph == nil {
		g := graph.New(o.strictDeps)
		g.SetDebugLog(o.logger.Log)
		o.graph = g
	}

	fresh := make([]*models.Task, 0, len(tasks))
	for _, task := range tasks {
		if err := o.prepTaskLocked(task); err != nil {
			o.mu.Unlock()
			return fmt.Errorf("add: %w", err)
		}
		if _, exists := o.tasks[task.ID]; exists {
			o.logger.Log("[swarm] add: task %s already queued, skipping", task.ID)
			continue
		}
		fresh = append(fresh, task)
	}
	if len(fresh) == 0 {
		o.mu.Unlock()
		return nil
	}

	blockedIDs, err := o.graph.Add(fresh)
	if err != nil {
		o.mu.Unlock()
		return fmt.Errorf("add: %w", err)
	}
	for _, task := range fresh {
		o.tasks[task.ID] = task
	}
	blocked := make(map[string]bool, len(blockedIDs))
	for _, id := range blockedIDs {
		blocked[id] = true
		o.tasks[id].Status = models.TaskStatusBlocked
		o.tasks[id].Error = "a dependency already failed"
	}
	o.mu.Unlock()

	for _, task := range fresh {
		o.saveTask(task)
		o.emitter.Emit(SwarmEvent{
			Type:      EventTaskQueued,
			TaskID:    task.ID,
			TaskTitle: task.Title,
			Timestamp: time.Now(),
		})
		if blocked[task.ID] {
			o.emitter.Emit(SwarmEvent{
				Type:      EventTaskBlocked,
				TaskID:    task.ID,
				TaskTitle: task.Title,
				Message:   task.Error,
				Timestamp: time.Now(),
			})
		}
	}

	o.logger.Log("[swarm] added %d tasks", len(fresh))
	return nil
}

// State returns the run lifecycle state.
func (o *Orchestrator) State() SwarmState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// setState transitions the lifecycle state and logs it.
func (o *Orchestrator) setState(s SwarmState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != s {
		o.logger.Log("[swarm] state %s -> %s", o.state, s)
		o.state = s
	}
}

// Pause suspends dispatch. In-flight tasks run to completion.
func (o *Orchestrator) Pause() {
	o.pauseCtrl.Pause()
	o.mu.Lock()
	if o.state == StateActive {
		o.state = StatePaused
	}
	o.mu.Unlock()
	o.emitter.Emit(SwarmEvent{Type: EventSwarmPaused, Timestamp: time.Now()})
}

// Resume resumes dispatch after a pause.
func (o *Orchestrator) Resume() {
	o.pauseCtrl.Resume()
	if o.State() == StatePaused {
		o.setState(StateActive)
	}
	o.emitter.Emit(SwarmEvent{Type: EventSwarmResumed, Timestamp: time.Now()})
}

// Stop aborts the run. Run returns once the current batch drains.
func (o *Orchestrator) Stop() {
	o.pauseCtrl.Stop()
}

// Events returns the run event channel.
func (o *Orchestrator) Events() <-chan SwarmEvent {
	return o.emitter.Events()
}

// Router exposes the routing decision log and metrics.
func (o *Orchestrator) Router() *router.Router {
	return o.router
}

// Healer exposes the failure history and circuit state.
func (o *Orchestrator) Healer() *healer.SelfHealer {
	return o.healer
}

// Workloads exposes per-agent workload records.
func (o *Orchestrator) Workloads() *workload.Tracker {
	return o.workloads
}

// Task returns a copy of the task with the given ID, or nil. Returning a
// copy keeps every read of the live record behind o.mu.
func (o *Orchestrator) Task(id string) *models.Task {
	o.mu.Lock()
	defer o.mu.Unlock()

	task, exists := o.tasks[id]
	if !exists {
		return nil
	}
	copied := *task
	return &copied
}

// Result returns the last execution result for a task, or nil.
func (o *Orchestrator) Result(taskID string) *models.ExecutionResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.results[taskID]
}

// Progress is a point-in-time census of task statuses.
type Progress struct {
	// State is the run lifecycle state.
	State SwarmState `json:"state"`
	// Total is the number of loaded tasks.
	Total int `json:"total"`
	// Pending counts tasks waiting to be dispatched.
	Pending int `json:"pending"`
	// InProgress counts tasks currently executing.
	InProgress int `json:"in_progress"`
	// Completed counts successful tasks.
	Completed int `json:"completed"`
	// Failed counts terminally failed tasks.
	Failed int `json:"failed"`
	// Blocked counts tasks whose dependencies failed.
	Blocked int `json:"blocked"`
	// Cancelled counts cancelled tasks.
	Cancelled int `json:"cancelled"`
}

// PercentDone returns completion as a fraction of terminal tasks over total.
func (p Progress) PercentDone() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Completed+p.Failed+p.Blocked+p.Cancelled) / float64(p.Total)
}

// Progress returns the current task status census.
func (o *Orchestrator) Progress() Progress {
	o.mu.Lock()
	defer o.mu.Unlock()

	p := Progress{State: o.state, Total: len(o.tasks)}
	for _, task := range o.tasks {
		switch task.Status {
		case models.TaskStatusPending:
			p.Pending++
		case models.TaskStatusInProgress:
			p.InProgress++
		case models.TaskStatusCompleted:
			p.Completed++
		case models.TaskStatusFailed:
			p.Failed++
		case models.TaskStatusBlocked:
			p.Blocked++
		case models.TaskStatusCancelled:
			p.Cancelled++
		}
	}
	return p
}

// saveTask persists a task if a store is configured. Persistence failures are
// logged, not fatal: the in-memory run is the source of truth.
func (o *Orchestrator) saveTask(task *models.Task) {
	if o.store == nil {
		return
	}
	if err := o.store.SaveTask(task); err != nil {
		o.logger.Log("[swarm] persist task %s: %v", task.ID, err)
	}
}

// saveDecision persists a routing decision if a store is configured.
func (o *Orchestrator) saveDecision(decision *models.RoutingDecision) {
	if o.store == nil {
		return
	}
	if err := o.store.SaveDecision(decision); err != nil {
		o.logger.Log("[swarm] persist decision for task %s: %v", decision.TaskID, err)
	}
}
