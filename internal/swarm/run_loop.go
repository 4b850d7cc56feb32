package swarm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/swarmroute/swarmroute/pkg/models"
)

// ErrNoTasks is returned by Run when nothing was loaded.
var ErrNoTasks = errors.New("no tasks loaded")

// assignment pairs a routed task with its agent for one dispatch batch.
type assignment struct {
	task  *models.Task
	agent string
}

// outcome is the result of one executed assignment.
type outcome struct {
	assignment
	result   *models.ExecutionResult
	err      error
	duration time.Duration
}

// Run drives the scheduling loop until every task reaches a terminal state,
// the context is cancelled, or Stop is called. Each cycle recomputes the
// ready set, routes as many tasks as concurrency allows, dispatches them as
// one batch, and processes the outcomes before the next cycle.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.mu.Lock()
	if o.state != StateIdle {
		state := o.state
		o.mu.Unlock()
		return fmt.Errorf("run: swarm already %s", state)
	}
	if o.graph == nil || len(o.tasks) == 0 {
		o.mu.Unlock()
		return ErrNoTasks
	}
	o.state = StateActive
	total := len(o.tasks)
	o.mu.Unlock()

	o.emitter.Emit(SwarmEvent{Type: EventSwarmStarted, Timestamp: time.Now()})
	o.logger.Log("[swarm] run started: %d tasks, max %d concurrent", total, o.maxConcurrent)

	// Idle delay grows while cycles dispatch nothing and resets on work, so
	// waiting on a retry delay or a busy agent does not busy-spin.
	idle := backoff.NewExponentialBackOff()
	idle.InitialInterval = o.pollInterval
	idle.MaxInterval = o.maxIdleInterval
	idle.MaxElapsedTime = 0
	idle.Reset()

	for {
		if err := ctx.Err(); err != nil {
			o.setState(StateError)
			return err
		}
		if err := o.pauseCtrl.WaitIfPaused(ctx); err != nil {
			o.setState(StateError)
			return err
		}

		// The Done check happens under o.mu so a concurrent Add either lands
		// before it (and keeps the run alive) or observes the completed state
		// and is rejected; nothing can be enqueued into a finished run.
		o.mu.Lock()
		if o.graph.Done() {
			o.state = StateCompleted
			o.mu.Unlock()
			o.emitter.Emit(SwarmEvent{Type: EventSwarmCompleted, Timestamp: time.Now()})
			o.logger.Log("[swarm] run completed")
			return nil
		}
		o.mu.Unlock()

		batch := o.admit()
		if len(batch) == 0 {
			select {
			case <-ctx.Done():
				o.setState(StateError)
				return ctx.Err()
			case <-time.After(idle.NextBackOff()):
			}
			continue
		}
		idle.Reset()

		o.dispatch(ctx, batch)
	}
}

// admit routes ready tasks and claims agents for them, up to the concurrency
// bound. Ready tasks come back in priority order with ID tie-break, so
// admission is deterministic. Tasks in a retry wait window are skipped;
// deferred routings leave the task queued for the next cycle.
func (o *Orchestrator) admit() []assignment {
	ready := o.graph.GetReady()
	if len(ready) == 0 {
		return nil
	}

	now := time.Now()
	o.mu.Lock()
	waiting := make(map[string]bool, len(o.notBefore))
	for id, at := range o.notBefore {
		if now.Before(at) {
			waiting[id] = true
		} else {
			delete(o.notBefore, id)
		}
	}
	o.mu.Unlock()

	capacity := o.maxConcurrent - o.workloads.InFlightCount()
	var batch []assignment
	for _, task := range ready {
		if len(batch) >= capacity {
			break
		}
		if waiting[task.ID] {
			continue
		}

		agent, decision, ok := o.router.Route(task, task.Classification)
		o.saveDecision(&decision)
		if !ok {
			// Deferral is a transient block: the task re-enters the ready
			// set once the wanted agent frees up. The event fires on the
			// first deferral only; the decision log records every one.
			o.mu.Lock()
			firstDeferral := task.Status != models.TaskStatusBlocked
			if firstDeferral {
				task.Status = models.TaskStatusBlocked
			}
			o.mu.Unlock()
			if firstDeferral {
				o.saveTask(task)
				o.emitter.Emit(SwarmEvent{
					Type:      EventTaskDeferred,
					TaskID:    task.ID,
					TaskTitle: task.Title,
					Message:   decision.Reason,
					Timestamp: time.Now(),
				})
			}
			continue
		}

		if err := o.workloads.Assign(agent, task.ID); err != nil {
			// Lost the agent between routing and claiming; retry next cycle.
			o.logger.Log("[swarm] claim %s for task %s: %v", agent, task.ID, err)
			continue
		}

		started := time.Now()
		o.mu.Lock()
		task.Status = models.TaskStatusInProgress
		task.AssignedAgent = agent
		task.StartedAt = &started
		o.mu.Unlock()
		o.saveTask(task)

		o.emitter.Emit(SwarmEvent{
			Type:      EventTaskStarted,
			TaskID:    task.ID,
			TaskTitle: task.Title,
			AgentName: agent,
			Message:   decision.Reason,
			Timestamp: started,
		})
		batch = append(batch, assignment{task: task, agent: agent})
	}
	return batch
}

// dispatch runs one batch of assignments concurrently and waits for all of
// them. Each task gets its own timeout; a slow task cannot extend another's
// budget. Outcomes are processed only after the whole batch drains, so task
// state is mutated from the loop goroutine alone.
func (o *Orchestrator) dispatch(ctx context.Context, batch []assignment) {
	outcomes := make([]outcome, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	for i, a := range batch {
		i, a := i, a
		g.Go(func() error {
			taskCtx, cancel := context.WithTimeout(gctx, o.taskTimeout)
			defer cancel()

			start := time.Now()
			result, err := o.executor.Execute(taskCtx, a.task, a.agent)
			if err == nil && taskCtx.Err() != nil {
				err = taskCtx.Err()
			}
			if err == nil && result != nil && !result.Success {
				err = errors.New(result.Error)
			}
			outcomes[i] = outcome{
				assignment: a,
				result:     result,
				err:        err,
				duration:   time.Since(start),
			}
			// Execution errors are handled per-outcome; never cancel siblings.
			return nil
		})
	}
	g.Wait()

	for i := range outcomes {
		o.processOutcome(&outcomes[i])
	}
}

// processOutcome applies one execution outcome: completion bookkeeping on
// success, recovery policy on failure.
func (o *Orchestrator) processOutcome(out *outcome) {
	task := out.task
	success := out.err == nil

	if err := o.workloads.Complete(out.agent, success, out.duration); err != nil {
		o.logger.Log("[swarm] release %s after task %s: %v", out.agent, task.ID, err)
	}

	if out.result != nil {
		o.mu.Lock()
		o.results[task.ID] = out.result
		o.mu.Unlock()
	}

	if success {
		now := time.Now()
		o.mu.Lock()
		task.Status = models.TaskStatusCompleted
		task.CompletedAt = &now
		if out.result != nil {
			task.Result = out.result.Output
		}
		o.mu.Unlock()
		o.graph.MarkComplete(task.ID)
		o.healer.RecordSuccess(out.agent)
		o.saveTask(task)

		o.emitter.Emit(SwarmEvent{
			Type:      EventTaskCompleted,
			TaskID:    task.ID,
			TaskTitle: task.Title,
			AgentName: out.agent,
			Duration:  out.duration,
			Timestamp: now,
		})
		o.logger.Log("[swarm] task %s completed by %s in %s", task.ID, out.agent, out.duration)
		return
	}

	if o.autoRetry && task.RetryCount < task.MaxRetries {
		if recovered, event := o.healer.DetectAndRecover(out.agent, out.err, task.ID); recovered {
			o.mu.Lock()
			task.RetryCount++
			task.Status = models.TaskStatusPending
			task.AssignedAgent = ""
			if event.RetryDelay > 0 {
				o.notBefore[task.ID] = time.Now().Add(event.RetryDelay)
			}
			o.mu.Unlock()
			o.saveTask(task)

			o.emitter.Emit(SwarmEvent{
				Type:      EventTaskRetrying,
				TaskID:    task.ID,
				TaskTitle: task.Title,
				AgentName: out.agent,
				Message:   fmt.Sprintf("attempt %d/%d: %s", task.RetryCount, task.MaxRetries, event.Kind),
				Error:     out.err,
				Timestamp: time.Now(),
			})
			o.logger.Log("[swarm] task %s requeued (attempt %d/%d, kind=%s, delay=%s)",
				task.ID, task.RetryCount, task.MaxRetries, event.Kind, event.RetryDelay)
			return
		}
	}

	o.failTask(task, out.agent, out.err)
}

// failTask marks a task terminally failed and blocks its transitive
// dependents, which can never run.
func (o *Orchestrator) failTask(task *models.Task, agentName string, execErr error) {
	now := time.Now()
	o.mu.Lock()
	task.Status = models.TaskStatusFailed
	task.CompletedAt = &now
	if execErr != nil {
		task.Error = execErr.Error()
	}
	o.mu.Unlock()
	o.saveTask(task)

	o.emitter.Emit(SwarmEvent{
		Type:      EventTaskFailed,
		TaskID:    task.ID,
		TaskTitle: task.Title,
		AgentName: agentName,
		Error:     execErr,
		Timestamp: now,
	})
	o.logger.Log("[swarm] task %s failed: %v", task.ID, execErr)

	for _, blockedID := range o.graph.MarkFailed(task.ID) {
		blocked := o.graph.GetTask(blockedID)
		if blocked == nil {
			continue
		}
		o.mu.Lock()
		blocked.Status = models.TaskStatusBlocked
		blocked.Error = fmt.Sprintf("dependency %s failed", task.ID)
		o.mu.Unlock()
		o.saveTask(blocked)

		o.emitter.Emit(SwarmEvent{
			Type:      EventTaskBlocked,
			TaskID:    blocked.ID,
			TaskTitle: blocked.Title,
			Message:   blocked.Error,
			Timestamp: time.Now(),
		})
	}
}
