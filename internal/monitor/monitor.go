// Package monitor observes a swarm run through its event stream and keeps
// aggregate statistics: task outcomes, per-agent effectiveness, and a console
// reporter for interactive runs.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/swarmroute/swarmroute/internal/swarm"
)

// Sink receives every observed event. Implementations must not block; slow
// sinks stall the whole monitor.
type Sink interface {
	Observe(event swarm.SwarmEvent)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(event swarm.SwarmEvent)

// Observe implements Sink.
func (f SinkFunc) Observe(event swarm.SwarmEvent) { f(event) }

// Stats is a point-in-time aggregate of observed events.
type Stats struct {
	// Queued counts tasks accepted into the queue.
	Queued int `json:"queued"`
	// Started counts task dispatches.
	Started int `json:"started"`
	// Completed counts successful task completions.
	Completed int `json:"completed"`
	// Failed counts terminal task failures.
	Failed int `json:"failed"`
	// Retried counts requeued attempts.
	Retried int `json:"retried"`
	// Deferred counts first-time routing deferrals.
	Deferred int `json:"deferred"`
	// Blocked counts tasks blocked by failed dependencies.
	Blocked int `json:"blocked"`
	// TotalWorkTime is the summed duration of completed tasks.
	TotalWorkTime time.Duration `json:"total_work_time"`
}

// SuccessRate returns completed over completed+failed, or zero.
func (s Stats) SuccessRate() float64 {
	finished := s.Completed + s.Failed
	if finished == 0 {
		return 0
	}
	return float64(s.Completed) / float64(finished)
}

// Monitor drains a swarm's event channel and fans events out to sinks while
// keeping aggregate counters.
type Monitor struct {
	mu            sync.Mutex
	stats         Stats
	effectiveness *Effectiveness
	sinks         []Sink
}

// New creates a Monitor with the given sinks attached.
func New(sinks ...Sink) *Monitor {
	return &Monitor{
		effectiveness: NewEffectiveness(),
		sinks:         sinks,
	}
}

// Run consumes events until the channel closes or the context is cancelled.
// Call it in its own goroutine alongside the orchestrator's Run.
func (m *Monitor) Run(ctx context.Context, events <-chan swarm.SwarmEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			m.observe(event)
		}
	}
}

// observe updates counters and fans the event out.
func (m *Monitor) observe(event swarm.SwarmEvent) {
	m.mu.Lock()
	switch event.Type {
	case swarm.EventTaskQueued:
		m.stats.Queued++
	case swarm.EventTaskStarted:
		m.stats.Started++
	case swarm.EventTaskCompleted:
		m.stats.Completed++
		m.stats.TotalWorkTime += event.Duration
	case swarm.EventTaskFailed:
		m.stats.Failed++
	case swarm.EventTaskRetrying:
		m.stats.Retried++
	case swarm.EventTaskDeferred:
		m.stats.Deferred++
	case swarm.EventTaskBlocked:
		m.stats.Blocked++
	}
	m.effectiveness.observe(event)
	m.mu.Unlock()

	for _, sink := range m.sinks {
		sink.Observe(event)
	}
}

// Stats returns a copy of the aggregate counters.
func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Effectiveness returns the per-agent effectiveness tracker.
func (m *Monitor) Effectiveness() *Effectiveness {
	return m.effectiveness
}
