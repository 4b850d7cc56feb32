package swarm

import (
	"context"
	"fmt"
	"sync"
)

// PauseController gates the scheduling loop. Pausing suspends new dispatch
// while in-flight tasks drain; stopping ends the run. Any goroutine may flip
// either flag; the loop observes them through WaitIfPaused.
type PauseController struct {
	// paused suspends dispatch until Resume.
	paused bool
	// stopped ends the run; it is never unset.
	stopped bool
	// mu protects both flags.
	mu sync.RWMutex
	// cond wakes waiters when a flag changes.
	cond *sync.Cond
}

// NewPauseController creates a controller in the running state.
func NewPauseController() *PauseController {
	p := &PauseController{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Pause suspends dispatch. In-flight tasks keep running.
func (p *PauseController) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = true
}

// Resume lifts a pause and wakes the loop.
func (p *PauseController) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused {
		p.paused = false
		p.cond.Broadcast()
	}
}

// Stop ends the run. A paused loop is woken so it can observe the stop.
func (p *PauseController) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.stopped {
		p.stopped = true
		p.cond.Broadcast()
	}
}

// IsPaused reports whether dispatch is currently suspended.
func (p *PauseController) IsPaused() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused
}

// IsStopped reports whether the run has been stopped.
func (p *PauseController) IsStopped() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stopped
}

// WaitIfPaused blocks while the controller is paused. It returns the context
// error on cancellation and a stop error once the controller is stopped, so
// the loop has a single place to observe all three ways out of a pause.
func (p *PauseController) WaitIfPaused(ctx context.Context) error {
	p.mu.Lock()
	if p.paused && !p.stopped {
		// cond.Wait cannot watch a context, so a helper goroutine turns
		// cancellation into a broadcast for the duration of the wait.
		done := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				p.mu.Lock()
				p.cond.Broadcast()
				p.mu.Unlock()
			case <-done:
			}
		}()

		for p.paused && !p.stopped {
			p.cond.Wait()
			if ctx.Err() != nil {
				close(done)
				p.mu.Unlock()
				return ctx.Err()
			}
		}
		close(done)
	}
	if p.stopped {
		p.mu.Unlock()
		return fmt.Errorf("swarm stopped")
	}
	p.mu.Unlock()
	return nil
}
