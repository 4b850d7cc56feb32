package swarm

import (
	"log"
	"sync/atomic"
	"time"
)

// dropWindow is how long a full event channel is given to drain before an
// event is discarded. It bounds how long a slow consumer can stall the
// scheduling loop.
const dropWindow = 100 * time.Millisecond

// EventEmitter fans run events out over a single buffered channel. Events
// are best-effort: a consumer that falls behind loses events rather than
// backpressuring the run, and the loss is counted.
type EventEmitter struct {
	events  chan SwarmEvent
	dropped atomic.Uint64
}

// NewEventEmitter creates an emitter with the given channel buffer size.
func NewEventEmitter(bufferSize int) *EventEmitter {
	return &EventEmitter{
		events: make(chan SwarmEvent, bufferSize),
	}
}

// Emit publishes one event. A full buffer gets the drop window to drain;
// after that the event is dropped and counted, with a rate-limited warning.
func (e *EventEmitter) Emit(event SwarmEvent) {
	select {
	case e.events <- event:
		return
	default:
	}

	select {
	case e.events <- event:
	case <-time.After(dropWindow):
		count := e.dropped.Add(1)
		if count%10 == 1 {
			log.Printf("[swarm] event buffer full, dropped %s (total dropped: %d)", event.Type, count)
		}
	}
}

// DroppedCount returns how many events were discarded because no consumer
// drained the channel in time.
func (e *EventEmitter) DroppedCount() uint64 {
	return e.dropped.Load()
}

// Events returns the read side of the event channel for monitors and
// persistence consumers.
func (e *EventEmitter) Events() <-chan SwarmEvent {
	return e.events
}

// Close closes the event channel. Call it only once the run is over and
// nothing will emit again.
func (e *EventEmitter) Close() {
	close(e.events)
}
