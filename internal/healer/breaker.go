package healer

import (
	"time"

	"github.com/sony/gobreaker"
)

// permanentOpen is the breaker timeout used when no reset cooldown is
// configured. gobreaker has no "never" setting, so use one far beyond any
// plausible run length.
const permanentOpen = 100 * 365 * 24 * time.Hour

// agentBreaker wraps a two-step circuit breaker for one agent. The healer
// drives state transitions directly: a single reported failure opens the
// circuit, because opening is a policy decision, not a failure-rate estimate.
type agentBreaker struct {
	cb *gobreaker.TwoStepCircuitBreaker
}

// newAgentBreaker creates a closed breaker. resetAfter > 0 enables gobreaker's
// half-open probing after the cooldown; zero keeps an opened circuit open.
func newAgentBreaker(agentName string, resetAfter time.Duration) *agentBreaker {
	timeout := resetAfter
	if timeout <= 0 {
		timeout = permanentOpen
	}

	return &agentBreaker{
		cb: gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
			Name:        agentName,
			MaxRequests: 1,
			Timeout:     timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 1
			},
		}),
	}
}

// trip opens the circuit by reporting one failed request.
func (b *agentBreaker) trip() {
	done, err := b.cb.Allow()
	if err != nil {
		// Already open.
		return
	}
	done(false)
}

// open reports whether the circuit is in the open state. Half-open reads as
// closed so one probe assignment can go through.
func (b *agentBreaker) open() bool {
	return b.cb.State() == gobreaker.StateOpen
}

// circuitOpenLocked reports the agent's breaker state. Caller must hold h.mu.
func (h *SelfHealer) circuitOpenLocked(agentName string) bool {
	b, exists := h.breakers[agentName]
	if !exists {
		return false
	}
	return b.open()
}

// openCircuitLocked opens the agent's breaker, creating it if needed.
// Caller must hold h.mu.
func (h *SelfHealer) openCircuitLocked(agentName string) {
	b, exists := h.breakers[agentName]
	if !exists {
		b = newAgentBreaker(agentName, h.resetAfter)
		h.breakers[agentName] = b
	}
	b.trip()
	h.logf("[healer] circuit opened for agent %s", agentName)
}
