// Package router matches classified tasks to agents through a five-tier
// decision ladder and records every outcome in an append-only audit log.
package router

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/swarmroute/swarmroute/internal/healer"
	"github.com/swarmroute/swarmroute/internal/registry"
	"github.com/swarmroute/swarmroute/internal/workload"
	"github.com/swarmroute/swarmroute/pkg/models"
)

// Router picks an agent for one task at a time. It combines the registry's
// catalog, the workload tracker's availability, and the healer's circuit
// state. A nil healer disables circuit checks.
type Router struct {
	// registry is the agent catalog.
	registry *registry.AgentRegistry
	// workloads is the per-agent workload tracker.
	workloads *workload.Tracker
	// healer supplies circuit breaker state. Optional.
	healer *healer.SelfHealer
	// log is the append-only routing decision log.
	log []models.RoutingDecision
	// logf is an optional debug logging function.
	logf func(format string, args ...interface{})
	// mu protects the decision log.
	mu sync.Mutex
}

// New creates a Router. The healer may be nil when circuit breaking is not
// wanted (tests, degraded runs).
func New(reg *registry.AgentRegistry, tracker *workload.Tracker, h *healer.SelfHealer) *Router {
	return &Router{
		registry:  reg,
		workloads: tracker,
		healer:    h,
		logf:      func(format string, args ...interface{}) {},
	}
}

// SetDebugLog sets the debug logging function.
func (r *Router) SetDebugLog(logf func(format string, args ...interface{})) {
	if logf != nil {
		r.logf = logf
	}
}

// Route returns the name of the agent the task should run on, or ok=false to
// defer the task until the next cycle. Five tiers, first satisfied wins:
//
//  1. Perfect match: confidence >= 0.9 and a specialty match exists. Busy
//     specialist means defer immediately, not fall through.
//  2. Specialty match: same agent lookup at any confidence; busy means defer.
//  3. Capability match: capability tag inferred from task text.
//  4. Load-balanced: least-loaded available specialist.
//  5. Fallback: the designated generic agent, created on first use.
//
// Every outcome, including deferrals, is appended to the decision log.
func (r *Router) Route(task *models.Task, cls *models.Classification) (string, models.RoutingDecision, bool) {
	// Tier 1: perfect match.
	if cls.Confidence >= 0.9 {
		if agent := r.registry.FindBySpecialty(cls.DetectedType); agent != nil {
			if r.available(agent.Name) {
				return r.assign(task, cls, agent.Name, models.TierPerfectMatch,
					"high confidence perfect match")
			}
			return r.defer_(task, cls, models.TierPerfectMatch,
				fmt.Sprintf("%s busy (perfect match)", agent.Name))
		}
	}

	// Tier 2: specialty match.
	if agent := r.registry.FindBySpecialty(cls.DetectedType); agent != nil {
		if r.available(agent.Name) {
			return r.assign(task, cls, agent.Name, models.TierSpecialtyMatch,
				"specialty match available")
		}
		return r.defer_(task, cls, models.TierSpecialtyMatch,
			fmt.Sprintf("%s busy (specialty match)", agent.Name))
	}

	// Tier 3: capability match.
	if capability := InferCapability(task.Title + " " + task.Description); capability != "" {
		if agent := r.registry.FindByCapability(capability); agent != nil && r.available(agent.Name) {
			return r.assign(task, cls, agent.Name, models.TierCapabilityMatch,
				fmt.Sprintf("capability match: %s", capability))
		}
	}

	// Tier 4: load-balanced across available specialists.
	if name, load, found := r.leastLoadedSpecialist(); found {
		return r.assign(task, cls, name, models.TierLoadBalanced,
			fmt.Sprintf("load-balanced (load: %.2f)", load))
	}

	// Tier 5: generic fallback, created on first use if absent.
	generic := r.registry.EnsureGeneric()
	r.workloads.Track(generic.Name)
	if r.available(generic.Name) {
		return r.assign(task, cls, generic.Name, models.TierFallback,
			"fallback to generic agent")
	}
	return r.defer_(task, cls, models.TierFallback,
		fmt.Sprintf("%s busy (fallback)", generic.Name))
}

// available reports whether the agent can take a task right now: workload
// availability plus a closed circuit.
func (r *Router) available(agentName string) bool {
	if !r.workloads.IsAvailable(agentName) {
		return false
	}
	if r.healer != nil && r.healer.CircuitOpen(agentName) {
		return false
	}
	return true
}

// leastLoadedSpecialist scans available specialist-class agents and returns
// the one with the lowest load score. Ties break by name so the choice is
// deterministic.
func (r *Router) leastLoadedSpecialist() (string, float64, bool) {
	agents := r.registry.All()
	sort.Slice(agents, func(i, j int) bool { return agents[i].Name < agents[j].Name })

	bestName := ""
	bestLoad := 0.0
	for _, agent := range agents {
		if agent.Class != models.AgentClassSpecialist || !r.available(agent.Name) {
			continue
		}
		load := r.LoadScore(agent.Name)
		if bestName == "" || load < bestLoad {
			bestName = agent.Name
			bestLoad = load
		}
	}
	return bestName, bestLoad, bestName != ""
}

// LoadScore computes the agent's normalized load: 70% weight on whether the
// agent is busy, 30% on an efficiency factor where higher throughput means
// lower load. A deliberately simple proxy, not queueing theory.
func (r *Router) LoadScore(agentName string) float64 {
	w := r.workloads.Get(agentName)
	if w == nil {
		return 0
	}

	busy := 0.0
	if w.Busy() {
		busy = 1.0
	}
	efficiencyWeight := 1.0 / (1.0 + w.EfficiencyScore)

	return 0.7*busy + 0.3*efficiencyWeight
}

// assign records an assignment decision and returns the chosen agent.
func (r *Router) assign(task *models.Task, cls *models.Classification, agentName string, tier models.RoutingTier, reason string) (string, models.RoutingDecision, bool) {
	decision := models.RoutingDecision{
		TaskID:                   task.ID,
		TaskTitle:                task.Title,
		ClassificationType:       cls.DetectedType,
		ClassificationConfidence: cls.Confidence,
		SelectedAgent:            agentName,
		Tier:                     tier,
		TierConfidence:           tier.Confidence(),
		Timestamp:                time.Now(),
		Reason:                   reason,
	}
	r.append(decision)
	r.logf("[router] task %s -> %s (%s, confidence %.2f)", task.ID, agentName, tier, tier.Confidence())
	return agentName, decision, true
}

// defer_ records a deferral decision. The task stays unassigned and will be
// re-evaluated next cycle.
func (r *Router) defer_(task *models.Task, cls *models.Classification, tier models.RoutingTier, reason string) (string, models.RoutingDecision, bool) {
	decision := models.RoutingDecision{
		TaskID:                   task.ID,
		TaskTitle:                task.Title,
		ClassificationType:       cls.DetectedType,
		ClassificationConfidence: cls.Confidence,
		SelectedAgent:            models.DeferredAgent,
		Tier:                     tier,
		Timestamp:                time.Now(),
		Reason:                   "deferred: " + reason,
	}
	r.append(decision)
	r.logf("[router] task %s deferred: %s", task.ID, reason)
	return "", decision, false
}

// append adds a decision to the audit log.
func (r *Router) append(decision models.RoutingDecision) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = append(r.log, decision)
}

// Decisions returns a copy of the full routing decision log.
func (r *Router) Decisions() []models.RoutingDecision {
	r.mu.Lock()
	defer r.mu.Unlock()

	decisions := make([]models.RoutingDecision, len(r.log))
	copy(decisions, r.log)
	return decisions
}
