package router

import "github.com/swarmroute/swarmroute/pkg/models"

// Metrics is a point-in-time rollup of the routing decision log.
type Metrics struct {
	// TotalDecisions counts every logged decision, deferrals included.
	TotalDecisions int `json:"total_decisions"`
	// Assignments counts decisions that selected an agent.
	Assignments int `json:"assignments"`
	// Deferrals counts decisions that assigned no agent.
	Deferrals int `json:"deferrals"`
	// ByTier counts assignments per routing tier.
	ByTier map[models.RoutingTier]int `json:"by_tier"`
	// ByAgent counts assignments per agent name.
	ByAgent map[string]int `json:"by_agent"`
	// SpecialistRatio is the fraction of assignments that went to a
	// non-fallback tier. Zero when there are no assignments.
	SpecialistRatio float64 `json:"specialist_ratio"`
	// FallbackRatio is the fraction of assignments made at the fallback tier.
	FallbackRatio float64 `json:"fallback_ratio"`
	// MeanTierConfidence averages the tier confidence over assignments.
	MeanTierConfidence float64 `json:"mean_tier_confidence"`
}

// Snapshot rolls the decision log up into Metrics. A high fallback ratio is
// the signal that the agent pool is missing a specialist the workload needs.
func (r *Router) Snapshot() Metrics {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := Metrics{
		ByTier:  make(map[models.RoutingTier]int),
		ByAgent: make(map[string]int),
	}

	confidenceSum := 0.0
	for i := range r.log {
		d := &r.log[i]
		m.TotalDecisions++
		if d.Deferred() {
			m.Deferrals++
			continue
		}
		m.Assignments++
		m.ByTier[d.Tier]++
		m.ByAgent[d.SelectedAgent]++
		confidenceSum += d.TierConfidence
	}

	if m.Assignments > 0 {
		m.FallbackRatio = float64(m.ByTier[models.TierFallback]) / float64(m.Assignments)
		m.SpecialistRatio = 1.0 - m.FallbackRatio
		m.MeanTierConfidence = confidenceSum / float64(m.Assignments)
	}
	return m
}

// Recent returns the newest n decisions, oldest first. n <= 0 or n larger
// than the log returns the whole log.
func (r *Router) Recent(n int) []models.RoutingDecision {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := 0
	if n > 0 && len(r.log) > n {
		start = len(r.log) - n
	}
	recent := make([]models.RoutingDecision, len(r.log)-start)
	copy(recent, r.log[start:])
	return recent
}
