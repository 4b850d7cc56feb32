package models

import "time"

// RoutingTier identifies one rung of the five-level routing ladder.
type RoutingTier string

const (
	// TierPerfectMatch is a high-confidence classification matched to an
	// available specialist.
	TierPerfectMatch RoutingTier = "perfect_match"
	// TierSpecialtyMatch is a specialty-matching agent regardless of
	// classification confidence.
	TierSpecialtyMatch RoutingTier = "specialty_match"
	// TierCapabilityMatch is an agent selected by inferred capability tag.
	TierCapabilityMatch RoutingTier = "capability_match"
	// TierLoadBalanced is the least-loaded available specialist.
	TierLoadBalanced RoutingTier = "load_balanced"
	// TierFallback is the designated generic agent.
	TierFallback RoutingTier = "fallback"
)

// Confidence returns the fixed confidence assigned to decisions at this tier.
func (t RoutingTier) Confidence() float64 {
	switch t {
	case TierPerfectMatch:
		return 0.95
	case TierSpecialtyMatch:
		return 0.80
	case TierCapabilityMatch:
		return 0.70
	case TierLoadBalanced:
		return 0.60
	case TierFallback:
		return 0.50
	default:
		return 0
	}
}

// DeferredAgent is the SelectedAgent value recorded when routing chose to
// defer the task instead of assigning an agent.
const DeferredAgent = "DEFERRED"

// RoutingDecision records one routing outcome. Decisions are appended to an
// immutable log so every assignment and deferral can be audited after the run.
type RoutingDecision struct {
	// TaskID is the routed task's ID.
	TaskID string `json:"task_id"`
	// TaskTitle is the routed task's title.
	TaskTitle string `json:"task_title"`
	// ClassificationType is the detected type at routing time.
	ClassificationType string `json:"classification_type"`
	// ClassificationConfidence is the classifier confidence at routing time.
	ClassificationConfidence float64 `json:"classification_confidence"`
	// SelectedAgent is the chosen agent name, or DeferredAgent.
	SelectedAgent string `json:"selected_agent"`
	// Tier is the routing ladder rung that produced this decision.
	Tier RoutingTier `json:"tier"`
	// TierConfidence is the fixed confidence for the tier.
	TierConfidence float64 `json:"tier_confidence"`
	// Timestamp is when the decision was made.
	Timestamp time.Time `json:"timestamp"`
	// Reason is a human-readable explanation of the decision.
	Reason string `json:"reason"`
}

// Deferred returns true if this decision assigned no agent.
func (d *RoutingDecision) Deferred() bool {
	return d.SelectedAgent == DeferredAgent
}
