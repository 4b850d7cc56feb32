// Package classifier detects task types from title and description text.
// Classification is deterministic, side-effect-free, and never errors.
package classifier

import (
	"sort"
	"strings"

	"github.com/swarmroute/swarmroute/pkg/models"
)

// TypeGeneric is the type assigned when no keyword table matches.
const TypeGeneric = "generic"

// typeKeywords maps each known task type to the keywords that indicate it.
// A keyword matches as a substring of the lower-cased title+description.
var typeKeywords = map[string][]string{
	"documentation": {"docstring", "document", "documentation", "readme", "changelog", "guide"},
	"architecture":  {"refactor", "coupling", "design", "architecture", "restructure", "decouple"},
	"ui":            {"ui", "component", "button", "layout", "interface", "widget", "menu"},
	"integration":   {"integration", "cross-system", "pipeline", "end-to-end", "wire up"},
	"debugging":     {"debug", "bug", "fix", "error", "crash", "regression"},
	"testing":       {"test", "coverage", "assertion", "fixture", "flaky"},
	"performance":   {"performance", "optimize", "profiling", "latency", "throughput"},
}

// typeOrder fixes the tie-break order between equally scored types so that
// identical input always yields identical output.
var typeOrder = []string{
	"documentation",
	"architecture",
	"ui",
	"integration",
	"debugging",
	"testing",
	"performance",
}

// Classify scores the task text against every type's keyword table and
// returns the highest-scoring type. Confidence escalates with match count:
// three or more matches 0.9, two 0.8, one 0.7; no match yields the generic
// type at 0.5. Unmatched input is not an error.
func Classify(taskID, title, description string) *models.Classification {
	text := strings.ToLower(title + " " + description)

	bestType := ""
	bestCount := 0
	var bestKeywords []string

	for _, taskType := range typeOrder {
		var matched []string
		for _, kw := range typeKeywords[taskType] {
			if strings.Contains(text, kw) {
				matched = append(matched, kw)
			}
		}
		if len(matched) > bestCount {
			bestType = taskType
			bestCount = len(matched)
			bestKeywords = matched
		}
	}

	if bestCount == 0 {
		return &models.Classification{
			TaskID:       taskID,
			DetectedType: TypeGeneric,
			Confidence:   0.5,
			Subsystem:    DetectSubsystem(text),
		}
	}

	sort.Strings(bestKeywords)

	return &models.Classification{
		TaskID:         taskID,
		DetectedType:   bestType,
		Confidence:     confidenceFor(bestCount),
		Keywords:       bestKeywords,
		SuggestedAgent: bestType + "_specialist",
		Subsystem:      DetectSubsystem(text),
	}
}

// confidenceFor maps a keyword match count to a confidence score.
func confidenceFor(matches int) float64 {
	switch {
	case matches >= 3:
		return 0.9
	case matches == 2:
		return 0.8
	case matches == 1:
		return 0.7
	default:
		return 0.5
	}
}

// KnownTypes returns the task types the classifier can detect, in tie-break
// order. The generic type is not included.
func KnownTypes() []string {
	return append([]string{}, typeOrder...)
}
