package classifier

import "strings"

// subsystemKeywords tags tasks with the platform subsystem they most likely
// touch. The tag rides along on the classification for observability only;
// routing never reads it.
var subsystemKeywords = map[string][]string{
	"engine":  {"engine", "runtime", "scheduler", "loop", "core"},
	"tooling": {"tool", "script", "build", "ci", "lint"},
	"content": {"asset", "sprite", "level", "content", "scene"},
	"infra":   {"deploy", "docker", "config", "secret", "storage"},
}

// subsystemOrder fixes the evaluation order so tagging stays deterministic.
var subsystemOrder = []string{"engine", "tooling", "content", "infra"}

// DetectSubsystem returns the first subsystem whose keywords appear in the
// already lower-cased text, or empty when none match.
func DetectSubsystem(lowerText string) string {
	for _, name := range subsystemOrder {
		for _, kw := range subsystemKeywords[name] {
			if strings.Contains(lowerText, kw) {
				return name
			}
		}
	}
	return ""
}
