package router

import "strings"

// capabilityRule maps trigger keywords to a capability tag. Rules are checked
// in order and the first hit wins.
type capabilityRule struct {
	keywords   []string
	capability string
}

// capabilityRules is the ordered keyword-to-capability table. More specific
// verbs come before broad ones so "fix the test" infers fix_bug, not testing.
var capabilityRules = []capabilityRule{
	{[]string{"fix", "bug", "repair", "broken"}, "fix_bug"},
	{[]string{"refactor", "restructure", "cleanup", "clean up"}, "refactor"},
	{[]string{"review", "audit", "inspect"}, "code_review"},
	{[]string{"test", "verify", "validate", "coverage"}, "testing"},
	{[]string{"document", "docs", "readme", "comment"}, "documentation"},
	{[]string{"deploy", "release", "ship", "publish"}, "deployment"},
	{[]string{"optimize", "performance", "speed up", "profile"}, "optimization"},
	{[]string{"design", "architect", "plan", "structure"}, "design"},
	{[]string{"implement", "build", "create", "add"}, "implementation"},
	{[]string{"analyze", "investigate", "research", "explore"}, "analysis"},
}

// InferCapability derives a capability tag from task text, or "" when no rule
// matches. Matching is case-insensitive substring search, same as the
// classifier's keyword scan.
func InferCapability(text string) string {
	lower := strings.ToLower(text)
	for _, rule := range capabilityRules {
		for _, keyword := range rule.keywords {
			if strings.Contains(lower, keyword) {
				return rule.capability
			}
		}
	}
	return ""
}
