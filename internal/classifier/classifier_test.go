package classifier

import (
	"reflect"
	"testing"
)

func TestClassifyDocumentation(t *testing.T) {
	result := Classify("task-1",
		"Generate docstrings for exported symbols",
		"Create comprehensive docstrings and update the README guide")

	if result.DetectedType != "documentation" {
		t.Errorf("expected documentation, got %s", result.DetectedType)
	}
	if result.Confidence < 0.7 {
		t.Errorf("expected confidence >= 0.7, got %f", result.Confidence)
	}
	if result.SuggestedAgent != "documentation_specialist" {
		t.Errorf("expected documentation_specialist, got %s", result.SuggestedAgent)
	}
}

func TestClassifyConfidenceLadder(t *testing.T) {
	tests := []struct {
		name       string
		title      string
		desc       string
		wantType   string
		wantConf   float64
	}{
		{
			name:     "three matches",
			title:    "Write documentation",
			desc:     "Add docstrings and refresh the README",
			wantType: "documentation",
			wantConf: 0.9,
		},
		{
			name:     "two matches",
			title:    "Update README",
			desc:     "Refresh the install guide",
			wantType: "documentation",
			wantConf: 0.8,
		},
		{
			name:     "one match",
			title:    "Polish the changelog",
			desc:     "Tidy entries for the release",
			wantType: "documentation",
			wantConf: 0.7,
		},
		{
			name:     "no match",
			title:    "Reticulate splines",
			desc:     "Something nobody has a keyword for",
			wantType: TypeGeneric,
			wantConf: 0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Classify("task-x", tt.title, tt.desc)
			if result.DetectedType != tt.wantType {
				t.Errorf("expected type %s, got %s", tt.wantType, result.DetectedType)
			}
			if result.Confidence != tt.wantConf {
				t.Errorf("expected confidence %f, got %f", tt.wantConf, result.Confidence)
			}
		})
	}
}

func TestClassifyDebugging(t *testing.T) {
	result := Classify("task-2",
		"Fix crash in save path",
		"Debug the error reported when saving twice")

	if result.DetectedType != "debugging" {
		t.Errorf("expected debugging, got %s", result.DetectedType)
	}
	if result.Confidence != 0.9 {
		t.Errorf("expected 0.9 for >=3 matches, got %f", result.Confidence)
	}
}

func TestClassifyGenericHasNoSuggestedAgent(t *testing.T) {
	result := Classify("task-3", "Mysterious work", "Nothing matches here")

	if result.SuggestedAgent != "" {
		t.Errorf("expected empty suggested agent for generic, got %s", result.SuggestedAgent)
	}
	if len(result.Keywords) != 0 {
		t.Errorf("expected no keywords, got %v", result.Keywords)
	}
}

func TestClassifyIdempotent(t *testing.T) {
	a := Classify("task-4", "Refactor the input layer", "Reduce coupling in the design")
	b := Classify("task-4", "Refactor the input layer", "Reduce coupling in the design")

	if !reflect.DeepEqual(a, b) {
		t.Errorf("identical input produced different output:\n%+v\n%+v", a, b)
	}
}

func TestDetectSubsystemIsObservabilityOnly(t *testing.T) {
	result := Classify("task-5", "Fix bug in the engine loop", "Crash on startup")

	if result.Subsystem != "engine" {
		t.Errorf("expected engine subsystem tag, got %q", result.Subsystem)
	}
	// Subsystem tagging must not change the detected type.
	if result.DetectedType != "debugging" {
		t.Errorf("expected debugging, got %s", result.DetectedType)
	}
}

func TestDetectSubsystemNoMatch(t *testing.T) {
	if got := DetectSubsystem("totally unrelated text"); got != "" {
		t.Errorf("expected empty subsystem, got %q", got)
	}
}
