package models

// Classification is the classifier's verdict for a single task. It is
// immutable once produced: routing reads it, nothing rewrites it.
type Classification struct {
	// TaskID is the ID of the classified task.
	TaskID string `json:"task_id"`
	// DetectedType is the highest-scoring task type, or "generic" when no
	// keyword matched.
	DetectedType string `json:"detected_type"`
	// Confidence is the classifier's confidence in [0,1].
	Confidence float64 `json:"confidence"`
	// Keywords lists the keywords that matched the detected type.
	Keywords []string `json:"keywords,omitempty"`
	// SuggestedAgent names the specialist conventionally responsible for
	// the detected type.
	SuggestedAgent string `json:"suggested_agent,omitempty"`
	// Subsystem is an auxiliary tag for observability only. It never
	// affects routing.
	Subsystem string `json:"subsystem,omitempty"`
}
