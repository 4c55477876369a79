package domain

import "time"

// ClassificationMethod indicates which path produced a classification result.
type ClassificationMethod string

const (
	MethodCache              ClassificationMethod = "cache"
	MethodEmbedding          ClassificationMethod = "embedding"
	MethodGenerativeFallback ClassificationMethod = "generative_fallback"
)

// Intent label names routed by the intake pipeline.
const (
	LabelCalendarCreate   = "calendar_create"
	LabelCalendarCancel   = "calendar_cancel"
	LabelCRMCreateContact = "crm_create_contact"
	LabelCRMLogNote       = "crm_log_note"
	LabelFAQ              = "faq"
	LabelGeneral          = "general"
)

// GeneralFallbackConfidence is assigned when the generative fallback cannot
// produce a parseable answer and the pipeline still needs a label.
const GeneralFallbackConfidence = 0.5

// Example is a labeled training text with its precomputed embedding.
// Examples are created by the admin bulk-load operation and never mutated.
type Example struct {
	Text      string    `json:"text"`
	Embedding []float32 `json:"-"`
	Weight    float64   `json:"weight"`
}

// Label is a named intent category with a confidence threshold and a set of
// weighted examples. Threshold must be in [0,1]; an active label has at
// least one example.
type Label struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Threshold   float64   `json:"threshold"`
	Examples    []Example `json:"examples,omitempty"`
	IsActive    bool      `json:"is_active"`
}

// Valid reports whether the label satisfies its invariants.
func (l *Label) Valid() bool {
	if l.Threshold < 0 || l.Threshold > 1 {
		return false
	}
	if l.IsActive && len(l.Examples) == 0 {
		return false
	}
	return true
}

// ClassificationResult is the single tagged result shape consumed by every
// call site. Immutable once produced.
type ClassificationResult struct {
	Label      string               `json:"label"`
	Confidence float64              `json:"confidence"`
	Method     ClassificationMethod `json:"method"`
	LatencyMs  int64                `json:"latency_ms"`
}

// IsCalendarIntent reports whether the result routes to the calendar handler.
func (r *ClassificationResult) IsCalendarIntent() bool {
	return r.Label == LabelCalendarCreate || r.Label == LabelCalendarCancel
}

// IsCRMIntent reports whether the result routes to the CRM action handler.
func (r *ClassificationResult) IsCRMIntent() bool {
	return r.Label == LabelCRMCreateContact || r.Label == LabelCRMLogNote
}

// GeneralResult builds the safe default result used when every classification
// path has failed.
func GeneralResult(latency time.Duration) *ClassificationResult {
	return &ClassificationResult{
		Label:      LabelGeneral,
		Confidence: GeneralFallbackConfidence,
		Method:     MethodGenerativeFallback,
		LatencyMs:  latency.Milliseconds(),
	}
}
