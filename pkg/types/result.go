package types

import "time"

// Priority controls the weighting used during provider selection.
type Priority string

const (
	PrioritySpeed   Priority = "speed"
	PriorityQuality Priority = "quality"
	PriorityCost    Priority = "cost"
)

// Variant names the three renderable forms of a prompt template.
type Variant string

const (
	VariantInitial  Variant = "initial"
	VariantFollowUp Variant = "followup"
	VariantRevision Variant = "revision"
)

// GenerateOptions are the recognized per-call overrides for Generate.
// Zero values defer to provider and service configuration.
type GenerateOptions struct {
	Priority   Priority      // provider scoring weight, defaults to quality
	MaxRetries int           // per-provider retry override, 0 means provider default
	Timeout    time.Duration // provider call timeout override
	Language   string        // BCP 47 tag for template language, defaults to en
	Variant    Variant       // template variant, defaults to initial
	Version    string        // template/schema version, empty means latest
}

// Usage holds token accounting for a single provider call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// RawResponse is the parsed-but-unvalidated output of a provider call.
type RawResponse struct {
	Content string `json:"content"`
	Model   string `json:"model"`
	Usage   Usage  `json:"usage"`
}

// ResultMetadata describes how a GenerationResult was produced.
type ResultMetadata struct {
	OperationID    string        `json:"operation_id"`
	Model          string        `json:"model"`
	Timestamp      time.Time     `json:"timestamp"`
	ProcessingTime time.Duration `json:"processing_time"`
	TokenCount     int           `json:"token_count"`
	Attempts       int           `json:"attempts"`
	Simulated      bool          `json:"simulated,omitempty"`
}

// GenerationResult is the value returned to callers of Generate. It is
// ephemeral; persistence is the graph-write collaborator's concern.
type GenerationResult struct {
	EntityType EntityType        `json:"entity_type"`
	Content    map[string]any    `json:"content"`
	Provider   string            `json:"provider"`
	Confidence float64           `json:"confidence"`
	Validation *ValidationResult `json:"validation,omitempty"`
	Metadata   ResultMetadata    `json:"metadata"`
}

// Severity weights for structural validation errors. The confidence
// penalty is the sum of severities divided by ten.
const (
	SeverityMinor    = 1.0
	SeverityMajor    = 2.0
	SeverityCritical = 4.0
)

// ValidationError is a single structural or semantic failure.
type ValidationError struct {
	Field    string  `json:"field"`
	Message  string  `json:"message"`
	Severity float64 `json:"severity"`
}

// ValidationMetrics is the completeness/quality/confidence triple.
// Confidence is a heuristic penalty score, not a calibrated probability.
type ValidationMetrics struct {
	Completeness float64 `json:"completeness"`
	Quality      float64 `json:"quality"`
	Confidence   float64 `json:"confidence"`
}

// ValidationResult is produced fresh per validation call.
type ValidationResult struct {
	IsValid     bool              `json:"is_valid"`
	Errors      []ValidationError `json:"errors,omitempty"`
	Warnings    []string          `json:"warnings,omitempty"`
	Suggestions []string          `json:"suggestions,omitempty"`
	Metrics     ValidationMetrics `json:"metrics"`
}
