package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs
// within a context. Fields flow through context enrichment, so a
// collector/pipeline/orchestrator call site sets them once and every
// log statement downstream picks them up without threading them
// through every function signature.
type LogFields struct {
	RunID          *string // pipeline run identifier
	Provider       *string // collector adapter provider name
	Operation      *string // collector.Capability being exercised
	CandidateCount *int    // size of the candidate list at this point
	Component      string  // component name (e.g. "orchestrator", "collector.reddit")
}

// WithLogFields enriches context with structured log fields. Multiple
// calls merge fields, with newer non-nil/non-empty values taking
// precedence. Context timeouts and cancellation are preserved.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context, returning an empty
// LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, new LogFields) LogFields {
	result := existing

	if new.RunID != nil {
		result.RunID = new.RunID
	}
	if new.Provider != nil {
		result.Provider = new.Provider
	}
	if new.Operation != nil {
		result.Operation = new.Operation
	}
	if new.CandidateCount != nil {
		result.CandidateCount = new.CandidateCount
	}
	if new.Component != "" {
		result.Component = new.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value, for inline
// LogFields construction: logger.WithLogFields(ctx, logger.LogFields{RunID: logger.Ptr(id)}).
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to maxLen characters, appending "..." if
// truncated. Useful for logging potentially long strings like terms or
// error messages.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
