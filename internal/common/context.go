package common

import (
	"context"
)

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyRequestID contextKey = "request_id"
	ContextKeyJobID     contextKey = "job_id"
	ContextKeyAttempt   contextKey = "attempt"
)

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// RequestIDFromContext extracts the request ID from context
func RequestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return requestID
	}
	return ""
}

// WithJobID adds the extraction job ID to the context
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, ContextKeyJobID, jobID)
}

// JobIDFromContext extracts the job ID from context
func JobIDFromContext(ctx context.Context) string {
	if jobID, ok := ctx.Value(ContextKeyJobID).(string); ok {
		return jobID
	}
	return ""
}

// WithAttempt records the 1-based attempt number of the running job.
func WithAttempt(ctx context.Context, attempt int) context.Context {
	return context.WithValue(ctx, ContextKeyAttempt, attempt)
}

// AttemptFromContext returns the attempt number, or 0 outside a job.
func AttemptFromContext(ctx context.Context) int {
	if n, ok := ctx.Value(ContextKeyAttempt).(int); ok {
		return n
	}
	return 0
}
