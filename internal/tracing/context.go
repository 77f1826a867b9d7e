package tracing

import (
	"context"

	"github.com/google/uuid"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// RunIDKey is the context key for run ID
	RunIDKey ContextKey = "run_id"
	// TargetKey is the context key for the target directory of a run
	TargetKey ContextKey = "target"
)

// NewRunID generates a new run ID
func NewRunID() string {
	return uuid.New().String()
}

// WithRunID adds a run ID to the context
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

// WithTarget adds the target directory to the context
func WithTarget(ctx context.Context, target string) context.Context {
	return context.WithValue(ctx, TargetKey, target)
}

// GetRunID retrieves the run ID from the context
func GetRunID(ctx context.Context) string {
	if runID, ok := ctx.Value(RunIDKey).(string); ok {
		return runID
	}
	return ""
}

// GetTarget retrieves the target directory from the context
func GetTarget(ctx context.Context) string {
	if target, ok := ctx.Value(TargetKey).(string); ok {
		return target
	}
	return ""
}

// NewRunContext tags ctx with the target and a run ID, keeping an existing run ID
func NewRunContext(ctx context.Context, target string) context.Context {
	if GetRunID(ctx) == "" {
		ctx = WithRunID(ctx, NewRunID())
	}
	if target != "" {
		ctx = WithTarget(ctx, target)
	}
	return ctx
}
