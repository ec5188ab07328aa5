package logger

import "context"

// Field keys used across the engine. Keeping them here avoids drift between
// the cache, preload and sync packages when they log the same entities.
const (
	KeyTraceID    = "trace_id"
	KeyComponent  = "component"
	KeySetlistID  = "setlist_id"
	KeyContentID  = "content_id"
	KeyMutationID = "mutation_id"
	KeyEntityID   = "entity_id"
)

// LogContext carries correlation fields through a context.
type LogContext struct {
	TraceID    string
	Component  string
	SetlistID  string
	ContentID  string
	MutationID string
}

type contextKey struct{}

// NewContext returns a context carrying the given log fields.
func NewContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, contextKey{}, lc)
}

// FromContext extracts log fields from a context, or nil.
func FromContext(ctx context.Context) *LogContext {
	lc, _ := ctx.Value(contextKey{}).(*LogContext)
	return lc
}

// appendContextFields prepends the context's correlation fields to args so
// they appear first in output.
func appendContextFields(ctx context.Context, args []any) []any {
	lc := FromContext(ctx)
	if lc == nil {
		return args
	}

	ctxArgs := make([]any, 0, 10+len(args))
	if lc.TraceID != "" {
		ctxArgs = append(ctxArgs, KeyTraceID, lc.TraceID)
	}
	if lc.Component != "" {
		ctxArgs = append(ctxArgs, KeyComponent, lc.Component)
	}
	if lc.SetlistID != "" {
		ctxArgs = append(ctxArgs, KeySetlistID, lc.SetlistID)
	}
	if lc.ContentID != "" {
		ctxArgs = append(ctxArgs, KeyContentID, lc.ContentID)
	}
	if lc.MutationID != "" {
		ctxArgs = append(ctxArgs, KeyMutationID, lc.MutationID)
	}
	return append(ctxArgs, args...)
}
