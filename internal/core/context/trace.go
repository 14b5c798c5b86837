package context

import (
	"context"
)

// RequestTrace correlates log lines of one HTTP request.
type RequestTrace struct {
	TraceID   string
	RequestID string
}

type requestTraceKey struct{}

func WithRequestTrace(ctx context.Context, rt RequestTrace) context.Context {
	return context.WithValue(ctx, requestTraceKey{}, rt)
}

// RequestTraceFrom reports false outside an HTTP request.
func RequestTraceFrom(ctx context.Context) (RequestTrace, bool) {
	rt, ok := ctx.Value(requestTraceKey{}).(RequestTrace)
	return rt, ok
}
