package model

import "context"

// RequestContext carries per-request correlation data for the HTTP surface.
// It is immutable after construction and safe for concurrent reads.
type RequestContext struct {
	SessionID     string
	CorrelationID string
	TraceID       string
	SpanID        string
	RemoteAddr    string
	UserAgent     string
}

type contextKey struct{}

// WithRequestContext attaches a RequestContext to the given context.
func WithRequestContext(ctx context.Context, rctx *RequestContext) context.Context {
	return context.WithValue(ctx, contextKey{}, rctx)
}

// RequestContextFrom extracts the RequestContext from the context, or returns nil
// if not present.
func RequestContextFrom(ctx context.Context) *RequestContext {
	rctx, _ := ctx.Value(contextKey{}).(*RequestContext)
	return rctx
}
