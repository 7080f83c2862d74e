// Package fcontext carries request-scoped values through the admin API.
package fcontext

import (
	"context"
)

type requestID struct{}

// WithRequestID attaches the admin request id to ctx.
func WithRequestID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, requestID{}, rid)
}

// RequestID returns the request id, or "" outside of a request. Error
// envelopes and notifier calls tolerate the empty value.
func RequestID(ctx context.Context) string {
	rid, _ := ctx.Value(requestID{}).(string)
	return rid
}
