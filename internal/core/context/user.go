// Package context carries the authenticated caller and request trace ids
// through a request's context.Context.
package context

import (
	"context"
)

// Caller is the principal a bearer token was issued to.
type Caller struct {
	UserID string
	// StoreCapabilities maps a store id to the capabilities granted there.
	StoreCapabilities map[string][]string
	IsAdmin           bool
}

type callerKey struct{}

func WithCaller(ctx context.Context, caller *Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFrom returns the request's caller, nil for unauthenticated requests.
func CallerFrom(ctx context.Context) *Caller {
	caller, _ := ctx.Value(callerKey{}).(*Caller)
	return caller
}

// CallerID is the caller's user id, "" when there is none. Audit rows and
// count records are attributed to it.
func CallerID(ctx context.Context) string {
	if caller := CallerFrom(ctx); caller != nil {
		return caller.UserID
	}
	return ""
}
