// Package security provides capability checks for store-scoped operations.
package security

import (
	"context"

	appctx "storecount/internal/core/context"
	"storecount/internal/core/id"
)

// Capability is a store-scoped right.
type Capability string

const (
	// CapManageInventory allows counting, closing and posting movements for a store.
	CapManageInventory Capability = "MANAGE_INVENTORY"
	// CapViewInventory allows reading stock and reports.
	CapViewInventory Capability = "VIEW_INVENTORY"
)

// Actor is the caller on whose behalf an operation runs.
type Actor struct {
	UserID string
	// IsAdmin bypasses per-store grants
	IsAdmin bool
	// Grants lists capabilities per store id
	Grants map[id.ID][]Capability
}

// ActorFromUser converts a token-derived user context into an Actor.
// Grants keyed by a malformed store id are ignored.
func ActorFromUser(user *appctx.Caller) Actor {
	if user == nil {
		return Actor{}
	}
	actor := Actor{
		UserID:  user.UserID,
		IsAdmin: user.IsAdmin,
		Grants:  make(map[id.ID][]Capability, len(user.StoreCapabilities)),
	}
	for store, caps := range user.StoreCapabilities {
		storeID, err := id.Parse(store)
		if err != nil {
			continue
		}
		for _, c := range caps {
			actor.Grants[storeID] = append(actor.Grants[storeID], Capability(c))
		}
	}
	return actor
}

// ActorFromContext returns the Actor of the authenticated request, if any.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	user := appctx.CallerFrom(ctx)
	if user == nil {
		return Actor{}, false
	}
	return ActorFromUser(user), true
}

// Has reports whether the actor holds capability on the store.
// MANAGE_INVENTORY implies VIEW_INVENTORY.
func (a Actor) Has(storeID id.ID, capability Capability) bool {
	if a.IsAdmin {
		return true
	}
	for _, c := range a.Grants[storeID] {
		if c == capability || (c == CapManageInventory && capability == CapViewInventory) {
			return true
		}
	}
	return false
}

// Authorizer answers capability questions for the domain layer.
type Authorizer interface {
	HasCapability(ctx context.Context, actor Actor, storeID id.ID, capability Capability) (bool, error)
}

// ClaimsAuthorizer trusts the grants carried in the actor's token.
type ClaimsAuthorizer struct{}

// NewClaimsAuthorizer creates an authorizer backed by token claims.
func NewClaimsAuthorizer() *ClaimsAuthorizer {
	return &ClaimsAuthorizer{}
}

// HasCapability implements Authorizer.
func (ClaimsAuthorizer) HasCapability(_ context.Context, actor Actor, storeID id.ID, capability Capability) (bool, error) {
	return actor.Has(storeID, capability), nil
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, actor Actor, storeID id.ID, capability Capability) (bool, error)

// HasCapability implements Authorizer.
func (f AuthorizerFunc) HasCapability(ctx context.Context, actor Actor, storeID id.ID, capability Capability) (bool, error) {
	return f(ctx, actor, storeID, capability)
}
