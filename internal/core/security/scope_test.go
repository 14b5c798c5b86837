package security

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "storecount/internal/core/context"
	"storecount/internal/core/id"
)

func TestActorFromUser_ParsesGrants(t *testing.T) {
	store := id.New()
	actor := ActorFromUser(&appctx.Caller{
		UserID: "u1",
		StoreCapabilities: map[string][]string{
			store.String(): {"MANAGE_INVENTORY"},
			"not-a-uuid":   {"MANAGE_INVENTORY"},
		},
	})

	assert.Equal(t, "u1", actor.UserID)
	assert.Len(t, actor.Grants, 1)
	assert.True(t, actor.Has(store, CapManageInventory))
	assert.True(t, actor.Has(store, CapViewInventory))
	assert.False(t, actor.Has(id.New(), CapManageInventory))
}

func TestActor_ViewDoesNotImplyManage(t *testing.T) {
	store := id.New()
	actor := Actor{Grants: map[id.ID][]Capability{store: {CapViewInventory}}}

	assert.True(t, actor.Has(store, CapViewInventory))
	assert.False(t, actor.Has(store, CapManageInventory))
}

func TestClaimsAuthorizer_Admin(t *testing.T) {
	ok, err := NewClaimsAuthorizer().HasCapability(context.Background(), Actor{IsAdmin: true}, id.New(), CapManageInventory)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestActorFromContext(t *testing.T) {
	_, ok := ActorFromContext(context.Background())
	assert.False(t, ok)

	ctx := appctx.WithCaller(context.Background(), &appctx.Caller{UserID: "u2"})
	actor, ok := ActorFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "u2", actor.UserID)
}
