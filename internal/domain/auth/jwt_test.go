package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTService_RoundTrip(t *testing.T) {
	svc := NewJWTService(DefaultJWTConfig("secret"))

	token, expiresAt, err := svc.GenerateAccessToken(TokenSubject{
		UserID: "clerk-1",
		Stores: map[string][]string{"store-a": {"MANAGE_INVENTORY"}},
	})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), expiresAt, time.Minute)

	user, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "clerk-1", user.UserID)
	assert.Equal(t, []string{"MANAGE_INVENTORY"}, user.StoreCapabilities["store-a"])
	assert.False(t, user.IsAdmin)
}

func TestJWTService_Rejects(t *testing.T) {
	svc := NewJWTService(DefaultJWTConfig("secret"))
	token, _, err := svc.GenerateAccessToken(TokenSubject{UserID: "u"})
	require.NoError(t, err)

	t.Run("wrong secret", func(t *testing.T) {
		_, err := NewJWTService(DefaultJWTConfig("other")).ValidateToken(token)
		assert.Error(t, err)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		cfg := DefaultJWTConfig("secret")
		cfg.Issuer = "someone-else"
		_, err := NewJWTService(cfg).ValidateToken(token)
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		late := NewJWTService(DefaultJWTConfig("secret"))
		late.now = func() time.Time { return time.Now().Add(time.Hour) }
		_, err := late.ValidateToken(token)
		assert.Error(t, err)
	})

	t.Run("missing user id", func(t *testing.T) {
		_, _, err := svc.GenerateAccessToken(TokenSubject{})
		assert.Error(t, err)
	})
}
