// Package middleware provides HTTP middleware for the API.
package middleware

import (
	"github.com/gin-gonic/gin"

	"storecount/internal/core/apperror"
	"storecount/internal/core/id"
	"storecount/internal/core/security"
)

// StoreIDParam is the route parameter holding the store id.
const StoreIDParam = "storeId"

// RequireStoreCapability rejects the request unless the caller holds
// capability on the store named by the :storeId route parameter.
// Routes addressed by session id are checked by the counting service instead.
func RequireStoreCapability(authz security.Authorizer, capability security.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := security.ActorFromContext(c.Request.Context())
		if !ok {
			_ = c.Error(apperror.NewUnauthorized("authentication required"))
			c.Abort()
			return
		}

		storeID, err := id.Parse(c.Param(StoreIDParam))
		if err != nil {
			_ = c.Error(apperror.NewValidation("invalid store id").WithDetail("store_id", c.Param(StoreIDParam)))
			c.Abort()
			return
		}

		allowed, err := authz.HasCapability(c.Request.Context(), actor, storeID, capability)
		if err != nil {
			_ = c.Error(apperror.NewInternal(err).WithDetail("component", "authorizer"))
			c.Abort()
			return
		}
		if !allowed {
			_ = c.Error(apperror.NewPermissionDenied(string(capability), storeID.String()))
			c.Abort()
			return
		}

		c.Next()
	}
}
