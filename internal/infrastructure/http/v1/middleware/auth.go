package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"storecount/internal/core/apperror"
	appctx "storecount/internal/core/context"
)

// JWTValidator resolves a bearer token to its caller.
type JWTValidator interface {
	ValidateToken(tokenString string) (*appctx.Caller, error)
}

// Auth rejects requests without a valid bearer token and stores the caller
// in the request context for the capability checks downstream.
func Auth(validator JWTValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c.GetHeader("Authorization"))
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}

		caller, verr := validator.ValidateToken(token)
		if verr != nil {
			_ = c.Error(apperror.NewUnauthorized("invalid token").WithCause(verr))
			c.Abort()
			return
		}

		c.Request = c.Request.WithContext(appctx.WithCaller(c.Request.Context(), caller))
		c.Next()
	}
}

func bearerToken(header string) (string, *apperror.AppError) {
	if header == "" {
		return "", apperror.NewUnauthorized("missing authorization header")
	}
	scheme, token, ok := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
		return "", apperror.NewUnauthorized("invalid authorization header format")
	}
	return token, nil
}
