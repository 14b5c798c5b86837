package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"storecount/internal/core/apperror"
	"storecount/pkg/logger"
)

// ErrorHandler middleware transforms errors into consistent JSON responses.
// Hides internal errors from clients while logging full details.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		// If response already written by handler, do not override it.
		if c.Writer.Written() {
			return
		}

		if appErr, ok := apperror.AsAppError(err); ok {
			if appErr.Err != nil {
				logger.Error(c.Request.Context(), "request error",
					"code", appErr.Code,
					"cause", appErr.Err,
				)
			}

			body := gin.H{
				"code":    appErr.Code,
				"message": appErr.Message,
				"details": appErr.Details,
			}
			finishIdempotency(c, appErr, appErr.HTTPStatus, body)
			c.JSON(appErr.HTTPStatus, body)
			return
		}

		logger.Error(c.Request.Context(), "unhandled error",
			"error", err,
		)

		body := gin.H{
			"code":    apperror.CodeInternal,
			"message": "Internal server error",
			"details": map[string]any{
				"request_id": c.GetString("request_id"),
			},
		}
		finishIdempotency(c, err, http.StatusInternalServerError, body)
		c.JSON(http.StatusInternalServerError, body)
	}
}

// finishIdempotency settles the request's idempotency key (best-effort).
// Retryable failures release the key so a retry with it runs again; any
// other error response is stored for replay.
func finishIdempotency(c *gin.Context, err error, status int, body any) {
	key, store, ok := idempotencyFrom(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if apperror.IsRetryable(err) {
		if err := store.ReleaseKey(ctx, key); err != nil {
			logger.Warn(ctx, "failed to release idempotency key", "key", key, "error", err)
		}
		return
	}
	if err := store.FailKey(ctx, key, status, "application/json", body); err != nil {
		logger.Warn(ctx, "failed to record idempotent error response", "key", key, "error", err)
	}
}
