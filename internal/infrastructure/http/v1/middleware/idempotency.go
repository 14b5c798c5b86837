package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"storecount/internal/core/apperror"
	appctx "storecount/internal/core/context"
	"storecount/internal/infrastructure/storage/postgres"
	"storecount/pkg/logger"
)

const HeaderIdempotencyKey = "X-Idempotency-Key"
const maxIdempotencyBodyBytes = 1 << 20 // 1 MiB

const (
	ctxIdempotencyKey   = "idempotency_key"
	ctxIdempotencyStore = "idempotency_store"
)

// IdempotencyStore records request outcomes by key. Implemented by
// postgres.IdempotencyStore.
type IdempotencyStore interface {
	AcquireKey(ctx context.Context, key, userID, operation, requestHash string) (*postgres.IdempotencyReplay, error)
	CompleteKey(ctx context.Context, key string, statusCode int, contentType string, response any) error
	FailKey(ctx context.Context, key string, statusCode int, contentType string, response any) error
	ReleaseKey(ctx context.Context, key string) error
}

// Idempotency middleware replays the stored response of a POST/PUT/PATCH
// repeated with the same X-Idempotency-Key. Must run after Auth.
func Idempotency(store IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost &&
			c.Request.Method != http.MethodPut &&
			c.Request.Method != http.MethodPatch {
			c.Next()
			return
		}

		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}

		limited := io.LimitReader(c.Request.Body, maxIdempotencyBodyBytes+1)
		body, _ := io.ReadAll(limited)
		if len(body) > maxIdempotencyBodyBytes {
			appErr := apperror.NewValidation("request body too large for idempotency")
			appErr.HTTPStatus = http.StatusRequestEntityTooLarge
			_ = c.Error(appErr.WithDetail("max_bytes", maxIdempotencyBodyBytes))
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		hash := sha256.Sum256(body)
		requestHash := hex.EncodeToString(hash[:])

		// Operation includes concrete path params: the same key on another
		// session is a different request.
		operation := c.Request.Method + " " + c.Request.URL.Path

		userID := appctx.CallerID(c.Request.Context())
		replay, err := store.AcquireKey(c.Request.Context(), key, userID, operation, requestHash)
		if err != nil {
			if appErr, ok := apperror.AsAppError(err); ok {
				_ = c.Error(appErr)
			} else {
				_ = c.Error(apperror.NewInternal(err).WithDetail("component", "idempotency"))
			}
			c.Abort()
			return
		}

		if replay != nil {
			logger.Debug(c.Request.Context(), "idempotent replay", "key", key, "status", replay.StatusCode)
			c.Data(replay.StatusCode, replay.ContentType, replay.Body)
			c.Abort()
			return
		}

		c.Set(ctxIdempotencyKey, key)
		c.Set(ctxIdempotencyStore, store)

		c.Next()
	}
}

// CompleteIdempotency stores a successful response for replay under the
// request's idempotency key, if any.
func CompleteIdempotency(c *gin.Context, statusCode int, contentType string, response any) {
	key, store, ok := idempotencyFrom(c)
	if !ok {
		return
	}
	if err := store.CompleteKey(c.Request.Context(), key, statusCode, contentType, response); err != nil {
		logger.Warn(c.Request.Context(), "failed to record idempotent response", "key", key, "error", err)
	}
}

func idempotencyFrom(c *gin.Context) (string, IdempotencyStore, bool) {
	key := c.GetString(ctxIdempotencyKey)
	v, exists := c.Get(ctxIdempotencyStore)
	if key == "" || !exists {
		return "", nil, false
	}
	store, ok := v.(IdempotencyStore)
	return key, store, ok
}
