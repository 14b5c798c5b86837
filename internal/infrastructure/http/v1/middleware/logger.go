package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"storecount/pkg/logger"
)

// Logger middleware logs HTTP requests with timing and status.
func Logger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		// Request-scoped logger for handlers and services below.
		ctx := logger.WithLogger(c.Request.Context(), log)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		entry := log.WithContext(c.Request.Context())
		kv := []any{
			"method", c.Request.Method,
			"path", path,
			"route", c.FullPath(),
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if status >= 500 {
			entry.Errorw("http request", append(kv, "error", c.Errors.String())...)
			return
		}
		entry.Infow("http request", kv...)
	}
}
