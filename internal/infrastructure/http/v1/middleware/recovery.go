package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"storecount/internal/core/apperror"
	"storecount/pkg/logger"
)

// Recovery turns a handler panic into an INTERNAL_ERROR response. The
// stack goes to the log only.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			logger.Error(c.Request.Context(), "handler panicked",
				"route", c.FullPath(),
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			_ = c.Error(apperror.NewInternal(fmt.Errorf("panic in %s %s: %v", c.Request.Method, c.FullPath(), rec)).
				WithDetail("request_id", c.GetString("request_id")))
			c.Abort()
		}()
		c.Next()
	}
}
