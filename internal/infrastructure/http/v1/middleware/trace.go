package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	appctx "storecount/internal/core/context"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderTraceID   = "X-Trace-ID"
)

var tracer = otel.Tracer("storecount/http")

// Trace opens a server span and tags the request with a request id and a
// trace id, taken from the caller's headers when present. Without an
// X-Trace-ID the span's trace id is used, or a fresh uuid when no tracer
// provider is installed.
func Trace() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx, span := tracer.Start(c.Request.Context(), c.Request.Method+" "+c.FullPath(),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request_id", requestID),
				attribute.String("http.method", c.Request.Method),
			))
		defer span.End()

		traceID := c.GetHeader(HeaderTraceID)
		if traceID == "" {
			if sc := span.SpanContext(); sc.HasTraceID() {
				traceID = sc.TraceID().String()
			} else {
				traceID = uuid.NewString()
			}
		}

		c.Request = c.Request.WithContext(appctx.WithRequestTrace(ctx, appctx.RequestTrace{
			TraceID:   traceID,
			RequestID: requestID,
		}))
		c.Set("request_id", requestID)
		c.Header(HeaderRequestID, requestID)
		c.Header(HeaderTraceID, traceID)

		c.Next()

		span.SetAttributes(attribute.Int("http.status_code", c.Writer.Status()))
	}
}
