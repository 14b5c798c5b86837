package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"storecount/internal/infrastructure/storage/postgres"
)

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	// nil when running on in-memory storage
	pool    *postgres.Pool
	app     string
	version string
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(pool *postgres.Pool, app, version string) *HealthHandler {
	return &HealthHandler{pool: pool, app: app, version: version}
}

// Live handles liveness probe (is the process alive?).
// GET /health/live
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Ready handles readiness probe (is the service ready to accept traffic?).
// GET /health/ready
func (h *HealthHandler) Ready(c *gin.Context) {
	if h.pool == nil {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"checks": map[string]string{"storage": "memory"},
		})
		return
	}

	if err := h.pool.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "error",
			"checks": map[string]string{
				"database": "unhealthy: " + err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"checks": map[string]string{
			"database": "healthy",
		},
	})
}

// Info returns application information.
// GET /health/info
func (h *HealthHandler) Info(c *gin.Context) {
	body := gin.H{
		"app":     h.app,
		"version": h.version,
		"storage": "memory",
	}
	if h.pool != nil {
		body["storage"] = "postgres"
		body["database"] = h.pool.Stats()
	}
	c.JSON(http.StatusOK, body)
}
