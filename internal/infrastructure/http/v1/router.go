// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"storecount/internal/core/security"
	"storecount/internal/domain/catalog"
	"storecount/internal/domain/counting"
	"storecount/internal/domain/ledger"
	"storecount/internal/infrastructure/http/v1/handlers"
	"storecount/internal/infrastructure/http/v1/middleware"
	"storecount/internal/infrastructure/storage/postgres"
	"storecount/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	// Logger for request logging
	Logger *logger.Logger

	// JWTValidator for token validation
	JWTValidator middleware.JWTValidator

	// Authorizer answers store capability checks on store-addressed routes
	Authorizer security.Authorizer

	Counting *counting.Service
	Ledger   *ledger.Service
	Products catalog.Repository

	// Pool is used by readiness checks; nil on in-memory storage
	Pool *postgres.Pool

	// Idempotency enables X-Idempotency-Key handling when set
	Idempotency middleware.IdempotencyStore

	// Audit serves GET /count-sessions/:id/audit when set
	Audit handlers.AuditHistory

	AppName string
	Version string
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()

	// Global middleware (order matters!). ErrorHandler wraps Recovery so a
	// recovered panic is still rendered, and Logger sees the final status.
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.Recovery())

	healthHandler := handlers.NewHealthHandler(cfg.Pool, cfg.AppName, cfg.Version)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Auth(cfg.JWTValidator))
	if cfg.Idempotency != nil {
		v1.Use(middleware.Idempotency(cfg.Idempotency))
	}

	base := handlers.NewBaseHandler()
	RegisterCountSessionRoutes(v1, handlers.NewCountSessionHandler(base, cfg.Counting))
	RegisterStoreRoutes(v1.Group("/stores/:"+middleware.StoreIDParam), cfg.Authorizer,
		handlers.NewLedgerHandler(base, cfg.Ledger, cfg.Products),
		handlers.NewProductHandler(base, cfg.Products),
	)
	if cfg.Audit != nil {
		RegisterAuditRoutes(v1, handlers.NewAuditHandler(base, cfg.Counting, cfg.Audit).SessionHistory)
	}

	return router
}
