package v1

import (
	"github.com/gin-gonic/gin"

	"storecount/internal/core/security"
	"storecount/internal/infrastructure/http/v1/middleware"
)

// CountSessionRouteHandler defines the count session endpoints.
type CountSessionRouteHandler interface {
	Open(c *gin.Context)
	List(c *gin.Context)
	Get(c *gin.Context)
	RecordCount(c *gin.Context)
	Close(c *gin.Context)
	Report(c *gin.Context)
	ReportXLSX(c *gin.Context)
}

// LedgerRouteHandler defines the stock ledger endpoints.
type LedgerRouteHandler interface {
	Stock(c *gin.Context)
	Movements(c *gin.Context)
	AppendMovement(c *gin.Context)
}

// ProductRouteHandler defines the product catalog endpoints.
type ProductRouteHandler interface {
	List(c *gin.Context)
}

// RegisterCountSessionRoutes registers session routes. The counting service
// checks capabilities against the session's store, so no route middleware
// is needed here.
func RegisterCountSessionRoutes(rg *gin.RouterGroup, handler CountSessionRouteHandler) {
	stores := rg.Group("/stores/:" + middleware.StoreIDParam + "/count-sessions")
	stores.POST("", handler.Open)
	stores.GET("", handler.List)

	sessions := rg.Group("/count-sessions")
	sessions.GET("/:id", handler.Get)
	sessions.PUT("/:id/items/:productId", handler.RecordCount)
	sessions.POST("/:id/close", handler.Close)
	sessions.GET("/:id/report", handler.Report)
	sessions.GET("/:id/report.xlsx", handler.ReportXLSX)
}

// RegisterAuditRoutes registers the session audit trail. Access is checked
// by the handler against the session's store.
func RegisterAuditRoutes(rg *gin.RouterGroup, sessionHistory gin.HandlerFunc) {
	rg.GET("/count-sessions/:id/audit", sessionHistory)
}

// RegisterStoreRoutes registers store-addressed ledger and catalog routes,
// each guarded by a store capability.
func RegisterStoreRoutes(store *gin.RouterGroup, authz security.Authorizer, ledger LedgerRouteHandler, products ProductRouteHandler) {
	view := middleware.RequireStoreCapability(authz, security.CapViewInventory)
	manage := middleware.RequireStoreCapability(authz, security.CapManageInventory)

	store.GET("/stock", view, ledger.Stock)
	store.GET("/movements", view, ledger.Movements)
	store.POST("/movements", manage, ledger.AppendMovement)
	store.GET("/products", view, products.List)
}
