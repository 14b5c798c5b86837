package handlers

import (
	"github.com/gin-gonic/gin"

	"storecount/internal/core/apperror"
	"storecount/internal/core/id"
	"storecount/internal/domain/catalog"
	"storecount/internal/domain/ledger"
	"storecount/internal/infrastructure/http/v1/dto"
	"storecount/internal/infrastructure/http/v1/middleware"
)

// LedgerHandler exposes theoretical stock and movement posting.
// Routes are guarded by middleware.RequireStoreCapability.
type LedgerHandler struct {
	*BaseHandler
	ledger   *ledger.Service
	products catalog.Repository
}

// NewLedgerHandler creates a new ledger handler.
func NewLedgerHandler(base *BaseHandler, ledgerService *ledger.Service, products catalog.Repository) *LedgerHandler {
	return &LedgerHandler{BaseHandler: base, ledger: ledgerService, products: products}
}

// Stock handles GET /stores/:storeId/stock
func (h *LedgerHandler) Stock(c *gin.Context) {
	storeID, ok := h.PathID(c, middleware.StoreIDParam)
	if !ok {
		return
	}

	var q dto.StockQuery
	if !h.BindQuery(c, &q) {
		return
	}
	productIDs, err := dto.ParseIDs("productId", q.ProductIDs)
	if err != nil {
		h.Error(c, err)
		return
	}

	levels, err := h.ledger.TheoreticalStock(c.Request.Context(), storeID, productIDs...)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.StockResponse{StoreID: storeID, Levels: levels})
}

// AppendMovement handles POST /stores/:storeId/movements
func (h *LedgerHandler) AppendMovement(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	storeID, ok := h.PathID(c, middleware.StoreIDParam)
	if !ok {
		return
	}

	var req dto.AppendMovementRequest
	if !h.BindJSON(c, &req) {
		return
	}
	in := req.ToInput(storeID, actor.UserID)

	if err := h.ensureStoreProduct(c, storeID, in.StoreProductID); err != nil {
		h.Error(c, err)
		return
	}

	result, err := h.ledger.AppendMovement(c.Request.Context(), in)
	if err != nil {
		h.Error(c, err)
		return
	}
	if result.Replayed {
		h.OK(c, result)
		return
	}
	h.Created(c, result)
}

// Movements handles GET /stores/:storeId/movements
func (h *LedgerHandler) Movements(c *gin.Context) {
	storeID, ok := h.PathID(c, middleware.StoreIDParam)
	if !ok {
		return
	}

	var q dto.MovementsQuery
	if !h.BindQuery(c, &q) {
		return
	}

	movements, err := h.ledger.Movements(c.Request.Context(), q.ToFilter(storeID))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{"items": movements})
}

func (h *LedgerHandler) ensureStoreProduct(c *gin.Context, storeID, productID id.ID) error {
	found, err := h.products.GetByIDs(c.Request.Context(), storeID, []id.ID{productID})
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return apperror.NewNotFound("store product", productID.String())
	}
	return nil
}
