package handlers

import (
	"github.com/gin-gonic/gin"

	"storecount/internal/domain/catalog"
	"storecount/internal/infrastructure/http/v1/dto"
	"storecount/internal/infrastructure/http/v1/middleware"
)

// ProductHandler serves the read-only store product catalog.
type ProductHandler struct {
	*BaseHandler
	products catalog.Repository
}

// NewProductHandler creates a new product handler.
func NewProductHandler(base *BaseHandler, products catalog.Repository) *ProductHandler {
	return &ProductHandler{BaseHandler: base, products: products}
}

// List handles GET /stores/:storeId/products
func (h *ProductHandler) List(c *gin.Context) {
	storeID, ok := h.PathID(c, middleware.StoreIDParam)
	if !ok {
		return
	}

	var q dto.ListProductsQuery
	if !h.BindQuery(c, &q) {
		return
	}

	result, err := h.products.List(c.Request.Context(), q.ToFilter(storeID))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, result)
}
