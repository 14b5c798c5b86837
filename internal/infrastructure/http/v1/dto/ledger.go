package dto

import (
	"strings"

	"storecount/internal/core/id"
	"storecount/internal/domain/ledger"
)

// AppendMovementRequest appends a movement to a store's ledger.
type AppendMovementRequest struct {
	StoreProductID string `json:"storeProductId" binding:"required,uuid"`
	Type           string `json:"type" binding:"required"`
	Quantity       int64  `json:"quantity"`
	Description    string `json:"description" binding:"max=500"`
	IdempotencyKey string `json:"idempotencyKey" binding:"max=200"`
}

// ToInput converts the request. StoreProductID must already be validated.
func (r AppendMovementRequest) ToInput(storeID id.ID, actor string) ledger.AppendInput {
	return ledger.AppendInput{
		StoreID:        storeID,
		StoreProductID: id.MustParse(r.StoreProductID),
		Type:           ledger.MovementType(strings.ToUpper(r.Type)),
		Quantity:       r.Quantity,
		Description:    r.Description,
		Actor:          actor,
		IdempotencyKey: r.IdempotencyKey,
	}
}

// StockQuery selects products for the stock report; empty means every
// product with movements.
type StockQuery struct {
	ProductIDs []string `form:"productId"`
}

// StockResponse lists theoretical stock per product.
type StockResponse struct {
	StoreID id.ID               `json:"storeId"`
	Levels  []ledger.StockLevel `json:"levels"`
}

// MovementsQuery filters movement history.
type MovementsQuery struct {
	ProductID string `form:"productId" binding:"omitempty,uuid"`
	Type      string `form:"type"`
	Limit     int    `form:"limit" binding:"omitempty,min=1,max=1000"`
}

// ToFilter converts the query. ProductID must already be validated.
func (q MovementsQuery) ToFilter(storeID id.ID) ledger.MovementFilter {
	f := ledger.MovementFilter{
		StoreID: storeID,
		Type:    ledger.MovementType(strings.ToUpper(q.Type)),
		Limit:   q.Limit,
	}
	if q.ProductID != "" {
		pid := id.MustParse(q.ProductID)
		f.StoreProductID = &pid
	}
	return f
}
