// Package catalog provides the store product catalog consulted by counting:
// which products a store is expected to count and the metadata shown in reports.
package catalog

import (
	"context"

	"github.com/shopspring/decimal"

	"storecount/internal/core/id"
	"storecount/internal/domain"
)

// StoreProduct is a product stocked by one store.
type StoreProduct struct {
	ID       id.ID           `db:"id" json:"id"`
	StoreID  id.ID           `db:"store_id" json:"storeId"`
	SKU      string          `db:"sku" json:"sku"`
	Name     string          `db:"name" json:"name"`
	Category string          `db:"category" json:"category"`
	UnitCost decimal.Decimal `db:"unit_cost" json:"unitCost"`
	Active   bool            `db:"active" json:"active"`
}

// ListFilter narrows product listings.
type ListFilter struct {
	StoreID    id.ID
	Search     string // matched against sku and name
	Category   string
	ActiveOnly bool
	domain.Page
}

// Repository provides read access to store products.
type Repository interface {
	// ListActive returns all active products of the store, ordered by id.
	ListActive(ctx context.Context, storeID id.ID) ([]StoreProduct, error)

	// GetByIDs returns the store's products among ids, active or not.
	// Unknown ids and ids of other stores are skipped.
	GetByIDs(ctx context.Context, storeID id.ID, ids []id.ID) ([]StoreProduct, error)

	List(ctx context.Context, filter ListFilter) (domain.ListResult[StoreProduct], error)
}

// Index maps products by id.
func Index(products []StoreProduct) map[id.ID]StoreProduct {
	out := make(map[id.ID]StoreProduct, len(products))
	for _, p := range products {
		out[p.ID] = p
	}
	return out
}
