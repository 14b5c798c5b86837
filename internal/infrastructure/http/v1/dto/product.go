package dto

import (
	"storecount/internal/core/id"
	"storecount/internal/domain/catalog"
)

// ListProductsQuery filters the product catalog.
type ListProductsQuery struct {
	Search     string `form:"search"`
	Category   string `form:"category"`
	ActiveOnly bool   `form:"activeOnly"`
	PageQuery
}

// ToFilter converts the query for a store.
func (q ListProductsQuery) ToFilter(storeID id.ID) catalog.ListFilter {
	return catalog.ListFilter{
		StoreID:    storeID,
		Search:     q.Search,
		Category:   q.Category,
		ActiveOnly: q.ActiveOnly,
		Page:       q.PageQuery.Page(),
	}
}
