package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"storecount/internal/core/id"
	"storecount/internal/domain"
	"storecount/internal/domain/catalog"
)

var _ catalog.Repository = (*ProductRepo)(nil)

// ProductRepo holds store products.
type ProductRepo struct {
	mu       sync.RWMutex
	products map[id.ID]catalog.StoreProduct
}

// NewProductRepo creates an empty product repository.
func NewProductRepo() *ProductRepo {
	return &ProductRepo{products: make(map[id.ID]catalog.StoreProduct)}
}

// Put inserts or replaces products.
func (r *ProductRepo) Put(products ...catalog.StoreProduct) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range products {
		r.products[p.ID] = p
	}
}

func (r *ProductRepo) ListActive(_ context.Context, storeID id.ID) ([]catalog.StoreProduct, error) {
	return r.collect(func(p catalog.StoreProduct) bool {
		return p.StoreID == storeID && p.Active
	}), nil
}

func (r *ProductRepo) GetByIDs(_ context.Context, storeID id.ID, ids []id.ID) ([]catalog.StoreProduct, error) {
	want := make(map[id.ID]struct{}, len(ids))
	for _, pid := range ids {
		want[pid] = struct{}{}
	}
	return r.collect(func(p catalog.StoreProduct) bool {
		_, ok := want[p.ID]
		return ok && p.StoreID == storeID
	}), nil
}

func (r *ProductRepo) List(_ context.Context, filter catalog.ListFilter) (domain.ListResult[catalog.StoreProduct], error) {
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	all := r.collect(func(p catalog.StoreProduct) bool {
		if p.StoreID != filter.StoreID {
			return false
		}
		if filter.ActiveOnly && !p.Active {
			return false
		}
		if filter.Category != "" && p.Category != filter.Category {
			return false
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(p.Name), search) &&
			!strings.Contains(strings.ToLower(p.SKU), search) {
			return false
		}
		return true
	})
	sort.SliceStable(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return domain.Slice(all, filter.Page), nil
}

// collect returns matching products ordered by id.
func (r *ProductRepo) collect(match func(catalog.StoreProduct) bool) []catalog.StoreProduct {
	r.mu.RLock()
	out := make([]catalog.StoreProduct, 0)
	for _, p := range r.products {
		if match(p) {
			out = append(out, p)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}
