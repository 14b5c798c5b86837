// Package catalog_repo provides the PostgreSQL store product catalog.
package catalog_repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"storecount/internal/core/id"
	"storecount/internal/domain"
	"storecount/internal/domain/catalog"
	"storecount/internal/infrastructure/storage/postgres"
)

const productsTable = "store_products"

var _ catalog.Repository = (*ProductRepo)(nil)

// ProductRepo implements catalog.Repository.
type ProductRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
	cols    []string
}

// NewProductRepo creates a new product repository.
func NewProductRepo(txm *postgres.TxManager) *ProductRepo {
	return &ProductRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		cols:    postgres.Columns[catalog.StoreProduct](),
	}
}

func (r *ProductRepo) ListActive(ctx context.Context, storeID id.ID) ([]catalog.StoreProduct, error) {
	return r.selectAll(ctx, r.builder.Select(r.cols...).
		From(productsTable).
		Where(squirrel.Eq{"store_id": storeID, "active": true}).
		OrderBy("id"))
}

func (r *ProductRepo) GetByIDs(ctx context.Context, storeID id.ID, ids []id.ID) ([]catalog.StoreProduct, error) {
	if len(ids) == 0 {
		return []catalog.StoreProduct{}, nil
	}
	return r.selectAll(ctx, r.builder.Select(r.cols...).
		From(productsTable).
		Where(squirrel.Eq{"store_id": storeID}).
		Where(squirrel.Eq{"id": ids}).
		OrderBy("id"))
}

func (r *ProductRepo) List(ctx context.Context, filter catalog.ListFilter) (domain.ListResult[catalog.StoreProduct], error) {
	filter.Page = filter.Page.Normalize()
	result := domain.ListResult[catalog.StoreProduct]{
		Items:  []catalog.StoreProduct{},
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}
	where := listWhere(filter)

	sql, args, err := r.builder.Select("COUNT(*)").From(productsTable).Where(where).ToSql()
	if err != nil {
		return result, fmt.Errorf("build count: %w", err)
	}
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&result.TotalCount); err != nil {
		return result, fmt.Errorf("count products: %w", err)
	}

	items, err := r.selectAll(ctx, r.builder.Select(r.cols...).
		From(productsTable).
		Where(where).
		OrderBy("name", "id").
		Limit(uint64(filter.Limit)).
		Offset(uint64(filter.Offset)))
	if err != nil {
		return result, err
	}
	result.Items = items
	return result, nil
}

// Upsert inserts or replaces products; used by seeding.
func (r *ProductRepo) Upsert(ctx context.Context, products ...catalog.StoreProduct) error {
	if len(products) == 0 {
		return nil
	}
	q := r.builder.Insert(productsTable).Columns(r.cols...)
	for _, p := range products {
		q = q.Values(p.ID, p.StoreID, p.SKU, p.Name, p.Category, p.UnitCost, p.Active)
	}
	sql, args, err := q.Suffix(`ON CONFLICT (id) DO UPDATE SET
		sku = EXCLUDED.sku, name = EXCLUDED.name, category = EXCLUDED.category,
		unit_cost = EXCLUDED.unit_cost, active = EXCLUDED.active`).ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("upsert products: %w", err)
	}
	return nil
}

func (r *ProductRepo) selectAll(ctx context.Context, q squirrel.SelectBuilder) ([]catalog.StoreProduct, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	products := []catalog.StoreProduct{}
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &products, sql, args...); err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	return products, nil
}

func listWhere(filter catalog.ListFilter) squirrel.And {
	where := squirrel.And{squirrel.Eq{"store_id": filter.StoreID}}
	if filter.ActiveOnly {
		where = append(where, squirrel.Eq{"active": true})
	}
	if filter.Category != "" {
		where = append(where, squirrel.Eq{"category": filter.Category})
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		pattern := "%" + escapeLike(s) + "%"
		where = append(where, squirrel.Or{
			squirrel.ILike{"name": pattern},
			squirrel.ILike{"sku": pattern},
		})
	}
	return where
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
