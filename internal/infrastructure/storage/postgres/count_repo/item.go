package count_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"storecount/internal/core/id"
	"storecount/internal/domain/counting"
	"storecount/internal/infrastructure/storage/postgres"
)

const itemsTable = "count_items"

var _ counting.ItemRepository = (*ItemRepo)(nil)

// ItemRepo implements counting.ItemRepository.
type ItemRepo struct {
	txm      *postgres.TxManager
	inserter *postgres.BatchInserter
	builder  squirrel.StatementBuilderType
	cols     []string
}

// NewItemRepo creates a new item repository.
func NewItemRepo(txm *postgres.TxManager) *ItemRepo {
	return &ItemRepo{
		txm:      txm,
		inserter: postgres.NewBatchInserter(txm),
		builder:  squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		cols:     postgres.Columns[counting.Item](),
	}
}

// Upsert relies on the (session_id, store_product_id) unique key: the
// conflicting row is overwritten in the same statement, so concurrent counts
// of one product serialize on the row and the last writer wins.
func (r *ItemRepo) Upsert(ctx context.Context, item counting.Item) (counting.Item, error) {
	sql, args, err := r.upsertQuery(item).ToSql()
	if err != nil {
		return item, fmt.Errorf("build upsert: %w", err)
	}

	var stored counting.Item
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &stored, sql, args...); err != nil {
		return item, fmt.Errorf("upsert count item: %w", err)
	}
	return stored, nil
}

func (r *ItemRepo) upsertQuery(item counting.Item) squirrel.InsertBuilder {
	return r.builder.Insert(itemsTable).
		Columns(r.cols...).
		Values(itemRow(item)...).
		Suffix(`ON CONFLICT (session_id, store_product_id) DO UPDATE SET
			physical_stock = EXCLUDED.physical_stock,
			expected_stock = EXCLUDED.expected_stock,
			difference = EXCLUDED.difference,
			revision = count_items.revision + 1,
			updated_at = EXCLUDED.updated_at,
			updated_by = EXCLUDED.updated_by
		RETURNING *`)
}

func (r *ItemRepo) CreateBatch(ctx context.Context, items []counting.Item) error {
	if len(items) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(items))
	for _, it := range items {
		rows = append(rows, itemRow(it))
	}
	if _, err := r.inserter.CopyFromSlice(ctx, itemsTable, r.cols, rows); err != nil {
		return fmt.Errorf("insert count items: %w", err)
	}
	return nil
}

func (r *ItemRepo) ListBySession(ctx context.Context, sessionID id.ID) ([]counting.Item, error) {
	sql, args, err := r.builder.Select(r.cols...).
		From(itemsTable).
		Where(squirrel.Eq{"session_id": sessionID}).
		OrderBy("store_product_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	items := []counting.Item{}
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &items, sql, args...); err != nil {
		return nil, fmt.Errorf("list count items: %w", err)
	}
	return items, nil
}

// itemRow returns item's values in Columns[counting.Item]() order.
func itemRow(it counting.Item) []any {
	return []any{
		it.ID, it.SessionID, it.StoreProductID,
		it.PhysicalStock, it.ExpectedStock, it.Difference,
		it.Revision, it.UpdatedAt, it.UpdatedBy,
	}
}
