// Package ledger_repo provides the PostgreSQL stock ledger.
package ledger_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"storecount/internal/core/id"
	"storecount/internal/domain/ledger"
	"storecount/internal/infrastructure/storage/postgres"
)

const movementsTable = "stock_movements"

var _ ledger.Repository = (*MovementRepo)(nil)

// MovementRepo implements ledger.Repository. Appends always go through the
// pool so each movement commits on its own, even when the caller is inside
// a transaction.
type MovementRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
	cols    []string
}

// NewMovementRepo creates a new movement repository.
func NewMovementRepo(txm *postgres.TxManager) *MovementRepo {
	return &MovementRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		cols:    postgres.Columns[ledger.Movement](),
	}
}

func (r *MovementRepo) Append(ctx context.Context, m ledger.Movement) (ledger.Movement, bool, error) {
	sql, args, err := r.insertQuery(m).ToSql()
	if err != nil {
		return m, false, fmt.Errorf("build insert: %w", err)
	}

	pool := r.txm.Pool()
	var stored ledger.Movement
	err = pgxscan.Get(ctx, pool, &stored, sql, args...)
	if err == nil {
		return stored, false, nil
	}
	if !pgxscan.NotFound(err) || m.IdempotencyKey == nil {
		return m, false, fmt.Errorf("insert movement: %w", err)
	}

	// DO NOTHING returned no row: the key was used before.
	sql, args, err = r.builder.Select(r.cols...).
		From(movementsTable).
		Where(squirrel.Eq{"idempotency_key": *m.IdempotencyKey}).
		ToSql()
	if err != nil {
		return m, false, fmt.Errorf("build query: %w", err)
	}
	if err := pgxscan.Get(ctx, pool, &stored, sql, args...); err != nil {
		return m, false, fmt.Errorf("load replayed movement: %w", err)
	}
	return stored, true, nil
}

func (r *MovementRepo) insertQuery(m ledger.Movement) squirrel.InsertBuilder {
	return r.builder.Insert(movementsTable).
		Columns(r.cols...).
		Values(m.ID, m.StoreID, m.StoreProductID, m.Type, m.Quantity,
			m.Description, m.CreatedBy, m.CreatedAt, m.IdempotencyKey).
		Suffix("ON CONFLICT (idempotency_key) DO NOTHING RETURNING *")
}

func (r *MovementRepo) StockLevels(ctx context.Context, storeID id.ID, productIDs []id.ID) ([]ledger.StockLevel, error) {
	sql, args, err := r.stockQuery(storeID, productIDs).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	levels := []ledger.StockLevel{}
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &levels, sql, args...); err != nil {
		return nil, fmt.Errorf("select stock levels: %w", err)
	}
	return levels, nil
}

func (r *MovementRepo) stockQuery(storeID id.ID, productIDs []id.ID) squirrel.SelectBuilder {
	q := r.builder.Select(
		"store_product_id",
		"COALESCE(SUM(CASE WHEN type IN ('OUTGOING', 'SALE') THEN -quantity ELSE quantity END), 0)::BIGINT AS quantity",
	).
		From(movementsTable).
		Where(squirrel.Eq{"store_id": storeID}).
		GroupBy("store_product_id").
		OrderBy("store_product_id")
	if len(productIDs) > 0 {
		q = q.Where(squirrel.Eq{"store_product_id": productIDs})
	}
	return q
}

func (r *MovementRepo) ListMovements(ctx context.Context, filter ledger.MovementFilter) ([]ledger.Movement, error) {
	q := r.builder.Select(r.cols...).
		From(movementsTable).
		Where(squirrel.Eq{"store_id": filter.StoreID}).
		OrderBy("created_at DESC", "id DESC")
	if filter.StoreProductID != nil {
		q = q.Where(squirrel.Eq{"store_product_id": *filter.StoreProductID})
	}
	if filter.Type != "" {
		q = q.Where(squirrel.Eq{"type": filter.Type})
	}
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	movements := []ledger.Movement{}
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &movements, sql, args...); err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	return movements, nil
}
