package ledger_repo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storecount/internal/core/id"
	"storecount/internal/domain/ledger"
)

func TestMovementRepo_InsertIgnoresDuplicateKeys(t *testing.T) {
	r := NewMovementRepo(nil)
	key := "reconcile:s:p:1"

	sql, args, err := r.insertQuery(ledger.Movement{
		ID:             id.New(),
		Type:           ledger.TypeAdjust,
		Quantity:       -2,
		CreatedAt:      time.Now(),
		IdempotencyKey: &key,
	}).ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "INSERT INTO stock_movements")
	assert.Contains(t, sql, "ON CONFLICT (idempotency_key) DO NOTHING RETURNING *")
	assert.Len(t, args, 9)
}

func TestMovementRepo_StockQuerySignsOutflows(t *testing.T) {
	r := NewMovementRepo(nil)
	store := id.New()

	sql, args, err := r.stockQuery(store, []id.ID{id.New(), id.New()}).ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "WHEN type IN ('OUTGOING', 'SALE') THEN -quantity")
	assert.Contains(t, sql, "store_product_id IN ($2,$3)")
	assert.Contains(t, sql, "GROUP BY store_product_id")
	assert.Len(t, args, 3)

	sql, args, err = r.stockQuery(store, nil).ToSql()
	require.NoError(t, err)
	assert.NotContains(t, sql, "store_product_id IN")
	assert.Len(t, args, 1)
}
