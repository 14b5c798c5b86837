package ledger

import (
	"context"

	"storecount/internal/core/id"
)

// Repository persists movements.
type Repository interface {
	// Append stores m. If m.IdempotencyKey is already taken, nothing is written
	// and the stored movement is returned with replayed=true.
	// Appends commit on their own and never join a caller's transaction.
	Append(ctx context.Context, m Movement) (Movement, bool, error)

	// StockLevels sums signed quantities per product for the store.
	// With productIDs given, only those products are returned.
	// Products without movements are absent.
	StockLevels(ctx context.Context, storeID id.ID, productIDs []id.ID) ([]StockLevel, error)

	// ListMovements returns movements newest first.
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
}
