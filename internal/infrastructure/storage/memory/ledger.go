package memory

import (
	"context"
	"sync"

	"storecount/internal/core/id"
	"storecount/internal/domain/ledger"
)

var _ ledger.Repository = (*LedgerRepo)(nil)

// LedgerRepo is an append-only movement log. Appends are final immediately
// and never take part in a surrounding transaction.
type LedgerRepo struct {
	mu          sync.RWMutex
	movements   []ledger.Movement
	idempotency map[string]int
}

// NewLedgerRepo creates an empty ledger.
func NewLedgerRepo() *LedgerRepo {
	return &LedgerRepo{idempotency: make(map[string]int)}
}

func (r *LedgerRepo) Append(_ context.Context, m ledger.Movement) (ledger.Movement, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m.IdempotencyKey != nil {
		if i, ok := r.idempotency[*m.IdempotencyKey]; ok {
			return r.movements[i], true, nil
		}
		r.idempotency[*m.IdempotencyKey] = len(r.movements)
	}
	r.movements = append(r.movements, m)
	return m, false, nil
}

func (r *LedgerRepo) StockLevels(_ context.Context, storeID id.ID, productIDs []id.ID) ([]ledger.StockLevel, error) {
	var want map[id.ID]struct{}
	if len(productIDs) > 0 {
		want = make(map[id.ID]struct{}, len(productIDs))
		for _, pid := range productIDs {
			want[pid] = struct{}{}
		}
	}

	r.mu.RLock()
	sums := make(map[id.ID]int64)
	for _, m := range r.movements {
		if m.StoreID != storeID {
			continue
		}
		if want != nil {
			if _, ok := want[m.StoreProductID]; !ok {
				continue
			}
		}
		sums[m.StoreProductID] += m.SignedQuantity()
	}
	r.mu.RUnlock()

	out := make([]ledger.StockLevel, 0, len(sums))
	for pid, q := range sums {
		out = append(out, ledger.StockLevel{StoreProductID: pid, Quantity: q})
	}
	return out, nil
}

// ListMovements returns matching movements, newest first.
func (r *LedgerRepo) ListMovements(_ context.Context, filter ledger.MovementFilter) ([]ledger.Movement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ledger.Movement, 0)
	for i := len(r.movements) - 1; i >= 0; i-- {
		m := r.movements[i]
		if m.StoreID != filter.StoreID {
			continue
		}
		if filter.StoreProductID != nil && m.StoreProductID != *filter.StoreProductID {
			continue
		}
		if filter.Type != "" && m.Type != filter.Type {
			continue
		}
		out = append(out, m)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}
