package counting

import (
	"context"

	"storecount/internal/core/id"
	"storecount/internal/domain"
	"storecount/internal/domain/ledger"
)

// SessionRepository persists count sessions.
type SessionRepository interface {
	Create(ctx context.Context, s *Session) error

	// GetByID returns NOT_FOUND for unknown ids.
	GetByID(ctx context.Context, sessionID id.ID) (*Session, error)

	// GetForUpdate locks the session exclusively until the surrounding
	// transaction ends. Used by close.
	GetForUpdate(ctx context.Context, sessionID id.ID) (*Session, error)

	// GetForShare locks the session in shared mode until the surrounding
	// transaction ends. Used by count recording so counts for different
	// products proceed together but never overlap a close.
	GetForShare(ctx context.Context, sessionID id.ID) (*Session, error)

	// Finalize persists FinalizedAt/FinalizedBy/Reconciled. It fails with
	// SESSION_CLOSED if the stored session is already finalized.
	Finalize(ctx context.Context, s *Session) error

	List(ctx context.Context, filter ListFilter) (domain.ListResult[Session], error)
}

// ItemRepository persists count items.
type ItemRepository interface {
	// Upsert writes the item for (SessionID, StoreProductID) in a single
	// atomic step: inserted if absent, otherwise physical/expected/difference
	// are overwritten and the revision incremented. Returns the stored row.
	Upsert(ctx context.Context, item Item) (Item, error)

	// CreateBatch inserts items known not to exist yet.
	CreateBatch(ctx context.Context, items []Item) error

	// ListBySession returns the session's items ordered by store product id.
	ListBySession(ctx context.Context, sessionID id.ID) ([]Item, error)
}

// Ledger is the stock ledger as seen by counting.
type Ledger interface {
	TheoreticalStock(ctx context.Context, storeID id.ID, productIDs ...id.ID) ([]ledger.StockLevel, error)
	AppendMovement(ctx context.Context, in ledger.AppendInput) (*ledger.AppendResult, error)
}

// Locker guards a close against a concurrent close of the same session.
// TryLock never waits: acquired=false means another holder has the key.
type Locker interface {
	TryLock(ctx context.Context, key string) (unlock func(), acquired bool, err error)
}

// ListFilter narrows session listings.
type ListFilter struct {
	StoreID id.ID
	Status  Status // empty for all
	domain.Page
}
