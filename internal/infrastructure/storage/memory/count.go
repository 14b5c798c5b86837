package memory

import (
	"context"
	"sort"
	"sync"

	"storecount/internal/core/apperror"
	"storecount/internal/core/id"
	"storecount/internal/domain"
	"storecount/internal/domain/counting"
)

var (
	_ counting.SessionRepository = (*SessionRepo)(nil)
	_ counting.ItemRepository    = (*ItemRepo)(nil)
)

// SessionRepo stores count sessions.
type SessionRepo struct {
	mu       sync.RWMutex
	sessions map[id.ID]counting.Session
	rows     *rowLocks
}

// NewSessionRepo creates an empty session repository.
func NewSessionRepo() *SessionRepo {
	return &SessionRepo{
		sessions: make(map[id.ID]counting.Session),
		rows:     newRowLocks(),
	}
}

func (r *SessionRepo) Create(ctx context.Context, s *counting.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[s.ID]; ok {
		return apperror.NewConflict("count session already exists").WithDetail("id", s.ID.String())
	}
	r.sessions[s.ID] = *s
	onRollback(ctx, func() {
		r.mu.Lock()
		delete(r.sessions, s.ID)
		r.mu.Unlock()
	})
	return nil
}

func (r *SessionRepo) GetByID(_ context.Context, sessionID id.ID) (*counting.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, apperror.NewNotFound("count_session", sessionID)
	}
	return &s, nil
}

func (r *SessionRepo) GetForUpdate(ctx context.Context, sessionID id.ID) (*counting.Session, error) {
	return r.getLocked(ctx, sessionID, lockExclusive)
}

func (r *SessionRepo) GetForShare(ctx context.Context, sessionID id.ID) (*counting.Session, error) {
	return r.getLocked(ctx, sessionID, lockShared)
}

func (r *SessionRepo) getLocked(ctx context.Context, sessionID id.ID, mode lockMode) (*counting.Session, error) {
	if _, err := r.GetByID(ctx, sessionID); err != nil {
		return nil, err
	}
	if err := r.rows.acquire(ctx, sessionID.String(), mode); err != nil {
		return nil, err
	}
	// Re-read under the row lock.
	return r.GetByID(ctx, sessionID)
}

func (r *SessionRepo) Finalize(ctx context.Context, s *counting.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.sessions[s.ID]
	if !ok {
		return apperror.NewNotFound("count_session", s.ID)
	}
	if !stored.IsOpen() {
		return apperror.NewSessionClosed(s.ID)
	}
	r.sessions[s.ID] = *s
	onRollback(ctx, func() {
		r.mu.Lock()
		r.sessions[s.ID] = stored
		r.mu.Unlock()
	})
	return nil
}

func (r *SessionRepo) List(_ context.Context, filter counting.ListFilter) (domain.ListResult[counting.Session], error) {
	r.mu.RLock()
	var all []counting.Session
	for _, s := range r.sessions {
		if s.StoreID != filter.StoreID {
			continue
		}
		if filter.Status != "" && s.Status() != filter.Status {
			continue
		}
		all = append(all, s)
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID.String() > all[j].ID.String()
	})
	return domain.Slice(all, filter.Page), nil
}

type itemKey struct {
	session id.ID
	product id.ID
}

// ItemRepo stores count items, one per (session, product).
type ItemRepo struct {
	mu    sync.RWMutex
	items map[itemKey]counting.Item
}

// NewItemRepo creates an empty item repository.
func NewItemRepo() *ItemRepo {
	return &ItemRepo{items: make(map[itemKey]counting.Item)}
}

func (r *ItemRepo) Upsert(ctx context.Context, item counting.Item) (counting.Item, error) {
	k := itemKey{session: item.SessionID, product: item.StoreProductID}

	r.mu.Lock()
	prev, existed := r.items[k]
	stored := item
	if existed {
		stored = prev
		stored.PhysicalStock = item.PhysicalStock
		stored.ExpectedStock = item.ExpectedStock
		stored.Difference = item.Difference
		stored.Revision = prev.Revision + 1
		stored.UpdatedAt = item.UpdatedAt
		stored.UpdatedBy = item.UpdatedBy
	}
	r.items[k] = stored
	r.mu.Unlock()

	onRollback(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		// A sibling transaction overwrote the row after us and committed.
		if cur, ok := r.items[k]; !ok || cur != stored {
			return
		}
		if existed {
			r.items[k] = prev
		} else {
			delete(r.items, k)
		}
	})
	return stored, nil
}

func (r *ItemRepo) CreateBatch(ctx context.Context, items []counting.Item) error {
	if len(items) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, it := range items {
		if _, ok := r.items[itemKey{session: it.SessionID, product: it.StoreProductID}]; ok {
			return apperror.NewConflict("count item already exists").
				WithDetail("store_product_id", it.StoreProductID.String())
		}
	}
	for _, it := range items {
		r.items[itemKey{session: it.SessionID, product: it.StoreProductID}] = it
	}

	onRollback(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for _, it := range items {
			k := itemKey{session: it.SessionID, product: it.StoreProductID}
			if r.items[k] == it {
				delete(r.items, k)
			}
		}
	})
	return nil
}

func (r *ItemRepo) ListBySession(_ context.Context, sessionID id.ID) ([]counting.Item, error) {
	r.mu.RLock()
	out := make([]counting.Item, 0)
	for k, it := range r.items {
		if k.session == sessionID {
			out = append(out, it)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].StoreProductID.String() < out[j].StoreProductID.String()
	})
	return out, nil
}
