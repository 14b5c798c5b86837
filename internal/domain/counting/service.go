package counting

import (
	"context"
	"fmt"
	"time"

	"storecount/internal/core/apperror"
	"storecount/internal/core/id"
	"storecount/internal/core/security"
	"storecount/internal/core/tx"
	"storecount/internal/domain"
	"storecount/internal/domain/catalog"
	"storecount/pkg/logger"
)

// Dependencies wires a Service.
type Dependencies struct {
	Sessions   SessionRepository
	Items      ItemRepository
	Products   catalog.Repository
	Ledger     Ledger
	Authorizer security.Authorizer
	TxManager  tx.Manager
	Locker     Locker
}

// Service is the counting engine: session lifecycle, count recording,
// reconciliation on close and reports.
type Service struct {
	sessions SessionRepository
	items    ItemRepository
	products catalog.Repository
	ledger   Ledger
	authz    security.Authorizer
	txm      tx.Manager
	locker   Locker
	reports  *ReportGenerator

	openHooks     *domain.HookRegistry[*Session]
	finalizeHooks *domain.HookRegistry[*Finalization]

	now func() time.Time
}

// NewService creates a new counting service.
func NewService(deps Dependencies) *Service {
	return &Service{
		sessions:      deps.Sessions,
		items:         deps.Items,
		products:      deps.Products,
		ledger:        deps.Ledger,
		authz:         deps.Authorizer,
		txm:           deps.TxManager,
		locker:        deps.Locker,
		reports:       NewReportGenerator(deps.Sessions, deps.Items, deps.Products),
		openHooks:     domain.NewHookRegistry[*Session](),
		finalizeHooks: domain.NewHookRegistry[*Finalization](),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// OpenHooks returns hooks run after a session is opened.
func (s *Service) OpenHooks() *domain.HookRegistry[*Session] {
	return s.openHooks
}

// FinalizeHooks returns hooks run around finalization. BeforeFinalize hooks
// run inside the finalizing transaction; an error aborts the close.
func (s *Service) FinalizeHooks() *domain.HookRegistry[*Finalization] {
	return s.finalizeHooks
}

// OpenInput describes a new session.
type OpenInput struct {
	StoreID id.ID
	Name    string
	// Scope is an optional CEL expression restricting the products to count.
	Scope string
	// PrefillZeroStock persists a zero count for every in-scope product whose
	// theoretical stock is zero at open time.
	PrefillZeroStock bool
}

// Open starts a count session for a store.
func (s *Service) Open(ctx context.Context, actor security.Actor, in OpenInput) (*Session, error) {
	if err := s.requireCapability(ctx, actor, in.StoreID, security.CapManageInventory); err != nil {
		return nil, err
	}

	scope, err := catalog.CompileScope(in.Scope)
	if err != nil {
		return nil, err
	}

	now := s.now()
	session := &Session{
		ID:               id.New(),
		StoreID:          in.StoreID,
		Name:             in.Name,
		Scope:            scope.String(),
		PrefillZeroStock: in.PrefillZeroStock,
		CreatedAt:        now,
		CreatedBy:        actor.UserID,
	}
	if err := session.Validate(); err != nil {
		return nil, err
	}

	prefilled := 0
	err = s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.sessions.Create(ctx, session); err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		if !session.PrefillZeroStock {
			return nil
		}
		items, err := s.zeroStockItems(ctx, session, scope, now, actor.UserID)
		if err != nil {
			return err
		}
		if err := s.items.CreateBatch(ctx, items); err != nil {
			return fmt.Errorf("prefill zero-stock items: %w", err)
		}
		prefilled = len(items)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.openHooks.Run(ctx, domain.AfterOpen, session); err != nil {
		logger.Warn(ctx, "after-open hook failed", "session_id", session.ID, "error", err)
	}

	logger.Info(ctx, "count session opened",
		"session_id", session.ID,
		"store_id", session.StoreID,
		"scope", session.Scope,
		"prefilled", prefilled,
	)
	return session, nil
}

// zeroStockItems builds the default zero counts for in-scope products whose
// theoretical stock is zero.
func (s *Service) zeroStockItems(ctx context.Context, session *Session, scope *catalog.Scope, at time.Time, by string) ([]Item, error) {
	products, err := s.scopedProducts(ctx, session.StoreID, scope)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, nil
	}

	ids := make([]id.ID, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}
	levels, err := s.ledger.TheoreticalStock(ctx, session.StoreID, ids...)
	if err != nil {
		return nil, fmt.Errorf("theoretical stock: %w", err)
	}
	stock := make(map[id.ID]int64, len(levels))
	for _, l := range levels {
		stock[l.StoreProductID] = l.Quantity
	}

	var items []Item
	for _, p := range products {
		if stock[p.ID] == 0 {
			items = append(items, NewItem(session.ID, p.ID, 0, 0, at, by))
		}
	}
	return items, nil
}

// RecordInput is one physical count.
type RecordInput struct {
	SessionID      id.ID
	StoreProductID id.ID
	PhysicalStock  int64
}

// RecordCount stores the physical count of a product, re-snapshotting the
// expected stock from the ledger. Repeated counts overwrite the same item.
func (s *Service) RecordCount(ctx context.Context, actor security.Actor, in RecordInput) (*Item, error) {
	if in.PhysicalStock < 0 {
		return nil, apperror.NewInvalidQuantity("physical stock must be zero or greater", in.PhysicalStock)
	}

	session, err := s.sessions.GetByID(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}
	if err := s.requireCapability(ctx, actor, session.StoreID, security.CapManageInventory); err != nil {
		return nil, err
	}
	if err := session.EnsureOpen(); err != nil {
		return nil, err
	}

	var stored Item
	err = s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		// Shared lock: a close in progress holds the session exclusively.
		locked, err := s.sessions.GetForShare(ctx, in.SessionID)
		if err != nil {
			return err
		}
		if err := locked.EnsureOpen(); err != nil {
			return err
		}
		if err := s.ensureCountable(ctx, locked, in.StoreProductID); err != nil {
			return err
		}

		levels, err := s.ledger.TheoreticalStock(ctx, locked.StoreID, in.StoreProductID)
		if err != nil {
			return fmt.Errorf("theoretical stock: %w", err)
		}
		var expected int64
		for _, l := range levels {
			if l.StoreProductID == in.StoreProductID {
				expected = l.Quantity
			}
		}

		item := NewItem(locked.ID, in.StoreProductID, in.PhysicalStock, expected, s.now(), actor.UserID)
		stored, err = s.items.Upsert(ctx, item)
		if err != nil {
			return fmt.Errorf("upsert item: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Debug(ctx, "count recorded",
		"session_id", stored.SessionID,
		"store_product_id", stored.StoreProductID,
		"physical", stored.PhysicalStock,
		"expected", stored.ExpectedStock,
		"revision", stored.Revision,
	)
	return &stored, nil
}

// ensureCountable checks the product belongs to the session's store and scope.
func (s *Service) ensureCountable(ctx context.Context, session *Session, productID id.ID) error {
	found, err := s.products.GetByIDs(ctx, session.StoreID, []id.ID{productID})
	if err != nil {
		return fmt.Errorf("load product: %w", err)
	}
	if len(found) == 0 {
		return apperror.NewNotFound("store_product", productID)
	}

	scope, err := compileSessionScope(session)
	if err != nil {
		return err
	}
	ok, err := scope.Matches(found[0])
	if err != nil {
		return err
	}
	if !ok {
		return apperror.NewValidation("product is outside the session scope").
			WithDetail("store_product_id", productID.String()).
			WithDetail("scope", session.Scope)
	}
	return nil
}

// GetSession returns a session.
func (s *Service) GetSession(ctx context.Context, actor security.Actor, sessionID id.ID) (*Session, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.requireCapability(ctx, actor, session.StoreID, security.CapViewInventory); err != nil {
		return nil, err
	}
	return session, nil
}

// ListSessions returns the store's sessions, newest first.
func (s *Service) ListSessions(ctx context.Context, actor security.Actor, filter ListFilter) (domain.ListResult[Session], error) {
	if err := s.requireCapability(ctx, actor, filter.StoreID, security.CapViewInventory); err != nil {
		return domain.ListResult[Session]{}, err
	}
	filter.Page = filter.Page.Normalize()
	return s.sessions.List(ctx, filter)
}

// Report returns the current report of a session. Callable before and
// after finalization.
func (s *Service) Report(ctx context.Context, actor security.Actor, sessionID id.ID) (*Report, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.requireCapability(ctx, actor, session.StoreID, security.CapViewInventory); err != nil {
		return nil, err
	}

	ro, ok := s.txm.(tx.ReadOnlyManager)
	if !ok {
		return s.reports.Generate(ctx, sessionID)
	}
	var report *Report
	err = ro.ReadOnly(ctx, func(ctx context.Context) error {
		var err error
		report, err = s.reports.Generate(ctx, sessionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (s *Service) scopedProducts(ctx context.Context, storeID id.ID, scope *catalog.Scope) ([]catalog.StoreProduct, error) {
	active, err := s.products.ListActive(ctx, storeID)
	if err != nil {
		return nil, fmt.Errorf("list active products: %w", err)
	}
	return scope.Filter(active)
}

func (s *Service) requireCapability(ctx context.Context, actor security.Actor, storeID id.ID, capability security.Capability) error {
	ok, err := s.authz.HasCapability(ctx, actor, storeID, capability)
	if err != nil {
		return fmt.Errorf("check capability: %w", err)
	}
	if !ok {
		return apperror.NewPermissionDenied(string(capability), storeID)
	}
	return nil
}

func compileSessionScope(session *Session) (*catalog.Scope, error) {
	scope, err := catalog.CompileScope(session.Scope)
	if err != nil {
		return nil, fmt.Errorf("session %s scope: %w", session.ID, err)
	}
	return scope, nil
}
