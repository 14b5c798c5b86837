package counting_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storecount/internal/core/apperror"
	"storecount/internal/core/id"
	"storecount/internal/core/security"
	"storecount/internal/domain"
	"storecount/internal/domain/catalog"
	"storecount/internal/domain/counting"
	"storecount/internal/domain/ledger"
	"storecount/internal/infrastructure/lock"
	"storecount/internal/infrastructure/storage/memory"
)

type fixture struct {
	store   *memory.Store
	ledger  *ledger.Service
	locker  *lock.Local
	svc     *counting.Service
	storeID id.ID
	actor   security.Actor
}

func newFixture(t *testing.T, wrap ...func(counting.Ledger) counting.Ledger) *fixture {
	t.Helper()

	f := &fixture{
		store:   memory.New(),
		locker:  lock.NewLocal(),
		storeID: id.New(),
	}
	f.ledger = ledger.NewService(f.store.Movements)
	f.actor = security.Actor{
		UserID: "operator-1",
		Grants: map[id.ID][]security.Capability{f.storeID: {security.CapManageInventory}},
	}

	var l counting.Ledger = f.ledger
	for _, w := range wrap {
		l = w(l)
	}
	f.svc = counting.NewService(counting.Dependencies{
		Sessions:   f.store.Sessions,
		Items:      f.store.Items,
		Products:   f.store.Products,
		Ledger:     l,
		Authorizer: security.NewClaimsAuthorizer(),
		TxManager:  f.store.Tx,
		Locker:     f.locker,
	})
	return f
}

// product adds an active product with the given opening stock.
func (f *fixture) product(t *testing.T, name string, stock int64) id.ID {
	t.Helper()
	p := catalog.StoreProduct{
		ID:       id.New(),
		StoreID:  f.storeID,
		SKU:      "SKU-" + name,
		Name:     name,
		Category: "general",
		UnitCost: decimal.NewFromInt(2),
		Active:   true,
	}
	f.store.Products.Put(p)
	if stock > 0 {
		f.move(t, p.ID, ledger.TypeIncoming, stock)
	}
	return p.ID
}

func (f *fixture) move(t *testing.T, productID id.ID, typ ledger.MovementType, qty int64) {
	t.Helper()
	_, err := f.ledger.AppendMovement(context.Background(), ledger.AppendInput{
		StoreID:        f.storeID,
		StoreProductID: productID,
		Type:           typ,
		Quantity:       qty,
		Actor:          "test",
	})
	require.NoError(t, err)
}

func (f *fixture) open(t *testing.T) *counting.Session {
	t.Helper()
	s, err := f.svc.Open(context.Background(), f.actor, counting.OpenInput{StoreID: f.storeID, Name: "March count"})
	require.NoError(t, err)
	return s
}

func (f *fixture) record(t *testing.T, sessionID, productID id.ID, physical int64) *counting.Item {
	t.Helper()
	it, err := f.svc.RecordCount(context.Background(), f.actor, counting.RecordInput{
		SessionID:      sessionID,
		StoreProductID: productID,
		PhysicalStock:  physical,
	})
	require.NoError(t, err)
	return it
}

func (f *fixture) stock(t *testing.T, productID id.ID) int64 {
	t.Helper()
	q, err := f.ledger.ProductStock(context.Background(), f.storeID, productID)
	require.NoError(t, err)
	return q
}

func (f *fixture) adjustments(t *testing.T, productID id.ID) []ledger.Movement {
	t.Helper()
	ms, err := f.ledger.Movements(context.Background(), ledger.MovementFilter{
		StoreID:        f.storeID,
		StoreProductID: &productID,
		Type:           ledger.TypeAdjust,
	})
	require.NoError(t, err)
	return ms
}

// spyLedger counts appends and can fail a chosen call.
type spyLedger struct {
	counting.Ledger

	mu      sync.Mutex
	appends int
	failOn  int
}

func (s *spyLedger) AppendMovement(ctx context.Context, in ledger.AppendInput) (*ledger.AppendResult, error) {
	s.mu.Lock()
	s.appends++
	n := s.appends
	fail := s.failOn
	s.mu.Unlock()

	if fail > 0 && n == fail {
		return nil, errors.New("ledger unavailable")
	}
	return s.Ledger.AppendMovement(ctx, in)
}

func (s *spyLedger) setFailOn(n int) {
	s.mu.Lock()
	s.failOn = n
	s.appends = 0
	s.mu.Unlock()
}

func TestScenarioA_SummaryAndReconciliation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p1 := f.product(t, "P1", 10)
	p2 := f.product(t, "P2", 5)
	s := f.open(t)

	f.record(t, s.ID, p1, 10)
	f.record(t, s.ID, p2, 3)

	report, err := f.svc.Report(ctx, f.actor, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Summary.TotalProducts)
	assert.Equal(t, 1, report.Summary.CorrectCount)
	assert.Equal(t, 1, report.Summary.Discrepancies)
	assert.Equal(t, 0, report.Summary.PositiveDiscrepancies)
	assert.Equal(t, 1, report.Summary.NegativeDiscrepancies)
	assert.Nil(t, report.Session.FinalizedAt)

	final, err := f.svc.CloseWithReconciliation(ctx, f.actor, s.ID)
	require.NoError(t, err)
	require.NotNil(t, final.Session.FinalizedAt)
	assert.True(t, final.Session.Reconciled)

	assert.Empty(t, f.adjustments(t, p1))
	adj := f.adjustments(t, p2)
	require.Len(t, adj, 1)
	assert.Equal(t, int64(-2), adj[0].Quantity)
	assert.Equal(t, "automatic reconciliation for session March count", adj[0].Description)

	assert.Equal(t, int64(10), f.stock(t, p1))
	assert.Equal(t, int64(3), f.stock(t, p2))
}

func TestScenarioB_NegativeCountRejected(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "P1", 4)
	s := f.open(t)

	_, err := f.svc.RecordCount(context.Background(), f.actor, counting.RecordInput{
		SessionID:      s.ID,
		StoreProductID: p,
		PhysicalStock:  -1,
	})
	require.Error(t, err)
	assert.True(t, apperror.IsInvalidQuantity(err))

	items, err := f.store.Items.ListBySession(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestScenarioC_IncompleteCountListsMissing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p1 := f.product(t, "P1", 1)
	p2 := f.product(t, "P2", 2)
	p3 := f.product(t, "P3", 3)
	s := f.open(t)
	f.record(t, s.ID, p1, 1)
	f.record(t, s.ID, p2, 2)

	for _, reconcile := range []bool{false, true} {
		var err error
		if reconcile {
			_, err = f.svc.CloseWithReconciliation(ctx, f.actor, s.ID)
		} else {
			_, err = f.svc.CloseWithoutReconciliation(ctx, f.actor, s.ID)
		}
		require.Error(t, err)
		require.True(t, apperror.IsIncompleteCount(err))

		appErr, _ := apperror.AsAppError(err)
		assert.Equal(t, []string{p3.String()}, appErr.Details["missing_product_ids"])
	}

	got, err := f.svc.GetSession(ctx, f.actor, s.ID)
	require.NoError(t, err)
	assert.True(t, got.IsOpen())
}

func TestScenarioD_ConcurrentCountsSameProduct(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "P1", 5)
	s := f.open(t)

	var wg sync.WaitGroup
	for _, v := range []int64{4, 7} {
		wg.Add(1)
		go func(v int64) {
			defer wg.Done()
			_, err := f.svc.RecordCount(context.Background(), f.actor, counting.RecordInput{
				SessionID:      s.ID,
				StoreProductID: p,
				PhysicalStock:  v,
			})
			assert.NoError(t, err)
		}(v)
	}
	wg.Wait()

	items, err := f.store.Items.ListBySession(context.Background(), s.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Contains(t, []int64{4, 7}, items[0].PhysicalStock)
	assert.Equal(t, 2, items[0].Revision)
	assert.Equal(t, items[0].PhysicalStock-items[0].ExpectedStock, items[0].Difference)
}

func TestRecordCount_RecountResnapshotsExpected(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "P1", 10)
	s := f.open(t)

	first := f.record(t, s.ID, p, 8)
	assert.Equal(t, int64(-2), first.Difference)

	f.move(t, p, ledger.TypeSale, 3)

	second := f.record(t, s.ID, p, 6)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(7), second.ExpectedStock)
	assert.Equal(t, int64(-1), second.Difference)
	assert.Equal(t, 2, second.Revision)

	items, err := f.store.Items.ListBySession(context.Background(), s.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(6), items[0].PhysicalStock)
}

func TestRecordCount_ProductChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.product(t, "P1", 1)
	s := f.open(t)

	other := catalog.StoreProduct{ID: id.New(), StoreID: id.New(), Name: "foreign", Active: true}
	f.store.Products.Put(other)

	_, err := f.svc.RecordCount(ctx, f.actor, counting.RecordInput{SessionID: s.ID, StoreProductID: other.ID, PhysicalStock: 1})
	assert.True(t, apperror.IsNotFound(err))

	_, err = f.svc.RecordCount(ctx, f.actor, counting.RecordInput{SessionID: id.New(), StoreProductID: other.ID, PhysicalStock: 1})
	assert.True(t, apperror.IsNotFound(err))
}

func TestCloseWithoutReconciliation_NeverAppends(t *testing.T) {
	spy := &spyLedger{}
	f := newFixture(t, func(l counting.Ledger) counting.Ledger {
		spy.Ledger = l
		return spy
	})

	p1 := f.product(t, "P1", 10)
	p2 := f.product(t, "P2", 5)
	s := f.open(t)
	f.record(t, s.ID, p1, 12)
	f.record(t, s.ID, p2, 0)

	report, err := f.svc.CloseWithoutReconciliation(context.Background(), f.actor, s.ID)
	require.NoError(t, err)
	assert.NotNil(t, report.Session.FinalizedAt)
	assert.False(t, report.Session.Reconciled)
	assert.Equal(t, 2, report.Summary.Discrepancies)

	assert.Zero(t, spy.appends)
	assert.Equal(t, int64(10), f.stock(t, p1))
	assert.Equal(t, int64(5), f.stock(t, p2))
}

func TestCloseWithReconciliation_RetryAfterPartialFailure(t *testing.T) {
	spy := &spyLedger{}
	f := newFixture(t, func(l counting.Ledger) counting.Ledger {
		spy.Ledger = l
		return spy
	})
	ctx := context.Background()

	products := []id.ID{f.product(t, "P1", 5), f.product(t, "P2", 5), f.product(t, "P3", 5)}
	s := f.open(t)
	for i, p := range products {
		f.record(t, s.ID, p, int64(i+1))
	}

	spy.setFailOn(2)
	_, err := f.svc.CloseWithReconciliation(ctx, f.actor, s.ID)
	require.Error(t, err)
	require.True(t, apperror.IsLedgerWriteFailure(err))

	appErr, _ := apperror.AsAppError(err)
	assert.Equal(t, 1, appErr.Details["posted"])
	assert.Equal(t, 3, appErr.Details["total"])
	assert.NotEmpty(t, appErr.Details["failed_product_id"])

	got, err := f.svc.GetSession(ctx, f.actor, s.ID)
	require.NoError(t, err)
	assert.True(t, got.IsOpen(), "session stays open after a ledger failure")

	spy.setFailOn(0)
	report, err := f.svc.CloseWithReconciliation(ctx, f.actor, s.ID)
	require.NoError(t, err)
	assert.NotNil(t, report.Session.FinalizedAt)

	for i, p := range products {
		assert.Len(t, f.adjustments(t, p), 1, "exactly one adjustment per product")
		assert.Equal(t, int64(i+1), f.stock(t, p))
	}
}

func TestCloseWithReconciliation_RecountAfterPartialFailure(t *testing.T) {
	spy := &spyLedger{}
	f := newFixture(t, func(l counting.Ledger) counting.Ledger {
		spy.Ledger = l
		return spy
	})
	ctx := context.Background()

	p1 := f.product(t, "P1", 10)
	p2 := f.product(t, "P2", 10)
	s := f.open(t)
	f.record(t, s.ID, p1, 8)
	f.record(t, s.ID, p2, 9)

	spy.setFailOn(2)
	_, err := f.svc.CloseWithReconciliation(ctx, f.actor, s.ID)
	require.True(t, apperror.IsLedgerWriteFailure(err))

	// The operator recounts both products before retrying.
	f.record(t, s.ID, p1, 8)
	f.record(t, s.ID, p2, 9)

	spy.setFailOn(0)
	_, err = f.svc.CloseWithReconciliation(ctx, f.actor, s.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(8), f.stock(t, p1))
	assert.Equal(t, int64(9), f.stock(t, p2))
}

func TestClose_Twice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "P1", 3)
	s := f.open(t)
	f.record(t, s.ID, p, 1)

	_, err := f.svc.CloseWithReconciliation(ctx, f.actor, s.ID)
	require.NoError(t, err)

	_, err = f.svc.CloseWithReconciliation(ctx, f.actor, s.ID)
	assert.True(t, apperror.IsSessionClosed(err))
	_, err = f.svc.CloseWithoutReconciliation(ctx, f.actor, s.ID)
	assert.True(t, apperror.IsSessionClosed(err))

	assert.Len(t, f.adjustments(t, p), 1)

	_, err = f.svc.RecordCount(ctx, f.actor, counting.RecordInput{SessionID: s.ID, StoreProductID: p, PhysicalStock: 2})
	assert.True(t, apperror.IsSessionClosed(err))
}

func TestClose_RejectedWhileAnotherCloseRuns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "P1", 3)
	s := f.open(t)
	f.record(t, s.ID, p, 3)

	unlock, ok, err := f.locker.TryLock(ctx, "count-session:"+s.ID.String()+":close")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.svc.CloseWithReconciliation(ctx, f.actor, s.ID)
	assert.True(t, apperror.HasCode(err, apperror.CodeCloseInProgress))

	unlock()
	_, err = f.svc.CloseWithReconciliation(ctx, f.actor, s.ID)
	assert.NoError(t, err)
}

func TestClose_ConcurrentClosesPostOnce(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "P1", 10)
	s := f.open(t)
	f.record(t, s.ID, p, 4)

	const callers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CloseWithReconciliation(context.Background(), f.actor, s.ID)
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.True(t,
				apperror.IsSessionClosed(err) || apperror.HasCode(err, apperror.CodeCloseInProgress),
				"unexpected error: %v", err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Len(t, f.adjustments(t, p), 1)
	assert.Equal(t, int64(4), f.stock(t, p))
}

func TestBeforeFinalizeHookFailure_KeepsSessionOpen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "P1", 2)
	s := f.open(t)
	f.record(t, s.ID, p, 2)

	f.svc.FinalizeHooks().On(domain.BeforeFinalize, func(context.Context, *counting.Finalization) error {
		return errors.New("outbox unavailable")
	})

	_, err := f.svc.CloseWithoutReconciliation(ctx, f.actor, s.ID)
	require.Error(t, err)

	got, err := f.svc.GetSession(ctx, f.actor, s.ID)
	require.NoError(t, err)
	assert.True(t, got.IsOpen())
}

func TestFinalizeHooks_ReceiveAdjustments(t *testing.T) {
	f := newFixture(t)
	p1 := f.product(t, "P1", 2)
	p2 := f.product(t, "P2", 2)
	s := f.open(t)
	f.record(t, s.ID, p1, 5)
	f.record(t, s.ID, p2, 2)

	var got *counting.Finalization
	f.svc.FinalizeHooks().On(domain.AfterFinalize, func(_ context.Context, fin *counting.Finalization) error {
		got = fin
		return nil
	})

	_, err := f.svc.CloseWithReconciliation(context.Background(), f.actor, s.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Len(t, got.Adjustments, 1)
	assert.Equal(t, int64(3), got.Adjustments[0].Quantity)
	assert.Equal(t, "operator-1", got.Actor)
}

func TestPermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "P1", 1)
	s := f.open(t)

	stranger := security.Actor{UserID: "stranger"}
	viewer := security.Actor{
		UserID: "viewer",
		Grants: map[id.ID][]security.Capability{f.storeID: {security.CapViewInventory}},
	}

	_, err := f.svc.Open(ctx, stranger, counting.OpenInput{StoreID: f.storeID, Name: "x"})
	assert.True(t, apperror.IsPermissionDenied(err))

	_, err = f.svc.RecordCount(ctx, viewer, counting.RecordInput{SessionID: s.ID, StoreProductID: p, PhysicalStock: 1})
	assert.True(t, apperror.IsPermissionDenied(err))

	_, err = f.svc.CloseWithoutReconciliation(ctx, viewer, s.ID)
	assert.True(t, apperror.IsPermissionDenied(err))

	_, err = f.svc.Report(ctx, stranger, s.ID)
	assert.True(t, apperror.IsPermissionDenied(err))

	_, err = f.svc.Report(ctx, viewer, s.ID)
	assert.NoError(t, err)

	admin := security.Actor{UserID: "admin", IsAdmin: true}
	f.record(t, s.ID, p, 1)
	_, err = f.svc.CloseWithoutReconciliation(ctx, admin, s.ID)
	assert.NoError(t, err)
}

func TestOpen_ScopeRestrictsCompleteness(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	drink := catalog.StoreProduct{ID: id.New(), StoreID: f.storeID, Name: "Cola", Category: "beverages", UnitCost: decimal.NewFromInt(1), Active: true}
	snack := catalog.StoreProduct{ID: id.New(), StoreID: f.storeID, Name: "Chips", Category: "snacks", UnitCost: decimal.NewFromInt(1), Active: true}
	f.store.Products.Put(drink, snack)

	s, err := f.svc.Open(ctx, f.actor, counting.OpenInput{
		StoreID: f.storeID,
		Name:    "Drinks",
		Scope:   `product.category == "beverages"`,
	})
	require.NoError(t, err)

	_, err = f.svc.RecordCount(ctx, f.actor, counting.RecordInput{SessionID: s.ID, StoreProductID: snack.ID, PhysicalStock: 1})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	f.record(t, s.ID, drink.ID, 0)
	_, err = f.svc.CloseWithoutReconciliation(ctx, f.actor, s.ID)
	assert.NoError(t, err)

	for _, bad := range []string{`product.category ==`, `1 + 2`, `product.name`, `product.colour == "red"`} {
		_, err = f.svc.Open(ctx, f.actor, counting.OpenInput{StoreID: f.storeID, Name: "bad", Scope: bad})
		assert.True(t, apperror.HasCode(err, apperror.CodeValidation), bad)
	}

	listed, err := f.svc.ListSessions(ctx, f.actor, counting.ListFilter{StoreID: f.storeID})
	require.NoError(t, err)
	assert.Len(t, listed.Items, 1, "rejected scopes must not leave sessions behind")
}

func TestOpen_PrefillZeroStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stocked := f.product(t, "P1", 4)
	empty := f.product(t, "P2", 0)

	s, err := f.svc.Open(ctx, f.actor, counting.OpenInput{StoreID: f.storeID, Name: "Prefilled", PrefillZeroStock: true})
	require.NoError(t, err)
	assert.True(t, s.PrefillZeroStock)

	items, err := f.store.Items.ListBySession(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, empty, items[0].StoreProductID)
	assert.Zero(t, items[0].PhysicalStock)

	_, err = f.svc.CloseWithoutReconciliation(ctx, f.actor, s.ID)
	require.True(t, apperror.IsIncompleteCount(err), "stocked products still need an explicit count")

	f.record(t, s.ID, stocked, 4)
	_, err = f.svc.CloseWithoutReconciliation(ctx, f.actor, s.ID)
	assert.NoError(t, err)
}

func TestOpen_WithoutPrefillRequiresZeroStockCounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	empty := f.product(t, "P1", 0)
	s := f.open(t)

	_, err := f.svc.CloseWithoutReconciliation(ctx, f.actor, s.ID)
	require.True(t, apperror.IsIncompleteCount(err))

	f.record(t, s.ID, empty, 0)
	_, err = f.svc.CloseWithoutReconciliation(ctx, f.actor, s.ID)
	assert.NoError(t, err)
}

func TestListSessions_StatusFilter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "P1", 1)

	closed := f.open(t)
	f.record(t, closed.ID, p, 1)
	_, err := f.svc.CloseWithoutReconciliation(ctx, f.actor, closed.ID)
	require.NoError(t, err)
	open := f.open(t)

	all, err := f.svc.ListSessions(ctx, f.actor, counting.ListFilter{StoreID: f.storeID})
	require.NoError(t, err)
	assert.EqualValues(t, 2, all.TotalCount)

	onlyOpen, err := f.svc.ListSessions(ctx, f.actor, counting.ListFilter{StoreID: f.storeID, Status: counting.StatusOpen})
	require.NoError(t, err)
	require.Len(t, onlyOpen.Items, 1)
	assert.Equal(t, open.ID, onlyOpen.Items[0].ID)
}
