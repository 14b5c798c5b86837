package v1_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "storecount/internal/core/context"
	"storecount/internal/core/id"
	"storecount/internal/core/security"
	"storecount/internal/domain"
	"storecount/internal/domain/auth"
	"storecount/internal/domain/catalog"
	"storecount/internal/domain/counting"
	"storecount/internal/domain/ledger"
	"storecount/internal/infrastructure/export"
	v1 "storecount/internal/infrastructure/http/v1"
	"storecount/internal/infrastructure/lock"
	"storecount/internal/infrastructure/storage/memory"
	"storecount/internal/infrastructure/storage/postgres"
	"storecount/pkg/logger"
)

type apiFixture struct {
	router  *gin.Engine
	jwt     *auth.JWTService
	store   *memory.Store
	ledger  *ledger.Service
	audit   *memoryAudit
	storeID id.ID
	apples  id.ID
	bread   id.ID
}

// memoryAudit keeps audit entries in memory, appended by an AfterOpen hook.
type memoryAudit struct {
	mu      sync.Mutex
	entries []postgres.AuditEntry
}

func (a *memoryAudit) record(ctx context.Context, s *counting.Session) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, postgres.AuditEntry{
		ID:         id.New(),
		EntityType: counting.AggregateCountSession,
		EntityID:   s.ID,
		Action:     postgres.AuditActionOpen,
		UserID:     appctx.CallerID(ctx),
		Changes:    json.RawMessage(`{"name":"` + s.Name + `"}`),
		CreatedAt:  time.Now(),
	})
	return nil
}

func (a *memoryAudit) History(_ context.Context, entityType string, entityID id.ID, limit int) ([]postgres.AuditEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []postgres.AuditEntry
	for i := len(a.entries) - 1; i >= 0; i-- {
		e := a.entries[i]
		if e.EntityType != entityType || e.EntityID != entityID {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &apiFixture{
		jwt:     auth.NewJWTService(auth.DefaultJWTConfig("test-secret")),
		store:   memory.New(),
		storeID: id.New(),
		apples:  id.New(),
		bread:   id.New(),
		audit:   &memoryAudit{},
	}
	f.ledger = ledger.NewService(f.store.Movements)
	f.store.Products.Put(
		catalog.StoreProduct{ID: f.apples, StoreID: f.storeID, SKU: "A-1", Name: "Apples", UnitCost: decimal.NewFromInt(3), Active: true},
		catalog.StoreProduct{ID: f.bread, StoreID: f.storeID, SKU: "B-1", Name: "Bread", UnitCost: decimal.RequireFromString("1.5"), Active: true},
	)

	authz := security.NewClaimsAuthorizer()
	svc := counting.NewService(counting.Dependencies{
		Sessions:   f.store.Sessions,
		Items:      f.store.Items,
		Products:   f.store.Products,
		Ledger:     f.ledger,
		Authorizer: authz,
		TxManager:  f.store.Tx,
		Locker:     lock.NewLocal(),
	})
	svc.OpenHooks().On(domain.AfterOpen, f.audit.record)

	f.router = v1.NewRouter(v1.RouterConfig{
		Logger:       logger.Nop(),
		JWTValidator: f.jwt,
		Authorizer:   authz,
		Counting:     svc,
		Ledger:       f.ledger,
		Products:     f.store.Products,
		Audit:        f.audit,
		AppName:      "storecount",
		Version:      "test",
	})
	return f
}

func (f *apiFixture) token(t *testing.T, caps ...security.Capability) string {
	t.Helper()
	grants := make([]string, 0, len(caps))
	for _, c := range caps {
		grants = append(grants, string(c))
	}
	tok, _, err := f.jwt.GenerateAccessToken(auth.TokenSubject{
		UserID: "clerk-1",
		Stores: map[string][]string{f.storeID.String(): grants},
	})
	require.NoError(t, err)
	return tok
}

func (f *apiFixture) do(t *testing.T, token, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealth_NoAuthRequired(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, "", http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "memory", decode(t, w)["checks"].(map[string]any)["storage"])
}

func TestAPI_RequiresBearerToken(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, "", http.MethodGet, "/api/v1/stores/"+f.storeID.String()+"/stock", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", decode(t, w)["code"])

	w = f.do(t, "not-a-token", http.MethodGet, "/api/v1/stores/"+f.storeID.String()+"/stock", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAPI_CountAndReconcileFlow(t *testing.T) {
	f := newAPIFixture(t)
	manager := f.token(t, security.CapManageInventory)
	store := "/api/v1/stores/" + f.storeID.String()

	for _, mv := range []map[string]any{
		{"storeProductId": f.apples.String(), "type": "INCOMING", "quantity": 10},
		{"storeProductId": f.bread.String(), "type": "incoming", "quantity": 5},
	} {
		w := f.do(t, manager, http.MethodPost, store+"/movements", mv)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w := f.do(t, manager, http.MethodPost, store+"/count-sessions", map[string]any{"name": "Weekly count"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	session := decode(t, w)
	assert.Equal(t, "OPEN", session["status"])
	sessionPath := "/api/v1/count-sessions/" + session["id"].(string)

	w = f.do(t, manager, http.MethodPut, sessionPath+"/items/"+f.apples.String(), map[string]any{"physicalStock": 12})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	item := decode(t, w)
	assert.EqualValues(t, 10, item["expectedStock"])
	assert.EqualValues(t, 2, item["difference"])
	assert.Equal(t, "SURPLUS", item["classification"])

	w = f.do(t, manager, http.MethodPost, sessionPath+"/close", map[string]any{"reconcile": true})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	problem := decode(t, w)
	assert.Equal(t, "INCOMPLETE_COUNT", problem["code"])
	assert.Equal(t, []any{f.bread.String()}, problem["details"].(map[string]any)["missing_product_ids"])

	w = f.do(t, manager, http.MethodPut, sessionPath+"/items/"+f.bread.String(), map[string]any{"physicalStock": 2})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(t, manager, http.MethodPost, sessionPath+"/close", map[string]any{"reconcile": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	report := decode(t, w)
	summary := report["summary"].(map[string]any)
	assert.EqualValues(t, 2, summary["totalProducts"])
	assert.EqualValues(t, 1, summary["positiveDiscrepancies"])
	assert.EqualValues(t, 1, summary["negativeDiscrepancies"])
	assert.True(t, report["session"].(map[string]any)["reconciled"].(bool))

	w = f.do(t, manager, http.MethodGet, store+"/stock", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stock := map[string]float64{}
	for _, l := range decode(t, w)["levels"].([]any) {
		level := l.(map[string]any)
		stock[level["storeProductId"].(string)] = level["quantity"].(float64)
	}
	assert.Equal(t, float64(12), stock[f.apples.String()])
	assert.Equal(t, float64(2), stock[f.bread.String()])

	w = f.do(t, manager, http.MethodPut, sessionPath+"/items/"+f.apples.String(), map[string]any{"physicalStock": 1})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "SESSION_CLOSED", decode(t, w)["code"])

	w = f.do(t, manager, http.MethodGet, sessionPath+"/report.xlsx", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, export.XLSXContentType, w.Header().Get("Content-Type"))
	assert.NotZero(t, w.Body.Len())
}

func TestAPI_NegativeCountRejected(t *testing.T) {
	f := newAPIFixture(t)
	manager := f.token(t, security.CapManageInventory)

	w := f.do(t, manager, http.MethodPost, "/api/v1/stores/"+f.storeID.String()+"/count-sessions", map[string]any{"name": "n"})
	require.Equal(t, http.StatusCreated, w.Code)
	sessionID := decode(t, w)["id"].(string)

	w = f.do(t, manager, http.MethodPut, "/api/v1/count-sessions/"+sessionID+"/items/"+f.apples.String(), map[string]any{"physicalStock": -5})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_QUANTITY", decode(t, w)["code"])

	w = f.do(t, manager, http.MethodPut, "/api/v1/count-sessions/"+sessionID+"/items/"+f.apples.String(), map[string]any{"physicalStock": 3.5})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_QUANTITY", decode(t, w)["code"])

	w = f.do(t, manager, http.MethodPut, "/api/v1/count-sessions/"+sessionID+"/items/"+f.apples.String(), map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode(t, w)["code"])
}

func TestAPI_ViewerCannotMutate(t *testing.T) {
	f := newAPIFixture(t)
	viewer := f.token(t, security.CapViewInventory)
	store := "/api/v1/stores/" + f.storeID.String()

	w := f.do(t, viewer, http.MethodGet, store+"/products", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, decode(t, w)["totalCount"])

	w = f.do(t, viewer, http.MethodPost, store+"/movements",
		map[string]any{"storeProductId": f.apples.String(), "type": "INCOMING", "quantity": 1})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "PERMISSION_DENIED", decode(t, w)["code"])

	w = f.do(t, viewer, http.MethodPost, store+"/count-sessions", map[string]any{"name": "n"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	other := "/api/v1/stores/" + id.New().String()
	w = f.do(t, viewer, http.MethodGet, other+"/stock", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAPI_MovementForUnknownProduct(t *testing.T) {
	f := newAPIFixture(t)
	manager := f.token(t, security.CapManageInventory)

	w := f.do(t, manager, http.MethodPost, "/api/v1/stores/"+f.storeID.String()+"/movements",
		map[string]any{"storeProductId": id.New().String(), "type": "INCOMING", "quantity": 1})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, manager, http.MethodPost, "/api/v1/stores/"+f.storeID.String()+"/movements",
		map[string]any{"storeProductId": f.apples.String(), "type": "SALE", "quantity": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_QUANTITY", decode(t, w)["code"])
}

func TestAPI_ListSessionsByStatus(t *testing.T) {
	f := newAPIFixture(t)
	manager := f.token(t, security.CapManageInventory)
	store := "/api/v1/stores/" + f.storeID.String()

	w := f.do(t, manager, http.MethodPost, store+"/count-sessions", map[string]any{"name": "first"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do(t, manager, http.MethodGet, store+"/count-sessions?status=open", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["totalCount"])

	w = f.do(t, manager, http.MethodGet, store+"/count-sessions?status=finalized", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, decode(t, w)["totalCount"])

	w = f.do(t, manager, http.MethodGet, store+"/count-sessions?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPI_SessionAuditTrail(t *testing.T) {
	f := newAPIFixture(t)
	manager := f.token(t, security.CapManageInventory)

	w := f.do(t, manager, http.MethodPost, "/api/v1/stores/"+f.storeID.String()+"/count-sessions",
		map[string]any{"name": "Audited"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	auditPath := "/api/v1/count-sessions/" + decode(t, w)["id"].(string) + "/audit"

	w = f.do(t, manager, http.MethodGet, auditPath, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	items := decode(t, w)["items"].([]any)
	require.Len(t, items, 1)
	entry := items[0].(map[string]any)
	assert.Equal(t, "open", entry["action"])
	assert.Equal(t, "Audited", entry["changes"].(map[string]any)["name"])

	w = f.do(t, manager, http.MethodGet, auditPath+"?limit=500", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	outsider, _, err := f.jwt.GenerateAccessToken(auth.TokenSubject{
		UserID: "clerk-2",
		Stores: map[string][]string{id.New().String(): {string(security.CapViewInventory)}},
	})
	require.NoError(t, err)
	w = f.do(t, outsider, http.MethodGet, auditPath, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, manager, http.MethodGet, "/api/v1/count-sessions/"+id.New().String()+"/audit", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
