package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tokosera/backend/internal/domain"
	"tokosera/backend/internal/service"
	"tokosera/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, nil, time.Second, zerolog.Nop())
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	return New(svc, auth, "*", 5, time.Minute, zerolog.Nop())
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

func doRequest(t *testing.T, api *API, method, path, token string, payload any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode envelope: %v (body: %s)", err, rec.Body.String())
		}
	}
	return rec, env
}

func loginAs(t *testing.T, api *API, username, password string) string {
	t.Helper()

	rec, env := doRequest(t, api, http.MethodPost, "/api/auth/login", "", domain.LoginRequest{
		Username: username,
		Password: password,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login as %s: expected 200, got %d (body: %s)", username, rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.AccessToken
}

func firstProduct(t *testing.T, api *API, token string) domain.Product {
	t.Helper()

	rec, env := doRequest(t, api, http.MethodGet, "/api/products", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list products: expected 200, got %d", rec.Code)
	}
	var products []domain.Product
	if err := json.Unmarshal(env.Data, &products); err != nil {
		t.Fatalf("decode products: %v", err)
	}
	if len(products) == 0 {
		t.Fatalf("expected seeded products")
	}
	return products[0]
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)

	rec, env := doRequest(t, api, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !env.Success {
		t.Fatalf("expected success envelope, got %s", rec.Body.String())
	}
}

func TestHandleLoginSuccess(t *testing.T) {
	api := newTestAPI(t)

	token := loginAs(t, api, "admin", "admin123")
	if token == "" {
		t.Fatalf("expected non-empty access token")
	}
}

func TestHandleLoginInvalidCredentials(t *testing.T) {
	api := newTestAPI(t)

	rec, env := doRequest(t, api, http.MethodPost, "/api/auth/login", "", domain.LoginRequest{
		Username: "admin",
		Password: "wrongpassword",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if env.Success {
		t.Fatalf("expected failure envelope")
	}
}

func TestMeReturnsActor(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "cashier", "cashier123")

	rec, env := doRequest(t, api, http.MethodGet, "/api/auth/me", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var me map[string]string
	if err := json.Unmarshal(env.Data, &me); err != nil {
		t.Fatalf("decode me: %v", err)
	}
	if me["username"] != "cashier" || me["role"] != domain.RoleCashier {
		t.Fatalf("unexpected me payload %v", me)
	}
}

func TestProductsRequireAuth(t *testing.T) {
	api := newTestAPI(t)

	rec, env := doRequest(t, api, http.MethodGet, "/api/products", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if env.Success {
		t.Fatalf("expected failure envelope")
	}
}

func TestCashierCannotCreateProduct(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "cashier", "cashier123")

	rec, _ := doRequest(t, api, http.MethodPost, "/api/products", token, domain.ProductCreateRequest{
		Name:       "Teh Botol",
		Category:   "beverage",
		PriceCents: 5000,
		CostCents:  3500,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier product create, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestAdminCreatesProductWithGeneratedSKU(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "admin", "admin123")

	rec, env := doRequest(t, api, http.MethodPost, "/api/products", token, domain.ProductCreateRequest{
		Name:       "Teh Botol",
		Category:   "beverage",
		PriceCents: 5000,
		CostCents:  3500,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var product domain.Product
	if err := json.Unmarshal(env.Data, &product); err != nil {
		t.Fatalf("decode product: %v", err)
	}
	// The seeded catalog occupies PRD-00001 through PRD-00006.
	if product.SKU != "PRD-00007" {
		t.Fatalf("expected generated SKU PRD-00007, got %q", product.SKU)
	}
}

func TestDuplicateProductNameConflicts(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "admin", "admin123")

	req := domain.ProductCreateRequest{
		Name:       "Gula 1kg",
		Category:   "grocery",
		PriceCents: 17400,
		CostCents:  15300,
	}
	rec, _ := doRequest(t, api, http.MethodPost, "/api/products", token, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate name, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestSaleVoidLifecycleOverAPI(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "admin", "admin123")
	product := firstProduct(t, api, token)

	rec, env := doRequest(t, api, http.MethodPost, "/api/sales", token, domain.SaleCreateRequest{
		PaymentMethod: "cash",
		Items:         []domain.SaleLineRequest{{ProductID: product.ID, Qty: 2}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 sale, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var sale domain.Sale
	if err := json.Unmarshal(env.Data, &sale); err != nil {
		t.Fatalf("decode sale: %v", err)
	}
	if sale.Status != domain.SaleStatusCompleted {
		t.Fatalf("expected completed sale, got %q", sale.Status)
	}

	rec, _ = doRequest(t, api, http.MethodPost, "/api/sales/"+sale.ID+"/void", token, domain.SaleVoidRequest{Reason: "wrong items"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 void, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	// Voiding twice must be rejected.
	rec, _ = doRequest(t, api, http.MethodPost, "/api/sales/"+sale.ID+"/void", token, domain.SaleVoidRequest{Reason: "again"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for double void, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestStockAdjustmentInsufficientStockConflicts(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "admin", "admin123")
	product := firstProduct(t, api, token)

	rec, _ := doRequest(t, api, http.MethodPost, "/api/stock-adjustments", token, domain.StockAdjustmentRequest{
		ProductID: product.ID,
		Type:      domain.MovementAdjustmentOut,
		Qty:       product.QtyOnHand + 1000,
		Note:      "shrinkage test",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for oversize out-adjustment, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHoldListResumeOverAPI(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "cashier", "cashier123")
	product := firstProduct(t, api, token)

	rec, env := doRequest(t, api, http.MethodPost, "/api/pos/hold", token, domain.HoldCreateRequest{
		Note:  "customer stepped out",
		Items: []domain.HeldOrderItem{{ProductID: product.ID, Qty: 1}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 hold, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var hold domain.HeldOrder
	if err := json.Unmarshal(env.Data, &hold); err != nil {
		t.Fatalf("decode hold: %v", err)
	}

	rec, env = doRequest(t, api, http.MethodGet, "/api/pos/hold", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 hold list, got %d", rec.Code)
	}
	var holds []domain.HeldOrder
	if err := json.Unmarshal(env.Data, &holds); err != nil {
		t.Fatalf("decode holds: %v", err)
	}
	if len(holds) != 1 {
		t.Fatalf("expected 1 active hold, got %d", len(holds))
	}

	rec, _ = doRequest(t, api, http.MethodPost, "/api/pos/hold/"+hold.ID+"/resume", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 resume, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	// Resuming again must fail: the hold is no longer active.
	rec, _ = doRequest(t, api, http.MethodPost, "/api/pos/hold/"+hold.ID+"/resume", token, nil)
	if rec.Code == http.StatusOK {
		t.Fatalf("expected second resume to fail")
	}
}

func TestUnknownSaleReturns404(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "admin", "admin123")

	rec, _ := doRequest(t, api, http.MethodGet, "/api/sales/sale-does-not-exist", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
