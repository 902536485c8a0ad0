package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"posmbe/backend/internal/service"
	"posmbe/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, nil, 0)
	auth := NewAuthManager(testSecret, 10*time.Minute, time.Hour, repo)

	return New(svc, auth, Options{AllowedOrigins: []string{"http://127.0.0.1:3000"}})
}

func doJSON(t *testing.T, handler http.Handler, method string, path string, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

func login(t *testing.T, handler http.Handler, path string, username string, password string) string {
	t.Helper()
	rec := doJSON(t, handler, http.MethodPost, path, "", map[string]string{"username": username, "password": password})
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s as %s: expected 200, got %d: %s", path, username, rec.Code, rec.Body.String())
	}
	token, _ := decodeBody(t, rec)["token"].(string)
	if token == "" {
		t.Fatalf("login returned no token")
	}
	return token
}

func TestHandleHealth(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestLoginEndpointsAreRoleSpecific(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodPost, "/login", "", map[string]string{"username": "admin", "password": "admin123"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected admin to be refused at /login, got %d", rec.Code)
	}

	login(t, handler, "/admin-login", "admin", "admin123")
	login(t, handler, "/login", "manager", "manager123")
}

func TestProtectedRoutesNeedBearerToken(t *testing.T) {
	handler := newTestAPI(t).Handler()

	if rec := doJSON(t, handler, http.MethodGet, "/stock", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	if rec := doJSON(t, handler, http.MethodGet, "/stock", "garbage", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", rec.Code)
	}

	managerToken := login(t, handler, "/login", "manager", "manager123")
	rec := doJSON(t, handler, http.MethodPost, "/api/delete-sale", managerToken, map[string]int{"sale_id": 1})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for manager on admin route, got %d", rec.Code)
	}
}

func TestInvoiceSubmissionAndInstalmentPaymentFlow(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := login(t, handler, "/login", "manager", "manager123")

	rec := doJSON(t, handler, http.MethodPost, "/invoice-submission", token, map[string]any{
		"cnic":           "35202-1234567-1",
		"payment_status": "Instalments",
		"items": []map[string]any{
			{"model": "X100", "shop_id": 1, "quantity": 2, "selling_price": 1000, "discount": 0},
		},
		"installments": map[string]any{
			"total_instalments": 4,
			"margin_percentage": 10,
			"down_payment":      500,
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	receipt := decodeBody(t, rec)
	saleID := int(receipt["sale_id"].(float64))
	plan := receipt["instalment"].(map[string]any)
	if plan["total_loan"].(float64) != 1700 || plan["total_instalment_amount"].(float64) != 425 {
		t.Fatalf("unexpected plan: %v", plan)
	}
	instalmentID := int(plan["instalment_id"].(float64))

	rec = doJSON(t, handler, http.MethodGet, "/check-stock?model=X100&shop_id=1", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("check stock: expected 200, got %d", rec.Code)
	}
	stock := decodeBody(t, rec)["stock"].(map[string]any)
	if stock["quantity"].(float64) != 3 {
		t.Fatalf("expected quantity 3, got %v", stock["quantity"])
	}

	rec = doJSON(t, handler, http.MethodPost, "/pay-instalment", token, map[string]any{
		"instalment_id":  instalmentID,
		"sale_id":        saleID,
		"cnic":           "35202-1234567-1",
		"payment_amount": 2000,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("pay instalment: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	result := decodeBody(t, rec)
	if result["fully_paid"] != true || result["overpayment"].(float64) != 300 {
		t.Fatalf("expected payoff with overpayment 300, got %v", result)
	}

	rec = doJSON(t, handler, http.MethodPost, "/pay-instalment", token, map[string]any{
		"instalment_id":  instalmentID,
		"payment_amount": 0,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for zero payment, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/sale/"+strconv.Itoa(saleID), token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("sale detail: expected 200, got %d", rec.Code)
	}
	if payments := decodeBody(t, rec)["payments"].([]any); len(payments) != 1 {
		t.Fatalf("expected one payment on the sale, got %d", len(payments))
	}
}

func TestInvoiceSubmissionOutOfStockReturns409(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := login(t, handler, "/admin-login", "admin", "admin123")

	rec := doJSON(t, handler, http.MethodPost, "/invoice-submission", token, map[string]any{
		"cnic":           "35202-1234567-1",
		"payment_status": "Paid",
		"items": []map[string]any{
			{"model": "WM-7", "shop_id": 2, "quantity": 4, "selling_price": 700},
		},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["model"] != "WM-7" || body["available"].(float64) != 3 || body["requested"].(float64) != 4 {
		t.Fatalf("unexpected out of stock body: %v", body)
	}
	if !strings.Contains(body["error"].(string), "Available: 3") {
		t.Fatalf("unexpected error message: %v", body["error"])
	}
}

func TestUnpaidSaleLookupAndSettlement(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := login(t, handler, "/login", "manager", "manager123")

	rec := doJSON(t, handler, http.MethodPost, "/invoice-submission", token, map[string]any{
		"cnic":           "35202-1234567-1",
		"payment_status": "Unpaid",
		"items": []map[string]any{
			{"model": "A52", "shop_id": 1, "quantity": 1, "selling_price": 450},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	saleID := int(decodeBody(t, rec)["sale_id"].(float64))

	rec = doJSON(t, handler, http.MethodGet, "/unpaid-sale/35202-1234567-1", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unpaid lookup: expected 200, got %d", rec.Code)
	}
	unpaid := decodeBody(t, rec)["unpaid_sale"].(map[string]any)
	if unpaid["total_unpaid_amount"].(float64) != 450 {
		t.Fatalf("unexpected unpaid sale: %v", unpaid)
	}

	for i := 0; i < 2; i++ {
		rec = doJSON(t, handler, http.MethodPost, "/pay-unpaid-sale", token, map[string]any{"sale_id": saleID})
		if rec.Code != http.StatusOK {
			t.Fatalf("settle #%d: expected 200, got %d", i+1, rec.Code)
		}
	}

	rec = doJSON(t, handler, http.MethodPost, "/pay-unpaid-sale", token, map[string]any{"sale_id": 999})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown unpaid sale, got %d", rec.Code)
	}
}

func TestStockRoutes(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := login(t, handler, "/admin-login", "admin", "admin123")

	add := map[string]any{"model": "R-90", "shop_id": 2, "brand": "PEL", "name": "Fridge", "quantity": 4, "purchasing_price": 1200, "selling_price": 1500}
	if rec := doJSON(t, handler, http.MethodPost, "/stock/add", token, add); rec.Code != http.StatusCreated {
		t.Fatalf("add stock: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := doJSON(t, handler, http.MethodPost, "/stock/add", token, add); rec.Code != http.StatusBadRequest {
		t.Fatalf("duplicate add: expected 400, got %d", rec.Code)
	}

	rec := doJSON(t, handler, http.MethodPut, "/stock/update", token, map[string]any{
		"stock": []map[string]any{
			{"model": "R-90", "shop_id": 2, "brand": "PEL", "name": "Fridge", "quantity": 1, "purchasing_price": 1200, "selling_price": 1500},
			{"model": "MISSING", "shop_id": 2, "quantity": 1},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update stock: expected 200, got %d", rec.Code)
	}
	results := decodeBody(t, rec)["updated_stock"].([]any)
	if len(results) != 2 {
		t.Fatalf("expected two results, got %d", len(results))
	}
	if first := results[0].(map[string]any); first["message"] != "updated" {
		t.Fatalf("unexpected first result: %v", first)
	}

	rec = doJSON(t, handler, http.MethodGet, "/stock/2", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stock by shop: expected 200, got %d", rec.Code)
	}
	for _, raw := range decodeBody(t, rec)["stock"].([]any) {
		item := raw.(map[string]any)
		if item["shop_id"].(float64) != 2 {
			t.Fatalf("stock/2 returned shop %v", item["shop_id"])
		}
		if item["model"] == "R-90" && item["quantity"].(float64) != 5 {
			t.Fatalf("expected R-90 quantity 5, got %v", item["quantity"])
		}
	}

	if rec := doJSON(t, handler, http.MethodGet, "/stock/abc", token, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad shop id, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/delete-ledger", token, map[string]any{"ledger_id": 1})
	if rec.Code != http.StatusOK {
		t.Fatalf("delete ledger: expected 200, got %d", rec.Code)
	}
	if entry := decodeBody(t, rec)["deleted_entry"].(map[string]any); entry["model"] != "X100" {
		t.Fatalf("unexpected deleted entry: %v", entry)
	}
}

func TestManagerCannotTouchOtherShop(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := login(t, handler, "/login", "manager", "manager123")

	if rec := doJSON(t, handler, http.MethodGet, "/stock/2", token, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 listing other shop, got %d", rec.Code)
	}
	rec := doJSON(t, handler, http.MethodPost, "/stock/add", token, map[string]any{"model": "Z1", "shop_id": 2, "quantity": 1})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 adding to other shop, got %d", rec.Code)
	}
}

func TestAddUserAndShop(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := login(t, handler, "/admin-login", "admin", "admin123")

	rec := doJSON(t, handler, http.MethodPost, "/add-shop", token, map[string]any{"name": "Airport Kiosk", "location": "Terminal 1"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add shop: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	shopID := decodeBody(t, rec)["shop"].(map[string]any)["shop_id"].(float64)

	rec = doJSON(t, handler, http.MethodPost, "/add-user", token, map[string]any{
		"name": "Kiosk Lead", "username": "kiosk", "password": "kiosk-pass", "role": "manager", "shop_id": shopID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add user: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "kiosk-pass") || strings.Contains(rec.Body.String(), "$2a$") {
		t.Fatalf("user response must not leak the password")
	}

	rec = doJSON(t, handler, http.MethodPost, "/add-user", token, map[string]any{
		"username": "nobody", "password": "secret1", "role": "manager",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("manager without shop: expected 400, got %d", rec.Code)
	}

	login(t, handler, "/login", "kiosk", "kiosk-pass")

	rec = doJSON(t, handler, http.MethodGet, "/api/audit-logs", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("audit logs: expected 200, got %d", rec.Code)
	}
	if logs := decodeBody(t, rec)["logs"].([]any); len(logs) < 2 {
		t.Fatalf("expected shop and user creation to be audited, got %d entries", len(logs))
	}
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := login(t, handler, "/admin-login", "admin", "admin123")

	rec := doJSON(t, handler, http.MethodPost, "/pay-unpaid-sale", token, map[string]any{"sale_id": 1, "extra": true})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rec.Code)
	}
}
