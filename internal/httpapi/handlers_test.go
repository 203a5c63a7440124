package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/arpitthekumar/clothinv-e-com-sub000/internal/cache"
	"github.com/arpitthekumar/clothinv-e-com-sub000/internal/domain"
	"github.com/arpitthekumar/clothinv-e-com-sub000/internal/service"
	"github.com/arpitthekumar/clothinv-e-com-sub000/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, cache.NoopReportCache{}, "main-store", 0)
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	return New(svc, auth, "*")
}

func loginAs(t *testing.T, handler http.Handler, username string, password string) string {
	t.Helper()

	payload, _ := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("login as %s failed: %d (%s)", username, rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.AccessToken
}

func doJSON(handler http.Handler, method string, path string, token string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
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

func firstProductID(t *testing.T, handler http.Handler, token string) string {
	t.Helper()
	rec := doJSON(handler, http.MethodGet, "/api/v1/products", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list products failed: %d (%s)", rec.Code, rec.Body.String())
	}
	var body struct {
		Products []domain.Product `json:"products"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode products: %v", err)
	}
	if len(body.Products) == 0 {
		t.Fatalf("expected seeded products")
	}
	return body.Products[0].ID
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLoginInvalidCredentials(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(map[string]string{
		"username": "admin",
		"password": "wrongpassword",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestEndpointsRejectMissingToken(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	for _, path := range []string{
		"/api/v1/products",
		"/api/v1/sales",
		"/api/v1/returns",
		"/api/v1/orders",
		"/api/v1/payments",
		"/api/v1/reports/daily",
	} {
		rec := doJSON(handler, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401 without token, got %d", path, rec.Code)
		}
	}
}

func TestReturnsForbiddenForCashier(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "cashier", "cashier123")

	rec := doJSON(handler, http.MethodPost, "/api/v1/returns", token, domain.ReturnRequest{
		SaleID: "sale-x",
		Items:  []domain.ReturnLineInput{{ProductID: "p", Quantity: 1}},
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier return, got %d", rec.Code)
	}
}

func TestSaleAndReturnFlow(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	admin := loginAs(t, handler, "admin", "admin123")
	cashier := loginAs(t, handler, "cashier", "cashier123")

	productID := firstProductID(t, handler, cashier)

	rec := doJSON(handler, http.MethodPost, "/api/v1/sales", cashier, domain.SaleCreateRequest{
		Items:      []domain.SaleLineInput{{ProductID: productID, Quantity: 2}},
		TaxPercent: 10,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create sale: expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	var saleResp domain.SaleResponse
	if err := json.NewDecoder(rec.Body).Decode(&saleResp); err != nil {
		t.Fatalf("decode sale: %v", err)
	}
	if saleResp.Sale.InvoiceNumber == "" {
		t.Fatalf("expected invoice number on created sale")
	}

	rec = doJSON(handler, http.MethodPost, "/api/v1/returns", admin, domain.ReturnRequest{
		SaleID: saleResp.Sale.ID,
		Items:  []domain.ReturnLineInput{{ProductID: productID, Quantity: 1}},
		Reason: "damaged",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("return: expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	var retResp domain.ReturnResponse
	if err := json.NewDecoder(rec.Body).Decode(&retResp); err != nil {
		t.Fatalf("decode return: %v", err)
	}
	if len(retResp.Sale.Items) != 1 || retResp.Sale.Items[0].Quantity != 1 {
		t.Fatalf("expected one remaining unit on sale, got %+v", retResp.Sale.Items)
	}

	// Over-return of the remaining unit by two.
	rec = doJSON(handler, http.MethodPost, "/api/v1/returns", admin, domain.ReturnRequest{
		SaleID: saleResp.Sale.ID,
		Items:  []domain.ReturnLineInput{{ProductID: productID, Quantity: 2}},
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("over-return: expected 422, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestOrderStatusFlowOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	admin := loginAs(t, handler, "admin", "admin123")

	productID := firstProductID(t, handler, admin)

	rec := doJSON(handler, http.MethodPost, "/api/v1/orders", admin, domain.OrderCreateRequest{
		CustomerName: "Sam Doe",
		Items:        []domain.SaleLineInput{{ProductID: productID, Quantity: 1}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create order: expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	var orderResp domain.OrderResponse
	if err := json.NewDecoder(rec.Body).Decode(&orderResp); err != nil {
		t.Fatalf("decode order: %v", err)
	}
	orderID := orderResp.Order.ID

	statusPath := fmt.Sprintf("/api/v1/orders/%s/status", orderID)

	// Illegal jump straight to delivered.
	rec = doJSON(handler, http.MethodPatch, statusPath, admin, domain.OrderStatusUpdateRequest{Status: "delivered"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("created->delivered: expected 409, got %d (%s)", rec.Code, rec.Body.String())
	}

	for _, status := range []string{"packed", "shipped", "delivered"} {
		rec = doJSON(handler, http.MethodPatch, statusPath, admin, domain.OrderStatusUpdateRequest{Status: status})
		if rec.Code != http.StatusOK {
			t.Fatalf("transition to %s: expected 200, got %d (%s)", status, rec.Code, rec.Body.String())
		}
	}

	var statusResp domain.OrderStatusResponse
	rec = doJSON(handler, http.MethodPatch, statusPath, admin, domain.OrderStatusUpdateRequest{Status: "delivered"})
	if rec.Code != http.StatusOK {
		t.Fatalf("repeat delivery: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if err := json.NewDecoder(rec.Body).Decode(&statusResp); err != nil {
		t.Fatalf("decode status response: %v", err)
	}
	if statusResp.MovedToSaleID == "" {
		t.Fatalf("expected moved_to_sale_id on delivered order")
	}
}

func TestUnknownSaleReturns404(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	admin := loginAs(t, handler, "admin", "admin123")

	rec := doJSON(handler, http.MethodGet, "/api/v1/sales/does-not-exist", admin, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown sale, got %d", rec.Code)
	}
}

func TestSecurityHeadersPresent(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("expected nosniff header")
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatalf("expected frame deny header")
	}
}

func TestPaymentRecordAndFetchOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "cashier", "cashier123")

	rec := doJSON(handler, http.MethodPost, "/api/v1/payments", token, map[string]any{
		"provider":     "midtrans",
		"amount_cents": 9900,
		"method":       "qris",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("record payment failed: %d (%s)", rec.Code, rec.Body.String())
	}
	var created domain.PaymentResponse
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode payment: %v", err)
	}

	rec = doJSON(handler, http.MethodGet, "/api/v1/payments/"+created.Payment.ID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("fetch payment failed: %d (%s)", rec.Code, rec.Body.String())
	}
	var fetched domain.PaymentResponse
	if err := json.NewDecoder(rec.Body).Decode(&fetched); err != nil {
		t.Fatalf("decode payment: %v", err)
	}
	if fetched.Payment.ID != created.Payment.ID || fetched.Payment.AmountCents != 9900 {
		t.Fatalf("unexpected payment: %+v", fetched.Payment)
	}

	rec = doJSON(handler, http.MethodGet, "/api/v1/payments/pay_missing", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown payment, got %d", rec.Code)
	}
}
