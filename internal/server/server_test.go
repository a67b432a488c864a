package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/sharemart/sharemart/internal/catalog"
	"github.com/sharemart/sharemart/internal/config"
	"github.com/sharemart/sharemart/internal/logging"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:                "8080",
		Env:                 "development",
		LogLevel:            "error",
		PlatformAccountID:   "pf00000001",
		PaymentProvider:     "cashfree",
		PaymentExpiryOffset: "+05:30",
	}
}

func testServer(t *testing.T) *Server {
	t.Helper()

	cat := catalog.NewMemoryStore()
	rent, _ := decimal.NewFromString("100")
	cat.PutProduct(&catalog.Product{ID: "prd0000001", Name: "Trek Bicycle", OwnerID: "own0000001", Rent: rent})
	cat.PutUser(&catalog.User{ID: "cst0000001", Name: "Asha", Email: "asha@example.com"})
	cat.PutUser(&catalog.User{ID: "own0000001", Name: "Ravi", Email: "ravi@example.com"})

	s, err := New(testConfig(), WithLogger(logging.Nop()), WithCatalog(cat))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func doJSON(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	s.Router().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoints(t *testing.T) {
	s := testServer(t)

	w := doJSON(t, s, "GET", "/health", "")
	if w.Code != http.StatusOK {
		t.Errorf("/health status = %d", w.Code)
	}

	w = doJSON(t, s, "GET", "/health/live", "")
	if w.Code != http.StatusOK {
		t.Errorf("/health/live status = %d", w.Code)
	}

	// Not ready until Run() flips the flag
	w = doJSON(t, s, "GET", "/health/ready", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("/health/ready status = %d, want 503", w.Code)
	}

	w = doJSON(t, s, "GET", "/metrics", "")
	if w.Code != http.StatusOK {
		t.Errorf("/metrics status = %d", w.Code)
	}
}

func TestInfoEndpoint(t *testing.T) {
	s := testServer(t)

	w := doJSON(t, s, "GET", "/api", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "ShareMart") {
		t.Errorf("unexpected body: %s", w.Body.String())
	}
}

// Full SHARE lifecycle through the HTTP surface: place, approve twice,
// exchange twice, return twice, closed at the end.
func TestShareLifecycleOverHTTP(t *testing.T) {
	s := testServer(t)

	w := doJSON(t, s, "POST", "/v1/quotes", `{
		"productId": "prd0000001",
		"customerId": "cst0000001",
		"exchangeType": "SHARE",
		"fromDate": "10/09/2026",
		"toDate": "20/09/2026"
	}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("place: status = %d: %s", w.Code, w.Body.String())
	}

	var created struct {
		Quote struct {
			ID string `json:"id"`
		} `json:"quote"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	quoteID := created.Quote.ID

	steps := []struct {
		path  string
		actor string
	}{
		{"approve", "cst0000001"}, {"approve", "own0000001"},
		{"exchange", "cst0000001"}, {"exchange", "own0000001"},
		{"return", "cst0000001"}, {"return", "own0000001"},
	}
	for _, step := range steps {
		w := doJSON(t, s, "POST", "/v1/quotes/"+quoteID+"/"+step.path,
			`{"actorId": "`+step.actor+`"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("%s by %s: status = %d: %s", step.path, step.actor, w.Code, w.Body.String())
		}
	}

	w = doJSON(t, s, "GET", "/v1/quotes/"+quoteID, "")
	var final struct {
		Quote struct {
			IsClosed    bool   `json:"isClosed"`
			IsExchanged bool   `json:"isExchanged"`
			Status      string `json:"status"`
		} `json:"quote"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &final); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !final.Quote.IsClosed || !final.Quote.IsExchanged {
		t.Errorf("final quote = %+v, want exchanged and closed", final.Quote)
	}
	if final.Quote.Status != "IN_TRANSIT" {
		t.Errorf("status = %s", final.Quote.Status)
	}
}

func TestRentApprovalWithoutProviderFails(t *testing.T) {
	// No provider credentials configured: RENT quotes approve on one side
	// but fail settlement with 502 when the second approval lands.
	s := testServer(t)

	w := doJSON(t, s, "POST", "/v1/quotes", `{
		"productId": "prd0000001",
		"customerId": "cst0000001",
		"exchangeType": "RENT",
		"fromDate": "10/09/2026",
		"toDate": "20/09/2026"
	}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("place: status = %d: %s", w.Code, w.Body.String())
	}
	var created struct {
		Quote struct {
			ID string `json:"id"`
		} `json:"quote"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}

	w = doJSON(t, s, "POST", "/v1/quotes/"+created.Quote.ID+"/approve", `{"actorId": "cst0000001"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("first approve: status = %d: %s", w.Code, w.Body.String())
	}
	w = doJSON(t, s, "POST", "/v1/quotes/"+created.Quote.ID+"/approve", `{"actorId": "own0000001"}`)
	if w.Code != http.StatusBadGateway {
		t.Errorf("second approve: status = %d, want 502: %s", w.Code, w.Body.String())
	}
}

func TestWalletEndpoint(t *testing.T) {
	s := testServer(t)

	w := doJSON(t, s, "GET", "/v1/wallets/cst0000001", "")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d: %s", w.Code, w.Body.String())
	}
}

func TestInvalidIDParamRejected(t *testing.T) {
	s := testServer(t)

	w := doJSON(t, s, "GET", "/v1/quotes/has-hyphens!", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400: %s", w.Code, w.Body.String())
	}
}

func TestSecurityHeaders(t *testing.T) {
	s := testServer(t)

	w := doJSON(t, s, "GET", "/api", "")
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := w.Header().Get("X-Request-ID"); got == "" {
		t.Error("X-Request-ID header missing")
	}
}
