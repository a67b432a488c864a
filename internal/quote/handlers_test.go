package quote

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/sharemart/sharemart/internal/logging"
)

func setupRouter(t *testing.T) (*gin.Engine, *fixture) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := newFixture(t)
	h := NewHandler(f.svc, logging.Nop())

	r := gin.New()
	h.RegisterRoutes(r.Group("/"))
	return r, f
}

func postJSON(r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestPlaceEndpoint(t *testing.T) {
	r, _ := setupRouter(t)

	w := postJSON(r, "/quotes", `{
		"productId": "prd0000001",
		"customerId": "cst0000001",
		"exchangeType": "RENT",
		"fromDate": "10/09/2026",
		"toDate": "20/09/2026",
		"meetupPoint": "Central Park gate"
	}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Quote struct {
			ID            string `json:"id"`
			Status        string `json:"status"`
			RentAmount    string `json:"rentAmount"`
			DepositAmount string `json:"depositAmount"`
		} `json:"quote"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Quote.Status != "PLACED" {
		t.Errorf("status = %s", resp.Quote.Status)
	}
	if resp.Quote.RentAmount != "100" {
		t.Errorf("rentAmount = %s, want 100", resp.Quote.RentAmount)
	}
	if resp.Quote.DepositAmount != "25" {
		t.Errorf("depositAmount = %s, want 25", resp.Quote.DepositAmount)
	}
}

func TestPlaceEndpoint_MissingFields(t *testing.T) {
	r, _ := setupRouter(t)

	w := postJSON(r, "/quotes", `{"productId": "prd0000001"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestGetEndpoint_NotFound(t *testing.T) {
	r, _ := setupRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/quotes/nope000001", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestListEndpoint_RequiresFilter(t *testing.T) {
	r, _ := setupRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/quotes", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestApproveEndpoint_StrangerForbidden(t *testing.T) {
	r, f := setupRouter(t)
	q := place(t, f, "SHARE")

	w := postJSON(r, "/quotes/"+q.ID+"/approve", `{"actorId": "xxx0000001"}`)
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403: %s", w.Code, w.Body.String())
	}
}

func TestApproveEndpoint_ProviderFailure(t *testing.T) {
	r, f := setupRouter(t)
	f.links.fail = true
	q := place(t, f, "RENT")

	w := postJSON(r, "/quotes/"+q.ID+"/approve", `{"actorId": "cst0000001"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("first approval: status = %d: %s", w.Code, w.Body.String())
	}

	w = postJSON(r, "/quotes/"+q.ID+"/approve", `{"actorId": "own0000001"}`)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Quote struct {
			Status     string `json:"status"`
			IsApproved bool   `json:"isApproved"`
		} `json:"quote"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Quote.Status != "APPROVED" || !resp.Quote.IsApproved {
		t.Errorf("quote = %+v, want retryable APPROVED", resp.Quote)
	}
}

func TestRejectEndpoint_ThenActionsConflict(t *testing.T) {
	r, f := setupRouter(t)
	q := place(t, f, "SHARE")

	w := postJSON(r, "/quotes/"+q.ID+"/reject", `{"actorId": "own0000001", "remarks": "not available"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	w = postJSON(r, "/quotes/"+q.ID+"/approve", `{"actorId": "cst0000001"}`)
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestExchangeAndReturnEndpoints(t *testing.T) {
	r, f := setupRouter(t)
	q := place(t, f, "SHARE")
	approveBoth(t, f, q.ID)

	for _, actor := range []string{"cst0000001", "own0000001"} {
		w := postJSON(r, "/quotes/"+q.ID+"/exchange", `{"actorId": "`+actor+`"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("exchange %s: status = %d: %s", actor, w.Code, w.Body.String())
		}
	}
	for _, actor := range []string{"cst0000001", "own0000001"} {
		w := postJSON(r, "/quotes/"+q.ID+"/return", `{"actorId": "`+actor+`"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("return %s: status = %d: %s", actor, w.Code, w.Body.String())
		}
	}

	var resp struct {
		Quote struct {
			IsClosed bool `json:"isClosed"`
		} `json:"quote"`
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/quotes/"+q.ID, nil))
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !resp.Quote.IsClosed {
		t.Error("quote should be closed after both returns")
	}
}
