package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/sharemart/sharemart/internal/logging"
)

const testSecret = "whsec_test"

func setupRouter(t *testing.T, secret string) (*gin.Engine, *fixture) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := newFixture(t)
	h := NewHandler(f.svc, secret, logging.Nop())

	r := gin.New()
	h.RegisterRoutes(r.Group("/"))
	h.RegisterWebhook(r.Group("/"))
	return r, f
}

func sign(secret, timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func postWebhook(r *gin.Engine, payload []byte, headers map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/webhooks/payments", strings.NewReader(string(payload)))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestWebhookEndpoint_SignedPaid(t *testing.T) {
	r, f := setupRouter(t, testSecret)
	link, err := f.svc.CreateLink(context.Background(), linkRequest())
	if err != nil {
		t.Fatal(err)
	}

	payload := paidPayload(link.ID)
	w := postWebhook(r, payload, map[string]string{
		"x-webhook-timestamp": "1756400000",
		"x-webhook-signature": sign(testSecret, "1756400000", payload),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	got, err := f.svc.GetByQuote(context.Background(), quoteID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != LinkPaid {
		t.Errorf("status = %s, want PAID", got.Status)
	}
}

func TestWebhookEndpoint_BadSignature(t *testing.T) {
	r, f := setupRouter(t, testSecret)
	link, err := f.svc.CreateLink(context.Background(), linkRequest())
	if err != nil {
		t.Fatal(err)
	}

	payload := paidPayload(link.ID)

	w := postWebhook(r, payload, map[string]string{
		"x-webhook-timestamp": "1756400000",
		"x-webhook-signature": sign("wrong-secret", "1756400000", payload),
	})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}

	// missing signature entirely
	w = postWebhook(r, payload, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}

	got, err := f.svc.GetByQuote(context.Background(), quoteID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != LinkActive {
		t.Errorf("rejected webhook must not change link status, got %s", got.Status)
	}
}

func TestWebhookEndpoint_NoSecretSkipsVerification(t *testing.T) {
	r, f := setupRouter(t, "")
	link, err := f.svc.CreateLink(context.Background(), linkRequest())
	if err != nil {
		t.Fatal(err)
	}

	w := postWebhook(r, paidPayload(link.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
}

func TestWebhookEndpoint_UnknownLink(t *testing.T) {
	r, _ := setupRouter(t, "")

	w := postWebhook(r, paidPayload("pl_unknown"), nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestGetLinkEndpoint(t *testing.T) {
	r, f := setupRouter(t, "")
	link, err := f.svc.CreateLink(context.Background(), linkRequest())
	if err != nil {
		t.Fatal(err)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/quotes/"+quoteID+"/payment-link", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), link.ID) {
		t.Errorf("response does not carry the link: %s", w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/quotes/unknown001/payment-link", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
