package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestAllowWithinBurst(t *testing.T) {
	l := New(Config{
		RequestsPerMinute: 60,
		BurstSize:         5,
		CleanupInterval:   time.Minute,
	})
	defer l.Stop()

	for i := 0; i < 5; i++ {
		if !l.Allow("10.1.2.3") {
			t.Fatalf("request %d should be allowed within burst", i+1)
		}
	}
	if l.Allow("10.1.2.3") {
		t.Error("request beyond burst should be denied")
	}
}

func TestAllowIsolatesKeys(t *testing.T) {
	l := New(Config{
		RequestsPerMinute: 60,
		BurstSize:         1,
		CleanupInterval:   time.Minute,
	})
	defer l.Stop()

	if !l.Allow("client-a") {
		t.Error("first request for client-a should pass")
	}
	if !l.Allow("client-b") {
		t.Error("client-b should not share client-a's bucket")
	}
}

func TestTokenRefill(t *testing.T) {
	l := New(Config{
		RequestsPerMinute: 6000, // 100/sec so refill is fast
		BurstSize:         1,
		CleanupInterval:   time.Minute,
	})
	defer l.Stop()

	if !l.Allow("k") {
		t.Fatal("first request should pass")
	}
	if l.Allow("k") {
		t.Fatal("second immediate request should be denied")
	}

	time.Sleep(50 * time.Millisecond)
	if !l.Allow("k") {
		t.Error("request after refill window should pass")
	}
}

func TestMiddlewareExemptsWebhooks(t *testing.T) {
	gin.SetMode(gin.TestMode)

	l := New(Config{
		RequestsPerMinute: 1,
		BurstSize:         1,
		CleanupInterval:   time.Minute,
		ExemptPrefixes:    []string{"/webhooks/"},
	})
	defer l.Stop()

	router := gin.New()
	router.Use(l.Middleware())
	router.POST("/webhooks/payment", func(c *gin.Context) { c.String(200, "ok") })
	router.GET("/quotes", func(c *gin.Context) { c.String(200, "ok") })

	// Webhook deliveries are never throttled
	for i := 0; i < 10; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("POST", "/webhooks/payment", nil))
		if w.Code != 200 {
			t.Fatalf("webhook delivery %d throttled: %d", i+1, w.Code)
		}
	}

	// Regular endpoints are
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/quotes", nil))
	if w.Code != 200 {
		t.Fatalf("first API request = %d", w.Code)
	}
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/quotes", nil))
	if w.Code != 429 {
		t.Errorf("second API request = %d, want 429", w.Code)
	}
}
