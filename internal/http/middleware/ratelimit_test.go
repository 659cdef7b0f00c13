package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRateLimiterBurstThenRefill(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	clock := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return clock }

	if !rl.Allow("10.0.0.1") || !rl.Allow("10.0.0.1") {
		t.Fatal("expected burst of 2 to be allowed")
	}
	if rl.Allow("10.0.0.1") {
		t.Fatal("expected third request to be limited")
	}
	if !rl.Allow("10.0.0.2") {
		t.Fatal("expected other clients to have their own bucket")
	}

	clock = clock.Add(time.Second)
	if !rl.Allow("10.0.0.1") {
		t.Fatal("expected a token after one second")
	}
}

func TestRateLimiterEvictsIdleClients(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	clock := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return clock }

	rl.Allow("10.0.0.1")
	clock = clock.Add(time.Hour)
	rl.Allow("10.0.0.2")

	if _, ok := rl.clients["10.0.0.1"]; ok {
		t.Fatal("expected idle client to be evicted")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	mw := RateLimit(0.001, 1)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodPost, "/triage/specialty", nil)
		req.RemoteAddr = "192.0.2.7:5123"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Fatalf("request %d: expected status %d, got %d", i, want, rec.Code)
		}
		if want == http.StatusTooManyRequests && !strings.Contains(rec.Body.String(), `"success":false`) {
			t.Fatalf("expected failure envelope, got %s", rec.Body.String())
		}
	}
}
