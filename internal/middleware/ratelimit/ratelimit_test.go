package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestLimiter(requests int, window time.Duration) (*Limiter, *time.Time) {
	now := time.Date(2026, time.May, 1, 12, 0, 0, 0, time.UTC)
	rl := NewLimiter(Config{Requests: requests, Window: window, Methods: []string{http.MethodPost}})
	rl.now = func() time.Time { return now }
	return rl, &now
}

func TestLimiter_Allow(t *testing.T) {
	rl, now := newTestLimiter(3, time.Minute)
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		if !rl.Allow("10.0.0.1") {
			t.Fatalf("request %d rejected", i+1)
		}
	}
	if rl.Allow("10.0.0.1") {
		t.Fatal("fourth request allowed")
	}
	if !rl.Allow("10.0.0.2") {
		t.Fatal("other client limited")
	}

	*now = now.Add(time.Minute)
	if !rl.Allow("10.0.0.1") {
		t.Fatal("window did not reset")
	}
}

func TestLimiter_WindowIsFixed(t *testing.T) {
	rl, now := newTestLimiter(2, time.Minute)
	defer rl.Stop()

	rl.Allow("ip")
	*now = now.Add(40 * time.Second)
	rl.Allow("ip")
	*now = now.Add(10 * time.Second)
	if rl.Allow("ip") {
		t.Fatal("steady traffic must not extend the window")
	}
	if got := rl.RetryAfter("ip"); got != 10*time.Second {
		t.Errorf("RetryAfter = %v, want 10s", got)
	}
}

func TestLimiter_CleanupStaleEntries(t *testing.T) {
	rl, now := newTestLimiter(5, time.Minute)
	defer rl.Stop()

	rl.Allow("old")
	*now = now.Add(3 * time.Minute)
	rl.Allow("new")

	if removed := rl.cleanupStaleEntries(); removed != 1 {
		t.Fatalf("removed %d, want 1", removed)
	}
	if rl.ActiveClients() != 1 {
		t.Fatalf("active clients = %d, want 1", rl.ActiveClients())
	}
}

func TestLimiter_MiddlewareOnlyLimitsConfiguredMethods(t *testing.T) {
	rl, _ := newTestLimiter(1, time.Minute)
	defer rl.Stop()

	handler := rl.Middleware(func(*http.Request) string { return "ip" }, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }))

	serve := func(method string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(method, "/", nil))
		return rr
	}

	if rr := serve(http.MethodPost); rr.Code != http.StatusNoContent {
		t.Fatalf("first POST = %d", rr.Code)
	}
	rr := serve(http.MethodPost)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second POST = %d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("Retry-After not set")
	}
	for i := 0; i < 3; i++ {
		if rr := serve(http.MethodGet); rr.Code != http.StatusNoContent {
			t.Fatalf("GET limited: %d", rr.Code)
		}
	}
}
