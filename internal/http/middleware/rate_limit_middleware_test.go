package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func verifyRequest(remote string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
	req.RemoteAddr = remote
	req.Header.Set(HeaderCode, "abc")
	req.Header.Set(HeaderRawData, `{"nickName":"n"}`)
	return req
}

func TestVerifyRateLimiterDeniesAfterBurst(t *testing.T) {
	rl := NewVerifyRateLimiter(RateLimitPolicy{PerMinute: 1, Burst: 1})
	h := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, verifyRequest("10.0.0.1:1000"))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected first verify to pass, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, verifyRequest("10.0.0.1:1001"))
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, verifyRequest("10.0.0.2:1000"))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected other client to pass, got %d", rr.Code)
	}
}

func TestVerifyRateLimiterIgnoresReturningRequests(t *testing.T) {
	rl := NewVerifyRateLimiter(RateLimitPolicy{PerMinute: 1, Burst: 1})
	h := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
		req.RemoteAddr = "10.0.0.1:1000"
		req.Header.Set(HeaderCode, "abc")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusNoContent {
			t.Fatalf("request %d: expected pass, got %d", i, rr.Code)
		}
	}
}

func TestRateLimiterRefillsAndSweepsIdleVisitors(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(RateLimitPolicy{PerMinute: 60, Burst: 1}, "test")
	rl.now = func() time.Time { return now }
	h := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	serve := func() int {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, verifyRequest("10.0.0.1:1000"))
		return rr.Code
	}
	if code := serve(); code != http.StatusNoContent {
		t.Fatalf("expected pass, got %d", code)
	}
	if code := serve(); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 before refill, got %d", code)
	}
	now = now.Add(time.Second)
	if code := serve(); code != http.StatusNoContent {
		t.Fatalf("expected pass after refill, got %d", code)
	}

	now = now.Add(time.Hour)
	rl.reserve("10.0.0.9")
	rl.mu.Lock()
	_, stale := rl.visitors["10.0.0.1"]
	rl.mu.Unlock()
	if stale {
		t.Fatal("expected idle visitor to be swept")
	}
}

func TestRetryAfterHeaderRoundsUp(t *testing.T) {
	cases := map[time.Duration]string{
		0:                       "1",
		300 * time.Millisecond:  "1",
		1500 * time.Millisecond: "2",
		time.Minute:             "60",
	}
	for in, want := range cases {
		if got := retryAfterHeader(in); got != want {
			t.Fatalf("retryAfterHeader(%s) = %s, want %s", in, got, want)
		}
	}
}
