package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRateLimiterAllowsWithinBurst(t *testing.T) {
	rl := New(RateLimitConfig{RequestsPerSecond: 5, Burst: 3})
	for i := 0; i < 3; i++ {
		if !rl.Allow() {
			t.Fatalf("request %d: expected to be allowed within burst", i)
		}
	}
}

func TestRateLimiterExhaustsBurst(t *testing.T) {
	rl := New(RateLimitConfig{RequestsPerSecond: 1, Burst: 1})
	if !rl.Allow() {
		t.Fatal("expected the first request to be allowed")
	}
	if rl.Allow() {
		t.Fatal("expected the second immediate request to exceed the burst")
	}
}

func TestRateLimiterResetRestoresCapacity(t *testing.T) {
	rl := New(RateLimitConfig{RequestsPerSecond: 1, Burst: 1})
	rl.Allow()
	if rl.Allow() {
		t.Fatal("expected burst to be exhausted before Reset")
	}
	rl.Reset()
	if !rl.Allow() {
		t.Fatal("expected a fresh limiter after Reset to allow a request")
	}
}

func TestRateLimitedClientDelegatesToUnderlyingClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewRateLimitedClient(srv.Client(), RateLimitConfig{RequestsPerSecond: 100, Burst: 10})
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}

	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
}
