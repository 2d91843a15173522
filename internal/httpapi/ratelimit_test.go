package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTokenLimiterBurst(t *testing.T) {
	limiter := newTokenLimiter(60, 3)

	for i := 0; i < 3; i++ {
		if !limiter.allow("key") {
			t.Fatalf("request %d within burst should be allowed", i+1)
		}
	}
	if limiter.allow("key") {
		t.Fatal("request beyond burst should be denied")
	}
	if !limiter.allow("other") {
		t.Fatal("independent key should not share a bucket")
	}
}

func TestTrackingNumberFromPath(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"/api/tracking/LX-AAAAAAAAAAAA", "LX-AAAAAAAAAAAA"},
		{"/api/tracking/LX-AAAAAAAAAAAA/", "LX-AAAAAAAAAAAA"},
		{"/api/interventions", ""},
		{"/api/tracking/", ""},
	}
	for _, tc := range cases {
		if got := trackingNumberFromPath(tc.path); got != tc.want {
			t.Fatalf("trackingNumberFromPath(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}

func TestRateLimiterMiddlewarePerTracking(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{
		IPPerMinute:       1000,
		IPBurst:           1000,
		TrackingPerMinute: 60,
		TrackingBurst:     2,
	})
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/tracking/LX-AAAAAAAAAAAA", nil)
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != http.StatusOK {
			t.Fatalf("request %d should pass, got %d", i+1, resp.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/tracking/LX-AAAAAAAAAAAA", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after tracking burst, got %d", resp.Code)
	}

	// A different tracking number is unaffected.
	req = httptest.NewRequest(http.MethodGet, "/api/tracking/LX-BBBBBBBBBBBB", nil)
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for other tracking number, got %d", resp.Code)
	}
}
