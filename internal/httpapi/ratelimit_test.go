package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTokenLimiterRefill(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := newTokenLimiter(60, 2, func() time.Time { return now })

	if !limiter.allow("a") || !limiter.allow("a") {
		t.Fatal("expected burst of 2 to be allowed")
	}
	if limiter.allow("a") {
		t.Fatal("expected third request to be limited")
	}
	if !limiter.allow("b") {
		t.Fatal("expected separate key to have its own bucket")
	}

	now = now.Add(time.Second)
	if !limiter.allow("a") {
		t.Fatal("expected one token after a second at 60/min")
	}
	if limiter.allow("a") {
		t.Fatal("expected bucket to be empty again")
	}
}

func TestClientIP(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		remote  string
		trust   bool
		want    string
	}{
		{"forwarded first hop", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, "10.0.0.1:5000", true, "203.0.113.7"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.2"}, "10.0.0.1:5000", true, "198.51.100.2"},
		{"remote addr", nil, "192.0.2.9:4321", true, "192.0.2.9"},
		{"untrusted forwarded", map[string]string{"X-Forwarded-For": "203.0.113.7"}, "192.0.2.9:4321", false, "192.0.2.9"},
		{"untrusted real ip", map[string]string{"X-Real-IP": "198.51.100.2"}, "192.0.2.9:4321", false, "192.0.2.9"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			if got := clientIP(req, tc.trust); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestRateLimiterIgnoresSpoofedHeaders(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{IPPerMinute: 1, IPBurst: 1})
	h := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for i, forwarded := range []string{"203.0.113.1", "203.0.113.2"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Forwarded-For", forwarded)
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, req)
		want := http.StatusNoContent
		if i > 0 {
			want = http.StatusTooManyRequests
		}
		if resp.Code != want {
			t.Fatalf("request %d: expected status %d, got %d", i, want, resp.Code)
		}
	}
}

func TestRateLimiterMiddleware(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{IPPerMinute: 1, IPBurst: 1})
	h := RequestIDMiddleware(limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/", nil))
	if first.Code != http.StatusNoContent || first.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected 204 with request id, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", second.Code)
	}
	if decodeError(t, second).Message != "Rate limit exceeded" {
		t.Fatalf("unexpected body %s", second.Body.String())
	}
}
