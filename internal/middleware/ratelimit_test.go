package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/runTech0704/Study-Savings/internal/ratelimit"
)

// mockDecider はRateLimitDeciderのテスト用モック。
type mockDecider struct {
	allowFn func(ctx context.Context, category ratelimit.Category, identity string) (ratelimit.Decision, error)
	calls   []string
}

func (m *mockDecider) Allow(ctx context.Context, category ratelimit.Category, identity string) (ratelimit.Decision, error) {
	m.calls = append(m.calls, string(category)+":"+identity)
	return m.allowFn(ctx, category, identity)
}

type mockRecorder struct {
	categories []string
}

func (m *mockRecorder) RecordRateLimited(category string) {
	m.categories = append(m.categories, category)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitMiddleware_RejectsEleventhAuthRequest(t *testing.T) {
	now := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	limiter := ratelimit.NewLimiter(
		ratelimit.NewMemoryStore(0),
		ratelimit.DefaultRules(),
		ratelimit.WithClock(func() time.Time { return now }),
	)
	recorder := &mockRecorder{}
	handler := NewRateLimitMiddleware(limiter, ratelimit.DefaultClassifier(), recorder)(okHandler())

	for i := 1; i <= 10; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, w.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}

	retryAfter, err := strconv.Atoi(w.Header().Get("Retry-After"))
	if err != nil {
		t.Fatalf("Retry-After header is not an integer: %q", w.Header().Get("Retry-After"))
	}
	if retryAfter != 60 {
		t.Errorf("Retry-After = %d, want 60", retryAfter)
	}

	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["code"] != "RATE_LIMIT_EXCEEDED" {
		t.Errorf("code = %v, want RATE_LIMIT_EXCEEDED", body["code"])
	}
	if body["retry_after"] != float64(60) {
		t.Errorf("retry_after = %v, want 60", body["retry_after"])
	}
	if len(recorder.categories) != 1 || recorder.categories[0] != "auth" {
		t.Errorf("recorded = %v, want [auth]", recorder.categories)
	}
}

func TestRateLimitMiddleware_UnclassifiedPathBypasses(t *testing.T) {
	decider := &mockDecider{allowFn: func(context.Context, ratelimit.Category, string) (ratelimit.Decision, error) {
		return ratelimit.Decision{Allowed: false}, nil
	}}
	handler := NewRateLimitMiddleware(decider, ratelimit.DefaultClassifier(), nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if len(decider.calls) != 0 {
		t.Errorf("decider should not be called, got %v", decider.calls)
	}
}

func TestRateLimitMiddleware_UsesFirstForwardedAddress(t *testing.T) {
	decider := &mockDecider{allowFn: func(context.Context, ratelimit.Category, string) (ratelimit.Decision, error) {
		return ratelimit.Decision{Allowed: true}, nil
	}}
	handler := NewRateLimitMiddleware(decider, ratelimit.DefaultClassifier(), nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/subjects", nil)
	req.Header.Set("X-Forwarded-For", " 198.51.100.2 , 10.0.0.1")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if len(decider.calls) != 1 || decider.calls[0] != "api:198.51.100.2" {
		t.Errorf("calls = %v, want [api:198.51.100.2]", decider.calls)
	}
}

func TestRateLimitMiddleware_FailsOpenOnStoreError(t *testing.T) {
	decider := &mockDecider{allowFn: func(context.Context, ratelimit.Category, string) (ratelimit.Decision, error) {
		return ratelimit.Decision{Allowed: true}, errors.New("store unavailable")
	}}
	handler := NewRateLimitMiddleware(decider, ratelimit.DefaultClassifier(), nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		remoteAddr string
		want       string
	}{
		{"X-Forwarded-Forの先頭", "203.0.113.9, 10.0.0.2", "10.0.0.2:1234", "203.0.113.9"},
		{"X-Forwarded-For単一", "203.0.113.9", "10.0.0.2:1234", "203.0.113.9"},
		{"ヘッダーなしは接続元", "", "192.0.2.1:5555", "192.0.2.1"},
		{"IPv6接続元", "", "[2001:db8::1]:443", "2001:db8::1"},
		{"ポートなし接続元", "", "192.0.2.1", "192.0.2.1"},
		{"空の先頭要素は接続元", " , 10.0.0.1", "192.0.2.1:80", "192.0.2.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/x", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := ClientIP(req); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
