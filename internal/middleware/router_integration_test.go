package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/runTech0704/Study-Savings/internal/ratelimit"
)

// newIntegrationRouter は本番と同じ順序でミドルウェアを組んだchi.Routerを返す。
func newIntegrationRouter() *chi.Mux {
	now := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
	limiter := ratelimit.NewLimiter(
		ratelimit.NewMemoryStore(0),
		ratelimit.DefaultRules(),
		ratelimit.WithClock(func() time.Time { return now }),
	)
	csrfConfig := CSRFConfig{}

	r := chi.NewRouter()
	r.Use(NewRecoveryMiddleware(nil))
	r.Use(NewSecurityHeadersMiddleware(false))
	r.Use(NewRateLimitMiddleware(limiter, ratelimit.DefaultClassifier(), nil))
	r.Use(NewCSRFMiddleware(csrfConfig))

	r.Get("/api/csrf-token", NewCSRFTokenHandler(csrfConfig).ServeHTTP)
	r.Post("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/panic", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	r.Group(func(r chi.Router) {
		r.Use(NewAuthMiddleware(newTestVerifier()))
		r.Get("/api/subjects", func(w http.ResponseWriter, r *http.Request) {
			userID, _ := UserIDFromContext(r.Context())
			json.NewEncoder(w).Encode(map[string]string{"user_id": userID})
		})
		r.Post("/api/sessions/start", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
		})
	})
	return r
}

func TestRouterIntegration_MiddlewareChain(t *testing.T) {
	r := newIntegrationRouter()

	tests := []struct {
		name       string
		method     string
		path       string
		bearer     string
		csrf       string
		wantStatus int
	}{
		{"Bearer付きGET", http.MethodGet, "/api/subjects", "valid-token", "", http.StatusOK},
		{"Bearerなしは401", http.MethodGet, "/api/subjects", "", "", http.StatusUnauthorized},
		{"無効なトークンは401", http.MethodGet, "/api/subjects", "forged", "", http.StatusUnauthorized},
		{"Bearer付きPOSTはCSRF免除", http.MethodPost, "/api/sessions/start", "valid-token", "", http.StatusCreated},
		{"CookieだけのPOSTはCSRF必須", http.MethodPost, "/api/auth/login", "", "", http.StatusForbidden},
		{"CSRFトークン付きPOST", http.MethodPost, "/api/auth/login", "", "tok", http.StatusOK},
		{"CSRFトークンエンドポイントは認証不要", http.MethodGet, "/api/csrf-token", "", "", http.StatusOK},
		{"panicは500", http.MethodGet, "/panic", "", "", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.bearer != "" {
				req.Header.Set("Authorization", "Bearer "+tt.bearer)
			}
			if tt.csrf != "" {
				req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: tt.csrf})
				req.Header.Set(csrfHeaderName, tt.csrf)
			}
			w := httptest.NewRecorder()

			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
				t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
			}
		})
	}
}

func TestRouterIntegration_PanicReturnsUnifiedError(t *testing.T) {
	r := newIntegrationRouter()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Code != "INTERNAL_ERROR" {
		t.Errorf("code = %q, want INTERNAL_ERROR", body.Code)
	}
}

func TestRouterIntegration_AuthLimitAppliesBeforeCSRF(t *testing.T) {
	r := newIntegrationRouter()

	var last int
	for i := 0; i < 11; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/auth/login", nil))
		last = w.Code
	}

	if last != http.StatusTooManyRequests {
		t.Errorf("11th status = %d, want 429", last)
	}
}
