package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/runTech0704/Study-Savings/internal/middleware"
	"github.com/runTech0704/Study-Savings/internal/ratelimit"
	"github.com/runTech0704/Study-Savings/internal/validation"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger             *slog.Logger
	TokenVerifier      middleware.AccessTokenVerifier
	CORSAllowedOrigins []string
	CSRFConfig         middleware.CSRFConfig
	HSTS               bool
	RateLimiter        middleware.RateLimitDecider
	RateLimitRules     *ratelimit.Classifier
	Metrics            middleware.HTTPMetricsRecorder
	RateLimitRecorder  middleware.RateLimitRecorder
	MetricsHandler     http.Handler
	HealthChecker      Pinger

	Validator *validation.Validator

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ユーザー
	UserService UserServiceInterface

	// 科目・学習記録・貯金目標
	SubjectService SubjectServiceInterface
	SessionService SessionServiceInterface
	GoalService    GoalServiceInterface

	// 統計・分析
	StatsService    StatsServiceInterface
	AnalysisService AnalysisServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → Logging → Metrics → SecurityHeaders → CORS → RateLimit → StripSlashes → CSRF
//
// 認証ルート（/api/auth/*）と運用ルート（/health, /metrics）はBearer認証の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	validator := deps.Validator
	if validator == nil {
		validator = validation.New()
	}
	classifier := deps.RateLimitRules
	if classifier == nil {
		classifier = ratelimit.DefaultClassifier()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(chimw.RequestID)
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.Metrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.HSTS))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigins))
	if deps.RateLimiter != nil {
		r.Use(middleware.NewRateLimitMiddleware(deps.RateLimiter, classifier, deps.RateLimitRecorder))
	}
	r.Use(chimw.StripSlashes)
	r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

	authHandler := NewAuthHandler(deps.AuthService, deps.TokenVerifier, validator, deps.AuthConfig)
	userHandler := NewUserHandler(deps.UserService, validator)
	subjectHandler := NewSubjectHandler(deps.SubjectService, validator)
	sessionHandler := NewSessionHandler(deps.SessionService, validator)
	goalHandler := NewGoalHandler(deps.GoalService, validator)
	statsHandler := NewStatsHandler(deps.StatsService, deps.AnalysisService, validator)

	// --- 運用 ---
	if deps.HealthChecker != nil {
		r.Get("/health", NewHealthHandler(deps.HealthChecker))
	}
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// --- 認証不要のルート ---
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Post("/token", authHandler.Login)
		r.Post("/token/refresh", authHandler.Refresh)
		r.Post("/token/verify", authHandler.Verify)
		r.Post("/logout", authHandler.Logout)
		r.Get("/check", authHandler.Check)

		// OAuthフロー
		r.Get("/google/login", authHandler.GoogleLogin)
		r.Get("/google/callback", authHandler.GoogleCallback)
	})

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.TokenVerifier))

		// ユーザー管理
		r.Route("/api/user", func(r chi.Router) {
			r.Get("/", userHandler.Get)
			r.Put("/", userHandler.Update)
			r.Patch("/", userHandler.Update)
			r.Delete("/", userHandler.Withdraw)
		})

		// 科目
		r.Route("/api/subjects", func(r chi.Router) {
			r.Get("/", subjectHandler.List)
			r.Post("/", subjectHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", subjectHandler.Get)
				r.Put("/", subjectHandler.Update)
				r.Patch("/", subjectHandler.Update)
				r.Delete("/", subjectHandler.Delete)
			})
		})

		// 学習記録
		r.Route("/api/sessions", func(r chi.Router) {
			r.Get("/", sessionHandler.List)
			r.Post("/start", sessionHandler.Start)
			r.Get("/current", sessionHandler.Current)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", sessionHandler.Get)
				r.Put("/", sessionHandler.Update)
				r.Patch("/", sessionHandler.Update)
				r.Delete("/", sessionHandler.Delete)
				r.Post("/stop", sessionHandler.Stop)
			})
		})

		// 貯金目標
		r.Route("/api/goals", func(r chi.Router) {
			r.Get("/", goalHandler.List)
			r.Post("/", goalHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", goalHandler.Get)
				r.Put("/", goalHandler.Update)
				r.Patch("/", goalHandler.Update)
				r.Delete("/", goalHandler.Delete)
			})
		})

		// 統計・分析
		r.Get("/api/stats", statsHandler.Stats)
		r.Post("/api/analyze-learning", statsHandler.AnalyzeLearning)
	})

	return r
}
