package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/runTech0704/Study-Savings/internal/analysis"
	"github.com/runTech0704/Study-Savings/internal/auth"
	"github.com/runTech0704/Study-Savings/internal/config"
	"github.com/runTech0704/Study-Savings/internal/database"
	"github.com/runTech0704/Study-Savings/internal/goal"
	"github.com/runTech0704/Study-Savings/internal/handler"
	"github.com/runTech0704/Study-Savings/internal/logger"
	"github.com/runTech0704/Study-Savings/internal/metrics"
	"github.com/runTech0704/Study-Savings/internal/middleware"
	"github.com/runTech0704/Study-Savings/internal/ratelimit"
	"github.com/runTech0704/Study-Savings/internal/repository"
	"github.com/runTech0704/Study-Savings/internal/security"
	"github.com/runTech0704/Study-Savings/internal/stats"
	"github.com/runTech0704/Study-Savings/internal/studysession"
	"github.com/runTech0704/Study-Savings/internal/subject"
	"github.com/runTech0704/Study-Savings/internal/user"
	"github.com/runTech0704/Study-Savings/internal/worker/cleanup"
)

// shutdownTimeout はグレースフルシャットダウンの猶予。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// .envと環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. .envを読み込む（環境変数が優先）
	if err := config.LoadDotenv(); err != nil {
		return nil, err
	}

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 4. LOG_LEVELを反映する
	logger.SetupDefault(w, cfg.LogLevel)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	// 引数の誤りはDB接続前に検出する
	var (
		migrateOpts MigrateOptions
		addUserOpts AddUserOptions
		err         error
	)
	switch cmd {
	case CommandMigrate:
		migrateOpts, err = ParseMigrateArgs(subcommandArgs(args), os.Stderr)
	case CommandAddUser:
		addUserOpts, err = ParseAddUserArgs(subcommandArgs(args), os.Stderr)
	}
	if err != nil {
		return fmt.Errorf("invalid arguments for %s: %w", cmd, err)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg, migrateOpts)
	case CommandAddUser:
		return runAddUser(ctx, cfg, addUserOpts, w)
	default:
		return runServe(ctx, cfg)
	}
}

// openDB はDB接続を開き、疎通を確認する。
func openDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	return database.Connect(ctx, cfg.DatabaseURL)
}

// newAuthService は認証サービスを構築する。
// Googleの認証情報が未設定の場合はOAuthを無効にする。
func newAuthService(db *sql.DB, cfg *config.Config, tokens *auth.TokenManager, enableOAuth bool) *auth.Service {
	var oauth auth.OAuthProvider
	if enableOAuth && cfg.GoogleOAuthEnabled() {
		oauth = auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		})
	}
	return auth.NewService(
		oauth,
		repository.NewPostgresUserRepo(db),
		repository.NewPostgresIdentityRepo(db),
		repository.NewPostgresRefreshTokenRepo(db),
		tokens,
	)
}

// newRateLimitStore はRATE_LIMIT_STOREに応じたカウンタストアを返す。
// 戻り値のstopはサーバー停止時に呼ぶ。
func newRateLimitStore(db *sql.DB, cfg *config.Config) (ratelimit.Store, func()) {
	if cfg.RateLimitStore == config.RateLimitStorePostgres {
		return ratelimit.NewPostgresStore(db), func() {}
	}
	store := ratelimit.NewMemoryStore(time.Minute)
	return store, store.Stop
}

// newTextGenerator はGeminiの設定があればTextGeneratorを返す。
// 未設定または初期化に失敗した場合はnilを返し、分析は定型文にフォールバックする。
func newTextGenerator(ctx context.Context, cfg *config.Config) analysis.TextGenerator {
	geminiCfg := analysis.GeminiConfig{
		ProjectID:   cfg.GCPProjectID,
		Location:    cfg.GCPRegion,
		APIKey:      cfg.GeminiAPIKey,
		Model:       cfg.GeminiModel,
		Temperature: analysis.DefaultTemperature,
	}
	if !geminiCfg.Configured() {
		slog.Info("AI analysis disabled: GCP_PROJECT_ID and GEMINI_API_KEY are not set")
		return nil
	}
	gen, err := analysis.NewGeminiGenerator(ctx, geminiCfg)
	if err != nil {
		slog.Warn("AI analysis disabled: failed to initialize Gemini client",
			slog.String("error", err.Error()),
		)
		return nil
	}
	slog.Info("AI analysis enabled", slog.String("model", geminiCfg.Model))
	return gen
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされる（SIGINT/SIGTERM）とグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	// 1. DB接続
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 3. リポジトリとセキュリティサービスの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	subjectRepo := repository.NewPostgresSubjectRepo(db)
	sessionRepo := repository.NewPostgresStudySessionRepo(db)
	goalRepo := repository.NewPostgresGoalRepo(db)
	ledger := repository.NewPostgresLedgerStore(db)
	sanitizer := security.NewTextSanitizer()

	// 4. ドメインサービスの初期化
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	authService := newAuthService(db, cfg, tokens, true)
	userService := user.NewService(userRepo, sanitizer)
	subjectService := subject.NewService(subjectRepo, sanitizer)
	sessionService := studysession.NewService(sessionRepo, subjectRepo, ledger, sanitizer, collector)
	goalService := goal.NewService(goalRepo, sanitizer)
	statsService := stats.NewService(sessionRepo, subjectRepo, cfg.Location)
	analysisService := analysis.NewService(
		sessionRepo, subjectRepo, goalRepo,
		newTextGenerator(ctx, cfg), cfg.AIRequestsPerMinute,
		collector, cfg.Location,
	)

	slog.Info("google login",
		slog.Bool("enabled", authService.OAuthEnabled()),
	)

	// 5. レート制限
	store, stopStore := newRateLimitStore(db, cfg)
	defer stopStore()
	limiter := ratelimit.NewLimiter(store, map[ratelimit.Category]ratelimit.Rule{
		ratelimit.CategoryAuth: {Window: cfg.RateLimitWindow, MaxRequests: cfg.RateLimitAuthMax},
		ratelimit.CategoryAPI:  {Window: cfg.RateLimitWindow, MaxRequests: cfg.RateLimitAPIMax},
	})

	// 6. ルーターの構築
	deps := &handler.RouterDeps{
		Logger:             slog.Default(),
		TokenVerifier:      tokens,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		HSTS:              cfg.CookieSecure,
		RateLimiter:       limiter,
		Metrics:           collector,
		RateLimitRecorder: collector,
		MetricsHandler:    metrics.Handler(registry),
		HealthChecker:     db,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			FrontendURL:  cfg.FrontendURL,
			CookieDomain: cfg.CookieDomain,
			CookieSecure: cfg.CookieSecure,
		},

		UserService:     userService,
		SubjectService:  subjectService,
		SessionService:  sessionService,
		GoalService:     goalService,
		StatsService:    handler.NewStatsServiceAdapter(statsService),
		AnalysisService: handler.NewAnalysisServiceAdapter(analysisService),
	}

	router := handler.NewRouter(deps)

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// AI分析の外部呼び出しを待つため長めに取る
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れのレート制限カウンタとリフレッシュトークンを定期的に削除する。
// ctxがキャンセルされる（SIGINT/SIGTERM）とシャットダウンする。
func runWorker(ctx context.Context, cfg *config.Config) error {
	// 1. DB接続
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	// 2. クリーンアップジョブの初期化
	job := cleanup.NewCleanupJob(slog.Default(),
		cleanup.Target{Name: "rate_limit_counters", Purger: ratelimit.NewPostgresStore(db)},
		cleanup.Target{Name: "refresh_tokens", Purger: repository.NewPostgresRefreshTokenRepo(db)},
	)

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
	)

	// 3. ctxがキャンセルされるまでブロックする
	job.Start(ctx, cfg.CleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
func runMigrate(cfg *config.Config, opts MigrateOptions) error {
	slog.Info("running database migrations",
		slog.String("action", string(opts.Action)),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	switch opts.Action {
	case MigrateDown:
		if err := database.RollbackMigrations(cfg.DatabaseURL, opts.Steps); err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
		slog.Info("database migrations rolled back", slog.Int("steps", opts.Steps))
	case MigrateVersion:
		version, dirty, err := database.MigrationVersion(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to read migration version: %w", err)
		}
		slog.Info("database migration version",
			slog.Uint64("version", uint64(version)),
			slog.Bool("dirty", dirty),
		)
	default:
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		slog.Info("database migrations completed successfully")
	}
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
