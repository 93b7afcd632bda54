// Package app はアプリケーションの起動と依存関係のワイヤリングを提供する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/tsudoi/internal/activity"
	"github.com/hitoshi/tsudoi/internal/auth"
	"github.com/hitoshi/tsudoi/internal/config"
	"github.com/hitoshi/tsudoi/internal/database"
	"github.com/hitoshi/tsudoi/internal/handler"
	"github.com/hitoshi/tsudoi/internal/logger"
	"github.com/hitoshi/tsudoi/internal/message"
	"github.com/hitoshi/tsudoi/internal/metrics"
	"github.com/hitoshi/tsudoi/internal/middleware"
	"github.com/hitoshi/tsudoi/internal/participation"
	"github.com/hitoshi/tsudoi/internal/profile"
	"github.com/hitoshi/tsudoi/internal/repository"
	"github.com/hitoshi/tsudoi/internal/security"
	"github.com/hitoshi/tsudoi/internal/worker/cleanup"
)

// Init はロガーを設定し、環境変数から設定を読み込む。
// ログ出力先にはwを使用する（本番はos.Stdout）。
func Init(w io.Writer) (*config.Config, error) {
	// ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はエントリーポイント。argsにはos.Args[1:]を渡し、
// 先頭のサブコマンドに応じた起動モードを選択する。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheckはDB接続もOIDC設定も要らないため、設定読み込み前に処理する
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
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

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーを起動する。依存関係を下から順に組み立て、
// SIGINT/SIGTERM受信時は処理中のリクエストを待ってから終了する。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("connected to database")

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	identRepo := repository.NewPostgresIdentityRepo(db)
	activityRepo := repository.NewPostgresActivityRepo(db)
	participantRepo := repository.NewPostgresParticipantRepo(db)
	messageRepo := repository.NewPostgresMessageRepo(db)
	profileRepo := repository.NewPostgresProfileRepo(db)

	var sessionRepo repository.SessionRepository
	if cfg.SessionStore == "memory" {
		sessionRepo = repository.NewMemorySessionRepo()
	} else {
		sessionRepo = repository.NewPostgresSessionRepo(db)
	}

	// 3. セキュリティサービスの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewContentSanitizer()

	// 4. ドメインサービスの初期化
	oidcProvider := auth.NewOIDCProvider(auth.OIDCConfig{
		ClientID:      cfg.OIDCClientID,
		ClientSecret:  cfg.OIDCClientSecret,
		RedirectURL:   cfg.OIDCRedirectURL,
		AuthURL:       cfg.OIDCAuthURL,
		TokenURL:      cfg.OIDCTokenURL,
		LogoutURL:     cfg.OIDCLogoutURL,
		CredentialURL: cfg.OIDCCredentialURL,
	})
	authService := auth.NewService(
		oidcProvider, userRepo, identRepo, sessionRepo,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)

	activityService := activity.NewService(activityRepo, participantRepo, sanitizer, ssrfGuard)
	participationService := participation.NewService(activityRepo, participantRepo)
	messageService := message.NewService(messageRepo, participantRepo, profileRepo, sanitizer)

	avatarFetcher := profile.NewAvatarFetcher(ssrfGuard)
	avatarFetcher.Timeout = cfg.AvatarFetchTimeout
	profileService := profile.NewService(profileRepo, userRepo, identRepo, oidcProvider, avatarFetcher)

	// 5. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 6. ルーターの構築
	// 設定値はリクエスト/分なのでrate.Limit（リクエスト/秒）へ換算する
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.MessagePostRate = rate.Limit(float64(cfg.RateLimitMessagePost) / 60.0)
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		SessionFinder:     sessionRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		MetricsGatherer: registry,
		MetricsRecorder: collector,

		AuthService: handler.NewInstrumentedAuthService(authService, collector),
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:       cfg.BaseURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		ActivityService:      handler.NewInstrumentedActivityService(activityService, collector),
		ParticipationService: handler.NewInstrumentedParticipationService(participationService, collector),
		MessageService:       handler.NewInstrumentedMessageService(messageService, collector),
		ProfileService:       profileService,
	}

	router := handler.NewRouter(deps)

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("listen failed", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

// runWorker はクリーンアップジョブを起動直後に1回、以後は
// CLEANUP_INTERVALごとに実行する。シグナル受信で停止する。
func runWorker(cfg *config.Config) error {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("connected to database (worker)")

	cleanupJob := cleanup.NewCleanupJob(db, slog.Default())
	cleanupJob.MessageRetentionDays = cfg.MessageRetentionDays

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("stopping worker")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
		slog.Int("message_retention_days", cfg.MessageRetentionDays),
	)

	if err := cleanupJob.Run(ctx); err != nil {
		slog.Error("cleanup job failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped")
			return nil
		case <-ticker.C:
			if err := cleanupJob.Run(ctx); err != nil {
				slog.Error("cleanup job failed", slog.String("error", err.Error()))
			}
		}
	}
}

// runMigrate は未適用のスキーママイグレーションを適用して終了する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck は自プロセスの/healthを叩いて生死を返す。
// distrolessイメージにはcurlがないため、DockerのHEALTHCHECKから
// このサブコマンドを使う。
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

// maskDatabaseURL は接続URLをログ用に認証情報を落とした形へ丸める。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
