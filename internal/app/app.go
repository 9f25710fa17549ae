package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/postboard/internal/client"
	"github.com/hitoshi/postboard/internal/config"
	"github.com/hitoshi/postboard/internal/database"
	"github.com/hitoshi/postboard/internal/docstore"
	"github.com/hitoshi/postboard/internal/feed"
	"github.com/hitoshi/postboard/internal/handler"
	"github.com/hitoshi/postboard/internal/identity"
	"github.com/hitoshi/postboard/internal/logger"
	"github.com/hitoshi/postboard/internal/metrics"
	"github.com/hitoshi/postboard/internal/middleware"
	"github.com/hitoshi/postboard/internal/model"
	"github.com/hitoshi/postboard/internal/profile"
	"github.com/hitoshi/postboard/internal/render"
	"github.com/hitoshi/postboard/internal/security"
	"github.com/hitoshi/postboard/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, "info")

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再設定する
	logger.SetupDefault(w, cfg.LogLevel)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		return err
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
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
		slog.String("store_driver", cfg.StoreDriver),
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

// backend はドキュメントストアとその死活監視、後始末をまとめたもの。
type backend struct {
	store  docstore.Gateway
	health handler.HealthChecker
	close  func() error
}

// openBackend はSTORE_DRIVERに応じたドキュメントストアを開く。
// SQLiteは開いた接続上でマイグレーションを適用する。PostgreSQLはmigrateサブコマンドで事前に適用しておくこと。
func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		store := docstore.NewMemoryStore()
		return &backend{store: store, health: storeProbe{store: store}, close: func() error { return nil }}, nil

	case config.StorePostgres:
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		slog.Info("database connection established")
		return &backend{store: docstore.NewPostgresStore(db), health: db, close: db.Close}, nil

	case config.StoreSQLite:
		db, err := database.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := database.RunSQLiteMigrations(db); err != nil {
			db.Close()
			return nil, err
		}
		slog.Info("sqlite database ready", slog.String("path", cfg.SQLitePath))
		return &backend{store: docstore.NewSQLiteStore(db), health: db, close: db.Close}, nil

	case config.StoreFirestore:
		store, err := docstore.NewFirestoreStore(ctx, cfg.FirestoreProjectID)
		if err != nil {
			return nil, fmt.Errorf("failed to open firestore: %w", err)
		}
		slog.Info("firestore client established", slog.String("project_id", cfg.FirestoreProjectID))
		return &backend{store: store, health: storeProbe{store: store}, close: store.Close}, nil

	default:
		return nil, fmt.Errorf("unsupported store driver: %q", cfg.StoreDriver)
	}
}

// storeProbe はSQL接続を持たないストアの死活監視。存在しないドキュメントを1件読む。
type storeProbe struct {
	store docstore.Gateway
}

func (p storeProbe) PingContext(ctx context.Context) error {
	_, err := p.store.GetOne(ctx, model.CollectionProfiles, "healthcheck")
	return err
}

// compile-time interface check
var (
	_ handler.HealthChecker = storeProbe{}
	_ handler.HealthChecker = (*sql.DB)(nil)
)

// application はHTTPサーバーの構成要素。
type application struct {
	handler  http.Handler
	identity *identity.Service
	registry *client.Registry
	limiter  *middleware.RateLimiter
}

// newIdentity は認証サービスを構築する。アカウント作成時にプロフィールを用意する。
func newIdentity(cfg *config.Config, store docstore.Gateway, collector metrics.MetricsCollector, logger *slog.Logger) (*identity.Service, error) {
	tokens, err := identity.NewResetTokens(cfg.SessionSecret, cfg.PasswordResetTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create reset tokens: %w", err)
	}

	var oauth identity.OAuthProvider
	if cfg.GoogleEnabled() {
		oauth = identity.NewGoogleProvider(identity.GoogleConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		})
	}

	svc := identity.NewService(
		store,
		identity.NewPasswordHasher(cfg.BcryptCost),
		oauth,
		tokens,
		&identity.LogMailer{Logger: logger},
		identity.Config{
			SessionMaxAge: time.Duration(cfg.SessionMaxAge) * time.Second,
			BaseURL:       cfg.BaseURL,
		},
	).WithMetrics(collector)
	svc.OnAccountCreated(profile.NewProvisioner(store).Provision)
	return svc, nil
}

// newApplication は全依存関係をワイヤリングし、ルーターを構築する。
func newApplication(cfg *config.Config, b *backend, reg *prometheus.Registry, logger *slog.Logger) (*application, error) {
	collector := metrics.NewCollector(reg)
	store := docstore.NewInstrumented(b.store, collector)

	svc, err := newIdentity(cfg, store, collector, logger)
	if err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("failed to load time zone %q: %w", cfg.TimeZone, err)
	}

	sanitizer := security.NewContentSanitizer()
	registry := client.NewRegistry(client.Deps{
		Identity:  svc,
		Store:     store,
		Sanitizer: sanitizer,
		Metrics:   collector,
		Logger:    logger,
		Location:  loc,
	}, cfg.ClientIdleTimeout)

	limiter := middleware.NewRateLimiter(
		middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral, cfg.RateLimitCompose),
	)

	router, err := handler.NewRouter(&handler.RouterDeps{
		Clients:     registry,
		RateLimiter: limiter,
		Cookie: middleware.CookieConfig{
			Secure: cfg.CookieSecure,
			Domain: cfg.CookieDomain,
			MaxAge: cfg.SessionMaxAge,
		},
		Identity:       svc,
		SessionMaxAge:  cfg.SessionMaxAge,
		Atom:           feed.NewAtomPublisher(store, render.NewRenderer(store, sanitizer, "/"+client.PageHome)),
		BaseURL:        cfg.BaseURL,
		FeedCORSOrigin: cfg.FeedCORSOrigin,
		Health:         b.health,
		Gatherer:       reg,
		Metrics:        collector,
		Logger:         logger,
	})
	if err != nil {
		limiter.Stop()
		return nil, err
	}

	return &application{
		handler:  router,
		identity: svc,
		registry: registry,
		limiter:  limiter,
	}, nil
}

// runServe はWebサーバーモードで起動する。
// ストアを開き、全依存関係をワイヤリングし、HTTPサーバーとクリーンアップジョブを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. ストア
	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.close()

	// 2. 依存関係のワイヤリング
	reg := prometheus.NewRegistry()
	app, err := newApplication(cfg, b, reg, slog.Default())
	if err != nil {
		return err
	}
	defer app.limiter.Stop()

	// 3. 期限切れセッションとアイドルなワークスペースの掃除
	job := cleanup.NewCleanupJob(app.identity, app.registry, slog.Default())
	go job.Start(ctx, cfg.CleanupInterval)

	// 4. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      app.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("web server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down web server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("web server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// ワークスペースを持たないため、期限切れの認証セッションの削除のみを定期実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.close()

	collector := metrics.NewCollector(prometheus.NewRegistry())
	svc, err := newIdentity(cfg, docstore.NewInstrumented(b.store, collector), collector, slog.Default())
	if err != nil {
		return err
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
	)

	// クリーンアップジョブをメインgoroutineで実行（ブロッキング）
	cleanup.NewCleanupJob(svc, nil, slog.Default()).Start(ctx, cfg.CleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。スキーマを持たないストアでは何もしない。
func runMigrate(cfg *config.Config) error {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		slog.Info("running database migrations",
			slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		)
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}

	case config.StoreSQLite:
		slog.Info("running database migrations", slog.String("sqlite_path", cfg.SQLitePath))
		db, err := database.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := database.RunSQLiteMigrations(db); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}

	default:
		slog.Info("store driver has no schema, skipping migrations",
			slog.String("store_driver", cfg.StoreDriver),
		)
		return nil
	}

	slog.Info("database migrations completed successfully")
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
