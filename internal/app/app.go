// Package app はアプリケーションの起動とワイヤリングを提供する。
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

	"github.com/laurilehto/namedrop/internal/config"
	"github.com/laurilehto/namedrop/internal/crypto"
	"github.com/laurilehto/namedrop/internal/database"
	"github.com/laurilehto/namedrop/internal/handler"
	"github.com/laurilehto/namedrop/internal/logger"
	"github.com/laurilehto/namedrop/internal/metrics"
	"github.com/laurilehto/namedrop/internal/notify"
	"github.com/laurilehto/namedrop/internal/ratelimit"
	"github.com/laurilehto/namedrop/internal/rdap"
	"github.com/laurilehto/namedrop/internal/register"
	"github.com/laurilehto/namedrop/internal/registrar"
	"github.com/laurilehto/namedrop/internal/repository"
	"github.com/laurilehto/namedrop/internal/whois"
	"github.com/laurilehto/namedrop/internal/worker/check"
	"github.com/laurilehto/namedrop/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

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

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// services はserveとworkerで共有するワイヤリング済みコンポーネント群。
type services struct {
	domainRepo  *repository.PostgresDomainRepo
	historyRepo *repository.PostgresHistoryRepo
	configRepo  *repository.PostgresRegistrarConfigRepo
	channelRepo *repository.PostgresChannelRepo
	cipher      *crypto.Cipher
	dispatcher  *notify.Dispatcher
	provider    *registrar.Provider
	registerSvc *register.Service
	registry    *prometheus.Registry
	scheduler   *check.Scheduler
	checker     *check.Checker
}

// buildServices は全コンポーネントの依存関係をワイヤリングする。
func buildServices(cfg *config.Config, db *sql.DB) (*services, error) {
	domainRepo := repository.NewPostgresDomainRepo(db)
	historyRepo := repository.NewPostgresHistoryRepo(db)
	configRepo := repository.NewPostgresRegistrarConfigRepo(db)
	channelRepo := repository.NewPostgresChannelRepo(db)
	settingsRepo := repository.NewPostgresSettingsRepo(db)

	cipher, err := crypto.NewCipher(cfg.AuthSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize credential cipher: %w", err)
	}

	// アウトバウンドレート制限付きRDAPクライアント
	limiterCfg := ratelimit.DefaultConfig()
	limiterCfg.MinInterval = cfg.RDAPMinInterval
	limiterCfg.MaxConcurrent = cfg.RDAPMaxConcurrent
	limiter := ratelimit.NewLimiter(limiterCfg)

	rdapClient := rdap.NewClient(rdap.ClientConfig{
		BootstrapTTL: cfg.BootstrapTTL,
		Timeout:      cfg.RDAPTimeout,
	}, limiter)

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	dispatcher := notify.NewDispatcher(channelRepo, historyRepo, cfg.SMTPTimeout, collector)
	provider := registrar.NewProvider(configRepo, cipher)
	registerSvc := register.NewService(domainRepo, historyRepo, configRepo, settingsRepo, provider, dispatcher, collector)

	checkerCfg := check.DefaultConfig()
	checkerCfg.DefaultTimeout = cfg.RDAPTimeout
	checkerCfg.WhoisFallback = cfg.WhoisFallback

	checker := check.NewChecker(
		domainRepo, historyRepo, settingsRepo,
		rdapClient, whois.NewProbe(), dispatcher, registerSvc,
		collector, slog.Default(), checkerCfg,
	)
	scheduler := check.NewScheduler(domainRepo, checker, collector, slog.Default(), cfg.CheckMaxConcurrent)

	return &services{
		domainRepo:  domainRepo,
		historyRepo: historyRepo,
		configRepo:  configRepo,
		channelRepo: channelRepo,
		cipher:      cipher,
		dispatcher:  dispatcher,
		provider:    provider,
		registerSvc: registerSvc,
		registry:    registry,
		scheduler:   scheduler,
		checker:     checker,
	}, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、チェックスケジューラを
// バックグラウンドで起動した上でHTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
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

	slog.Info("database connection established")

	// 2. コンポーネントのワイヤリング
	svc, err := buildServices(cfg, db)
	if err != nil {
		return err
	}

	// 3. チェックスケジューラをバックグラウンドで起動
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.scheduler.Start(ctx, cfg.CheckInterval)

	// 4. ルーターの構築
	router := handler.NewRouter(&handler.RouterDeps{
		DB:     db,
		Logger: slog.Default(),

		DomainRepo:  svc.domainRepo,
		HistoryRepo: svc.historyRepo,
		Checker:     svc.checker,
		Registrant:  svc.registerSvc,

		Scheduler: svc.scheduler,

		ChannelRepo: svc.channelRepo,
		Tester:      svc.dispatcher,

		ConfigRepo: svc.configRepo,
		Provider:   svc.provider,
		Encrypter:  svc.cipher,

		Gatherer: svc.registry,
	})

	// 5. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
			slog.Duration("check_interval", cfg.CheckInterval),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// HTTPサーバーを持たず、チェックスケジューラのみを実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. コンポーネントのワイヤリング
	svc, err := buildServices(cfg, db)
	if err != nil {
		return err
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("check_interval", cfg.CheckInterval),
		slog.Int("max_concurrent", cfg.CheckMaxConcurrent),
	)

	// 履歴クリーンアップジョブを日次でバックグラウンド実行
	pruneJob := cleanup.NewPruneJob(db, slog.Default())
	pruneJob.RetentionDays = cfg.HistoryRetentionDays
	go func() {
		// 起動直後に1回実行
		if err := pruneJob.Run(ctx); err != nil {
			slog.Error("history prune job failed", slog.String("error", err.Error()))
		}

		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := pruneJob.Run(ctx); err != nil {
					slog.Error("history prune job failed", slog.String("error", err.Error()))
				}
			}
		}
	}()

	// チェックスケジューラをメインgoroutineで実行（ブロッキング）
	svc.scheduler.Start(ctx, cfg.CheckInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
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
