package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/laurilehto/namedrop/internal/metrics"
	"github.com/laurilehto/namedrop/internal/middleware"
	"github.com/laurilehto/namedrop/internal/repository"
)

// HealthChecker はデータベース疎通確認のインターフェース。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// インフラ
	DB     HealthChecker
	Logger *slog.Logger

	// ドメイン
	DomainRepo  repository.DomainRepository
	HistoryRepo repository.HistoryRepository
	Checker     DomainChecker
	Registrant  DomainRegistrant

	// スケジューラ
	Scheduler SchedulerService

	// 通知
	ChannelRepo repository.ChannelRepository
	Tester      NotificationTester

	// レジストラ
	ConfigRepo repository.RegistrarConfigRepository
	Provider   AdapterProvider
	Encrypter  Encrypter

	// メトリクス
	Gatherer prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RecoveryMiddleware → LoggingMiddleware
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	domainHandler := NewDomainHandler(deps.DomainRepo, deps.HistoryRepo, deps.Checker, deps.Registrant)
	schedulerHandler := NewSchedulerHandler(deps.Scheduler)
	notificationHandler := NewNotificationHandler(deps.ChannelRepo, deps.Tester)
	registrarHandler := NewRegistrarHandler(deps.ConfigRepo, deps.Provider, deps.Encrypter)

	// ヘルスチェック（DB疎通込み）
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if err := deps.DB.PingContext(req.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Prometheusメトリクス
	r.Handle("/metrics", metrics.Handler(deps.Gatherer))

	// ドメイン管理
	r.Route("/api/domains", func(r chi.Router) {
		r.Post("/", domainHandler.CreateDomain)
		r.Get("/", domainHandler.ListDomains)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", domainHandler.GetDomain)
			r.Patch("/", domainHandler.UpdateDomain)
			r.Delete("/", domainHandler.DeleteDomain)

			r.Get("/history", domainHandler.ListHistory)
			r.Post("/check", domainHandler.CheckDomain)
			r.Post("/register", domainHandler.RegisterDomain)
			r.Get("/valuation", domainHandler.EstimateValue)
		})
	})

	// スケジューラ管理
	r.Route("/api/scheduler", func(r chi.Router) {
		r.Get("/", schedulerHandler.GetStatus)
		r.Post("/", schedulerHandler.RunSweep)
	})

	// 通知チャンネル管理
	r.Route("/api/notifications", func(r chi.Router) {
		r.Post("/", notificationHandler.CreateChannel)
		r.Get("/", notificationHandler.ListChannels)

		r.Route("/{id}", func(r chi.Router) {
			r.Delete("/", notificationHandler.DeleteChannel)
			r.Post("/test", notificationHandler.TestChannel)
		})
	})

	// レジストラ設定管理
	r.Route("/api/registrars", func(r chi.Router) {
		r.Get("/types", registrarHandler.ListAdapterTypes)
		r.Get("/", registrarHandler.ListConfigs)

		r.Route("/{name}", func(r chi.Router) {
			r.Put("/", registrarHandler.UpsertConfig)
			r.Post("/test", registrarHandler.TestConnection)
			r.Post("/balance", registrarHandler.RefreshBalance)
		})
	})

	return r
}
