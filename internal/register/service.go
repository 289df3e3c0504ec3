// Package register はドメインの自動登録オーケストレーションを提供する。
package register

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/laurilehto/namedrop/internal/metrics"
	"github.com/laurilehto/namedrop/internal/model"
	"github.com/laurilehto/namedrop/internal/rdap"
	"github.com/laurilehto/namedrop/internal/registrar"
	"github.com/laurilehto/namedrop/internal/repository"
)

// AdapterProvider は初期化済みレジストラアダプタの取得インターフェース。
type AdapterProvider interface {
	Get(ctx context.Context, adapterName string) (registrar.Adapter, error)
}

// Notifier は登録試行結果の通知ディスパッチインターフェース。
type Notifier interface {
	Dispatch(ctx context.Context, domain *model.Domain, event string, newStatus, previousStatus model.DomainStatus, historyID string) (int, []error)
}

// Result は登録試行の結果を表す。
// Attemptedがfalseの場合、ガード条件で中断されておりSkipReasonに理由が入る。
type Result struct {
	Attempted  bool    `json:"attempted"`
	Success    bool    `json:"success"`
	SkipReason string  `json:"skip_reason,omitempty"`
	Adapter    string  `json:"adapter,omitempty"`
	OrderID    string  `json:"order_id,omitempty"`
	Cost       float64 `json:"cost,omitempty"`
	Currency   string  `json:"currency,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// Service は自動登録のガードチェーン評価と登録実行を行う。
type Service struct {
	domainRepo   repository.DomainRepository
	historyRepo  repository.HistoryRepository
	configRepo   repository.RegistrarConfigRepository
	settingsRepo repository.SettingsRepository
	provider     AdapterProvider
	notifier     Notifier
	collector    metrics.MetricsCollector
}

// NewService はServiceを生成する。notifierとcollectorはnilを許容する。
func NewService(
	domainRepo repository.DomainRepository,
	historyRepo repository.HistoryRepository,
	configRepo repository.RegistrarConfigRepository,
	settingsRepo repository.SettingsRepository,
	provider AdapterProvider,
	notifier Notifier,
	collector metrics.MetricsCollector,
) *Service {
	return &Service{
		domainRepo:   domainRepo,
		historyRepo:  historyRepo,
		configRepo:   configRepo,
		settingsRepo: settingsRepo,
		provider:     provider,
		notifier:     notifier,
		collector:    collector,
	}
}

// Attempt はガードチェーンを順に評価し、全て通過した場合のみ登録を実行する。
// いずれかのガードで失敗した場合は登録APIを呼ばず、理由をResultに記録して返す。
func (s *Service) Attempt(ctx context.Context, domain *model.Domain) (*Result, error) {
	// ガード1: グローバル設定
	enabled, err := s.settingsRepo.GetBool(ctx, model.SettingAutoRegisterEnabled, false)
	if err != nil {
		return nil, fmt.Errorf("自動登録設定の取得に失敗しました: %w", err)
	}
	if !enabled {
		return s.skip(domain, "auto-registration is disabled globally"), nil
	}

	// ガード2: ドメイン単位のフラグ
	if !domain.AutoRegister {
		return s.skip(domain, "auto-registration is not enabled for this domain"), nil
	}

	// ガード3: アダプタ割り当て
	if domain.RegistrarAdapter == "" {
		return s.skip(domain, "no registrar adapter assigned"), nil
	}

	// ガード4・5: 設定の存在・有効化と資格情報による初期化
	adapter, err := s.provider.Get(ctx, domain.RegistrarAdapter)
	if err != nil {
		return s.skip(domain, fmt.Sprintf("registrar adapter unavailable: %v", err)), nil
	}

	return s.execute(ctx, domain, adapter)
}

// Register はガードチェーンを経ずに手動で登録を実行する。
// アダプタの割り当てと設定の有効性のみを要求する。
func (s *Service) Register(ctx context.Context, domain *model.Domain) (*Result, error) {
	if domain.RegistrarAdapter == "" {
		return s.skip(domain, "no registrar adapter assigned"), nil
	}

	adapter, err := s.provider.Get(ctx, domain.RegistrarAdapter)
	if err != nil {
		return nil, err
	}

	return s.execute(ctx, domain, adapter)
}

// execute は登録APIを呼び出し、結果の記録・通知・残高更新を行う。
// 履歴エントリの作成は登録の成否にかかわらず必ず行う。
func (s *Service) execute(ctx context.Context, domain *model.Domain, adapter registrar.Adapter) (*Result, error) {
	registration := s.registerDomain(ctx, adapter, domain.Name)

	// 自動・手動どちらの経路でもここを通るため、試行メトリクスはこの1箇所で記録する
	if s.collector != nil {
		s.collector.RecordRegistration(domain.RegistrarAdapter, registration.Success)
	}

	result := &Result{
		Attempted: true,
		Success:   registration.Success,
		Adapter:   domain.RegistrarAdapter,
		OrderID:   registration.OrderID,
		Cost:      registration.Cost,
		Currency:  registration.Currency,
		Error:     registration.Error,
	}

	previousStatus := domain.CurrentStatus
	newStatus := domain.CurrentStatus
	if registration.Success {
		newStatus = model.StatusRegistered
	}

	historyID := uuid.NewString()
	entry := &model.HistoryEntry{
		ID:         historyID,
		DomainID:   domain.ID,
		FromStatus: previousStatus,
		ToStatus:   newStatus,
		EventType:  model.EventRegistrationAttempt,
		Details: map[string]any{
			"adapter":  domain.RegistrarAdapter,
			"success":  registration.Success,
			"order_id": registration.OrderID,
			"cost":     registration.Cost,
			"currency": registration.Currency,
			"error":    registration.Error,
		},
		Timestamp: time.Now(),
	}
	if err := s.historyRepo.Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("登録試行の履歴作成に失敗しました: %w", err)
	}

	if registration.Success {
		now := time.Now()
		next := now.Add(time.Duration(rdap.CheckIntervalMinutes(model.StatusRegistered)) * time.Minute)
		domain.PreviousStatus = previousStatus
		domain.CurrentStatus = model.StatusRegistered
		domain.LastCheckedAt = &now
		domain.NextCheckAt = &next
		if err := s.domainRepo.UpdateCheckState(ctx, domain); err != nil {
			slog.Error("登録成功後の状態更新に失敗しました",
				slog.String("domain", domain.Name),
				slog.String("error", err.Error()))
		}
		slog.Info("ドメインの登録に成功しました",
			slog.String("domain", domain.Name),
			slog.String("adapter", domain.RegistrarAdapter),
			slog.String("order_id", registration.OrderID))
	} else {
		slog.Warn("ドメインの登録に失敗しました",
			slog.String("domain", domain.Name),
			slog.String("adapter", domain.RegistrarAdapter),
			slog.String("error", registration.Error))
	}

	// 通知の失敗は登録結果に影響させない
	if s.notifier != nil {
		if _, errs := s.notifier.Dispatch(ctx, domain, string(model.EventRegistrationAttempt), newStatus, previousStatus, historyID); len(errs) > 0 {
			slog.Warn("登録試行の通知に失敗したチャネルがあります",
				slog.String("domain", domain.Name),
				slog.Int("failed", len(errs)))
		}
	}

	s.refreshBalance(ctx, adapter, domain.RegistrarAdapter)

	return result, nil
}

// registerDomain はアダプタの登録APIを呼び出す。
// panicおよびトランスポートエラーは失敗の結果として返す。
func (s *Service) registerDomain(ctx context.Context, adapter registrar.Adapter, domainName string) (result *registrar.RegistrationResult) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("レジストラアダプタがpanicしました",
				slog.String("domain", domainName),
				slog.Any("panic", r))
			result = &registrar.RegistrationResult{
				Success: false,
				Error:   fmt.Sprintf("adapter panic: %v", r),
			}
		}
	}()

	result, err := adapter.RegisterDomain(ctx, domainName, 1)
	if err != nil {
		return &registrar.RegistrationResult{Success: false, Error: err.Error()}
	}
	return result
}

// refreshBalance は登録試行後に残高を再取得して保存する。失敗は警告ログのみ。
// 残高が閾値を下回った場合も警告ログのみで、通知チャネルへは送らない。
func (s *Service) refreshBalance(ctx context.Context, adapter registrar.Adapter, adapterName string) {
	balance, err := adapter.GetBalance(ctx)
	if err != nil {
		slog.Warn("登録試行後の残高照会に失敗しました",
			slog.String("adapter", adapterName),
			slog.String("error", err.Error()))
		return
	}

	if err := s.configRepo.UpdateBalance(ctx, adapterName, balance.Balance, time.Now()); err != nil {
		slog.Warn("残高の保存に失敗しました",
			slog.String("adapter", adapterName),
			slog.String("error", err.Error()))
	}

	thresholdStr, err := s.settingsRepo.Get(ctx, model.SettingLowBalanceThreshold, "0")
	if err != nil {
		return
	}
	threshold, err := strconv.ParseFloat(thresholdStr, 64)
	if err != nil || threshold <= 0 {
		return
	}
	if balance.Balance < threshold {
		slog.Warn("レジストラアカウントの残高が閾値を下回っています",
			slog.String("adapter", adapterName),
			slog.Float64("balance", balance.Balance),
			slog.String("currency", balance.Currency),
			slog.Float64("threshold", threshold))
	}
}

func (s *Service) skip(domain *model.Domain, reason string) *Result {
	slog.Info("自動登録をスキップします",
		slog.String("domain", domain.Name),
		slog.String("reason", reason))
	return &Result{Attempted: false, SkipReason: reason}
}
