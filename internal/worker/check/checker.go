// Package check はドメイン状態チェックのバックグラウンド処理を提供する。
// スケジューラと、1ドメイン分のチェックを実行するチェッカーを含む。
package check

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/laurilehto/namedrop/internal/metrics"
	"github.com/laurilehto/namedrop/internal/model"
	"github.com/laurilehto/namedrop/internal/rdap"
	"github.com/laurilehto/namedrop/internal/register"
	"github.com/laurilehto/namedrop/internal/repository"
)

// DomainQuerier はRDAPによるドメイン状態照会のインターフェース。
type DomainQuerier interface {
	QueryDomain(ctx context.Context, name, tld string, thresholdDays int, timeout time.Duration) (*rdap.CheckResult, error)
}

// AvailabilityProbe はWHOISによる可用性判定のインターフェース。
// RDAPサーバーが存在しないTLDのフォールバックとして使用する。
type AvailabilityProbe interface {
	Check(domain string) model.DomainStatus
}

// Notifier は状態変化の通知ディスパッチインターフェース。
type Notifier interface {
	Dispatch(ctx context.Context, domain *model.Domain, event string, newStatus, previousStatus model.DomainStatus, historyID string) (int, []error)
}

// Registrant は自動登録試行のインターフェース。
type Registrant interface {
	Attempt(ctx context.Context, domain *model.Domain) (*register.Result, error)
}

// Config はチェッカーの動作設定を表す。
type Config struct {
	// DefaultThresholdDays はexpiring_soon判定のデフォルト閾値（日）。
	DefaultThresholdDays int
	// DefaultTimeout はRDAPクエリのデフォルトタイムアウト。
	DefaultTimeout time.Duration
	// WhoisFallback はRDAP非対応TLDでWHOISフォールバックを使うかどうか。
	WhoisFallback bool
}

// DefaultConfig はデフォルトのチェッカー設定を返す。
func DefaultConfig() Config {
	return Config{
		DefaultThresholdDays: 30,
		DefaultTimeout:       10 * time.Second,
		WhoisFallback:        true,
	}
}

// Checker は1ドメイン分の状態チェックを実行する。
// 照会、状態マッピング、永続化、差分検出、履歴記録、通知、自動登録を行う。
type Checker struct {
	domainRepo   repository.DomainRepository
	historyRepo  repository.HistoryRepository
	settingsRepo repository.SettingsRepository
	querier      DomainQuerier
	probe        AvailabilityProbe
	notifier     Notifier
	registrant   Registrant
	collector    metrics.MetricsCollector
	logger       *slog.Logger
	config       Config
}

// NewChecker はCheckerの新しいインスタンスを生成する。
// probe、notifier、registrant、collectorはnilを許容する（機能が無効化される）。
func NewChecker(
	domainRepo repository.DomainRepository,
	historyRepo repository.HistoryRepository,
	settingsRepo repository.SettingsRepository,
	querier DomainQuerier,
	probe AvailabilityProbe,
	notifier Notifier,
	registrant Registrant,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	config Config,
) *Checker {
	return &Checker{
		domainRepo:   domainRepo,
		historyRepo:  historyRepo,
		settingsRepo: settingsRepo,
		querier:      querier,
		probe:        probe,
		notifier:     notifier,
		registrant:   registrant,
		collector:    collector,
		logger:       logger,
		config:       config,
	}
}

// PerformCheck はドメインを1回チェックし、結果を永続化する。
// 状態が変化した場合は履歴を記録し、通知と自動登録を試行する。
// 戻り値は新しい状態。通知・登録の失敗はチェック結果に影響しない。
func (c *Checker) PerformCheck(ctx context.Context, domain *model.Domain) (model.DomainStatus, error) {
	start := time.Now()
	if c.collector != nil {
		c.collector.RecordCheck(domain.Name)
	}

	thresholdDays, err := c.settingsRepo.GetInt(ctx, model.SettingExpiringThresholdDays, c.config.DefaultThresholdDays)
	if err != nil {
		thresholdDays = c.config.DefaultThresholdDays
	}
	timeout := c.config.DefaultTimeout
	if ms, err := c.settingsRepo.GetInt(ctx, model.SettingRDAPTimeoutMs, 0); err == nil && ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
	}

	result, err := c.querier.QueryDomain(ctx, domain.Name, domain.TLD, thresholdDays, timeout)
	if err != nil {
		if rdap.IsNoServerFound(err) && c.config.WhoisFallback && c.probe != nil {
			// RDAP非対応TLDはWHOISで可用性のみ判定する
			c.logger.Info("RDAP非対応TLDのためWHOISフォールバックを使用します",
				slog.String("domain", domain.Name),
				slog.String("tld", domain.TLD))
			result = &rdap.CheckResult{Status: c.probe.Check(domain.Name)}
		} else {
			result = &rdap.CheckResult{Status: model.StatusError, Error: err.Error()}
		}
	}

	previousStatus := domain.CurrentStatus
	newStatus := result.Status

	if newStatus == model.StatusError && c.collector != nil {
		c.collector.RecordCheckError(domain.Name)
	}

	// チェック結果は状態の変化有無にかかわらず必ず永続化する
	now := time.Now()
	next := now.Add(time.Duration(rdap.CheckIntervalMinutes(newStatus)) * time.Minute)
	domain.PreviousStatus = previousStatus
	domain.CurrentStatus = newStatus
	domain.LastCheckedAt = &now
	domain.NextCheckAt = &next
	// 満了日・レジストラ・生レスポンスは今回の結果で常に上書きする。
	// availableへ遷移した場合は古い値が消えることになる
	domain.ExpiryDate = result.ExpiryDate
	domain.Registrar = result.Registrar
	domain.RDAPRaw = result.RDAPRaw

	if err := c.domainRepo.UpdateCheckState(ctx, domain); err != nil {
		return newStatus, fmt.Errorf("チェック結果の保存に失敗しました: %w", err)
	}

	if c.collector != nil {
		c.collector.RecordCheckLatency(time.Since(start))
	}

	if newStatus == previousStatus {
		return newStatus, nil
	}

	c.logger.Info("ドメインの状態が変化しました",
		slog.String("domain", domain.Name),
		slog.String("from", string(previousStatus)),
		slog.String("to", string(newStatus)))
	if c.collector != nil {
		c.collector.RecordStatusTransition(string(previousStatus), string(newStatus))
	}

	historyID := uuid.NewString()
	entry := &model.HistoryEntry{
		ID:         historyID,
		DomainID:   domain.ID,
		FromStatus: previousStatus,
		ToStatus:   newStatus,
		EventType:  model.EventStatusChange,
		Details:    statusChangeDetails(result),
		Timestamp:  now,
	}
	if err := c.historyRepo.Create(ctx, entry); err != nil {
		c.logger.Error("状態変化の履歴作成に失敗しました",
			slog.String("domain", domain.Name),
			slog.String("error", err.Error()))
		historyID = ""
	}

	// 通知の失敗はチェック結果に影響させない
	if c.notifier != nil {
		if _, errs := c.notifier.Dispatch(ctx, domain, string(model.EventStatusChange), newStatus, previousStatus, historyID); len(errs) > 0 {
			c.logger.Warn("状態変化の通知に失敗したチャネルがあります",
				slog.String("domain", domain.Name),
				slog.Int("failed", len(errs)))
		}
	}

	// availableへの遷移時のみ自動登録を試行する。失敗は隔離する。
	// 登録試行のメトリクスはregister.Service側で記録される
	if newStatus == model.StatusAvailable && c.registrant != nil {
		if _, err := c.registrant.Attempt(ctx, domain); err != nil {
			c.logger.Error("自動登録の試行に失敗しました",
				slog.String("domain", domain.Name),
				slog.String("error", err.Error()))
		}
	}

	return newStatus, nil
}

// statusChangeDetails は履歴エントリのdetailsフィールドを組み立てる。
func statusChangeDetails(result *rdap.CheckResult) map[string]any {
	details := map[string]any{}
	if result.Registrar != "" {
		details["registrar"] = result.Registrar
	}
	if result.ExpiryDate != nil {
		details["expiry_date"] = result.ExpiryDate.Format(time.RFC3339)
	}
	if result.Error != "" {
		details["error"] = result.Error
	}
	return details
}
