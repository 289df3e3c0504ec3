package check

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/laurilehto/namedrop/internal/metrics"
	"github.com/laurilehto/namedrop/internal/model"
	"github.com/laurilehto/namedrop/internal/repository"
)

// DomainChecker は1ドメイン分のチェック実行インターフェース。
type DomainChecker interface {
	PerformCheck(ctx context.Context, domain *model.Domain) (model.DomainStatus, error)
}

// Status はスケジューラの現在状態を表す。
type Status struct {
	Running    bool               `json:"running"`
	LastRunAt  *time.Time         `json:"last_run_at,omitempty"`
	LastResult *model.SweepResult `json:"last_result,omitempty"`
}

// Scheduler はドメインチェックのスケジューリングと並列制御を行う。
// ティッカーでチェック対象ドメインを取得し、semaphoreパターンで
// 最大並列数を制御しながらチェックを実行する。
// スイープはプロセス内で同時に1つのみ実行される。
type Scheduler struct {
	domainRepo     repository.DomainRepository
	checker        DomainChecker
	collector      metrics.MetricsCollector
	logger         *slog.Logger
	maxConcurrency int

	mu         sync.Mutex
	isRunning  bool
	lastRunAt  *time.Time
	lastResult *model.SweepResult
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値10を使用する。
func NewScheduler(
	domainRepo repository.DomainRepository,
	checker DomainChecker,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	maxConcurrency int,
) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}
	return &Scheduler{
		domainRepo:     domainRepo,
		checker:        checker,
		collector:      collector,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// Status はスケジューラの現在状態を返す。
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Running:    s.isRunning,
		LastRunAt:  s.lastRunAt,
		LastResult: s.lastResult,
	}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("チェックスケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	// 起動直後に1回実行
	s.RunSweepNow(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("チェックスケジューラを停止しました")
			return
		case <-ticker.C:
			s.RunSweepNow(ctx)
		}
	}
}

// RunSweepNow はチェック対象ドメインのスイープを1回実行する。
// 既にスイープが実行中の場合はskippedを返す。
// 戻り値の2番目は実行された場合true、スキップされた場合false。
func (s *Scheduler) RunSweepNow(ctx context.Context) (*model.SweepResult, bool) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		s.logger.Info("スイープが実行中のためスキップします")
		return nil, false
	}
	s.isRunning = true
	s.mu.Unlock()

	start := time.Now()
	result := &model.SweepResult{}

	// カウンタの確定とフラグの解放はエラー時も必ず行う
	defer func() {
		now := time.Now()
		s.mu.Lock()
		s.isRunning = false
		s.lastRunAt = &now
		s.lastResult = result
		s.mu.Unlock()

		if s.collector != nil {
			s.collector.RecordSweepDuration(time.Since(start))
		}
	}()

	domains, err := s.domainRepo.ListDueForCheck(ctx)
	if err != nil {
		s.logger.Error("チェック対象ドメインの取得に失敗しました",
			slog.String("error", err.Error()),
		)
		result.Errors++
		return result, true
	}

	if len(domains) == 0 {
		s.logger.Info("チェック対象のドメインはありません")
		return result, true
	}

	s.logger.Info("チェックスイープを開始します",
		slog.Int("domain_count", len(domains)),
	)

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup
	var resultMu sync.Mutex

	for _, domain := range domains {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(d *model.Domain) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			previousStatus := d.CurrentStatus
			newStatus, err := s.checker.PerformCheck(ctx, d)

			resultMu.Lock()
			defer resultMu.Unlock()
			result.Checked++
			if err != nil {
				s.logger.Error("ドメインチェックに失敗しました",
					slog.String("domain_id", d.ID),
					slog.String("domain", d.Name),
					slog.String("error", err.Error()),
				)
				result.Errors++
				return
			}
			if newStatus != previousStatus {
				result.Changed++
			}
		}(domain)
	}

	wg.Wait()

	duration := time.Since(start)
	s.logger.Info("チェックスイープが完了しました",
		slog.Int("checked", result.Checked),
		slog.Int("changed", result.Changed),
		slog.Int("errors", result.Errors),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return result, true
}
