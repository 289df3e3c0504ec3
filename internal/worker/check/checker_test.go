package check

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/laurilehto/namedrop/internal/model"
	"github.com/laurilehto/namedrop/internal/rdap"
	"github.com/laurilehto/namedrop/internal/register"
)

// fakeDomainRepo はDomainRepositoryのテスト用実装。
type fakeDomainRepo struct {
	mu             sync.Mutex
	dueDomains     []*model.Domain
	dueErr         error
	updatedDomains []*model.Domain
	updateErr      error
}

func (r *fakeDomainRepo) FindByID(_ context.Context, _ string) (*model.Domain, error)   { return nil, nil }
func (r *fakeDomainRepo) FindByName(_ context.Context, _ string) (*model.Domain, error) { return nil, nil }
func (r *fakeDomainRepo) Create(_ context.Context, _ *model.Domain) error               { return nil }
func (r *fakeDomainRepo) Update(_ context.Context, _ *model.Domain) error               { return nil }
func (r *fakeDomainRepo) List(_ context.Context) ([]*model.Domain, error)               { return nil, nil }
func (r *fakeDomainRepo) DeleteByID(_ context.Context, _ string) error                  { return nil }

func (r *fakeDomainRepo) ListDueForCheck(_ context.Context) ([]*model.Domain, error) {
	return r.dueDomains, r.dueErr
}

func (r *fakeDomainRepo) UpdateCheckState(_ context.Context, domain *model.Domain) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *domain
	r.updatedDomains = append(r.updatedDomains, &copied)
	return nil
}

// fakeHistoryRepo は履歴エントリを蓄積する。
type fakeHistoryRepo struct {
	mu      sync.Mutex
	entries []*model.HistoryEntry
}

func (r *fakeHistoryRepo) Create(_ context.Context, entry *model.HistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *fakeHistoryRepo) ListByDomainID(_ context.Context, _ string, _ int) ([]*model.HistoryEntry, error) {
	return nil, nil
}

func (r *fakeHistoryRepo) MarkNotified(_ context.Context, _ string) error { return nil }

// fakeSettingsRepo はインメモリの設定ストア。
type fakeSettingsRepo struct {
	values map[string]string
}

func (r *fakeSettingsRepo) Get(_ context.Context, key, defaultVal string) (string, error) {
	if v, ok := r.values[key]; ok {
		return v, nil
	}
	return defaultVal, nil
}

func (r *fakeSettingsRepo) GetInt(ctx context.Context, key string, defaultVal int) (int, error) {
	v, _ := r.Get(ctx, key, strconv.Itoa(defaultVal))
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal, nil
	}
	return n, nil
}

func (r *fakeSettingsRepo) GetBool(ctx context.Context, key string, defaultVal bool) (bool, error) {
	v, _ := r.Get(ctx, key, strconv.FormatBool(defaultVal))
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal, nil
	}
	return b, nil
}

func (r *fakeSettingsRepo) Set(_ context.Context, key, value string) error {
	if r.values == nil {
		r.values = map[string]string{}
	}
	r.values[key] = value
	return nil
}

// fakeQuerier はQueryDomainの結果をfunc fieldで差し替え可能にする。
type fakeQuerier struct {
	queryFunc func(ctx context.Context, name, tld string, thresholdDays int, timeout time.Duration) (*rdap.CheckResult, error)
}

func (q *fakeQuerier) QueryDomain(ctx context.Context, name, tld string, thresholdDays int, timeout time.Duration) (*rdap.CheckResult, error) {
	return q.queryFunc(ctx, name, tld, thresholdDays, timeout)
}

// fakeProbe は固定ステータスを返すWHOISプローブ。
type fakeProbe struct {
	status model.DomainStatus
	calls  int
}

func (p *fakeProbe) Check(_ string) model.DomainStatus {
	p.calls++
	return p.status
}

// recordingNotifier はDispatch呼び出しを記録する。
type recordingNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (n *recordingNotifier) Dispatch(_ context.Context, domain *model.Domain, _ string, newStatus, _ model.DomainStatus, _ string) (int, []error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, domain.Name+":"+string(newStatus))
	return 1, nil
}

// fakeRegistrant はAttempt呼び出しを記録する。
type fakeRegistrant struct {
	mu    sync.Mutex
	calls []string
}

func (r *fakeRegistrant) Attempt(_ context.Context, domain *model.Domain) (*register.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, domain.Name)
	return &register.Result{Attempted: false, SkipReason: "test"}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

type checkerEnv struct {
	checker    *Checker
	domainRepo *fakeDomainRepo
	history    *fakeHistoryRepo
	settings   *fakeSettingsRepo
	querier    *fakeQuerier
	probe      *fakeProbe
	notifier   *recordingNotifier
	registrant *fakeRegistrant
}

func newCheckerEnv(result *rdap.CheckResult, queryErr error) *checkerEnv {
	env := &checkerEnv{
		domainRepo: &fakeDomainRepo{},
		history:    &fakeHistoryRepo{},
		settings:   &fakeSettingsRepo{values: map[string]string{}},
		probe:      &fakeProbe{status: model.StatusRegistered},
		notifier:   &recordingNotifier{},
		registrant: &fakeRegistrant{},
	}
	env.querier = &fakeQuerier{
		queryFunc: func(_ context.Context, _, _ string, _ int, _ time.Duration) (*rdap.CheckResult, error) {
			return result, queryErr
		},
	}
	env.checker = NewChecker(
		env.domainRepo, env.history, env.settings,
		env.querier, env.probe, env.notifier, env.registrant,
		nil, testLogger(), DefaultConfig(),
	)
	return env
}

func watchedDomain(status model.DomainStatus) *model.Domain {
	return &model.Domain{
		ID:            "dom-1",
		Name:          "example.com",
		TLD:           "com",
		CurrentStatus: status,
	}
}

func TestPerformCheck_StatusChange(t *testing.T) {
	env := newCheckerEnv(&rdap.CheckResult{Status: model.StatusAvailable}, nil)
	domain := watchedDomain(model.StatusUnknown)

	before := time.Now()
	newStatus, err := env.checker.PerformCheck(context.Background(), domain)
	if err != nil {
		t.Fatalf("PerformCheck() error = %v", err)
	}
	if newStatus != model.StatusAvailable {
		t.Errorf("newStatus = %q, want available", newStatus)
	}

	// 状態は必ず永続化される
	if len(env.domainRepo.updatedDomains) != 1 {
		t.Fatalf("updatedDomains = %d, want 1", len(env.domainRepo.updatedDomains))
	}
	updated := env.domainRepo.updatedDomains[0]
	if updated.CurrentStatus != model.StatusAvailable || updated.PreviousStatus != model.StatusUnknown {
		t.Errorf("statuses = %q <- %q", updated.CurrentStatus, updated.PreviousStatus)
	}

	// availableの次回チェックは約60分後
	if updated.NextCheckAt == nil || updated.LastCheckedAt == nil {
		t.Fatal("チェック時刻が設定されていません")
	}
	gap := updated.NextCheckAt.Sub(*updated.LastCheckedAt)
	if gap != 60*time.Minute {
		t.Errorf("next check gap = %v, want 60m", gap)
	}
	if !updated.NextCheckAt.After(before) {
		t.Error("NextCheckAtが過去になっています")
	}

	// 状態変化につき履歴が1件作成される
	if len(env.history.entries) != 1 {
		t.Fatalf("history entries = %d, want 1", len(env.history.entries))
	}
	entry := env.history.entries[0]
	if entry.FromStatus != model.StatusUnknown || entry.ToStatus != model.StatusAvailable {
		t.Errorf("history = %q -> %q", entry.FromStatus, entry.ToStatus)
	}
	if entry.EventType != model.EventStatusChange {
		t.Errorf("EventType = %q", entry.EventType)
	}

	// 通知が送信され、availableなので自動登録が試行される
	if len(env.notifier.calls) != 1 {
		t.Errorf("notifier calls = %v, want 1件", env.notifier.calls)
	}
	if len(env.registrant.calls) != 1 {
		t.Errorf("registrant calls = %v, want 1件", env.registrant.calls)
	}
}

// registered→availableの遷移で満了日・レジストラ・生レスポンスが
// 前回チェックの値のまま残らないことを検証
func TestPerformCheck_AvailableClearsProtocolFields(t *testing.T) {
	env := newCheckerEnv(&rdap.CheckResult{Status: model.StatusAvailable}, nil)
	expiry := time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC)
	domain := watchedDomain(model.StatusRegistered)
	domain.ExpiryDate = &expiry
	domain.Registrar = "Old Registrar Inc"
	domain.RDAPRaw = `{"objectClassName":"domain"}`

	if _, err := env.checker.PerformCheck(context.Background(), domain); err != nil {
		t.Fatalf("PerformCheck() error = %v", err)
	}

	if len(env.domainRepo.updatedDomains) != 1 {
		t.Fatalf("updatedDomains = %d, want 1", len(env.domainRepo.updatedDomains))
	}
	updated := env.domainRepo.updatedDomains[0]
	if updated.ExpiryDate != nil {
		t.Errorf("ExpiryDate = %v, want nil", updated.ExpiryDate)
	}
	if updated.Registrar != "" {
		t.Errorf("Registrar = %q, want 空", updated.Registrar)
	}
	if updated.RDAPRaw != "" {
		t.Errorf("RDAPRaw = %q, want 空", updated.RDAPRaw)
	}
}

func TestPerformCheck_NoChange(t *testing.T) {
	env := newCheckerEnv(&rdap.CheckResult{Status: model.StatusRegistered}, nil)
	domain := watchedDomain(model.StatusRegistered)

	if _, err := env.checker.PerformCheck(context.Background(), domain); err != nil {
		t.Fatalf("PerformCheck() error = %v", err)
	}

	// 変化なしでも永続化はされる
	if len(env.domainRepo.updatedDomains) != 1 {
		t.Errorf("updatedDomains = %d, want 1", len(env.domainRepo.updatedDomains))
	}
	// 履歴・通知・登録は発生しない
	if len(env.history.entries) != 0 {
		t.Errorf("history entries = %d, want 0", len(env.history.entries))
	}
	if len(env.notifier.calls) != 0 {
		t.Errorf("notifier calls = %v, want なし", env.notifier.calls)
	}
	if len(env.registrant.calls) != 0 {
		t.Errorf("registrant calls = %v, want なし", env.registrant.calls)
	}
}

func TestPerformCheck_NonAvailableChange_NoRegistration(t *testing.T) {
	env := newCheckerEnv(&rdap.CheckResult{Status: model.StatusExpiringSoon}, nil)
	domain := watchedDomain(model.StatusRegistered)

	if _, err := env.checker.PerformCheck(context.Background(), domain); err != nil {
		t.Fatalf("PerformCheck() error = %v", err)
	}

	if len(env.notifier.calls) != 1 {
		t.Errorf("notifier calls = %v, want 1件", env.notifier.calls)
	}
	// available以外への遷移では自動登録しない
	if len(env.registrant.calls) != 0 {
		t.Errorf("registrant calls = %v, want なし", env.registrant.calls)
	}
}

func TestPerformCheck_PendingDelete_ShortInterval(t *testing.T) {
	env := newCheckerEnv(&rdap.CheckResult{Status: model.StatusPendingDelete}, nil)
	domain := watchedDomain(model.StatusRegistered)

	if _, err := env.checker.PerformCheck(context.Background(), domain); err != nil {
		t.Fatalf("PerformCheck() error = %v", err)
	}

	updated := env.domainRepo.updatedDomains[0]
	gap := updated.NextCheckAt.Sub(*updated.LastCheckedAt)
	if gap != 5*time.Minute {
		t.Errorf("next check gap = %v, want 5m", gap)
	}
}

func TestPerformCheck_WhoisFallback(t *testing.T) {
	env := newCheckerEnv(nil, model.NewNoRDAPServerError("weirdtld"))
	env.probe.status = model.StatusAvailable
	domain := watchedDomain(model.StatusUnknown)
	domain.TLD = "weirdtld"

	newStatus, err := env.checker.PerformCheck(context.Background(), domain)
	if err != nil {
		t.Fatalf("PerformCheck() error = %v", err)
	}
	if env.probe.calls != 1 {
		t.Errorf("probe calls = %d, want 1", env.probe.calls)
	}
	if newStatus != model.StatusAvailable {
		t.Errorf("newStatus = %q, want available", newStatus)
	}
}

func TestPerformCheck_WhoisFallbackDisabled(t *testing.T) {
	env := newCheckerEnv(nil, model.NewNoRDAPServerError("weirdtld"))
	config := DefaultConfig()
	config.WhoisFallback = false
	env.checker = NewChecker(
		env.domainRepo, env.history, env.settings,
		env.querier, env.probe, env.notifier, env.registrant,
		nil, testLogger(), config,
	)
	domain := watchedDomain(model.StatusUnknown)

	newStatus, err := env.checker.PerformCheck(context.Background(), domain)
	if err != nil {
		t.Fatalf("PerformCheck() error = %v", err)
	}
	if env.probe.calls != 0 {
		t.Errorf("probe calls = %d, want 0", env.probe.calls)
	}
	if newStatus != model.StatusError {
		t.Errorf("newStatus = %q, want error", newStatus)
	}
}

func TestPerformCheck_SettingsOverride(t *testing.T) {
	var gotThreshold int
	var gotTimeout time.Duration
	env := newCheckerEnv(nil, nil)
	env.settings.values[model.SettingExpiringThresholdDays] = "45"
	env.settings.values[model.SettingRDAPTimeoutMs] = "2500"
	env.querier.queryFunc = func(_ context.Context, _, _ string, thresholdDays int, timeout time.Duration) (*rdap.CheckResult, error) {
		gotThreshold = thresholdDays
		gotTimeout = timeout
		return &rdap.CheckResult{Status: model.StatusRegistered}, nil
	}

	if _, err := env.checker.PerformCheck(context.Background(), watchedDomain(model.StatusRegistered)); err != nil {
		t.Fatalf("PerformCheck() error = %v", err)
	}
	if gotThreshold != 45 {
		t.Errorf("thresholdDays = %d, want 45", gotThreshold)
	}
	if gotTimeout != 2500*time.Millisecond {
		t.Errorf("timeout = %v, want 2.5s", gotTimeout)
	}
}

func TestPerformCheck_PersistFailure(t *testing.T) {
	env := newCheckerEnv(&rdap.CheckResult{Status: model.StatusAvailable}, nil)
	env.domainRepo.updateErr = errors.New("db down")
	domain := watchedDomain(model.StatusUnknown)

	if _, err := env.checker.PerformCheck(context.Background(), domain); err == nil {
		t.Fatal("PerformCheck() error = nil, want エラー")
	}
	// 永続化に失敗した場合は履歴も通知も発生しない
	if len(env.history.entries) != 0 {
		t.Errorf("history entries = %d, want 0", len(env.history.entries))
	}
	if len(env.notifier.calls) != 0 {
		t.Errorf("notifier calls = %v, want なし", env.notifier.calls)
	}
}
