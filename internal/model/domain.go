// Package model はドメインモデルを定義する。
package model

import "time"

// Domain は監視対象のドメイン名を表す。
type Domain struct {
	ID               string
	Name             string // ドメイン名（正規化済み、一意）
	TLD              string
	CurrentStatus    DomainStatus
	PreviousStatus   DomainStatus
	ExpiryDate       *time.Time
	Registrar        string
	RDAPRaw          string
	LastCheckedAt    *time.Time
	NextCheckAt      *time.Time
	AutoRegister     bool
	RegistrarAdapter string // 自動登録に使用するアダプタ名
	Priority         int
	Notes            string
	Tags             []string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// DomainStatus はドメインのライフサイクル状態を表す。
type DomainStatus string

const (
	// StatusUnknown は未チェック状態。登録直後はこの状態で即時チェックされる。
	StatusUnknown DomainStatus = "unknown"
	// StatusRegistered は登録済み状態。
	StatusRegistered DomainStatus = "registered"
	// StatusExpiringSoon は有効期限が閾値以内に迫っている状態。
	StatusExpiringSoon DomainStatus = "expiring_soon"
	// StatusGracePeriod は有効期限切れ後の猶予期間。
	StatusGracePeriod DomainStatus = "grace_period"
	// StatusRedemption は償還期間（高額で回復可能）。
	StatusRedemption DomainStatus = "redemption"
	// StatusPendingDelete は削除保留（解放直前）状態。
	StatusPendingDelete DomainStatus = "pending_delete"
	// StatusAvailable は登録可能状態。
	StatusAvailable DomainStatus = "available"
	// StatusError はチェック失敗状態。デフォルト間隔で再試行される。
	StatusError DomainStatus = "error"
)

// HistoryEntry はドメインの状態変化・登録試行の監査レコードを表す。
// 作成後はnotifiedフラグ以外は不変。
type HistoryEntry struct {
	ID         string
	DomainID   string
	FromStatus DomainStatus
	ToStatus   DomainStatus
	EventType  EventType
	Details    map[string]any
	Notified   bool
	Timestamp  time.Time
}

// EventType は履歴エントリの種別を表す。
type EventType string

const (
	// EventStatusChange は状態遷移イベント。
	EventStatusChange EventType = "status_change"
	// EventRegistrationAttempt は自動/手動登録試行イベント。
	EventRegistrationAttempt EventType = "registration_attempt"
)

// RegistrarConfig はレジストラアダプタごとの設定を表す。
// APIKeyとAPISecretは暗号化トークンとして保存される。
type RegistrarConfig struct {
	ID               string
	AdapterName      string // アダプタ名（一意）
	DisplayName      string
	APIKey           string // 暗号化済み
	APISecret        string // 暗号化済み（任意）
	SandboxMode      bool
	ExtraConfig      map[string]string
	Balance          *float64
	BalanceUpdatedAt *time.Time
	Enabled          bool
	CreatedAt        time.Time
}

// NotificationChannel は通知チャネルの設定を表す。
type NotificationChannel struct {
	ID        string
	Type      ChannelType
	Name      string
	Config    map[string]string
	Enabled   bool
	NotifyOn  []DomainStatus // このチャネルが発火する状態の集合
	CreatedAt time.Time
}

// ChannelType は通知チャネルの種別を表す。
type ChannelType string

const (
	// ChannelWebhook はJSONペイロードをPOSTする汎用Webhook。
	ChannelWebhook ChannelType = "webhook"
	// ChannelTelegram はTelegram Bot API経由の通知。
	ChannelTelegram ChannelType = "telegram"
	// ChannelEmail はSMTP直接送信によるメール通知。
	ChannelEmail ChannelType = "email"
	// ChannelNtfy はntfyプッシュ通知。
	ChannelNtfy ChannelType = "ntfy"
)

// SweepResult はスケジューラの1回のスイープ結果を表す。
type SweepResult struct {
	Checked int `json:"checked"`
	Changed int `json:"changed"`
	Errors  int `json:"errors"`
}

// 設定テーブルのキー定義。
const (
	// SettingExpiringThresholdDays はexpiring_soon判定の閾値日数。
	SettingExpiringThresholdDays = "expiring_threshold_days"
	// SettingRDAPTimeoutMs はRDAPクエリのタイムアウト（ミリ秒）。
	SettingRDAPTimeoutMs = "rdap_timeout_ms"
	// SettingAutoRegisterEnabled は自動登録のグローバル有効フラグ。
	SettingAutoRegisterEnabled = "auto_register_enabled"
	// SettingLowBalanceThreshold は残高警告の閾値。
	SettingLowBalanceThreshold = "low_balance_threshold"
)
