// Package registrar はレジストラAPIへのアダプタを提供する。
package registrar

import "context"

const userAgent = "namedrop/1.0"

// ConfigField はアダプタ固有の追加設定項目のスキーマを表す。
type ConfigField struct {
	Key         string `json:"key"`
	Label       string `json:"label"`
	Type        string `json:"type"` // text, password, boolean, number
	Required    bool   `json:"required"`
	Description string `json:"description"`
}

// InitConfig はアダプタの初期化パラメータを表す。
// APIKeyとAPISecretは復号済みの平文。
type InitConfig struct {
	APIKey      string
	APISecret   string
	SandboxMode bool
	ExtraConfig map[string]string
}

// AvailabilityResult はドメイン可用性チェックの結果を表す。
type AvailabilityResult struct {
	Available bool    `json:"available"`
	Price     float64 `json:"price,omitempty"`
	Currency  string  `json:"currency,omitempty"`
}

// RegistrationResult はドメイン登録試行の結果を表す。
type RegistrationResult struct {
	Success  bool    `json:"success"`
	OrderID  string  `json:"order_id,omitempty"`
	Error    string  `json:"error,omitempty"`
	Cost     float64 `json:"cost,omitempty"`
	Currency string  `json:"currency,omitempty"`
}

// BalanceResult はアカウント残高照会の結果を表す。
type BalanceResult struct {
	Balance  float64 `json:"balance"`
	Currency string  `json:"currency"`
}

// ConnectionResult は接続テストの結果を表す。
type ConnectionResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Adapter はレジストラAPIの統一インターフェース。
// 実装はInitialize後にのみAPI操作を行える。
type Adapter interface {
	// Name はアダプタの識別名を返す（例: dynadot）。
	Name() string

	// DisplayName はUI表示用の名称を返す。
	DisplayName() string

	// ConfigSchema はアダプタ固有の追加設定項目を返す。
	ConfigSchema() []ConfigField

	// Initialize は復号済み資格情報でアダプタを初期化する。
	// SandboxModeに応じて接続先エンドポイントを切り替える。
	Initialize(config InitConfig)

	// CheckAvailability はレジストラAPIでドメインの可用性を照会する。
	CheckAvailability(ctx context.Context, domain string) (*AvailabilityResult, error)

	// RegisterDomain はドメインの登録を試行する。yearsが0以下の場合は1年として扱う。
	RegisterDomain(ctx context.Context, domain string, years int) (*RegistrationResult, error)

	// GetBalance はアカウント残高を照会する。
	GetBalance(ctx context.Context) (*BalanceResult, error)

	// TestConnection は資格情報の有効性を確認する。エラーは結果に畳み込む。
	TestConnection(ctx context.Context) *ConnectionResult
}
