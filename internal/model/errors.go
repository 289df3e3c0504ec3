// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, domain, registrar, notification, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidDomain          = "INVALID_DOMAIN"
	ErrCodeDomainNotFound         = "DOMAIN_NOT_FOUND"
	ErrCodeDuplicateDomain        = "DUPLICATE_DOMAIN"
	ErrCodeNoRDAPServer           = "NO_RDAP_SERVER"
	ErrCodeUnknownAdapter         = "UNKNOWN_ADAPTER"
	ErrCodeRegistrarConfigMissing = "REGISTRAR_CONFIG_MISSING"
	ErrCodeChannelNotFound        = "CHANNEL_NOT_FOUND"
	ErrCodeUnknownChannelType     = "UNKNOWN_CHANNEL_TYPE"
	ErrCodeInvalidCipherToken     = "INVALID_CIPHER_TOKEN"
)

// NewInvalidDomainError は無効なドメイン名エラーを生成する。
func NewInvalidDomainError(domain string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDomain,
		Message:  fmt.Sprintf("無効なドメイン名です: %s", domain),
		Category: "validation",
		Action:   "正しいドメイン名形式（例: example.com）を入力してください。",
	}
}

// NewDomainNotFoundError はドメイン未検出エラーを生成する。
func NewDomainNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeDomainNotFound,
		Message:  fmt.Sprintf("指定されたドメインが見つかりません: %s", id),
		Category: "domain",
		Action:   "ドメインIDを確認してください。",
	}
}

// NewDuplicateDomainError は既に監視中のドメインを再登録しようとした場合のエラーを生成する。
func NewDuplicateDomainError(domain string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateDomain,
		Message:  fmt.Sprintf("このドメインは既に監視対象です: %s", domain),
		Category: "domain",
		Action:   "ドメイン一覧から該当ドメインを確認してください。",
	}
}

// NewNoRDAPServerError はTLDに対応するRDAPサーバーが見つからない場合のエラーを生成する。
func NewNoRDAPServerError(tld string) *APIError {
	return &APIError{
		Code:     ErrCodeNoRDAPServer,
		Message:  fmt.Sprintf("TLDに対応するRDAPサーバーが見つかりません: .%s", tld),
		Category: "domain",
		Action:   "このTLDはRDAPに対応していない可能性があります。WHOISフォールバックの有効化を検討してください。",
	}
}

// NewUnknownAdapterError は未知のレジストラアダプタ名が指定された場合のエラーを生成する。
func NewUnknownAdapterError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownAdapter,
		Message:  fmt.Sprintf("未知のレジストラアダプタです: %s", name),
		Category: "registrar",
		Action:   "対応アダプタの一覧から選択してください。",
	}
}

// NewRegistrarConfigMissingError はアダプタのレジストラ設定が存在しない場合のエラーを生成する。
func NewRegistrarConfigMissingError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeRegistrarConfigMissing,
		Message:  fmt.Sprintf("レジストラ設定が見つからないか無効化されています: %s", name),
		Category: "registrar",
		Action:   "設定画面でAPIキーを登録し、有効化してください。",
	}
}

// NewChannelNotFoundError は通知チャネルが見つからない場合のエラーを生成する。
func NewChannelNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeChannelNotFound,
		Message:  fmt.Sprintf("指定された通知チャネルが見つかりません: %s", id),
		Category: "notification",
		Action:   "チャネルIDを確認してください。",
	}
}

// NewUnknownChannelTypeError は未知の通知チャネル種別エラーを生成する。
func NewUnknownChannelTypeError(channelType string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownChannelType,
		Message:  fmt.Sprintf("未知の通知チャネル種別です: %s", channelType),
		Category: "notification",
		Action:   "webhook、telegram、email、ntfy のいずれかを指定してください。",
	}
}

// NewInvalidCipherTokenError は暗号化トークンの構造が不正な場合のエラーを生成する。
func NewInvalidCipherTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCipherToken,
		Message:  "暗号化トークンの形式が不正です。",
		Category: "system",
		Action:   "AUTH_SECRETが変更された場合は、レジストラのAPIキーを再登録してください。",
	}
}
