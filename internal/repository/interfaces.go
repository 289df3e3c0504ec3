// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/laurilehto/namedrop/internal/model"
)

// DomainRepository はドメインデータの永続化インターフェース。
type DomainRepository interface {
	// FindByID は指定IDのドメインを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Domain, error)

	// FindByName は正規化済みドメイン名でドメインを検索する。見つからない場合はnilを返す。
	FindByName(ctx context.Context, name string) (*model.Domain, error)

	// Create はドメインを作成する。
	Create(ctx context.Context, domain *model.Domain) error

	// Update はドメイン情報を更新する。
	Update(ctx context.Context, domain *model.Domain) error

	// List は全ドメインをpriority降順、name昇順で返す。
	List(ctx context.Context) ([]*model.Domain, error)

	// ListDueForCheck はチェック対象のドメインを取得する。
	// next_check_at <= now() または next_check_at IS NULL のドメインを
	// FOR UPDATE SKIP LOCKEDで排他的に取得する。
	ListDueForCheck(ctx context.Context) ([]*model.Domain, error)

	// UpdateCheckState はチェック結果を反映する。
	// current_status、previous_status、expiry_date、registrar、rdap_raw、
	// last_checked_at、next_check_atを更新する。
	UpdateCheckState(ctx context.Context, domain *model.Domain) error

	// DeleteByID は指定IDのドメインを削除する。
	// 関連するdomain_historyはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// HistoryRepository はドメイン履歴の永続化インターフェース。
type HistoryRepository interface {
	// Create は履歴エントリを作成する。
	Create(ctx context.Context, entry *model.HistoryEntry) error

	// ListByDomainID は指定ドメインの履歴をcreated_at降順で返す。
	ListByDomainID(ctx context.Context, domainID string, limit int) ([]*model.HistoryEntry, error)

	// MarkNotified は履歴エントリのnotifiedフラグを立てる。
	MarkNotified(ctx context.Context, id string) error
}

// RegistrarConfigRepository はレジストラ設定の永続化インターフェース。
// api_key、api_secretは暗号化トークンのまま格納される。
type RegistrarConfigRepository interface {
	// FindByAdapterName はアダプタ名でレジストラ設定を検索する。見つからない場合はnilを返す。
	FindByAdapterName(ctx context.Context, adapterName string) (*model.RegistrarConfig, error)

	// Upsert はレジストラ設定をadapter_nameをキーに冪等にUPSERTする。
	Upsert(ctx context.Context, config *model.RegistrarConfig) error

	// List は全レジストラ設定を返す。
	List(ctx context.Context) ([]*model.RegistrarConfig, error)

	// UpdateBalance は残高と取得日時を更新する。
	UpdateBalance(ctx context.Context, adapterName string, balance float64, updatedAt time.Time) error
}

// ChannelRepository は通知チャネルの永続化インターフェース。
type ChannelRepository interface {
	// FindByID は指定IDのチャネルを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.NotificationChannel, error)

	// Create はチャネルを作成する。
	Create(ctx context.Context, channel *model.NotificationChannel) error

	// ListEnabled は有効なチャネル一覧を返す。
	ListEnabled(ctx context.Context) ([]*model.NotificationChannel, error)

	// DeleteByID は指定IDのチャネルを削除する。
	DeleteByID(ctx context.Context, id string) error
}

// SettingsRepository は実行時設定の永続化インターフェース。
type SettingsRepository interface {
	// Get は指定キーの設定値を返す。キーが存在しない場合はdefaultValを返す。
	Get(ctx context.Context, key, defaultVal string) (string, error)

	// GetInt は指定キーの設定値を整数として返す。
	// キーが存在しない、または整数として解釈できない場合はdefaultValを返す。
	GetInt(ctx context.Context, key string, defaultVal int) (int, error)

	// GetBool は指定キーの設定値を真偽値として返す。
	GetBool(ctx context.Context, key string, defaultVal bool) (bool, error)

	// Set は設定値を冪等にUPSERTする。
	Set(ctx context.Context, key, value string) error
}
