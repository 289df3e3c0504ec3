package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/laurilehto/namedrop/internal/model"
)

// PostgresRegistrarConfigRepo はPostgreSQLを使用したレジストラ設定リポジトリ。
type PostgresRegistrarConfigRepo struct {
	db *sql.DB
}

// NewPostgresRegistrarConfigRepo はPostgresRegistrarConfigRepoを生成する。
func NewPostgresRegistrarConfigRepo(db *sql.DB) *PostgresRegistrarConfigRepo {
	return &PostgresRegistrarConfigRepo{db: db}
}

const registrarConfigColumns = `id, adapter_name, display_name, api_key, api_secret,
       sandbox_mode, extra_config, balance, balance_updated_at, enabled, created_at`

func scanRegistrarConfig(scan func(dest ...any) error) (*model.RegistrarConfig, error) {
	config := &model.RegistrarConfig{}
	var apiSecret sql.NullString
	var balance sql.NullFloat64
	var balanceUpdatedAt sql.NullTime
	var extraJSON []byte

	if err := scan(
		&config.ID, &config.AdapterName, &config.DisplayName,
		&config.APIKey, &apiSecret, &config.SandboxMode, &extraJSON,
		&balance, &balanceUpdatedAt, &config.Enabled, &config.CreatedAt,
	); err != nil {
		return nil, err
	}

	config.APISecret = nullStringValue(apiSecret)
	if balance.Valid {
		b := balance.Float64
		config.Balance = &b
	}
	config.BalanceUpdatedAt = nullTimeValue(balanceUpdatedAt)
	if err := json.Unmarshal(extraJSON, &config.ExtraConfig); err != nil {
		return nil, fmt.Errorf("追加設定のデシリアライズに失敗しました: %w", err)
	}

	return config, nil
}

// FindByAdapterName はアダプタ名でレジストラ設定を検索する。見つからない場合はnilを返す。
func (r *PostgresRegistrarConfigRepo) FindByAdapterName(ctx context.Context, adapterName string) (*model.RegistrarConfig, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+registrarConfigColumns+` FROM registrar_configs WHERE adapter_name = $1`,
		adapterName,
	)

	config, err := scanRegistrarConfig(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("レジストラ設定の取得に失敗しました: %w", err)
	}
	return config, nil
}

// Upsert はレジストラ設定をadapter_nameをキーに冪等にUPSERTする。
func (r *PostgresRegistrarConfigRepo) Upsert(ctx context.Context, config *model.RegistrarConfig) error {
	extra := config.ExtraConfig
	if extra == nil {
		extra = map[string]string{}
	}
	extraJSON, err := json.Marshal(extra)
	if err != nil {
		return fmt.Errorf("追加設定のシリアライズに失敗しました: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO registrar_configs (id, adapter_name, display_name, api_key, api_secret,
		                                sandbox_mode, extra_config, enabled, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (adapter_name) DO UPDATE SET
		    display_name = EXCLUDED.display_name,
		    api_key = EXCLUDED.api_key,
		    api_secret = EXCLUDED.api_secret,
		    sandbox_mode = EXCLUDED.sandbox_mode,
		    extra_config = EXCLUDED.extra_config,
		    enabled = EXCLUDED.enabled`,
		config.ID, config.AdapterName, config.DisplayName,
		config.APIKey, nullString(config.APISecret),
		config.SandboxMode, extraJSON, config.Enabled, config.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("レジストラ設定のUPSERTに失敗しました: %w", err)
	}
	return nil
}

// List は全レジストラ設定を返す。
func (r *PostgresRegistrarConfigRepo) List(ctx context.Context) ([]*model.RegistrarConfig, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+registrarConfigColumns+` FROM registrar_configs ORDER BY adapter_name ASC`)
	if err != nil {
		return nil, fmt.Errorf("レジストラ設定一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var configs []*model.RegistrarConfig
	for rows.Next() {
		config, err := scanRegistrarConfig(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("レジストラ設定一覧の読み取りに失敗しました: %w", err)
		}
		configs = append(configs, config)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("レジストラ設定一覧の走査に失敗しました: %w", err)
	}
	return configs, nil
}

// UpdateBalance は残高と取得日時を更新する。
func (r *PostgresRegistrarConfigRepo) UpdateBalance(ctx context.Context, adapterName string, balance float64, updatedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE registrar_configs SET balance = $2, balance_updated_at = $3 WHERE adapter_name = $1`,
		adapterName, balance, updatedAt,
	)
	if err != nil {
		return fmt.Errorf("残高の更新に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ RegistrarConfigRepository = (*PostgresRegistrarConfigRepo)(nil)
