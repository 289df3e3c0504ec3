package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
)

// PostgresSettingsRepo はPostgreSQLを使用した実行時設定リポジトリ。
type PostgresSettingsRepo struct {
	db *sql.DB
}

// NewPostgresSettingsRepo はPostgresSettingsRepoを生成する。
func NewPostgresSettingsRepo(db *sql.DB) *PostgresSettingsRepo {
	return &PostgresSettingsRepo{db: db}
}

// Get は指定キーの設定値を返す。キーが存在しない場合はdefaultValを返す。
func (r *PostgresSettingsRepo) Get(ctx context.Context, key, defaultVal string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return defaultVal, nil
	}
	if err != nil {
		return "", fmt.Errorf("設定値の取得に失敗しました: %w", err)
	}
	return value, nil
}

// GetInt は指定キーの設定値を整数として返す。
// 整数として解釈できない値が格納されている場合はdefaultValを返す。
func (r *PostgresSettingsRepo) GetInt(ctx context.Context, key string, defaultVal int) (int, error) {
	value, err := r.Get(ctx, key, strconv.Itoa(defaultVal))
	if err != nil {
		return 0, err
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return defaultVal, nil
	}
	return i, nil
}

// GetBool は指定キーの設定値を真偽値として返す。
func (r *PostgresSettingsRepo) GetBool(ctx context.Context, key string, defaultVal bool) (bool, error) {
	value, err := r.Get(ctx, key, strconv.FormatBool(defaultVal))
	if err != nil {
		return false, err
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultVal, nil
	}
	return b, nil
}

// Set は設定値を冪等にUPSERTする。
func (r *PostgresSettingsRepo) Set(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("設定値の更新に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ SettingsRepository = (*PostgresSettingsRepo)(nil)
