package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/laurilehto/namedrop/internal/model"
)

// PostgresChannelRepo はPostgreSQLを使用した通知チャネルリポジトリ。
type PostgresChannelRepo struct {
	db *sql.DB
}

// NewPostgresChannelRepo はPostgresChannelRepoを生成する。
func NewPostgresChannelRepo(db *sql.DB) *PostgresChannelRepo {
	return &PostgresChannelRepo{db: db}
}

func scanChannel(scan func(dest ...any) error) (*model.NotificationChannel, error) {
	channel := &model.NotificationChannel{}
	var configJSON []byte
	var notifyOn []string

	if err := scan(
		&channel.ID, &channel.Type, &channel.Name, &configJSON,
		&channel.Enabled, pq.Array(&notifyOn), &channel.CreatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(configJSON, &channel.Config); err != nil {
		return nil, fmt.Errorf("チャネル設定のデシリアライズに失敗しました: %w", err)
	}
	channel.NotifyOn = make([]model.DomainStatus, len(notifyOn))
	for i, s := range notifyOn {
		channel.NotifyOn[i] = model.DomainStatus(s)
	}

	return channel, nil
}

// FindByID は指定IDのチャネルを取得する。見つからない場合はnilを返す。
func (r *PostgresChannelRepo) FindByID(ctx context.Context, id string) (*model.NotificationChannel, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, type, name, config, enabled, notify_on, created_at
		 FROM notification_channels WHERE id = $1`, id)

	channel, err := scanChannel(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("通知チャネルの取得に失敗しました: %w", err)
	}
	return channel, nil
}

// Create はチャネルを作成する。
func (r *PostgresChannelRepo) Create(ctx context.Context, channel *model.NotificationChannel) error {
	config := channel.Config
	if config == nil {
		config = map[string]string{}
	}
	configJSON, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("チャネル設定のシリアライズに失敗しました: %w", err)
	}

	notifyOn := make([]string, len(channel.NotifyOn))
	for i, s := range channel.NotifyOn {
		notifyOn[i] = string(s)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO notification_channels (id, type, name, config, enabled, notify_on, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		channel.ID, channel.Type, channel.Name, configJSON,
		channel.Enabled, pq.Array(notifyOn), channel.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("通知チャネルの作成に失敗しました: %w", err)
	}
	return nil
}

// ListEnabled は有効なチャネル一覧を返す。
func (r *PostgresChannelRepo) ListEnabled(ctx context.Context) ([]*model.NotificationChannel, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, type, name, config, enabled, notify_on, created_at
		 FROM notification_channels
		 WHERE enabled = TRUE
		 ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("通知チャネル一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var channels []*model.NotificationChannel
	for rows.Next() {
		channel, err := scanChannel(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("通知チャネル一覧の読み取りに失敗しました: %w", err)
		}
		channels = append(channels, channel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("通知チャネル一覧の走査に失敗しました: %w", err)
	}
	return channels, nil
}

// DeleteByID は指定IDのチャネルを削除する。
func (r *PostgresChannelRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM notification_channels WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("通知チャネルの削除に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ChannelRepository = (*PostgresChannelRepo)(nil)
