package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/laurilehto/namedrop/internal/model"
)

// PostgresHistoryRepo はPostgreSQLを使用したドメイン履歴リポジトリ。
type PostgresHistoryRepo struct {
	db *sql.DB
}

// NewPostgresHistoryRepo はPostgresHistoryRepoを生成する。
func NewPostgresHistoryRepo(db *sql.DB) *PostgresHistoryRepo {
	return &PostgresHistoryRepo{db: db}
}

// Create は履歴エントリを作成する。
func (r *PostgresHistoryRepo) Create(ctx context.Context, entry *model.HistoryEntry) error {
	details := entry.Details
	if details == nil {
		details = map[string]any{}
	}
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("履歴詳細のシリアライズに失敗しました: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO domain_history (id, domain_id, from_status, to_status, event_type, details, notified, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.DomainID,
		nullString(string(entry.FromStatus)), entry.ToStatus,
		entry.EventType, detailsJSON, entry.Notified, entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("履歴エントリの作成に失敗しました: %w", err)
	}
	return nil
}

// ListByDomainID は指定ドメインの履歴をcreated_at降順で返す。
func (r *PostgresHistoryRepo) ListByDomainID(ctx context.Context, domainID string, limit int) ([]*model.HistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, domain_id, from_status, to_status, event_type, details, notified, created_at
		 FROM domain_history
		 WHERE domain_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		domainID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("履歴一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var entries []*model.HistoryEntry
	for rows.Next() {
		entry := &model.HistoryEntry{}
		var fromStatus sql.NullString
		var detailsJSON []byte

		if err := rows.Scan(
			&entry.ID, &entry.DomainID, &fromStatus, &entry.ToStatus,
			&entry.EventType, &detailsJSON, &entry.Notified, &entry.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("履歴一覧の読み取りに失敗しました: %w", err)
		}

		entry.FromStatus = model.DomainStatus(nullStringValue(fromStatus))
		if err := json.Unmarshal(detailsJSON, &entry.Details); err != nil {
			return nil, fmt.Errorf("履歴詳細のデシリアライズに失敗しました: %w", err)
		}

		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("履歴一覧の走査に失敗しました: %w", err)
	}
	return entries, nil
}

// MarkNotified は履歴エントリのnotifiedフラグを立てる。
func (r *PostgresHistoryRepo) MarkNotified(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE domain_history SET notified = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("通知済みフラグの更新に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ HistoryRepository = (*PostgresHistoryRepo)(nil)
