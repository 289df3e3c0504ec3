package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/laurilehto/namedrop/internal/model"
)

// PostgresDomainRepo はPostgreSQLを使用したドメインリポジトリ。
type PostgresDomainRepo struct {
	db *sql.DB
}

// NewPostgresDomainRepo はPostgresDomainRepoを生成する。
func NewPostgresDomainRepo(db *sql.DB) *PostgresDomainRepo {
	return &PostgresDomainRepo{db: db}
}

const domainColumns = `id, name, tld, current_status, previous_status, expiry_date,
       registrar, rdap_raw, last_checked_at, next_check_at,
       auto_register, registrar_adapter, priority, notes, tags,
       created_at, updated_at`

// scanDomain は1行をmodel.Domainに読み込む。
func scanDomain(scan func(dest ...any) error) (*model.Domain, error) {
	domain := &model.Domain{}
	var previousStatus, registrar, rdapRaw, registrarAdapter sql.NullString
	var expiryDate, lastCheckedAt, nextCheckAt sql.NullTime

	if err := scan(
		&domain.ID, &domain.Name, &domain.TLD, &domain.CurrentStatus, &previousStatus,
		&expiryDate, &registrar, &rdapRaw, &lastCheckedAt, &nextCheckAt,
		&domain.AutoRegister, &registrarAdapter, &domain.Priority, &domain.Notes,
		pq.Array(&domain.Tags),
		&domain.CreatedAt, &domain.UpdatedAt,
	); err != nil {
		return nil, err
	}

	domain.PreviousStatus = model.DomainStatus(nullStringValue(previousStatus))
	domain.Registrar = nullStringValue(registrar)
	domain.RDAPRaw = nullStringValue(rdapRaw)
	domain.RegistrarAdapter = nullStringValue(registrarAdapter)
	domain.ExpiryDate = nullTimeValue(expiryDate)
	domain.LastCheckedAt = nullTimeValue(lastCheckedAt)
	domain.NextCheckAt = nullTimeValue(nextCheckAt)

	return domain, nil
}

// FindByID は指定IDのドメインを取得する。見つからない場合はnilを返す。
func (r *PostgresDomainRepo) FindByID(ctx context.Context, id string) (*model.Domain, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+domainColumns+` FROM domains WHERE id = $1`, id)

	domain, err := scanDomain(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ドメインの取得に失敗しました: %w", err)
	}
	return domain, nil
}

// FindByName は正規化済みドメイン名でドメインを検索する。見つからない場合はnilを返す。
func (r *PostgresDomainRepo) FindByName(ctx context.Context, name string) (*model.Domain, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+domainColumns+` FROM domains WHERE name = $1`, name)

	domain, err := scanDomain(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ドメイン名によるドメインの検索に失敗しました: %w", err)
	}
	return domain, nil
}

// Create はドメインを作成する。
func (r *PostgresDomainRepo) Create(ctx context.Context, domain *model.Domain) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO domains (id, name, tld, current_status, previous_status, expiry_date,
		                      registrar, rdap_raw, last_checked_at, next_check_at,
		                      auto_register, registrar_adapter, priority, notes, tags,
		                      created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		domain.ID, domain.Name, domain.TLD, domain.CurrentStatus,
		nullString(string(domain.PreviousStatus)), domain.ExpiryDate,
		nullString(domain.Registrar), nullString(domain.RDAPRaw),
		domain.LastCheckedAt, domain.NextCheckAt,
		domain.AutoRegister, nullString(domain.RegistrarAdapter),
		domain.Priority, domain.Notes, pq.Array(domain.Tags),
		domain.CreatedAt, domain.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ドメインの作成に失敗しました: %w", err)
	}
	return nil
}

// Update はドメイン情報を更新する。
func (r *PostgresDomainRepo) Update(ctx context.Context, domain *model.Domain) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE domains SET
		    auto_register = $2, registrar_adapter = $3, priority = $4,
		    notes = $5, tags = $6, updated_at = now()
		 WHERE id = $1`,
		domain.ID, domain.AutoRegister, nullString(domain.RegistrarAdapter),
		domain.Priority, domain.Notes, pq.Array(domain.Tags),
	)
	if err != nil {
		return fmt.Errorf("ドメインの更新に失敗しました: %w", err)
	}
	return nil
}

// List は全ドメインをpriority降順、name昇順で返す。
func (r *PostgresDomainRepo) List(ctx context.Context) ([]*model.Domain, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+domainColumns+` FROM domains ORDER BY priority DESC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("ドメイン一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var domains []*model.Domain
	for rows.Next() {
		domain, err := scanDomain(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("ドメイン一覧の読み取りに失敗しました: %w", err)
		}
		domains = append(domains, domain)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ドメイン一覧の走査に失敗しました: %w", err)
	}
	return domains, nil
}

// ListDueForCheck はチェック対象のドメインを取得する。
// next_check_at <= now() または未チェック（next_check_at IS NULL）のドメインを
// FOR UPDATE SKIP LOCKEDで排他的に取得する。
func (r *PostgresDomainRepo) ListDueForCheck(ctx context.Context) ([]*model.Domain, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+domainColumns+`
		 FROM domains
		 WHERE next_check_at <= now() OR next_check_at IS NULL
		 ORDER BY priority DESC, next_check_at ASC NULLS FIRST
		 FOR UPDATE SKIP LOCKED`)
	if err != nil {
		return nil, fmt.Errorf("チェック対象ドメインの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var domains []*model.Domain
	for rows.Next() {
		domain, err := scanDomain(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("チェック対象ドメインの読み取りに失敗しました: %w", err)
		}
		domains = append(domains, domain)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("チェック対象ドメインの走査に失敗しました: %w", err)
	}
	return domains, nil
}

// UpdateCheckState はチェック結果を反映する。
func (r *PostgresDomainRepo) UpdateCheckState(ctx context.Context, domain *model.Domain) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE domains SET
		    current_status = $2,
		    previous_status = $3,
		    expiry_date = $4,
		    registrar = $5,
		    rdap_raw = $6,
		    last_checked_at = $7,
		    next_check_at = $8,
		    updated_at = now()
		 WHERE id = $1`,
		domain.ID,
		domain.CurrentStatus,
		nullString(string(domain.PreviousStatus)),
		domain.ExpiryDate,
		nullString(domain.Registrar),
		nullString(domain.RDAPRaw),
		domain.LastCheckedAt,
		domain.NextCheckAt,
	)
	if err != nil {
		return fmt.Errorf("チェック状態の更新に失敗しました: %w", err)
	}
	return nil
}

// DeleteByID は指定IDのドメインを削除する。
func (r *PostgresDomainRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM domains WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ドメインの削除に失敗しました: %w", err)
	}
	return nil
}

// nullString は空文字列をsql.NullStringに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// nullTimeValue はsql.NullTimeから*time.Timeを取得する。
func nullTimeValue(nt sql.NullTime) *time.Time {
	if nt.Valid {
		t := nt.Time
		return &t
	}
	return nil
}

// compile-time interface check
var _ DomainRepository = (*PostgresDomainRepo)(nil)
