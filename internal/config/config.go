package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Credential Cipher
	AuthSecret string

	// Check
	CheckInterval      time.Duration // スイープの実行間隔
	CheckMaxConcurrent int           // スイープ内のドメインチェック並列数

	// RDAP
	RDAPTimeout       time.Duration // RDAPクエリのデフォルトタイムアウト
	RDAPMinInterval   time.Duration // 同一RDAPサーバーへの最小リクエスト間隔
	RDAPMaxConcurrent int           // 全サーバー合計の最大同時リクエスト数
	BootstrapTTL      time.Duration // IANAブートストラップのキャッシュTTL

	// WHOIS
	WhoisFallback bool // RDAPサーバー未対応TLDに対するWHOISフォールバック

	// Notification
	SMTPTimeout time.Duration // SMTP送信全体のタイムアウト

	// History
	HistoryRetentionDays int // ドメイン履歴の保持日数

	// Server
	ServerPort string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
// AUTH_SECRETがプレースホルダー値（"changeme"）の場合もエラーとする。
// 資格情報の暗号鍵がデフォルト値のまま稼働する事故を起動時に防ぐ。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.AuthSecret = os.Getenv("AUTH_SECRET")
	if cfg.AuthSecret == "" {
		missing = append(missing, "AUTH_SECRET")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if cfg.AuthSecret == "changeme" {
		return nil, fmt.Errorf("AUTH_SECRET must be set to a secure value (not %q)", "changeme")
	}

	// Optional fields with defaults
	cfg.CheckInterval = getEnvDuration("CHECK_INTERVAL", time.Minute)
	cfg.CheckMaxConcurrent = getEnvInt("CHECK_MAX_CONCURRENT", 5)
	cfg.RDAPTimeout = getEnvDuration("RDAP_TIMEOUT", 10*time.Second)
	cfg.RDAPMinInterval = getEnvDuration("RDAP_MIN_INTERVAL", time.Second)
	cfg.RDAPMaxConcurrent = getEnvInt("RDAP_MAX_CONCURRENT", 5)
	cfg.BootstrapTTL = getEnvDuration("BOOTSTRAP_TTL", 24*time.Hour)
	cfg.WhoisFallback = getEnvBool("WHOIS_FALLBACK", true)
	cfg.SMTPTimeout = getEnvDuration("SMTP_TIMEOUT", 30*time.Second)
	cfg.HistoryRetentionDays = getEnvInt("HISTORY_RETENTION_DAYS", 365)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
