// Package rdap はIANAブートストラップに基づくRDAPドメインクエリを提供する。
package rdap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/laurilehto/namedrop/internal/model"
)

// デフォルトのIANAブートストラップレジストリURL。
const defaultBootstrapURL = "https://data.iana.org/rdap/dns.json"

const userAgent = "namedrop/1.0"

// knownServers はブートストラップが利用できない場合のフォールバック。
var knownServers = map[string]string{
	"com": "https://rdap.verisign.com/com/v1",
	"net": "https://rdap.verisign.com/net/v1",
	"org": "https://rdap.org",
}

// IsNoServerFound は対象TLDのRDAPサーバーが見つからないエラーかどうかを判定する。
// 呼び出し側はWHOISフォールバックの判断に使う。
func IsNoServerFound(err error) bool {
	var apiErr *model.APIError
	return errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeNoRDAPServer
}

// CheckResult はドメインクエリの結果を表す。
// ネットワーク障害やRDAPエラーはStatusErrorとErrorメッセージとして結果に畳み込む。
type CheckResult struct {
	Status     model.DomainStatus
	ExpiryDate *time.Time
	Registrar  string
	RDAPRaw    string
	Error      string
}

// RequestLimiter は外部サーバーへのリクエストレート制御のインターフェース。
type RequestLimiter interface {
	// Do はserverKeyに対するレート制御下でfnを実行する。
	Do(ctx context.Context, serverKey string, fn func() error) error
}

// ClientConfig はRDAPクライアントの設定を保持する。
type ClientConfig struct {
	BootstrapURL string        // IANAブートストラップレジストリのURL
	BootstrapTTL time.Duration // ブートストラップキャッシュのTTL
	Timeout      time.Duration // クエリのデフォルトタイムアウト
}

// DefaultClientConfig はデフォルトのクライアント設定を返す。
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BootstrapURL: defaultBootstrapURL,
		BootstrapTTL: 24 * time.Hour,
		Timeout:      10 * time.Second,
	}
}

// Client はRDAPドメインクエリを実行するクライアント。
// IANAブートストラップレジストリをキャッシュし、TLDごとに適切なサーバーへ
// レート制御付きでクエリする。
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	limiter    RequestLimiter

	mu        sync.RWMutex
	bootstrap map[string][]string
	fetchedAt time.Time
}

// NewClient はClientを生成する。limiterがnilの場合はレート制御なしで動作する。
func NewClient(config ClientConfig, limiter RequestLimiter) *Client {
	if config.BootstrapURL == "" {
		config.BootstrapURL = defaultBootstrapURL
	}
	if config.BootstrapTTL <= 0 {
		config.BootstrapTTL = 24 * time.Hour
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{},
		limiter:    limiter,
	}
}

// QueryDomain は指定ドメインをRDAPで照会し、ライフサイクルステータスを判定する。
// thresholdDaysはexpiring_soon判定の閾値日数、timeoutは0の場合デフォルトを使う。
// 対象TLDのRDAPサーバーが存在しない場合のみエラー（ErrNoServerFound）を返し、
// ネットワーク障害などはStatusErrorの結果として返す。
func (c *Client) QueryDomain(ctx context.Context, name, tld string, thresholdDays int, timeout time.Duration) (*CheckResult, error) {
	if timeout <= 0 {
		timeout = c.config.Timeout
	}

	server := c.serverForTLD(ctx, tld)
	if server == "" {
		return nil, model.NewNoRDAPServerError(tld)
	}

	queryURL := server + "/domain/" + url.PathEscape(name)
	serverKey := serverKeyOf(server)

	var result *CheckResult
	query := func() error {
		queryCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		result = c.doQuery(queryCtx, queryURL, thresholdDays)
		return nil
	}

	if c.limiter != nil {
		if err := c.limiter.Do(ctx, serverKey, query); err != nil {
			return &CheckResult{Status: model.StatusError, Error: err.Error()}, nil
		}
	} else {
		_ = query()
	}

	return result, nil
}

// doQuery は1回のRDAPクエリを実行してレスポンスを解釈する。
func (c *Client) doQuery(ctx context.Context, queryURL string, thresholdDays int) *CheckResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, queryURL, nil)
	if err != nil {
		return &CheckResult{Status: model.StatusError, Error: err.Error()}
	}
	req.Header.Set("Accept", "application/rdap+json")
	req.Header.Set("User-Agent", userAgent)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return &CheckResult{Status: model.StatusError, Error: err.Error()}
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return &CheckResult{Status: model.StatusAvailable}
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return &CheckResult{
			Status: model.StatusError,
			Error:  fmt.Sprintf("RDAP returned HTTP %d", res.StatusCode),
		}
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return &CheckResult{Status: model.StatusError, Error: err.Error()}
	}

	var response rdapResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return &CheckResult{Status: model.StatusError, Error: err.Error()}
	}

	return &CheckResult{
		Status:     mapStatus(&response, res.StatusCode, thresholdDays, time.Now()),
		ExpiryDate: response.expiryDate(),
		Registrar:  response.registrarName(),
		RDAPRaw:    string(body),
	}
}

// serverForTLD は対象TLDのRDAPサーバーURLを返す。見つからない場合は空文字列。
// ブートストラップレジストリを優先し、なければ既知サーバーにフォールバックする。
func (c *Client) serverForTLD(ctx context.Context, tld string) string {
	tld = strings.ToLower(tld)

	bootstrap := c.fetchBootstrap(ctx)
	if servers, ok := bootstrap[tld]; ok && len(servers) > 0 {
		return strings.TrimRight(servers[0], "/")
	}
	return knownServers[tld]
}

// fetchBootstrap はIANAブートストラップレジストリを取得する。
// TTL内のキャッシュがあればそれを返し、取得に失敗した場合は
// 期限切れであってもキャッシュを返す（stale-on-failure）。
func (c *Client) fetchBootstrap(ctx context.Context) map[string][]string {
	c.mu.RLock()
	if c.bootstrap != nil && time.Since(c.fetchedAt) < c.config.BootstrapTTL {
		cached := c.bootstrap
		c.mu.RUnlock()
		return cached
	}
	c.mu.RUnlock()

	mapping, err := c.downloadBootstrap(ctx)
	if err != nil {
		slog.Warn("failed to refresh RDAP bootstrap registry",
			slog.String("error", err.Error()),
		)
		c.mu.RLock()
		defer c.mu.RUnlock()
		if c.bootstrap != nil {
			return c.bootstrap
		}
		return map[string][]string{}
	}

	c.mu.Lock()
	c.bootstrap = mapping
	c.fetchedAt = time.Now()
	c.mu.Unlock()

	return mapping
}

// bootstrapRegistry はIANAブートストラップレジストリのフォーマットを表す。
// services は [[TLDの配列, サーバーURLの配列], ...] の形。
type bootstrapRegistry struct {
	Services [][2][]string `json:"services"`
}

func (c *Client) downloadBootstrap(ctx context.Context) (map[string][]string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.config.BootstrapURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bootstrap registry returned HTTP %d", res.StatusCode)
	}

	var registry bootstrapRegistry
	if err := json.NewDecoder(res.Body).Decode(&registry); err != nil {
		return nil, err
	}

	mapping := make(map[string][]string)
	for _, service := range registry.Services {
		tlds, servers := service[0], service[1]
		for _, tld := range tlds {
			mapping[strings.ToLower(tld)] = servers
		}
	}
	return mapping, nil
}

// serverKeyOf はレート制御のキーとしてサーバーURLのホスト名を返す。
func serverKeyOf(server string) string {
	u, err := url.Parse(server)
	if err != nil || u.Host == "" {
		return server
	}
	return u.Host
}
