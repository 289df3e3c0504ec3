package registrar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

const (
	dynadotSandboxURL    = "https://api-sandbox.dynadot.com/api3.json"
	dynadotProductionURL = "https://api.dynadot.com/api3.json"
)

// DynadotAdapter はDynadot API（api3.json）のアダプタ。
// クエリ文字列でコマンドを指定し、JSONレスポンスを受け取る。
type DynadotAdapter struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewDynadotAdapter はDynadotAdapterを生成する。
func NewDynadotAdapter() *DynadotAdapter {
	return &DynadotAdapter{
		baseURL:    dynadotSandboxURL,
		httpClient: &http.Client{},
	}
}

// Name はアダプタの識別名を返す。
func (a *DynadotAdapter) Name() string { return "dynadot" }

// DisplayName はUI表示用の名称を返す。
func (a *DynadotAdapter) DisplayName() string { return "Dynadot" }

// ConfigSchema はアダプタ固有の追加設定項目を返す。Dynadotは追加設定なし。
func (a *DynadotAdapter) ConfigSchema() []ConfigField { return nil }

// Initialize は資格情報でアダプタを初期化する。
func (a *DynadotAdapter) Initialize(config InitConfig) {
	a.apiKey = config.APIKey
	if config.SandboxMode {
		a.baseURL = dynadotSandboxURL
	} else {
		a.baseURL = dynadotProductionURL
	}
}

// request はコマンドとパラメータをクエリ文字列で送信し、JSONレスポンスを返す。
func (a *DynadotAdapter) request(ctx context.Context, command string, params map[string]string) (map[string]json.RawMessage, error) {
	u, err := url.Parse(a.baseURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("key", a.apiKey)
	q.Set("command", command)
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	res, err := a.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, fmt.Errorf("Dynadot API returned %d", res.StatusCode)
	}

	var data map[string]json.RawMessage
	if err := json.NewDecoder(res.Body).Decode(&data); err != nil {
		return nil, err
	}
	return data, nil
}

type dynadotSearchResponse struct {
	SearchResults []struct {
		Available string  `json:"Available"`
		Price     float64 `json:"Price"`
		Currency  string  `json:"Currency"`
	} `json:"SearchResults"`
}

// CheckAvailability はsearchコマンドでドメインの可用性を照会する。
func (a *DynadotAdapter) CheckAvailability(ctx context.Context, domain string) (*AvailabilityResult, error) {
	data, err := a.request(ctx, "search", map[string]string{"domain0": domain})
	if err != nil {
		return nil, err
	}

	var search dynadotSearchResponse
	if raw, ok := data["SearchResponse"]; ok {
		if err := json.Unmarshal(raw, &search); err != nil {
			return nil, err
		}
	}

	result := &AvailabilityResult{Currency: "USD"}
	if len(search.SearchResults) > 0 {
		r := search.SearchResults[0]
		result.Available = r.Available == "yes"
		result.Price = r.Price
		if r.Currency != "" {
			result.Currency = r.Currency
		}
	}
	return result, nil
}

type dynadotRegisterResponse struct {
	Status     string  `json:"Status"`
	DomainName string  `json:"DomainName"`
	Error      string  `json:"Error"`
	Price      float64 `json:"Price"`
}

// RegisterDomain はregisterコマンドでドメインの登録を試行する。
func (a *DynadotAdapter) RegisterDomain(ctx context.Context, domain string, years int) (*RegistrationResult, error) {
	if years <= 0 {
		years = 1
	}
	data, err := a.request(ctx, "register", map[string]string{
		"domain":   domain,
		"duration": strconv.Itoa(years),
	})
	if err != nil {
		return nil, err
	}

	var reg dynadotRegisterResponse
	if raw, ok := data["RegisterResponse"]; ok {
		if err := json.Unmarshal(raw, &reg); err != nil {
			return nil, err
		}
	}

	if reg.Status == "success" {
		return &RegistrationResult{
			Success:  true,
			OrderID:  reg.DomainName,
			Cost:     reg.Price,
			Currency: "USD",
		}, nil
	}

	errMsg := reg.Error
	if errMsg == "" {
		errMsg = "Registration failed"
	}
	return &RegistrationResult{Success: false, Error: errMsg}, nil
}

type dynadotBalanceResponse struct {
	Balance  float64 `json:"Balance"`
	Currency string  `json:"Currency"`
}

// GetBalance はget_account_balanceコマンドで残高を照会する。
func (a *DynadotAdapter) GetBalance(ctx context.Context) (*BalanceResult, error) {
	data, err := a.request(ctx, "get_account_balance", nil)
	if err != nil {
		return nil, err
	}

	var balance dynadotBalanceResponse
	if raw, ok := data["GetAccountBalanceResponse"]; ok {
		if err := json.Unmarshal(raw, &balance); err != nil {
			return nil, err
		}
	}

	result := &BalanceResult{Balance: balance.Balance, Currency: balance.Currency}
	if result.Currency == "" {
		result.Currency = "USD"
	}
	return result, nil
}

// TestConnection は残高照会で資格情報の有効性を確認する。
func (a *DynadotAdapter) TestConnection(ctx context.Context) *ConnectionResult {
	if _, err := a.GetBalance(ctx); err != nil {
		return &ConnectionResult{Success: false, Error: err.Error()}
	}
	return &ConnectionResult{Success: true}
}

// compile-time interface check
var _ Adapter = (*DynadotAdapter)(nil)
