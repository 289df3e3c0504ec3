package registrar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

const (
	gandiSandboxURL    = "https://api.sandbox.gandi.net/v5"
	gandiProductionURL = "https://api.gandi.net/v5"
)

// GandiAdapter はGandi.net v5 REST APIのアダプタ。
// Bearer認証（Personal Access Token）のJSON APIを使う。
type GandiAdapter struct {
	apiKey         string
	organizationID string
	baseURL        string
	httpClient     *http.Client
}

// NewGandiAdapter はGandiAdapterを生成する。
func NewGandiAdapter() *GandiAdapter {
	return &GandiAdapter{
		baseURL:    gandiSandboxURL,
		httpClient: &http.Client{},
	}
}

// Name はアダプタの識別名を返す。
func (a *GandiAdapter) Name() string { return "gandi" }

// DisplayName はUI表示用の名称を返す。
func (a *GandiAdapter) DisplayName() string { return "Gandi.net" }

// ConfigSchema はアダプタ固有の追加設定項目を返す。
func (a *GandiAdapter) ConfigSchema() []ConfigField {
	return []ConfigField{
		{
			Key:         "organizationId",
			Label:       "Organization ID",
			Type:        "text",
			Required:    false,
			Description: "Gandi organization/reseller ID (found in account settings). Required for registration.",
		},
	}
}

// Initialize は資格情報でアダプタを初期化する。
func (a *GandiAdapter) Initialize(config InitConfig) {
	a.apiKey = config.APIKey
	a.organizationID = config.ExtraConfig["organizationId"]
	if config.SandboxMode {
		a.baseURL = gandiSandboxURL
	} else {
		a.baseURL = gandiProductionURL
	}
}

// request はJSONリクエストを送信し、ステータスコードとレスポンスボディを返す。
// 認証エラー（401/403）は専用のエラーメッセージに変換する。
func (a *GandiAdapter) request(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var reqBody *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reqBody = bytes.NewReader(data)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reqBody)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := a.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden {
		return res.StatusCode, nil, fmt.Errorf("Gandi: authentication failed — check your API key (Personal Access Token)")
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(res.Body); err != nil {
		return res.StatusCode, nil, err
	}
	return res.StatusCode, buf.Bytes(), nil
}

type gandiCheckResponse struct {
	Currency string `json:"currency"`
	Products []struct {
		Status string `json:"status"`
		Prices []struct {
			PriceAfterTaxes float64 `json:"price_after_taxes"`
			DurationUnit    string  `json:"duration_unit"`
		} `json:"prices"`
	} `json:"products"`
}

// CheckAvailability は/domain/checkでドメインの可用性を照会する。
func (a *GandiAdapter) CheckAvailability(ctx context.Context, domain string) (*AvailabilityResult, error) {
	_, body, err := a.request(ctx, http.MethodGet, "/domain/check?name="+url.QueryEscape(domain), nil)
	if err != nil {
		return nil, err
	}

	var check gandiCheckResponse
	if err := json.Unmarshal(body, &check); err != nil {
		return &AvailabilityResult{Available: false}, nil
	}
	if len(check.Products) == 0 {
		return &AvailabilityResult{Available: false}, nil
	}

	product := check.Products[0]
	result := &AvailabilityResult{
		Available: product.Status == "available",
		Currency:  check.Currency,
	}
	if result.Currency == "" {
		result.Currency = "EUR"
	}

	// 年単位の価格を優先、なければ先頭のエントリ
	for _, p := range product.Prices {
		if p.DurationUnit == "y" {
			result.Price = p.PriceAfterTaxes
			return result, nil
		}
	}
	if len(product.Prices) > 0 {
		result.Price = product.Prices[0].PriceAfterTaxes
	}
	return result, nil
}

type gandiRegisterResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
	Errors  []struct {
		Description string `json:"description"`
		Name        string `json:"name"`
	} `json:"errors"`
}

// RegisterDomain は/domain/domainsへのPOSTでドメインの登録を試行する。
func (a *GandiAdapter) RegisterDomain(ctx context.Context, domain string, years int) (*RegistrationResult, error) {
	if years <= 0 {
		years = 1
	}

	reqBody := map[string]any{
		"fqdn":     domain,
		"duration": years,
	}
	if a.organizationID != "" {
		reqBody["sharing_id"] = a.organizationID
	}

	status, body, err := a.request(ctx, http.MethodPost, "/domain/domains", reqBody)
	if err != nil {
		return nil, err
	}

	var reg gandiRegisterResponse
	_ = json.Unmarshal(body, &reg)

	if status == http.StatusAccepted || status == http.StatusOK {
		return &RegistrationResult{Success: true, OrderID: reg.ID}, nil
	}

	errMsg := fmt.Sprintf("Registration failed (HTTP %d)", status)
	if len(reg.Errors) > 0 && reg.Errors[0].Description != "" {
		errMsg = reg.Errors[0].Description
	} else if reg.Message != "" {
		errMsg = reg.Message
	}
	return &RegistrationResult{Success: false, Error: "Gandi: " + errMsg}, nil
}

type gandiBillingResponse struct {
	Prepaid *struct {
		Amount   float64 `json:"amount"`
		Currency string  `json:"currency"`
	} `json:"prepaid"`
}

// GetBalance はプリペイド残高を照会する。
// organizationIdが未設定、または照会に失敗した場合は残高0を返す。
func (a *GandiAdapter) GetBalance(ctx context.Context) (*BalanceResult, error) {
	if a.organizationID != "" {
		_, body, err := a.request(ctx, http.MethodGet, "/billing/info/"+url.PathEscape(a.organizationID), nil)
		if err == nil {
			var billing gandiBillingResponse
			if json.Unmarshal(body, &billing) == nil && billing.Prepaid != nil {
				currency := billing.Prepaid.Currency
				if currency == "" {
					currency = "EUR"
				}
				return &BalanceResult{Balance: billing.Prepaid.Amount, Currency: currency}, nil
			}
		}
	}
	return &BalanceResult{Balance: 0, Currency: "EUR"}, nil
}

// TestConnection はドメインチェックで資格情報の有効性を確認する。
func (a *GandiAdapter) TestConnection(ctx context.Context) *ConnectionResult {
	status, _, err := a.request(ctx, http.MethodGet, "/domain/check?name=example.com", nil)
	if err != nil {
		return &ConnectionResult{Success: false, Error: err.Error()}
	}
	if status >= 200 && status < 300 {
		return &ConnectionResult{Success: true}
	}
	return &ConnectionResult{Success: false, Error: fmt.Sprintf("Gandi API returned HTTP %d", status)}
}

// compile-time interface check
var _ Adapter = (*GandiAdapter)(nil)
