package registrar

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
)

const (
	namecheapSandboxURL    = "https://api.sandbox.namecheap.com/xml.response"
	namecheapProductionURL = "https://api.namecheap.com/xml.response"
)

// NamecheapAdapter はNamecheap XML APIのアダプタ。
// レスポンスはXMLだが必要な値は限られるため、正規表現で抽出する。
type NamecheapAdapter struct {
	apiKey     string
	apiUser    string
	clientIP   string
	baseURL    string
	httpClient *http.Client
}

// NewNamecheapAdapter はNamecheapAdapterを生成する。
func NewNamecheapAdapter() *NamecheapAdapter {
	return &NamecheapAdapter{
		baseURL:    namecheapSandboxURL,
		httpClient: &http.Client{},
	}
}

// Name はアダプタの識別名を返す。
func (a *NamecheapAdapter) Name() string { return "namecheap" }

// DisplayName はUI表示用の名称を返す。
func (a *NamecheapAdapter) DisplayName() string { return "Namecheap" }

// ConfigSchema はアダプタ固有の追加設定項目を返す。
func (a *NamecheapAdapter) ConfigSchema() []ConfigField {
	return []ConfigField{
		{
			Key:         "apiUser",
			Label:       "API User",
			Type:        "text",
			Required:    true,
			Description: "Namecheap API username (usually same as your account username)",
		},
		{
			Key:         "clientIp",
			Label:       "Client IP",
			Type:        "text",
			Required:    true,
			Description: "Your server IP (must be whitelisted in Namecheap panel)",
		},
	}
}

// Initialize は資格情報でアダプタを初期化する。
func (a *NamecheapAdapter) Initialize(config InitConfig) {
	a.apiKey = config.APIKey
	a.apiUser = config.ExtraConfig["apiUser"]
	a.clientIP = config.ExtraConfig["clientIp"]
	if config.SandboxMode {
		a.baseURL = namecheapSandboxURL
	} else {
		a.baseURL = namecheapProductionURL
	}
}

// request はコマンドとパラメータをクエリ文字列で送信し、XMLレスポンスを返す。
func (a *NamecheapAdapter) request(ctx context.Context, command string, params map[string]string) (string, error) {
	u, err := url.Parse(a.baseURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("ApiUser", a.apiUser)
	q.Set("ApiKey", a.apiKey)
	q.Set("UserName", a.apiUser)
	q.Set("ClientIp", a.clientIP)
	q.Set("Command", command)
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)

	res, err := a.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", fmt.Errorf("Namecheap API returned %d", res.StatusCode)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// extractXMLValue はタグの内容を抽出する。見つからない場合は空文字列。
func extractXMLValue(xml, tag string) string {
	re := regexp.MustCompile(`(?i)<` + tag + `[^>]*>([^<]*)</` + tag + `>`)
	if m := re.FindStringSubmatch(xml); m != nil {
		return m[1]
	}
	return ""
}

// extractXMLAttr はタグの属性値を抽出する。見つからない場合は空文字列。
func extractXMLAttr(xml, tag, attr string) string {
	re := regexp.MustCompile(`(?i)<` + tag + `[^>]*\s` + attr + `="([^"]*)"`)
	if m := re.FindStringSubmatch(xml); m != nil {
		return m[1]
	}
	return ""
}

// checkAPIError はAPIレスポンスのStatus属性を確認し、ERRORの場合はエラーを返す。
func checkAPIError(xml string) error {
	if extractXMLAttr(xml, "ApiResponse", "Status") == "ERROR" {
		errMsg := extractXMLValue(xml, "Err")
		if errMsg == "" {
			errMsg = "Unknown API error"
		}
		return fmt.Errorf("Namecheap: %s", errMsg)
	}
	return nil
}

// CheckAvailability はnamecheap.domains.checkでドメインの可用性を照会する。
func (a *NamecheapAdapter) CheckAvailability(ctx context.Context, domain string) (*AvailabilityResult, error) {
	xml, err := a.request(ctx, "namecheap.domains.check", map[string]string{
		"DomainList": domain,
	})
	if err != nil {
		return nil, err
	}
	if err := checkAPIError(xml); err != nil {
		return nil, err
	}

	return &AvailabilityResult{
		Available: extractXMLAttr(xml, "DomainCheckResult", "Available") == "true",
	}, nil
}

// registrantContactParams はNamecheapの登録に必要な最小限の連絡先情報。
// 実運用の連絡先はNamecheapアカウント側で設定する前提。
func registrantContactParams() map[string]string {
	params := map[string]string{}
	for _, role := range []string{"Registrant", "Tech", "Admin", "AuxBilling"} {
		params[role+"FirstName"] = "Domain"
		params[role+"LastName"] = "Admin"
		params[role+"Address1"] = "N/A"
		params[role+"City"] = "N/A"
		params[role+"StateProvince"] = "N/A"
		params[role+"PostalCode"] = "00000"
		params[role+"Country"] = "US"
		params[role+"Phone"] = "+1.0000000000"
		params[role+"EmailAddress"] = "admin@example.com"
	}
	return params
}

// RegisterDomain はnamecheap.domains.createでドメインの登録を試行する。
func (a *NamecheapAdapter) RegisterDomain(ctx context.Context, domain string, years int) (*RegistrationResult, error) {
	if years <= 0 {
		years = 1
	}

	params := registrantContactParams()
	params["DomainName"] = domain
	params["Years"] = strconv.Itoa(years)

	xml, err := a.request(ctx, "namecheap.domains.create", params)
	if err != nil {
		return nil, err
	}
	if err := checkAPIError(xml); err != nil {
		return nil, err
	}

	if extractXMLAttr(xml, "DomainCreateResult", "Registered") == "true" {
		result := &RegistrationResult{
			Success:  true,
			OrderID:  extractXMLAttr(xml, "DomainCreateResult", "OrderID"),
			Currency: "USD",
		}
		if charged := extractXMLAttr(xml, "DomainCreateResult", "ChargedAmount"); charged != "" {
			if cost, err := strconv.ParseFloat(charged, 64); err == nil {
				result.Cost = cost
			}
		}
		return result, nil
	}

	return &RegistrationResult{Success: false, Error: "Registration was not confirmed"}, nil
}

// GetBalance はnamecheap.users.getBalancesで残高を照会する。
func (a *NamecheapAdapter) GetBalance(ctx context.Context) (*BalanceResult, error) {
	xml, err := a.request(ctx, "namecheap.users.getBalances", nil)
	if err != nil {
		return nil, err
	}
	if err := checkAPIError(xml); err != nil {
		return nil, err
	}

	result := &BalanceResult{Currency: "USD"}
	if balance := extractXMLAttr(xml, "UserGetBalancesResult", "AvailableBalance"); balance != "" {
		if b, err := strconv.ParseFloat(balance, 64); err == nil {
			result.Balance = b
		}
	}
	if currency := extractXMLAttr(xml, "UserGetBalancesResult", "Currency"); currency != "" {
		result.Currency = currency
	}
	return result, nil
}

// TestConnection は残高照会で資格情報の有効性を確認する。
func (a *NamecheapAdapter) TestConnection(ctx context.Context) *ConnectionResult {
	if _, err := a.GetBalance(ctx); err != nil {
		return &ConnectionResult{Success: false, Error: err.Error()}
	}
	return &ConnectionResult{Success: true}
}

// compile-time interface check
var _ Adapter = (*NamecheapAdapter)(nil)
