package registrar

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newNamecheapForTest(url string) *NamecheapAdapter {
	a := NewNamecheapAdapter()
	a.Initialize(InitConfig{
		APIKey:      "test-key",
		SandboxMode: true,
		ExtraConfig: map[string]string{"apiUser": "testuser", "clientIp": "203.0.113.1"},
	})
	a.baseURL = url
	return a
}

// 認証パラメータと可用性レスポンスの解釈を検証
func TestNamecheap_CheckAvailability(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("ApiUser") != "testuser" || q.Get("UserName") != "testuser" {
			t.Errorf("ApiUser/UserName = %q/%q, want testuser", q.Get("ApiUser"), q.Get("UserName"))
		}
		if q.Get("ClientIp") != "203.0.113.1" {
			t.Errorf("ClientIp = %q", q.Get("ClientIp"))
		}
		if q.Get("Command") != "namecheap.domains.check" {
			t.Errorf("Command = %q", q.Get("Command"))
		}
		fmt.Fprint(w, `<?xml version="1.0"?>
<ApiResponse Status="OK">
  <CommandResponse>
    <DomainCheckResult Domain="example.com" Available="true" />
  </CommandResponse>
</ApiResponse>`)
	}))
	defer server.Close()

	a := newNamecheapForTest(server.URL)

	result, err := a.CheckAvailability(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("CheckAvailability failed: %v", err)
	}
	if !result.Available {
		t.Error("Available = false, want true")
	}
}

// APIエラーレスポンスがエラーとして返ることを検証
func TestNamecheap_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<?xml version="1.0"?>
<ApiResponse Status="ERROR">
  <Errors><Err Number="1011102">API Key is invalid</Err></Errors>
</ApiResponse>`)
	}))
	defer server.Close()

	a := newNamecheapForTest(server.URL)

	_, err := a.CheckAvailability(context.Background(), "example.com")
	if err == nil {
		t.Fatal("expected error for API error response")
	}
}

// 登録成功レスポンスの解釈を検証
func TestNamecheap_RegisterDomain_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("Command") != "namecheap.domains.create" {
			t.Errorf("Command = %q", q.Get("Command"))
		}
		if q.Get("RegistrantCountry") != "US" {
			t.Error("registrant contact params should be set")
		}
		fmt.Fprint(w, `<?xml version="1.0"?>
<ApiResponse Status="OK">
  <CommandResponse>
    <DomainCreateResult Domain="example.com" Registered="true" OrderID="12345" ChargedAmount="10.87" />
  </CommandResponse>
</ApiResponse>`)
	}))
	defer server.Close()

	a := newNamecheapForTest(server.URL)

	result, err := a.RegisterDomain(context.Background(), "example.com", 1)
	if err != nil {
		t.Fatalf("RegisterDomain failed: %v", err)
	}
	if !result.Success {
		t.Errorf("Success = false: %s", result.Error)
	}
	if result.OrderID != "12345" {
		t.Errorf("OrderID = %q, want 12345", result.OrderID)
	}
	if result.Cost != 10.87 {
		t.Errorf("Cost = %v, want 10.87", result.Cost)
	}
}

// 残高照会レスポンスの解釈を検証
func TestNamecheap_GetBalance(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<?xml version="1.0"?>
<ApiResponse Status="OK">
  <CommandResponse>
    <UserGetBalancesResult Currency="USD" AvailableBalance="25.50" />
  </CommandResponse>
</ApiResponse>`)
	}))
	defer server.Close()

	a := newNamecheapForTest(server.URL)

	balance, err := a.GetBalance(context.Background())
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if balance.Balance != 25.50 {
		t.Errorf("Balance = %v, want 25.50", balance.Balance)
	}
	if balance.Currency != "USD" {
		t.Errorf("Currency = %q, want USD", balance.Currency)
	}
}

// XML値・属性抽出ヘルパーを検証
func TestExtractXML(t *testing.T) {
	xml := `<ApiResponse Status="OK"><Err Number="1">some error</Err></ApiResponse>`

	if got := extractXMLValue(xml, "Err"); got != "some error" {
		t.Errorf("extractXMLValue = %q, want %q", got, "some error")
	}
	if got := extractXMLAttr(xml, "ApiResponse", "Status"); got != "OK" {
		t.Errorf("extractXMLAttr = %q, want OK", got)
	}
	if got := extractXMLValue(xml, "Missing"); got != "" {
		t.Errorf("extractXMLValue for missing tag = %q, want empty", got)
	}
}
