package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testPayload() *Payload {
	return &Payload{
		Event:          "status_change",
		Domain:         "example.com",
		PreviousStatus: "registered",
		NewStatus:      "available",
		CheckedAt:      time.Now(),
		Tags:           []string{"watch"},
		Message:        "\U0001F7E2 example.com is now available!",
	}
}

func TestWebhookSender_Send(t *testing.T) {
	var received *Payload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		body, _ := io.ReadAll(r.Body)
		received = &Payload{}
		if err := json.Unmarshal(body, received); err != nil {
			t.Errorf("ペイロードのデコードに失敗しました: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	// safeurlクライアントはループバックへの接続を遮断するため、
	// テストでは素のhttp.Clientに差し替える
	sender := &WebhookSender{httpClient: &http.Client{}}

	err := sender.Send(context.Background(), map[string]string{"url": server.URL}, testPayload())
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if received == nil || received.Domain != "example.com" {
		t.Errorf("received = %+v", received)
	}
	if received.NewStatus != "available" {
		t.Errorf("NewStatus = %q", received.NewStatus)
	}
}

func TestWebhookSender_Send_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer server.Close()

	sender := &WebhookSender{httpClient: &http.Client{}}

	err := sender.Send(context.Background(), map[string]string{"url": server.URL}, testPayload())
	if err == nil {
		t.Fatal("Send() error = nil, want エラー")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("err = %v にステータスコードが含まれていません", err)
	}
}

func TestWebhookSender_Send_MissingURL(t *testing.T) {
	sender := &WebhookSender{httpClient: &http.Client{}}
	if err := sender.Send(context.Background(), map[string]string{}, testPayload()); err == nil {
		t.Fatal("Send() error = nil, want エラー")
	}
}

func TestTelegramSender_Send(t *testing.T) {
	var gotPath string
	var gotBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := NewTelegramSender()
	sender.baseURL = server.URL

	config := map[string]string{"botToken": "123:abc", "chatId": "42"}
	if err := sender.Send(context.Background(), config, testPayload()); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if gotPath != "/bot123:abc/sendMessage" {
		t.Errorf("path = %q", gotPath)
	}
	if gotBody["chat_id"] != "42" {
		t.Errorf("chat_id = %q", gotBody["chat_id"])
	}
	if gotBody["parse_mode"] != "Markdown" {
		t.Errorf("parse_mode = %q", gotBody["parse_mode"])
	}
	if !strings.Contains(gotBody["text"], "`example.com`") {
		t.Errorf("text = %q にドメインのコードスパンが含まれていません", gotBody["text"])
	}
	if !strings.Contains(gotBody["text"], "registered → available") {
		t.Errorf("text = %q に状態遷移が含まれていません", gotBody["text"])
	}
}

func TestTelegramSender_Send_MissingConfig(t *testing.T) {
	sender := NewTelegramSender()
	err := sender.Send(context.Background(), map[string]string{"botToken": "x"}, testPayload())
	if err == nil {
		t.Fatal("Send() error = nil, want エラー")
	}
}

func TestNtfySender_Send(t *testing.T) {
	tests := []struct {
		name         string
		newStatus    string
		wantPriority string
		wantTags     string
	}{
		{"availableは高優先度", "available", "high", "green_circle"},
		{"それ以外は通常優先度", "expiring_soon", "default", "information_source"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotReq *http.Request
			var gotBody string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotReq = r.Clone(context.Background())
				body, _ := io.ReadAll(r.Body)
				gotBody = string(body)
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			payload := testPayload()
			payload.NewStatus = tt.newStatus

			// safeurlクライアントはループバックへの接続を遮断するため、
			// テストでは素のhttp.Clientに差し替える
			sender := &NtfySender{httpClient: &http.Client{}}
			config := map[string]string{"serverUrl": server.URL + "/", "topic": "namedrop-alerts"}
			if err := sender.Send(context.Background(), config, payload); err != nil {
				t.Fatalf("Send() error = %v", err)
			}

			if gotReq.URL.Path != "/namedrop-alerts" {
				t.Errorf("path = %q", gotReq.URL.Path)
			}
			if title := gotReq.Header.Get("Title"); title != "NameDrop: example.com" {
				t.Errorf("Title = %q", title)
			}
			if priority := gotReq.Header.Get("Priority"); priority != tt.wantPriority {
				t.Errorf("Priority = %q, want %q", priority, tt.wantPriority)
			}
			if tags := gotReq.Header.Get("Tags"); tags != tt.wantTags {
				t.Errorf("Tags = %q, want %q", tags, tt.wantTags)
			}
			if gotBody != payload.Message {
				t.Errorf("body = %q, want %q", gotBody, payload.Message)
			}
		})
	}
}

// SSRF防止クライアントがループバックアドレスへの送信を遮断することを検証
func TestNtfySender_GuardedClientBlocksLoopback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		t.Error("ループバックへのリクエストが遮断されていません")
	}))
	defer server.Close()

	sender := NewNtfySender(time.Second)
	config := map[string]string{"serverUrl": server.URL, "topic": "namedrop-alerts"}
	if err := sender.Send(context.Background(), config, testPayload()); err == nil {
		t.Fatal("Send() error = nil, want SSRF遮断エラー")
	}
}
