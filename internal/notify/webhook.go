package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/doyensec/safeurl"
)

// Sender は通知チャネル1種別の送信インターフェース。
// configはチャネルごとの設定（URLやトークンなど）を保持する。
type Sender interface {
	Send(ctx context.Context, config map[string]string, payload *Payload) error
}

// WebhookSender はJSONペイロードを任意のURLへPOSTする汎用Webhook送信。
// 送信先URLはユーザー設定値のため、SSRF防止機能付きクライアントを使う。
// プライベートIP、ループバック、リンクローカル、メタデータIPへの
// リクエストはDialerレベルでブロックされる。
type WebhookSender struct {
	httpClient *http.Client
}

// NewWebhookSender はWebhookSenderを生成する。
func NewWebhookSender(timeout time.Duration) *WebhookSender {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(80, 443).
		Build()

	return &WebhookSender{httpClient: safeurl.Client(config).Client}
}

// Send はペイロードをconfig["url"]へPOSTする。
func (s *WebhookSender) Send(ctx context.Context, config map[string]string, payload *Payload) error {
	url := config["url"]
	if url == "" {
		return fmt.Errorf("webhook channel is missing url")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("webhook returned %d: %s", res.StatusCode, msg)
	}
	return nil
}

// compile-time interface check
var _ Sender = (*WebhookSender)(nil)
