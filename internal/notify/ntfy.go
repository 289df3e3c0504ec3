package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// NtfySender はntfy.shプッシュ通知の送信。セルフホストサーバーにも対応する。
// serverUrlはユーザー設定値のため、WebhookSenderと同じく
// SSRF防止機能付きクライアントで送信する。
type NtfySender struct {
	httpClient *http.Client
}

// NewNtfySender はNtfySenderを生成する。
func NewNtfySender(timeout time.Duration) *NtfySender {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(80, 443).
		Build()

	return &NtfySender{httpClient: safeurl.Client(config).Client}
}

// Send はconfig["serverUrl"]のconfig["topic"]へメッセージをPOSTする。
// availableへの遷移は高優先度で送信する。
func (s *NtfySender) Send(ctx context.Context, config map[string]string, payload *Payload) error {
	serverURL := strings.TrimRight(config["serverUrl"], "/")
	topic := config["topic"]
	if serverURL == "" || topic == "" {
		return fmt.Errorf("ntfy channel is missing serverUrl or topic")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		serverURL+"/"+topic, strings.NewReader(payload.Message))
	if err != nil {
		return err
	}
	req.Header.Set("Title", "NameDrop: "+payload.Domain)
	if payload.NewStatus == "available" {
		req.Header.Set("Priority", "high")
		req.Header.Set("Tags", "green_circle")
	} else {
		req.Header.Set("Priority", "default")
		req.Header.Set("Tags", "information_source")
	}

	res, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("ntfy returned %d: %s", res.StatusCode, msg)
	}
	return nil
}

// compile-time interface check
var _ Sender = (*NtfySender)(nil)
