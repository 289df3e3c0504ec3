package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramSender はTelegram Bot API経由のメッセージ送信。
type TelegramSender struct {
	baseURL    string
	httpClient *http.Client
}

// NewTelegramSender はTelegramSenderを生成する。
func NewTelegramSender() *TelegramSender {
	return &TelegramSender{
		baseURL:    telegramAPIBase,
		httpClient: &http.Client{},
	}
}

// Send はconfig["botToken"]とconfig["chatId"]を使ってMarkdownメッセージを送信する。
func (s *TelegramSender) Send(ctx context.Context, config map[string]string, payload *Payload) error {
	botToken := config["botToken"]
	chatID := config["chatId"]
	if botToken == "" || chatID == "" {
		return fmt.Errorf("telegram channel is missing botToken or chatId")
	}

	lines := []string{
		fmt.Sprintf("*%s*", payload.Message),
		"",
		fmt.Sprintf("Domain: `%s`", payload.Domain),
		fmt.Sprintf("Status: %s → %s", previousOrUnknown(payload.PreviousStatus), payload.NewStatus),
	}
	if payload.ExpiryDate != "" {
		lines = append(lines, "Expiry: "+payload.ExpiryDate)
	}
	if payload.Registrar != "" {
		lines = append(lines, "Registrar: "+payload.Registrar)
	}
	if len(payload.Tags) > 0 {
		lines = append(lines, "Tags: "+strings.Join(payload.Tags, ", "))
	}

	body, err := json.Marshal(map[string]string{
		"chat_id":    chatID,
		"text":       strings.Join(lines, "\n"),
		"parse_mode": "Markdown",
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, botToken)
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
		return fmt.Errorf("telegram API returned %d: %s", res.StatusCode, msg)
	}
	return nil
}

func previousOrUnknown(status string) string {
	if status == "" {
		return "unknown"
	}
	return status
}

// compile-time interface check
var _ Sender = (*TelegramSender)(nil)
