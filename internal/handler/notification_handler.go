package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/laurilehto/namedrop/internal/model"
	"github.com/laurilehto/namedrop/internal/repository"
)

// NotificationTester は通知チャンネルへのテスト送信インターフェース。
type NotificationTester interface {
	SendTest(ctx context.Context, channelID string) error
}

// NotificationHandler は通知チャンネル管理のHTTPハンドラー。
type NotificationHandler struct {
	channelRepo repository.ChannelRepository
	tester      NotificationTester
}

// NewNotificationHandler はNotificationHandlerを生成する。
func NewNotificationHandler(channelRepo repository.ChannelRepository, tester NotificationTester) *NotificationHandler {
	return &NotificationHandler{
		channelRepo: channelRepo,
		tester:      tester,
	}
}

// createChannelRequest は通知チャンネル作成のリクエストボディ。
type createChannelRequest struct {
	Type     string            `json:"type"`
	Name     string            `json:"name"`
	Config   map[string]string `json:"config"`
	NotifyOn []string          `json:"notify_on"`
}

// channelResponse は通知チャンネルのAPIレスポンス。
type channelResponse struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Name      string            `json:"name"`
	Config    map[string]string `json:"config"`
	Enabled   bool              `json:"enabled"`
	NotifyOn  []string          `json:"notify_on"`
	CreatedAt string            `json:"created_at"`
}

// CreateChannel は通知チャンネルを作成する。
// POST /api/notifications
func (h *NotificationHandler) CreateChannel(w http.ResponseWriter, r *http.Request) {
	var req createChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestError(w)
		return
	}

	channelType := model.ChannelType(req.Type)
	switch channelType {
	case model.ChannelWebhook, model.ChannelTelegram, model.ChannelEmail, model.ChannelNtfy:
	default:
		handleServiceError(w, model.NewUnknownChannelTypeError(req.Type))
		return
	}

	notifyOn := make([]model.DomainStatus, 0, len(req.NotifyOn))
	for _, status := range req.NotifyOn {
		notifyOn = append(notifyOn, model.DomainStatus(status))
	}

	channel := &model.NotificationChannel{
		ID:        uuid.NewString(),
		Type:      channelType,
		Name:      req.Name,
		Config:    req.Config,
		Enabled:   true,
		NotifyOn:  notifyOn,
		CreatedAt: time.Now(),
	}
	if err := h.channelRepo.Create(r.Context(), channel); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toChannelResponse(channel))
}

// ListChannels は有効な通知チャンネルの一覧を返す。
// GET /api/notifications
func (h *NotificationHandler) ListChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := h.channelRepo.ListEnabled(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	responses := make([]channelResponse, 0, len(channels))
	for _, channel := range channels {
		responses = append(responses, toChannelResponse(channel))
	}
	writeJSON(w, http.StatusOK, responses)
}

// DeleteChannel は通知チャンネルを削除する。
// DELETE /api/notifications/:id
func (h *NotificationHandler) DeleteChannel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.channelRepo.DeleteByID(r.Context(), id); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// TestChannel は指定チャンネルにテスト通知を送信する。
// POST /api/notifications/:id/test
func (h *NotificationHandler) TestChannel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.tester.SendTest(r.Context(), id); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

// toChannelResponse はmodel.NotificationChannelからAPIレスポンスに変換する。
func toChannelResponse(channel *model.NotificationChannel) channelResponse {
	notifyOn := make([]string, 0, len(channel.NotifyOn))
	for _, status := range channel.NotifyOn {
		notifyOn = append(notifyOn, string(status))
	}
	return channelResponse{
		ID:        channel.ID,
		Type:      string(channel.Type),
		Name:      channel.Name,
		Config:    channel.Config,
		Enabled:   channel.Enabled,
		NotifyOn:  notifyOn,
		CreatedAt: channel.CreatedAt.Format(time.RFC3339),
	}
}
