// Package handler はAPIエンドポイントのHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/laurilehto/namedrop/internal/domainname"
	"github.com/laurilehto/namedrop/internal/model"
	"github.com/laurilehto/namedrop/internal/register"
	"github.com/laurilehto/namedrop/internal/repository"
	"github.com/laurilehto/namedrop/internal/valuation"
)

// DomainChecker はドメインハンドラーが必要とするチェック実行インターフェース。
type DomainChecker interface {
	// PerformCheck はドメインを1回チェックし、結果を永続化する。
	PerformCheck(ctx context.Context, domain *model.Domain) (model.DomainStatus, error)
}

// DomainRegistrant は手動登録実行のインターフェース。
type DomainRegistrant interface {
	// Register はドメインの登録を手動で実行する。
	Register(ctx context.Context, domain *model.Domain) (*register.Result, error)
}

// DomainHandler はドメイン管理のHTTPハンドラー。
type DomainHandler struct {
	domainRepo  repository.DomainRepository
	historyRepo repository.HistoryRepository
	checker     DomainChecker
	registrant  DomainRegistrant
}

// NewDomainHandler はDomainHandlerを生成する。
func NewDomainHandler(
	domainRepo repository.DomainRepository,
	historyRepo repository.HistoryRepository,
	checker DomainChecker,
	registrant DomainRegistrant,
) *DomainHandler {
	return &DomainHandler{
		domainRepo:  domainRepo,
		historyRepo: historyRepo,
		checker:     checker,
		registrant:  registrant,
	}
}

// createDomainRequest はドメイン登録リクエストのボディ。
type createDomainRequest struct {
	Name             string   `json:"name"`
	AutoRegister     bool     `json:"auto_register"`
	RegistrarAdapter string   `json:"registrar_adapter"`
	Priority         int      `json:"priority"`
	Notes            string   `json:"notes"`
	Tags             []string `json:"tags"`
}

// updateDomainRequest はドメイン更新リクエストのボディ。未指定フィールドは変更しない。
type updateDomainRequest struct {
	AutoRegister     *bool    `json:"auto_register"`
	RegistrarAdapter *string  `json:"registrar_adapter"`
	Priority         *int     `json:"priority"`
	Notes            *string  `json:"notes"`
	Tags             []string `json:"tags"`
}

// domainResponse はドメイン情報のAPIレスポンス。
type domainResponse struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	TLD              string   `json:"tld"`
	CurrentStatus    string   `json:"current_status"`
	PreviousStatus   string   `json:"previous_status,omitempty"`
	ExpiryDate       string   `json:"expiry_date,omitempty"`
	Registrar        string   `json:"registrar,omitempty"`
	LastCheckedAt    string   `json:"last_checked_at,omitempty"`
	NextCheckAt      string   `json:"next_check_at,omitempty"`
	AutoRegister     bool     `json:"auto_register"`
	RegistrarAdapter string   `json:"registrar_adapter,omitempty"`
	Priority         int      `json:"priority"`
	Notes            string   `json:"notes,omitempty"`
	Tags             []string `json:"tags"`
}

// historyResponse は履歴エントリのAPIレスポンス。
type historyResponse struct {
	ID         string         `json:"id"`
	FromStatus string         `json:"from_status,omitempty"`
	ToStatus   string         `json:"to_status"`
	EventType  string         `json:"event_type"`
	Details    map[string]any `json:"details"`
	Notified   bool           `json:"notified"`
	Timestamp  string         `json:"timestamp"`
}

// CreateDomain は監視対象ドメインを登録する。
// 登録直後はunknown状態とし、次回スイープで即時チェックされる。
// POST /api/domains
func (h *DomainHandler) CreateDomain(w http.ResponseWriter, r *http.Request) {
	var req createDomainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestError(w)
		return
	}

	name := domainname.Normalize(req.Name)
	if !domainname.IsValid(name) {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidDomainError(req.Name))
		return
	}

	existing, err := h.domainRepo.FindByName(r.Context(), name)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if existing != nil {
		writeAPIErrorResponse(w, http.StatusConflict, model.NewDuplicateDomainError(name))
		return
	}

	now := time.Now()
	domain := &model.Domain{
		ID:               uuid.NewString(),
		Name:             name,
		TLD:              domainname.ExtractTLD(name),
		CurrentStatus:    model.StatusUnknown,
		AutoRegister:     req.AutoRegister,
		RegistrarAdapter: req.RegistrarAdapter,
		Priority:         req.Priority,
		Notes:            req.Notes,
		Tags:             req.Tags,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := h.domainRepo.Create(r.Context(), domain); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toDomainResponse(domain))
}

// ListDomains は監視対象ドメインの一覧を返す。
// GET /api/domains
func (h *DomainHandler) ListDomains(w http.ResponseWriter, r *http.Request) {
	domains, err := h.domainRepo.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	responses := make([]domainResponse, 0, len(domains))
	for _, domain := range domains {
		responses = append(responses, toDomainResponse(domain))
	}
	writeJSON(w, http.StatusOK, responses)
}

// GetDomain はドメイン詳細を取得する。
// GET /api/domains/:id
func (h *DomainHandler) GetDomain(w http.ResponseWriter, r *http.Request) {
	domain, ok := h.findDomain(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toDomainResponse(domain))
}

// UpdateDomain はドメインの監視設定を更新する。
// PATCH /api/domains/:id
func (h *DomainHandler) UpdateDomain(w http.ResponseWriter, r *http.Request) {
	domain, ok := h.findDomain(w, r)
	if !ok {
		return
	}

	var req updateDomainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestError(w)
		return
	}

	if req.AutoRegister != nil {
		domain.AutoRegister = *req.AutoRegister
	}
	if req.RegistrarAdapter != nil {
		domain.RegistrarAdapter = *req.RegistrarAdapter
	}
	if req.Priority != nil {
		domain.Priority = *req.Priority
	}
	if req.Notes != nil {
		domain.Notes = *req.Notes
	}
	if req.Tags != nil {
		domain.Tags = req.Tags
	}

	if err := h.domainRepo.Update(r.Context(), domain); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDomainResponse(domain))
}

// DeleteDomain はドメインを監視対象から削除する。履歴もCASCADE削除される。
// DELETE /api/domains/:id
func (h *DomainHandler) DeleteDomain(w http.ResponseWriter, r *http.Request) {
	domain, ok := h.findDomain(w, r)
	if !ok {
		return
	}

	if err := h.domainRepo.DeleteByID(r.Context(), domain.ID); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListHistory はドメインの状態変化・登録試行の履歴を返す。
// GET /api/domains/:id/history
func (h *DomainHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	domain, ok := h.findDomain(w, r)
	if !ok {
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	entries, err := h.historyRepo.ListByDomainID(r.Context(), domain.ID, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	responses := make([]historyResponse, 0, len(entries))
	for _, entry := range entries {
		responses = append(responses, historyResponse{
			ID:         entry.ID,
			FromStatus: string(entry.FromStatus),
			ToStatus:   string(entry.ToStatus),
			EventType:  string(entry.EventType),
			Details:    entry.Details,
			Notified:   entry.Notified,
			Timestamp:  entry.Timestamp.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, responses)
}

// CheckDomain はドメインを即時チェックする。
// POST /api/domains/:id/check
func (h *DomainHandler) CheckDomain(w http.ResponseWriter, r *http.Request) {
	domain, ok := h.findDomain(w, r)
	if !ok {
		return
	}

	if _, err := h.checker.PerformCheck(r.Context(), domain); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDomainResponse(domain))
}

// RegisterDomain はドメインの登録を手動で実行する。
// POST /api/domains/:id/register
func (h *DomainHandler) RegisterDomain(w http.ResponseWriter, r *http.Request) {
	domain, ok := h.findDomain(w, r)
	if !ok {
		return
	}

	result, err := h.registrant.Register(r.Context(), domain)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// EstimateValue はドメイン名のヒューリスティック評価を返す。
// GET /api/domains/:id/valuation
func (h *DomainHandler) EstimateValue(w http.ResponseWriter, r *http.Request) {
	domain, ok := h.findDomain(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, valuation.Estimate(domain.Name))
}

// findDomain はURLパラメータのIDでドメインを取得する。
// 見つからない場合は404レスポンスを書き込み、falseを返す。
func (h *DomainHandler) findDomain(w http.ResponseWriter, r *http.Request) (*model.Domain, bool) {
	id := chi.URLParam(r, "id")
	domain, err := h.domainRepo.FindByID(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return nil, false
	}
	if domain == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewDomainNotFoundError(id))
		return nil, false
	}
	return domain, true
}

// --- ヘルパー関数 ---

// toDomainResponse はmodel.DomainからAPIレスポンスに変換する。
func toDomainResponse(domain *model.Domain) domainResponse {
	resp := domainResponse{
		ID:               domain.ID,
		Name:             domain.Name,
		TLD:              domain.TLD,
		CurrentStatus:    string(domain.CurrentStatus),
		PreviousStatus:   string(domain.PreviousStatus),
		Registrar:        domain.Registrar,
		AutoRegister:     domain.AutoRegister,
		RegistrarAdapter: domain.RegistrarAdapter,
		Priority:         domain.Priority,
		Notes:            domain.Notes,
		Tags:             domain.Tags,
	}
	if resp.Tags == nil {
		resp.Tags = []string{}
	}
	if domain.ExpiryDate != nil {
		resp.ExpiryDate = domain.ExpiryDate.Format(time.RFC3339)
	}
	if domain.LastCheckedAt != nil {
		resp.LastCheckedAt = domain.LastCheckedAt.Format(time.RFC3339)
	}
	if domain.NextCheckAt != nil {
		resp.NextCheckAt = domain.NextCheckAt.Format(time.RFC3339)
	}
	return resp
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	writeJSON(w, statusCode, apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// writeInvalidRequestError はリクエストボディの解析失敗レスポンスを書き込む。
func writeInvalidRequestError(w http.ResponseWriter) {
	writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
		Code:     "INVALID_REQUEST",
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidDomain:
		return http.StatusBadRequest
	case model.ErrCodeDomainNotFound, model.ErrCodeChannelNotFound:
		return http.StatusNotFound
	case model.ErrCodeDuplicateDomain:
		return http.StatusConflict
	case model.ErrCodeNoRDAPServer:
		return http.StatusUnprocessableEntity
	case model.ErrCodeUnknownAdapter, model.ErrCodeUnknownChannelType:
		return http.StatusBadRequest
	case model.ErrCodeRegistrarConfigMissing:
		return http.StatusConflict
	case model.ErrCodeInvalidCipherToken:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
