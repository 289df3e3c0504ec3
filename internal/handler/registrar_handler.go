package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/laurilehto/namedrop/internal/model"
	"github.com/laurilehto/namedrop/internal/registrar"
	"github.com/laurilehto/namedrop/internal/repository"
)

// AdapterProvider は初期化済みレジストラアダプタの取得インターフェース。
type AdapterProvider interface {
	Get(ctx context.Context, adapterName string) (registrar.Adapter, error)
}

// Encrypter はレジストラ資格情報の暗号化インターフェース。
type Encrypter interface {
	Encrypt(plaintext string) (string, error)
}

// RegistrarHandler はレジストラ設定管理のHTTPハンドラー。
type RegistrarHandler struct {
	configRepo repository.RegistrarConfigRepository
	provider   AdapterProvider
	encrypter  Encrypter
}

// NewRegistrarHandler はRegistrarHandlerを生成する。
func NewRegistrarHandler(
	configRepo repository.RegistrarConfigRepository,
	provider AdapterProvider,
	encrypter Encrypter,
) *RegistrarHandler {
	return &RegistrarHandler{
		configRepo: configRepo,
		provider:   provider,
		encrypter:  encrypter,
	}
}

// upsertRegistrarRequest はレジストラ設定のUPSERTリクエストボディ。
// APIKeyとAPISecretは平文で受け取り、保存前に暗号化する。
type upsertRegistrarRequest struct {
	DisplayName string            `json:"display_name"`
	APIKey      string            `json:"api_key"`
	APISecret   string            `json:"api_secret"`
	SandboxMode bool              `json:"sandbox_mode"`
	ExtraConfig map[string]string `json:"extra_config"`
	Enabled     bool              `json:"enabled"`
}

// registrarConfigResponse はレジストラ設定のAPIレスポンス。資格情報は含めない。
type registrarConfigResponse struct {
	AdapterName      string            `json:"adapter_name"`
	DisplayName      string            `json:"display_name"`
	SandboxMode      bool              `json:"sandbox_mode"`
	ExtraConfig      map[string]string `json:"extra_config,omitempty"`
	Balance          *float64          `json:"balance,omitempty"`
	BalanceUpdatedAt string            `json:"balance_updated_at,omitempty"`
	Enabled          bool              `json:"enabled"`
}

// ListAdapterTypes は対応アダプタの一覧と設定スキーマを返す。
// GET /api/registrars/types
func (h *RegistrarHandler) ListAdapterTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, registrar.ListAdapterTypes())
}

// ListConfigs は保存済みレジストラ設定の一覧を返す。資格情報はマスクされる。
// GET /api/registrars
func (h *RegistrarHandler) ListConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := h.configRepo.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	responses := make([]registrarConfigResponse, 0, len(configs))
	for _, config := range configs {
		responses = append(responses, toRegistrarConfigResponse(config))
	}
	writeJSON(w, http.StatusOK, responses)
}

// UpsertConfig はレジストラ設定を登録・更新する。資格情報は暗号化して保存する。
// PUT /api/registrars/:name
func (h *RegistrarHandler) UpsertConfig(w http.ResponseWriter, r *http.Request) {
	adapterName := chi.URLParam(r, "name")

	// アダプタ名の妥当性を確認する
	adapter, err := registrar.NewAdapter(adapterName)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	var req upsertRegistrarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestError(w)
		return
	}
	if req.APIKey == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "api_keyは必須です。",
			Category: "validation",
			Action:   "レジストラのAPIキーを指定してください。",
		})
		return
	}

	encryptedKey, err := h.encrypter.Encrypt(req.APIKey)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	var encryptedSecret string
	if req.APISecret != "" {
		encryptedSecret, err = h.encrypter.Encrypt(req.APISecret)
		if err != nil {
			handleServiceError(w, err)
			return
		}
	}

	displayName := req.DisplayName
	if displayName == "" {
		displayName = adapter.DisplayName()
	}

	config := &model.RegistrarConfig{
		ID:          uuid.NewString(),
		AdapterName: adapterName,
		DisplayName: displayName,
		APIKey:      encryptedKey,
		APISecret:   encryptedSecret,
		SandboxMode: req.SandboxMode,
		ExtraConfig: req.ExtraConfig,
		Enabled:     req.Enabled,
		CreatedAt:   time.Now(),
	}
	if err := h.configRepo.Upsert(r.Context(), config); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toRegistrarConfigResponse(config))
}

// TestConnection は保存済み資格情報でレジストラへの接続テストを行う。
// POST /api/registrars/:name/test
func (h *RegistrarHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
	adapterName := chi.URLParam(r, "name")

	adapter, err := h.provider.Get(r.Context(), adapterName)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, adapter.TestConnection(r.Context()))
}

// RefreshBalance はアカウント残高を照会して保存し、結果を返す。
// POST /api/registrars/:name/balance
func (h *RegistrarHandler) RefreshBalance(w http.ResponseWriter, r *http.Request) {
	adapterName := chi.URLParam(r, "name")

	adapter, err := h.provider.Get(r.Context(), adapterName)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	balance, err := adapter.GetBalance(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if err := h.configRepo.UpdateBalance(r.Context(), adapterName, balance.Balance, time.Now()); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, balance)
}

// toRegistrarConfigResponse はmodel.RegistrarConfigからAPIレスポンスに変換する。
func toRegistrarConfigResponse(config *model.RegistrarConfig) registrarConfigResponse {
	resp := registrarConfigResponse{
		AdapterName: config.AdapterName,
		DisplayName: config.DisplayName,
		SandboxMode: config.SandboxMode,
		ExtraConfig: config.ExtraConfig,
		Balance:     config.Balance,
		Enabled:     config.Enabled,
	}
	if config.BalanceUpdatedAt != nil {
		resp.BalanceUpdatedAt = config.BalanceUpdatedAt.Format(time.RFC3339)
	}
	return resp
}
