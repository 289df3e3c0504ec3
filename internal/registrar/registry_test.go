package registrar

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/laurilehto/namedrop/internal/model"
	"github.com/laurilehto/namedrop/internal/repository"
)

// 対応アダプタ一覧が名前順で返ることを検証
func TestListAdapterTypes(t *testing.T) {
	types := ListAdapterTypes()

	if len(types) != 3 {
		t.Fatalf("len(types) = %d, want 3", len(types))
	}

	wantNames := []string{"dynadot", "gandi", "namecheap"}
	for i, want := range wantNames {
		if types[i].Name != want {
			t.Errorf("types[%d].Name = %q, want %q", i, types[i].Name, want)
		}
		if types[i].DisplayName == "" {
			t.Errorf("types[%d].DisplayName is empty", i)
		}
	}
}

// 未知のアダプタ名がエラーになることを検証
func TestNewAdapter_Unknown(t *testing.T) {
	_, err := NewAdapter("nosuchregistrar")
	if err == nil {
		t.Fatal("expected error for unknown adapter")
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUnknownAdapter {
		t.Errorf("error = %v, want UNKNOWN_ADAPTER", err)
	}
}

// fakeConfigRepo はRegistrarConfigRepositoryのテスト用実装。
type fakeConfigRepo struct {
	configs map[string]*model.RegistrarConfig
}

func (r *fakeConfigRepo) FindByAdapterName(ctx context.Context, name string) (*model.RegistrarConfig, error) {
	return r.configs[name], nil
}
func (r *fakeConfigRepo) Upsert(ctx context.Context, config *model.RegistrarConfig) error {
	return nil
}
func (r *fakeConfigRepo) List(ctx context.Context) ([]*model.RegistrarConfig, error) {
	return nil, nil
}
func (r *fakeConfigRepo) UpdateBalance(ctx context.Context, name string, balance float64, updatedAt time.Time) error {
	return nil
}

var _ repository.RegistrarConfigRepository = (*fakeConfigRepo)(nil)

// plainDecrypter はトークンをそのまま返すテスト用Decrypter。
type plainDecrypter struct{}

func (plainDecrypter) Decrypt(token string) (string, error) { return token, nil }

// 保存済み設定から初期化済みアダプタが得られることを検証
func TestProvider_Get(t *testing.T) {
	repo := &fakeConfigRepo{configs: map[string]*model.RegistrarConfig{
		"dynadot": {
			AdapterName: "dynadot",
			APIKey:      "decrypted-key",
			SandboxMode: false,
			Enabled:     true,
		},
	}}

	provider := NewProvider(repo, plainDecrypter{})

	adapter, err := provider.Get(context.Background(), "dynadot")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	dynadot, ok := adapter.(*DynadotAdapter)
	if !ok {
		t.Fatalf("adapter type = %T, want *DynadotAdapter", adapter)
	}
	if dynadot.apiKey != "decrypted-key" {
		t.Errorf("apiKey = %q, want decrypted-key", dynadot.apiKey)
	}
	if dynadot.baseURL != dynadotProductionURL {
		t.Errorf("baseURL = %q, want production (sandbox off)", dynadot.baseURL)
	}
}

// 設定が存在しない場合のエラーを検証
func TestProvider_Get_MissingConfig(t *testing.T) {
	provider := NewProvider(&fakeConfigRepo{configs: map[string]*model.RegistrarConfig{}}, plainDecrypter{})

	_, err := provider.Get(context.Background(), "gandi")
	if err == nil {
		t.Fatal("expected error for missing config")
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeRegistrarConfigMissing {
		t.Errorf("error = %v, want REGISTRAR_CONFIG_MISSING", err)
	}
}

// 無効化された設定が拒否されることを検証
func TestProvider_Get_DisabledConfig(t *testing.T) {
	repo := &fakeConfigRepo{configs: map[string]*model.RegistrarConfig{
		"namecheap": {AdapterName: "namecheap", APIKey: "k", Enabled: false},
	}}
	provider := NewProvider(repo, plainDecrypter{})

	_, err := provider.Get(context.Background(), "namecheap")
	if err == nil {
		t.Fatal("expected error for disabled config")
	}
}
