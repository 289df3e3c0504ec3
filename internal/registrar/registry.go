package registrar

import (
	"context"
	"sort"

	"github.com/laurilehto/namedrop/internal/model"
	"github.com/laurilehto/namedrop/internal/repository"
)

// adapterFactories は対応アダプタの生成関数。
var adapterFactories = map[string]func() Adapter{
	"dynadot":   func() Adapter { return NewDynadotAdapter() },
	"namecheap": func() Adapter { return NewNamecheapAdapter() },
	"gandi":     func() Adapter { return NewGandiAdapter() },
}

// AdapterType は対応アダプタの一覧表示用情報を表す。
type AdapterType struct {
	Name         string        `json:"name"`
	DisplayName  string        `json:"display_name"`
	ConfigSchema []ConfigField `json:"config_schema"`
}

// ListAdapterTypes は対応アダプタの一覧を名前順で返す。
func ListAdapterTypes() []AdapterType {
	types := make([]AdapterType, 0, len(adapterFactories))
	for name, factory := range adapterFactories {
		adapter := factory()
		types = append(types, AdapterType{
			Name:         name,
			DisplayName:  adapter.DisplayName(),
			ConfigSchema: adapter.ConfigSchema(),
		})
	}
	sort.Slice(types, func(i, j int) bool { return types[i].Name < types[j].Name })
	return types
}

// NewAdapter は指定名の未初期化アダプタを生成する。未知の名前の場合はエラーを返す。
func NewAdapter(name string) (Adapter, error) {
	factory, ok := adapterFactories[name]
	if !ok {
		return nil, model.NewUnknownAdapterError(name)
	}
	return factory(), nil
}

// Decrypter は暗号化トークンの復号インターフェース。
type Decrypter interface {
	Decrypt(token string) (string, error)
}

// Provider は保存済みレジストラ設定から初期化済みアダプタを提供する。
// 資格情報は取得のたびに復号し、返したアダプタのみに渡す。
// Provider自身は復号済みの値を保持しない。
type Provider struct {
	configRepo repository.RegistrarConfigRepository
	decrypter  Decrypter
}

// NewProvider はProviderを生成する。
func NewProvider(configRepo repository.RegistrarConfigRepository, decrypter Decrypter) *Provider {
	return &Provider{configRepo: configRepo, decrypter: decrypter}
}

// Get は指定名のアダプタを保存済み設定で初期化して返す。
// 設定が存在しない、または無効化されている場合はエラーを返す。
func (p *Provider) Get(ctx context.Context, adapterName string) (Adapter, error) {
	adapter, err := NewAdapter(adapterName)
	if err != nil {
		return nil, err
	}

	config, err := p.configRepo.FindByAdapterName(ctx, adapterName)
	if err != nil {
		return nil, err
	}
	if config == nil || !config.Enabled {
		return nil, model.NewRegistrarConfigMissingError(adapterName)
	}

	apiKey, err := p.decrypter.Decrypt(config.APIKey)
	if err != nil {
		return nil, err
	}

	var apiSecret string
	if config.APISecret != "" {
		apiSecret, err = p.decrypter.Decrypt(config.APISecret)
		if err != nil {
			return nil, err
		}
	}

	adapter.Initialize(InitConfig{
		APIKey:      apiKey,
		APISecret:   apiSecret,
		SandboxMode: config.SandboxMode,
		ExtraConfig: config.ExtraConfig,
	})

	return adapter, nil
}
