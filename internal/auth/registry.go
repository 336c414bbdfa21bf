package auth

import (
	"fmt"

	"github.com/hitoshi/playscore/internal/model"
)

// Registry は設定済みプロバイダークライアントの集合。
// 許可リストは固定のためフィールドで持ち、switch文で網羅的に分岐する。
// Googleは必須。GitHub、Discordは設定があれば有効化される。
type Registry struct {
	google  *GoogleClient
	github  *GitHubClient
	discord *DiscordClient
}

// NewRegistry はRegistryを生成する。googleは必須、他はnil許容。
func NewRegistry(google *GoogleClient, github *GitHubClient, discord *DiscordClient) *Registry {
	return &Registry{
		google:  google,
		github:  github,
		discord: discord,
	}
}

// Client は指定プロバイダーのクライアントを返す。
// 許可リスト外、または未設定のプロバイダーはエラーを返す。
func (r *Registry) Client(provider model.Provider) (ProviderClient, error) {
	switch provider {
	case model.ProviderGoogle:
		if r.google == nil {
			return nil, fmt.Errorf("provider not configured: %s", provider)
		}
		return r.google, nil
	case model.ProviderGitHub:
		if r.github == nil {
			return nil, fmt.Errorf("provider not configured: %s", provider)
		}
		return r.github, nil
	case model.ProviderDiscord:
		if r.discord == nil {
			return nil, fmt.Errorf("provider not configured: %s", provider)
		}
		return r.discord, nil
	default:
		return nil, fmt.Errorf("unsupported provider: %q", provider)
	}
}

// Enabled は設定済みプロバイダーの一覧を許可リスト順で返す。
func (r *Registry) Enabled() []model.Provider {
	var enabled []model.Provider
	for _, p := range model.Providers {
		if _, err := r.Client(p); err == nil {
			enabled = append(enabled, p)
		}
	}
	return enabled
}
