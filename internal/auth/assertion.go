// Package auth はOAuth認証フロー、アカウント解決、セッション管理を提供する。
package auth

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hitoshi/playscore/internal/model"
)

// IdentityAssertion は外部IdPとのハンドシェイク完了後に得られる正規化済みの主張。
// 各プロバイダークライアントがレスポンスをこの形に変換し、以降の解決処理は
// プロバイダーの違いを意識しない。
type IdentityAssertion struct {
	Provider       model.Provider
	ProviderUserID string
	Email          string
	// EmailVerified はプロバイダー自身によるメール所有の検証申告。
	// 自動リンクの可否判定に使うため、クライアント側で勝手にtrueにしてはならない。
	EmailVerified bool
	DisplayName   string
	AvatarURL     string
	AccessToken   string
	RefreshToken  string
	ExpiresAt     *time.Time
	// RawProfile はプロバイダー固有のプロフィールJSON。中身は解釈しない。
	RawProfile json.RawMessage
}

// ProviderClient は1プロバイダーとのOAuthハンドシェイクを担う。
type ProviderClient interface {
	// Provider はこのクライアントが担当するプロバイダーを返す。
	Provider() model.Provider
	// LoginURL は認可エンドポイントへのリダイレクトURLを生成する。
	LoginURL(state string) string
	// Exchange は認可コードをトークンに交換し、正規化済みの主張を返す。
	Exchange(ctx context.Context, code string) (*IdentityAssertion, error)
}

// tokenExpiry はexpires_in（秒）を絶対時刻に変換する。0以下はnil。
func tokenExpiry(expiresIn int, now time.Time) *time.Time {
	if expiresIn <= 0 {
		return nil
	}
	t := now.Add(time.Duration(expiresIn) * time.Second)
	return &t
}
