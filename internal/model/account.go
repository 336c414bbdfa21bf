// Package model はドメインモデルを定義する。
package model

import (
	"encoding/json"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"
)

// Provider は連携可能な外部IdPを表す。
// 許可リストは固定であり、文字列ベースの動的分岐ではなく
// switch文による網羅的な分岐で処理する。
type Provider string

const (
	// ProviderGoogle はGoogle OAuth 2.0 / OIDC。
	ProviderGoogle Provider = "google"
	// ProviderGitHub はGitHub OAuth 2.0。
	ProviderGitHub Provider = "github"
	// ProviderDiscord はDiscord OAuth 2.0。
	ProviderDiscord Provider = "discord"
)

// Providers は許可リストに含まれる全プロバイダー。
var Providers = []Provider{ProviderGoogle, ProviderGitHub, ProviderDiscord}

// ParseProvider は文字列をProviderに変換する。
// 許可リスト外の値はエラーを返す。
func ParseProvider(s string) (Provider, error) {
	switch Provider(strings.ToLower(s)) {
	case ProviderGoogle:
		return ProviderGoogle, nil
	case ProviderGitHub:
		return ProviderGitHub, nil
	case ProviderDiscord:
		return ProviderDiscord, nil
	default:
		return "", fmt.Errorf("unsupported provider: %q", s)
	}
}

// Valid はProviderが許可リストに含まれるかを返す。
func (p Provider) Valid() bool {
	_, err := ParseProvider(string(p))
	return err == nil
}

// Account はサイトの利用アカウントを表す。
// パスワードは保持しない。ログイン手段はLinkedIdentityのみ。
type Account struct {
	ID            string
	Email         string // 正規化済み（小文字・前後空白除去）
	EmailVerified bool
	DisplayName   string
	AvatarURL     string
	AvatarData    []byte
	AvatarMime    string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// LinkedIdentity は外部IdPとアカウントの紐付けを表す。
// (Provider, ProviderUserID) の組はシステム全体で一意。
// 1アカウントにつき同一プロバイダーの紐付けは最大1件。
type LinkedIdentity struct {
	ID             string
	AccountID      string
	Provider       Provider
	ProviderUserID string
	// AccessToken / RefreshToken は復号済みの平文を保持する。
	// 永続化時はリポジトリ層で暗号化され、ログには出力しない。
	AccessToken    string
	RefreshToken   string
	TokenExpiresAt *time.Time
	ProfileData    json.RawMessage
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Session はログインセッションを表す。
// 有効期限はCreatedAt + TTLで決まり、行自体にexpires_atは持たない。
// スライディング延長は行わない。
type Session struct {
	ID        string // 暗号的に安全な不透明トークン。そのままbearer資格情報として使う。
	AccountID string
	UserAgent string // 参考情報
	IP        string // 参考情報
	CreatedAt time.Time
}

// ExpiresAt はセッションの有効期限を返す。
func (s *Session) ExpiresAt(ttl time.Duration) time.Time {
	return s.CreatedAt.Add(ttl)
}

// Expired はセッションが期限切れかを判定する。
func (s *Session) Expired(ttl time.Duration, now time.Time) bool {
	return now.After(s.ExpiresAt(ttl))
}

// NormalizeEmail はメールアドレスを正規化する（前後空白除去・小文字化）。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail は正規化済みメールアドレスの形式を検証する。
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("empty email")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return fmt.Errorf("invalid email format: %w", err)
	}
	// 表示名付き形式（"Name <a@b>"）は受け付けない
	if addr.Address != email {
		return fmt.Errorf("invalid email format: %q", email)
	}
	return nil
}

// ValidateAvatarURL はアバターURLの形式を検証する。
// 空文字は許容（アバター未設定）。設定時はhttp(s)の絶対URLのみ許可する。
func ValidateAvatarURL(rawURL string) error {
	if rawURL == "" {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid avatar URL: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("avatar URL must be http or https: %q", rawURL)
	}
	if u.Host == "" {
		return fmt.Errorf("avatar URL missing host: %q", rawURL)
	}
	return nil
}
