// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/playscore/internal/auth"
	"github.com/hitoshi/playscore/internal/middleware"
	"github.com/hitoshi/playscore/internal/model"
)

// oauthStateCookie はOAuthのstate値を保持する一時Cookieの名前。
const oauthStateCookie = "oauth_state"

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	EnabledProviders() []model.Provider
	LoginURL(provider model.Provider, state string) (string, error)
	HandleCallback(ctx context.Context, provider model.Provider, code, priorToken string, meta auth.ClientMeta) (*model.Session, *auth.Resolution, error)
	Logout(ctx context.Context, token string) error
	CurrentAccount(ctx context.Context, token string) (*model.Account, error)
	SessionTTL() time.Duration
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL      string // フロントエンドのURL。コールバック後のリダイレクト先。
	CookieDomain string
	CookieSecure bool
}

// AuthHandler はOAuth認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

// accountResponse はアカウント情報のAPIレスポンス。
// アバター画像本体は /api/me/avatar で別途配信する。
type accountResponse struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"email_verified"`
	DisplayName   string    `json:"display_name"`
	AvatarURL     string    `json:"avatar_url,omitempty"`
	HasAvatar     bool      `json:"has_avatar"`
	CreatedAt     time.Time `json:"created_at"`
}

func toAccountResponse(account *model.Account) accountResponse {
	return accountResponse{
		ID:            account.ID,
		Email:         account.Email,
		EmailVerified: account.EmailVerified,
		DisplayName:   account.DisplayName,
		AvatarURL:     account.AvatarURL,
		HasAvatar:     len(account.AvatarData) > 0,
		CreatedAt:     account.CreatedAt,
	}
}

// Providers は有効化されているプロバイダーの一覧を返す。
// ログイン画面のボタン表示に使う。
// GET /auth/providers
func (h *AuthHandler) Providers(w http.ResponseWriter, r *http.Request) {
	providers := h.service.EnabledProviders()
	names := make([]string, len(providers))
	for i, p := range providers {
		names[i] = string(p)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string][]string{
		"providers": names,
	})
}

// Login は指定プロバイダーのOAuthフローを開始する。
// GET /auth/{provider}/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	provider, err := model.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewProviderUnknownError(chi.URLParam(r, "provider")))
		return
	}

	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	url, err := h.service.LoginURL(provider, state)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10分
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

// Callback はOAuthコールバックを処理する。
// GET /auth/{provider}/callback?code=xxx&state=yyy
//
// メール衝突（未検証メール）はエラーページではなくログイン画面へ
// error=email_conflict付きでリダイレクトする。
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	provider, err := model.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewProviderUnknownError(chi.URLParam(r, "provider")))
		return
	}

	// 1. stateの検証（CSRF対策）
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch",
			slog.String("provider", string(provider)),
		)
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("state parameter"))
		return
	}

	// stateクッキーを削除
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	// 2. 認可コードの取得
	code := r.URL.Query().Get("code")
	if code == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("authorization code"))
		return
	}

	// 3. 既存セッショントークン（あれば固定化攻撃対策で必ず破棄される）
	priorToken := ""
	if prior, err := r.Cookie(middleware.SessionCookieName); err == nil {
		priorToken = prior.Value
	}

	meta := auth.ClientMeta{
		UserAgent: r.UserAgent(),
		IP:        middleware.ClientIP(r),
	}

	// 4. 認証処理
	session, resolution, err := h.service.HandleCallback(r.Context(), provider, code, priorToken, meta)
	if err != nil {
		if model.IsCode(err, model.ErrCodeEmailConflict) {
			http.Redirect(w, r, h.config.BaseURL+"/login?error=email_conflict", http.StatusTemporaryRedirect)
			return
		}
		slog.Error("oauth callback failed",
			slog.String("provider", string(provider)),
			slog.String("error", err.Error()),
		)
		http.Redirect(w, r, h.config.BaseURL+"/login?error=login_failed", http.StatusTemporaryRedirect)
		return
	}

	slog.Info("login completed",
		slog.String("provider", string(provider)),
		slog.String("account_id", session.AccountID),
		slog.Bool("new_account", resolution.IsNewAccount),
		slog.Bool("auto_linked", resolution.AutoLinked),
	)

	// 5. セッションCookieを設定（HTTP Only）
	h.setSessionCookie(w, session.ID)

	// 6. フロントエンドにリダイレクト
	http.Redirect(w, r, h.config.BaseURL, http.StatusTemporaryRedirect)
}

// Logout はセッションを破棄する。ログアウトは冪等で、
// セッションが既に無効でも成功として扱う。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.SessionCookieName)
	if err == nil && cookie.Value != "" {
		if logoutErr := h.service.Logout(r.Context(), cookie.Value); logoutErr != nil {
			slog.Error("failed to logout", slog.String("error", logoutErr.Error()))
			// ログアウト失敗してもCookieはクリアする
		}
	}

	h.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// Me は現在のログインアカウント情報を返す。
// GET /api/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.SessionCookieName)
	if err != nil || cookie.Value == "" {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewSessionInvalidError())
		return
	}

	account, err := h.service.CurrentAccount(r.Context(), cookie.Value)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toAccountResponse(account))
}

// setSessionCookie はセッションCookieを設定する。
// MaxAgeはセッションTTLに揃える。
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    token,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   int(h.service.SessionTTL() / time.Second),
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie はセッションCookieを削除する。
func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
