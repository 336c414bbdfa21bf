package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/playscore/internal/middleware"
	"github.com/hitoshi/playscore/internal/model"
)

// AccountServiceInterface はアカウント管理ハンドラーが必要とするサービスインターフェース。
type AccountServiceInterface interface {
	Get(ctx context.Context, accountID string) (*model.Account, error)
	// Withdraw はアカウントの退会処理を実行する。
	// sessions → account の順で削除し、identitiesはCASCADE削除される。
	Withdraw(ctx context.Context, accountID string) error
}

// AccountHandler はアカウント管理のHTTPハンドラー。
type AccountHandler struct {
	service AccountServiceInterface
	config  AuthHandlerConfig
}

// NewAccountHandler はAccountHandlerを生成する。
func NewAccountHandler(service AccountServiceInterface, config AuthHandlerConfig) *AccountHandler {
	return &AccountHandler{
		service: service,
		config:  config,
	}
}

// Avatar はキャッシュ済みのアバター画像を配信する。
// GET /api/me/avatar
func (h *AccountHandler) Avatar(w http.ResponseWriter, r *http.Request) {
	accountID, err := middleware.AccountIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewSessionInvalidError())
		return
	}

	account, err := h.service.Get(r.Context(), accountID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if len(account.AvatarData) == 0 {
		writeAPIErrorResponse(w, http.StatusNotFound, &model.APIError{
			Code:     "AVATAR_NOT_FOUND",
			Message:  "アバター画像が登録されていません。",
			Category: "validation",
			Action:   "プロバイダー側でアバターを設定してから再ログインしてください。",
		})
		return
	}

	w.Header().Set("Content-Type", account.AvatarMime)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Write(account.AvatarData)
}

// Withdraw はアカウントの退会処理を実行する。
// DELETE /api/account
func (h *AccountHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	accountID, err := middleware.AccountIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewSessionInvalidError())
		return
	}

	if err := h.service.Withdraw(r.Context(), accountID); err != nil {
		handleServiceError(w, err)
		return
	}

	// 全セッションが破棄済みなのでCookieもクリアする
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

	w.WriteHeader(http.StatusNoContent)
}
