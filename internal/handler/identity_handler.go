package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/playscore/internal/middleware"
	"github.com/hitoshi/playscore/internal/model"
)

// IdentityServiceInterface は連携管理ハンドラーが必要とするサービスインターフェース。
type IdentityServiceInterface interface {
	// List は呼び出しアカウント自身の連携一覧を返す。
	List(ctx context.Context, accountID string) ([]*model.LinkedIdentity, error)
	// Detach は連携を解除する。最後の1件は解除できない。
	Detach(ctx context.Context, accountID, identityID string) error
}

// IdentityHandler は外部IdP連携管理のHTTPハンドラー。
type IdentityHandler struct {
	service IdentityServiceInterface
}

// NewIdentityHandler はIdentityHandlerを生成する。
func NewIdentityHandler(service IdentityServiceInterface) *IdentityHandler {
	return &IdentityHandler{
		service: service,
	}
}

// identityResponse は連携情報のAPIレスポンス。
// アクセストークン等の資格情報は含めない。
type identityResponse struct {
	ID        string    `json:"id"`
	Provider  string    `json:"provider"`
	CreatedAt time.Time `json:"created_at"`
}

// List は自分の連携一覧を取得する。
// GET /api/identities
func (h *IdentityHandler) List(w http.ResponseWriter, r *http.Request) {
	accountID, err := middleware.AccountIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewSessionInvalidError())
		return
	}

	identities, err := h.service.List(r.Context(), accountID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]identityResponse, len(identities))
	for i, identity := range identities {
		results[i] = identityResponse{
			ID:        identity.ID,
			Provider:  string(identity.Provider),
			CreatedAt: identity.CreatedAt,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}

// Detach は連携を解除する。
// DELETE /api/identities/{id}
func (h *IdentityHandler) Detach(w http.ResponseWriter, r *http.Request) {
	accountID, err := middleware.AccountIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewSessionInvalidError())
		return
	}

	identityID := chi.URLParam(r, "id")

	if err := h.service.Detach(r.Context(), accountID, identityID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
