package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/playscore/internal/model"
	"github.com/hitoshi/playscore/internal/repository"
)

// セッション検証の失敗理由。ユーザー向けには両者を区別せず
// 「再度サインインしてください」に写像する。ログでのみ区別する。
var (
	// ErrSessionNotFound はトークンに対応する行が存在しない。
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired は行は存在するがcreated_at + TTLを過ぎている。
	ErrSessionExpired = errors.New("session expired")
)

// ClientMeta はセッション発行時に記録するクライアント情報（参考情報）。
type ClientMeta struct {
	UserAgent string
	IP        string
}

// SessionManager はセッションの発行・検証・破棄を担う。
// 有効期限はcreated_at + TTLで固定。スライディング延長はしない。
type SessionManager struct {
	repo repository.SessionRepository
	ttl  time.Duration
	now  func() time.Time
}

// NewSessionManager はSessionManagerを生成する。
func NewSessionManager(repo repository.SessionRepository, ttl time.Duration) *SessionManager {
	return &SessionManager{
		repo: repo,
		ttl:  ttl,
		now:  time.Now,
	}
}

// TTL はセッションの有効期間を返す。Cookieのmax-age設定に使う。
func (m *SessionManager) TTL() time.Duration {
	return m.ttl
}

// Start は新しいセッションを発行する。
// priorTokenが空でない場合は先に破棄する（セッション固定攻撃の防止）。
// ログイン前のトークンを昇格させることはなく、常に新しいトークンを発行する。
func (m *SessionManager) Start(ctx context.Context, accountID, priorToken string, meta ClientMeta) (*model.Session, error) {
	if priorToken != "" {
		// 旧セッションの破棄失敗は新規発行を妨げない
		if err := m.repo.DeleteByID(ctx, priorToken); err != nil {
			slog.Warn("failed to destroy prior session", slog.String("error", err.Error()))
		}
	}

	token, err := generateSessionToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}

	session := &model.Session{
		ID:        token,
		AccountID: accountID,
		UserAgent: meta.UserAgent,
		IP:        meta.IP,
		CreatedAt: m.now(),
	}

	if err := m.repo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	slog.Info("session started", slog.String("account_id", accountID))
	return session, nil
}

// Validate はトークンを検証し、有効ならセッションを返す。
// 期限切れを発見した場合はその場で行を削除してからErrSessionExpiredを返す。
// 削除の失敗は検証結果に影響しない（クリーンアップワーカーが後で回収する）。
func (m *SessionManager) Validate(ctx context.Context, token string) (*model.Session, error) {
	if token == "" {
		return nil, ErrSessionNotFound
	}

	session, err := m.repo.FindByID(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	if session.Expired(m.ttl, m.now()) {
		if err := m.repo.DeleteByID(ctx, token); err != nil {
			slog.Warn("failed to delete expired session", slog.String("error", err.Error()))
		}
		slog.Info("expired session rejected", slog.String("account_id", session.AccountID))
		return nil, ErrSessionExpired
	}

	return session, nil
}

// Destroy はセッションを破棄する。既に存在しない場合もエラーにしない（冪等）。
func (m *SessionManager) Destroy(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := m.repo.DeleteByID(ctx, token); err != nil {
		return fmt.Errorf("failed to destroy session: %w", err)
	}
	return nil
}

// DestroyAll は指定アカウントの全セッションを破棄する。退会時に使う。
func (m *SessionManager) DestroyAll(ctx context.Context, accountID string) error {
	if err := m.repo.DeleteByAccountID(ctx, accountID); err != nil {
		return fmt.Errorf("failed to destroy sessions: %w", err)
	}
	return nil
}

// generateSessionToken は暗号的に安全な不透明トークンを生成する。
func generateSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
