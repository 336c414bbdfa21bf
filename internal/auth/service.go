package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/playscore/internal/metrics"
	"github.com/hitoshi/playscore/internal/model"
	"github.com/hitoshi/playscore/internal/repository"
)

// DisplayNameSanitizer はプロバイダー由来の表示名からマークアップを除去する。
type DisplayNameSanitizer interface {
	Sanitize(name string) string
}

// AvatarUpdater はアバター画像を取得してアカウントに保存する。
type AvatarUpdater interface {
	UpdateFromURL(ctx context.Context, accountID, avatarURL string) error
}

// Service は認証フロー全体のビジネスロジックを提供する。
// プロバイダーとのハンドシェイク、アカウント解決、セッション発行を束ねる。
type Service struct {
	registry    *Registry
	resolver    *Resolver
	sessions    *SessionManager
	accountRepo repository.AccountRepository
	sanitizer   DisplayNameSanitizer
	avatars     AvatarUpdater
	collector   metrics.MetricsCollector
}

// NewService はServiceを生成する。avatarsはnil許容（アバター取得を無効化）。
func NewService(
	registry *Registry,
	resolver *Resolver,
	sessions *SessionManager,
	accountRepo repository.AccountRepository,
	sanitizer DisplayNameSanitizer,
	avatars AvatarUpdater,
	collector metrics.MetricsCollector,
) *Service {
	return &Service{
		registry:    registry,
		resolver:    resolver,
		sessions:    sessions,
		accountRepo: accountRepo,
		sanitizer:   sanitizer,
		avatars:     avatars,
		collector:   collector,
	}
}

// SessionTTL はセッションの有効期間を返す。
func (s *Service) SessionTTL() time.Duration {
	return s.sessions.TTL()
}

// EnabledProviders は設定済みプロバイダーの一覧を返す。
func (s *Service) EnabledProviders() []model.Provider {
	return s.registry.Enabled()
}

// LoginURL は指定プロバイダーの認可URLを生成する。
func (s *Service) LoginURL(provider model.Provider, state string) (string, error) {
	client, err := s.registry.Client(provider)
	if err != nil {
		return "", model.NewProviderUnknownError(string(provider))
	}
	return client.LoginURL(state), nil
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
// priorTokenはログイン前の環境セッション。固定攻撃防止のため必ず破棄され、
// 新しいトークンが発行される。
func (s *Service) HandleCallback(ctx context.Context, provider model.Provider, code, priorToken string, meta ClientMeta) (*model.Session, *Resolution, error) {
	start := time.Now()
	defer func() {
		s.collector.RecordCallbackLatency(time.Since(start))
	}()

	client, err := s.registry.Client(provider)
	if err != nil {
		return nil, nil, model.NewProviderUnknownError(string(provider))
	}

	assertion, err := client.Exchange(ctx, code)
	if err != nil {
		s.collector.RecordLogin(string(provider), metrics.OutcomeError)
		return nil, nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	if s.sanitizer != nil {
		assertion.DisplayName = s.sanitizer.Sanitize(assertion.DisplayName)
	}

	resolution, err := s.resolver.Resolve(ctx, assertion)
	if err != nil {
		s.collector.RecordLogin(string(provider), loginOutcome(err))
		return nil, nil, err
	}

	s.collector.RecordLogin(string(provider), resolutionOutcome(resolution))

	// 新規アカウントのアバターは非同期で取得する。失敗してもログインは成立する。
	if resolution.IsNewAccount && s.avatars != nil && resolution.Account.AvatarURL != "" {
		go s.fetchAvatar(resolution.Account.ID, resolution.Account.AvatarURL)
	}

	session, err := s.sessions.Start(ctx, resolution.Account.ID, priorToken, meta)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start session: %w", err)
	}

	return session, resolution, nil
}

// Logout はセッションを破棄する。存在しないトークンでもエラーにしない。
func (s *Service) Logout(ctx context.Context, token string) error {
	if err := s.sessions.Destroy(ctx, token); err != nil {
		return fmt.Errorf("failed to logout: %w", err)
	}
	slog.Info("user logged out")
	return nil
}

// CurrentAccount はセッショントークンから現在のアカウントを取得する。
// 無効なセッションはユーザーには区別なくSESSION_INVALIDとして扱われる。
func (s *Service) CurrentAccount(ctx context.Context, token string) (*model.Account, error) {
	session, err := s.sessions.Validate(ctx, token)
	if err != nil {
		if errors.Is(err, ErrSessionExpired) {
			s.collector.RecordSessionValidation(metrics.SessionExpired)
			return nil, model.NewSessionInvalidError()
		}
		if errors.Is(err, ErrSessionNotFound) {
			s.collector.RecordSessionValidation(metrics.SessionNotFound)
			return nil, model.NewSessionInvalidError()
		}
		return nil, fmt.Errorf("failed to validate session: %w", err)
	}
	s.collector.RecordSessionValidation(metrics.SessionValid)

	account, err := s.accountRepo.FindByID(ctx, session.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		return nil, model.NewAccountNotFoundError()
	}

	return account, nil
}

// fetchAvatar はバックグラウンドでアバター画像を取得する。
func (s *Service) fetchAvatar(accountID, avatarURL string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := s.avatars.UpdateFromURL(ctx, accountID, avatarURL); err != nil {
		s.collector.RecordAvatarFetchFailure()
		slog.Warn("failed to fetch avatar",
			slog.String("account_id", accountID),
			slog.String("error", err.Error()),
		)
	}
}

// resolutionOutcome は解決結果をメトリクスのラベル値に写像する。
func resolutionOutcome(r *Resolution) string {
	switch {
	case r.IsNewAccount:
		return metrics.OutcomeNewAccount
	case r.AutoLinked:
		return metrics.OutcomeAutoLink
	default:
		return metrics.OutcomeLogin
	}
}

// loginOutcome は解決エラーをメトリクスのラベル値に写像する。
func loginOutcome(err error) string {
	if model.IsCode(err, model.ErrCodeEmailConflict) {
		return metrics.OutcomeEmailConflict
	}
	return metrics.OutcomeError
}
