package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/playscore/internal/model"
	"github.com/hitoshi/playscore/internal/repository"
)

// Resolution はアサーションの解決結果。
type Resolution struct {
	Account    *model.Account
	Identity   *model.LinkedIdentity
	// IsNewAccount はこの呼び出しでアカウントが新規作成された場合にtrue。
	IsNewAccount bool
	// AutoLinked は検証済みメールの一致により既存アカウントへ
	// 連携が追加された場合にtrue。
	AutoLinked bool
}

// Resolver はアサーションをアカウントに解決する。
// 順序付きアルゴリズム: 既知の連携 → メール衝突の分岐 → 新規作成。
type Resolver struct {
	accountRepo  repository.AccountRepository
	identityRepo repository.IdentityRepository
}

// NewResolver はResolverを生成する。
func NewResolver(accountRepo repository.AccountRepository, identityRepo repository.IdentityRepository) *Resolver {
	return &Resolver{
		accountRepo:  accountRepo,
		identityRepo: identityRepo,
	}
}

// Resolve はアサーションを解決し、対応するアカウントと連携を返す。
// lookup-then-createの競合で一意制約違反が起きた場合は、
// 勝者の行が存在するはずなので1回だけルックアップからやり直す。
func (r *Resolver) Resolve(ctx context.Context, assertion *IdentityAssertion) (*Resolution, error) {
	if assertion == nil {
		return nil, fmt.Errorf("assertion is required")
	}
	if !assertion.Provider.Valid() {
		return nil, model.NewProviderUnknownError(string(assertion.Provider))
	}
	if assertion.ProviderUserID == "" {
		return nil, model.NewValidationError("プロバイダーのユーザーIDが空です")
	}

	email := model.NormalizeEmail(assertion.Email)
	if err := model.ValidateEmail(email); err != nil {
		return nil, model.NewValidationError("メールアドレスの形式が不正です")
	}
	if err := model.ValidateAvatarURL(assertion.AvatarURL); err != nil {
		return nil, model.NewValidationError("アバターURLの形式が不正です")
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		resolution, retry, err := r.resolveOnce(ctx, assertion, email)
		if err == nil {
			return resolution, nil
		}
		if !retry {
			return nil, err
		}
		// 一意制約違反: 並行する解決処理が先に行を作成した。
		// 次のループで既知の連携またはメール一致として解決される。
		slog.Info("resolution lost uniqueness race, retrying as lookup",
			slog.String("provider", string(assertion.Provider)),
		)
		lastErr = err
	}

	return nil, fmt.Errorf("failed to resolve after uniqueness race: %w", lastErr)
}

// resolveOnce は解決アルゴリズムを1回実行する。
// retry=trueは一意制約違反による敗北を表し、呼び出し側がやり直す。
func (r *Resolver) resolveOnce(ctx context.Context, assertion *IdentityAssertion, email string) (resolution *Resolution, retry bool, err error) {
	// 1. 既知の連携。ここで見つかった連携が正であり、メール照合は行わない
	// （プロバイダー側でメールが変わっていても既存の紐付けを優先する）。
	identity, err := r.identityRepo.FindByProviderAndProviderUserID(ctx, assertion.Provider, assertion.ProviderUserID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to find identity: %w", err)
	}
	if identity != nil {
		return r.resolveKnown(ctx, assertion, identity)
	}

	// 2. メール衝突の分岐
	account, err := r.accountRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, false, fmt.Errorf("failed to find account by email: %w", err)
	}

	if account == nil {
		return r.createAccount(ctx, assertion, email)
	}

	// 既存アカウントと同じメール: プロバイダーの検証申告で分岐する。
	// 未検証の主張は攻撃者が任意に申告できるため、自動リンクしない。
	if !assertion.EmailVerified {
		slog.Warn("unverified email collision rejected",
			slog.String("provider", string(assertion.Provider)),
			slog.String("account_id", account.ID),
		)
		return nil, false, model.NewEmailConflictError()
	}

	return r.autoLink(ctx, assertion, account)
}

// resolveKnown は既知の連携でのログインを処理する。
// トークンとプロフィールはlast-writer-winsで更新する。
func (r *Resolver) resolveKnown(ctx context.Context, assertion *IdentityAssertion, identity *model.LinkedIdentity) (*Resolution, bool, error) {
	identity.AccessToken = assertion.AccessToken
	identity.RefreshToken = assertion.RefreshToken
	identity.TokenExpiresAt = assertion.ExpiresAt
	identity.ProfileData = assertion.RawProfile

	if err := r.identityRepo.UpdateTokens(ctx, identity); err != nil {
		return nil, false, fmt.Errorf("failed to refresh identity tokens: %w", err)
	}

	account, err := r.accountRepo.FindByID(ctx, identity.AccountID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		return nil, false, fmt.Errorf("identity %s references missing account %s", identity.ID, identity.AccountID)
	}

	slog.Info("existing account logged in",
		slog.String("account_id", account.ID),
		slog.String("provider", string(assertion.Provider)),
	)

	return &Resolution{Account: account, Identity: identity, IsNewAccount: false}, false, nil
}

// createAccount はアカウントと最初の連携を原子的に作成する。
func (r *Resolver) createAccount(ctx context.Context, assertion *IdentityAssertion, email string) (*Resolution, bool, error) {
	now := time.Now()
	account := &model.Account{
		ID:            uuid.New().String(),
		Email:         email,
		EmailVerified: assertion.EmailVerified,
		DisplayName:   assertion.DisplayName,
		AvatarURL:     assertion.AvatarURL,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	identity := newIdentity(account.ID, assertion, now)

	if err := r.accountRepo.CreateWithIdentity(ctx, account, identity); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) || errors.Is(err, repository.ErrDuplicateIdentity) {
			return nil, true, err
		}
		return nil, false, fmt.Errorf("failed to create account with identity: %w", err)
	}

	slog.Info("new account created",
		slog.String("account_id", account.ID),
		slog.String("provider", string(assertion.Provider)),
		slog.Bool("email_verified", assertion.EmailVerified),
	)

	return &Resolution{Account: account, Identity: identity, IsNewAccount: true}, false, nil
}

// autoLink は検証済みメールの一致に基づき、既存アカウントへ連携を追加する。
func (r *Resolver) autoLink(ctx context.Context, assertion *IdentityAssertion, account *model.Account) (*Resolution, bool, error) {
	now := time.Now()
	identity := newIdentity(account.ID, assertion, now)

	if err := r.identityRepo.Link(ctx, identity); err != nil {
		if errors.Is(err, repository.ErrDuplicateIdentity) {
			return nil, true, err
		}
		return nil, false, fmt.Errorf("failed to link identity: %w", err)
	}

	slog.Info("identity auto-linked to existing account",
		slog.String("account_id", account.ID),
		slog.String("provider", string(assertion.Provider)),
	)

	return &Resolution{Account: account, Identity: identity, IsNewAccount: false, AutoLinked: true}, false, nil
}

// newIdentity はアサーションからLinkedIdentityを構築する。
func newIdentity(accountID string, assertion *IdentityAssertion, now time.Time) *model.LinkedIdentity {
	return &model.LinkedIdentity{
		ID:             uuid.New().String(),
		AccountID:      accountID,
		Provider:       assertion.Provider,
		ProviderUserID: assertion.ProviderUserID,
		AccessToken:    assertion.AccessToken,
		RefreshToken:   assertion.RefreshToken,
		TokenExpiresAt: assertion.ExpiresAt,
		ProfileData:    assertion.RawProfile,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
