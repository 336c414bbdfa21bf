// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/playscore/internal/model"
)

// AccountRepository はアカウントデータの永続化インターフェース。
type AccountRepository interface {
	// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Account, error)

	// FindByEmail は正規化済みメールアドレスでアカウントを検索する。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Account, error)

	// CreateWithIdentity はアカウントと最初のLinkedIdentityを同一トランザクションで作成する。
	// アカウントは作成時点で必ず1件以上の連携を持つという不変条件をここで担保する。
	// メール重複はErrDuplicateEmail、(provider, provider_user_id)重複は
	// ErrDuplicateIdentityを返す。
	CreateWithIdentity(ctx context.Context, account *model.Account, identity *model.LinkedIdentity) error

	// UpdateAvatar はアカウントのアバター画像キャッシュを更新する。
	UpdateAvatar(ctx context.Context, accountID string, data []byte, mime string) error

	// DeleteByID は指定IDのアカウントを削除する。
	// 関連するidentities、sessionsはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
// トークン列は実装側で透過的に暗号化・復号される。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider model.Provider, providerUserID string) (*model.LinkedIdentity, error)

	// ListByAccountID はアカウントの連携一覧を作成日時順で返す。
	// トークン列は復号しない（一覧表示にトークンは不要）。
	ListByAccountID(ctx context.Context, accountID string) ([]*model.LinkedIdentity, error)

	// Link は既存アカウントに連携を追加する。
	// 同一アカウント・同一プロバイダーの既存行がある場合は更新する（再リンク）。
	// その場合、維持された既存行のidとcreated_atをidentityに書き戻す。
	// 他アカウントが同じ外部IDを保持している場合はErrDuplicateIdentityを返す。
	Link(ctx context.Context, identity *model.LinkedIdentity) error

	// UpdateTokens はトークン・プロフィール情報を更新する（last-writer-wins）。
	UpdateTokens(ctx context.Context, identity *model.LinkedIdentity) error

	// DetachFromAccount は指定アカウントの連携を1件削除する。
	// アカウントに属さないIDはErrIdentityNotFound、最後の1件は
	// ErrLastIdentityを返す。判定と削除は同一トランザクションで行う。
	DetachFromAccount(ctx context.Context, accountID, identityID string) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error

	// FindByID は指定IDのセッションを取得する。見つからない場合はnilを返す。
	// 有効期限の判定は行わない（呼び出し側がcreated_at + TTLで判定する）。
	FindByID(ctx context.Context, id string) (*model.Session, error)

	// DeleteByID は指定IDのセッションを削除する。存在しない場合もエラーにしない。
	DeleteByID(ctx context.Context, id string) error

	// DeleteByAccountID は指定アカウントの全セッションを削除する。
	DeleteByAccountID(ctx context.Context, accountID string) error

	// DeleteOlderThan はcutoffより前に作成されたセッションを削除し、削除件数を返す。
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
