package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/playscore/internal/crypto/tokencrypt"
	"github.com/hitoshi/playscore/internal/model"
)

// 一意制約名。マイグレーションSQLと一致させること。
const (
	accountEmailConstraint       = "accounts_email_key"
	identityProviderConstraint   = "identities_provider_provider_user_id_key"
	identityPerAccountConstraint = "identities_account_id_provider_key"
)

// PostgresAccountRepo はPostgreSQLを使用したアカウントリポジトリ。
type PostgresAccountRepo struct {
	db     *sql.DB
	cipher *tokencrypt.Cipher
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
// cipherはCreateWithIdentityで作成する連携のトークン列の暗号化に使う。
func NewPostgresAccountRepo(db *sql.DB, cipher *tokencrypt.Cipher) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db, cipher: cipher}
}

const accountColumns = `id, email, email_verified, display_name, avatar_url, avatar_data, avatar_mime, created_at, updated_at`

// scanAccount は1行をmodel.Accountに読み込む。
func scanAccount(row *sql.Row) (*model.Account, error) {
	account := &model.Account{}
	err := row.Scan(
		&account.ID, &account.Email, &account.EmailVerified,
		&account.DisplayName, &account.AvatarURL,
		&account.AvatarData, &account.AvatarMime,
		&account.CreatedAt, &account.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}
	return account, nil
}

// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`,
		id,
	)
	return scanAccount(row)
}

// FindByEmail は正規化済みメールアドレスでアカウントを検索する。
// 見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = $1`,
		email,
	)
	return scanAccount(row)
}

// CreateWithIdentity はアカウントと最初のLinkedIdentityを同一トランザクションで作成する。
// 部分的な状態を残さない: どちらかのINSERTが失敗した場合は全体をロールバックする。
func (r *PostgresAccountRepo) CreateWithIdentity(ctx context.Context, account *model.Account, identity *model.LinkedIdentity) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO accounts (id, email, email_verified, display_name, avatar_url, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		account.ID, account.Email, account.EmailVerified,
		account.DisplayName, account.AvatarURL,
		account.CreatedAt, account.UpdatedAt,
	)
	if isUniqueViolation(err, accountEmailConstraint) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("failed to insert account: %w", err)
	}

	accessEnc, refreshEnc, err := sealTokens(r.cipher, identity)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO identities (id, account_id, provider, provider_user_id,
		                         access_token_enc, refresh_token_enc, token_expires_at,
		                         profile_data, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		identity.ID, identity.AccountID, string(identity.Provider), identity.ProviderUserID,
		accessEnc, refreshEnc, identity.TokenExpiresAt,
		nullableJSON(identity.ProfileData), identity.CreatedAt, identity.UpdatedAt,
	)
	if isUniqueViolation(err, identityProviderConstraint) {
		return ErrDuplicateIdentity
	}
	if err != nil {
		return fmt.Errorf("failed to insert identity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// UpdateAvatar はアカウントのアバター画像キャッシュを更新する。
func (r *PostgresAccountRepo) UpdateAvatar(ctx context.Context, accountID string, data []byte, mime string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET avatar_data = $2, avatar_mime = $3, updated_at = now() WHERE id = $1`,
		accountID, data, mime,
	)
	if err != nil {
		return fmt.Errorf("failed to update avatar: %w", err)
	}
	return nil
}

// DeleteByID は指定IDのアカウントを削除する。
// 関連するidentities、sessionsはCASCADE削除される。
func (r *PostgresAccountRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM accounts WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("account not found: %s", id)
	}
	return nil
}

// compile-time interface check
var _ AccountRepository = (*PostgresAccountRepo)(nil)
