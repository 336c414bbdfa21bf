package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/playscore/internal/crypto/tokencrypt"
	"github.com/hitoshi/playscore/internal/model"
)

// PostgresIdentityRepo はPostgreSQLを使用したidentityリポジトリ。
// トークン列は書き込み時に暗号化し、読み出し時に復号する。
type PostgresIdentityRepo struct {
	db     *sql.DB
	cipher *tokencrypt.Cipher
}

// NewPostgresIdentityRepo はPostgresIdentityRepoを生成する。
func NewPostgresIdentityRepo(db *sql.DB, cipher *tokencrypt.Cipher) *PostgresIdentityRepo {
	return &PostgresIdentityRepo{db: db, cipher: cipher}
}

// tokenAAD はトークン暗号化のAAD（紐付け先識別子）を返す。
// 行間で暗号文を移し替えても復号できないようにする。
func tokenAAD(provider model.Provider, providerUserID string) []byte {
	return []byte(string(provider) + ":" + providerUserID)
}

// sealTokens はidentityの平文トークンを暗号化する。
func sealTokens(cipher *tokencrypt.Cipher, identity *model.LinkedIdentity) (access, refresh []byte, err error) {
	aad := tokenAAD(identity.Provider, identity.ProviderUserID)
	access, err = cipher.Seal(identity.AccessToken, aad)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encrypt access token: %w", err)
	}
	refresh, err = cipher.Seal(identity.RefreshToken, aad)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encrypt refresh token: %w", err)
	}
	return access, refresh, nil
}

// nullableJSON は空のJSONをNULLとして格納するためのヘルパー。
func nullableJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
// 見つからない場合はnilを返す。
func (r *PostgresIdentityRepo) FindByProviderAndProviderUserID(ctx context.Context, provider model.Provider, providerUserID string) (*model.LinkedIdentity, error) {
	identity := &model.LinkedIdentity{}
	var providerStr string
	var accessEnc, refreshEnc []byte
	var profile []byte

	err := r.db.QueryRowContext(ctx,
		`SELECT id, account_id, provider, provider_user_id,
		        access_token_enc, refresh_token_enc, token_expires_at,
		        profile_data, created_at, updated_at
		 FROM identities
		 WHERE provider = $1 AND provider_user_id = $2`,
		string(provider), providerUserID,
	).Scan(
		&identity.ID, &identity.AccountID, &providerStr, &identity.ProviderUserID,
		&accessEnc, &refreshEnc, &identity.TokenExpiresAt,
		&profile, &identity.CreatedAt, &identity.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}

	identity.Provider = model.Provider(providerStr)
	identity.ProfileData = profile

	aad := tokenAAD(identity.Provider, identity.ProviderUserID)
	if identity.AccessToken, err = r.cipher.Open(accessEnc, aad); err != nil {
		return nil, fmt.Errorf("failed to decrypt access token: %w", err)
	}
	if identity.RefreshToken, err = r.cipher.Open(refreshEnc, aad); err != nil {
		return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
	}

	return identity, nil
}

// ListByAccountID はアカウントの連携一覧を作成日時順で返す。
// トークン列は復号しない（一覧表示にトークンは不要）。
func (r *PostgresIdentityRepo) ListByAccountID(ctx context.Context, accountID string) ([]*model.LinkedIdentity, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, account_id, provider, provider_user_id, token_expires_at, created_at, updated_at
		 FROM identities
		 WHERE account_id = $1
		 ORDER BY created_at ASC`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}
	defer rows.Close()

	var identities []*model.LinkedIdentity
	for rows.Next() {
		identity := &model.LinkedIdentity{}
		var providerStr string
		if err := rows.Scan(
			&identity.ID, &identity.AccountID, &providerStr, &identity.ProviderUserID,
			&identity.TokenExpiresAt, &identity.CreatedAt, &identity.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan identity: %w", err)
		}
		identity.Provider = model.Provider(providerStr)
		identities = append(identities, identity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate identities: %w", err)
	}

	return identities, nil
}

// Link は既存アカウントに連携を追加する。
// 同一アカウント・同一プロバイダーの既存行がある場合はON CONFLICTで更新する（再リンク）。
// 再リンク時は既存行のidとcreated_atが維持されるため、RETURNINGで読み戻して
// identityに書き戻し、呼び出し元が保持する値を実際の行と一致させる。
// 他アカウントが同じ(provider, provider_user_id)を保持している場合は
// ErrDuplicateIdentityを返す。
func (r *PostgresIdentityRepo) Link(ctx context.Context, identity *model.LinkedIdentity) error {
	accessEnc, refreshEnc, err := sealTokens(r.cipher, identity)
	if err != nil {
		return err
	}

	err = r.db.QueryRowContext(ctx,
		`INSERT INTO identities (id, account_id, provider, provider_user_id,
		                         access_token_enc, refresh_token_enc, token_expires_at,
		                         profile_data, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT ON CONSTRAINT `+identityPerAccountConstraint+`
		 DO UPDATE SET provider_user_id = EXCLUDED.provider_user_id,
		               access_token_enc = EXCLUDED.access_token_enc,
		               refresh_token_enc = EXCLUDED.refresh_token_enc,
		               token_expires_at = EXCLUDED.token_expires_at,
		               profile_data = EXCLUDED.profile_data,
		               updated_at = EXCLUDED.updated_at
		 RETURNING id, created_at`,
		identity.ID, identity.AccountID, string(identity.Provider), identity.ProviderUserID,
		accessEnc, refreshEnc, identity.TokenExpiresAt,
		nullableJSON(identity.ProfileData), identity.CreatedAt, identity.UpdatedAt,
	).Scan(&identity.ID, &identity.CreatedAt)
	if isUniqueViolation(err, identityProviderConstraint) {
		return ErrDuplicateIdentity
	}
	if err != nil {
		return fmt.Errorf("failed to link identity: %w", err)
	}

	return nil
}

// UpdateTokens はトークン・プロフィール情報を更新する（last-writer-wins）。
// トークンは不透明なbearer値であり、常に最新を保持すればよいため
// 楽観ロックは行わない。
func (r *PostgresIdentityRepo) UpdateTokens(ctx context.Context, identity *model.LinkedIdentity) error {
	accessEnc, refreshEnc, err := sealTokens(r.cipher, identity)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE identities
		 SET access_token_enc = $2, refresh_token_enc = $3,
		     token_expires_at = $4, profile_data = $5, updated_at = now()
		 WHERE id = $1`,
		identity.ID, accessEnc, refreshEnc,
		identity.TokenExpiresAt, nullableJSON(identity.ProfileData),
	)
	if err != nil {
		return fmt.Errorf("failed to update identity tokens: %w", err)
	}
	return nil
}

// DetachFromAccount は指定アカウントの連携を1件削除する。
// 最後の1件の削除はErrLastIdentityで拒否する（パスワードが存在しない設計のため、
// 全連携を失うとアカウントに二度とログインできなくなる）。
// 並行Detachで0件になるのを防ぐため、行ロックを取ってから判定する。
func (r *PostgresIdentityRepo) DetachFromAccount(ctx context.Context, accountID, identityID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM identities WHERE account_id = $1 FOR UPDATE`,
		accountID,
	)
	if err != nil {
		return fmt.Errorf("failed to lock identities: %w", err)
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan identity id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("failed to iterate identity ids: %w", err)
	}
	rows.Close()

	found := false
	for _, id := range ids {
		if id == identityID {
			found = true
			break
		}
	}
	// 他アカウントの連携IDを指定された場合もErrIdentityNotFound
	// （存在の有無を漏らさない）
	if !found {
		return ErrIdentityNotFound
	}
	if len(ids) == 1 {
		return ErrLastIdentity
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM identities WHERE id = $1 AND account_id = $2`,
		identityID, accountID,
	); err != nil {
		return fmt.Errorf("failed to delete identity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// compile-time interface check
var _ IdentityRepository = (*PostgresIdentityRepo)(nil)
