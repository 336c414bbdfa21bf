package repository

import (
	"errors"

	"github.com/lib/pq"
)

// リポジトリ層の判定用エラー。サービス層でユーザー向けエラーに変換する。
var (
	// ErrDuplicateEmail はaccounts.emailの一意制約違反。
	ErrDuplicateEmail = errors.New("account email already exists")
	// ErrDuplicateIdentity は(provider, provider_user_id)の一意制約違反。
	ErrDuplicateIdentity = errors.New("identity already linked to another account")
	// ErrIdentityNotFound は指定アカウントに属する連携が見つからない。
	ErrIdentityNotFound = errors.New("identity not found for account")
	// ErrLastIdentity は最後の連携の削除を拒否した。
	ErrLastIdentity = errors.New("cannot detach last identity")
)

// uniqueViolation はPostgreSQLの一意制約違反コード。
const uniqueViolation = "23505"

// isUniqueViolation はerrが指定制約の一意制約違反かを判定する。
// constraintが空の場合は制約名を問わず23505全般にマッチする。
func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	if pqErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}
