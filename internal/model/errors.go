// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeEmailConflict    = "EMAIL_CONFLICT"
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeLastIdentity     = "LAST_IDENTITY"
	ErrCodeIdentityNotFound = "IDENTITY_NOT_FOUND"
	ErrCodeSessionInvalid   = "SESSION_INVALID"
	ErrCodeAccountNotFound  = "ACCOUNT_NOT_FOUND"
	ErrCodeProviderUnknown  = "PROVIDER_UNKNOWN"
)

// AsAPIError はエラーチェーンから*APIErrorを取り出す。
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsCode はエラーが指定コードの*APIErrorかを判定する。
func IsCode(err error, code string) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Code == code
}

// NewEmailConflictError は未検証メールの衝突エラーを生成する。
// 既存アカウントと同じメールアドレスを、プロバイダーが未検証と申告した
// アサーションで使おうとした場合に返す。自動リンクは行わない。
func NewEmailConflictError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailConflict,
		Message:  "このメールアドレスは既に別のログイン方法で登録されています。",
		Category: "auth",
		Action:   "最初に登録したプロバイダーでサインインしてください。",
	}
}

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("入力内容が正しくありません: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewLastIdentityError は最後のログイン手段を解除しようとした場合のエラーを生成する。
func NewLastIdentityError() *APIError {
	return &APIError{
		Code:     ErrCodeLastIdentity,
		Message:  "最後のログイン方法は解除できません。",
		Category: "auth",
		Action:   "先に別のプロバイダーを連携してから解除してください。",
	}
}

// NewIdentityNotFoundError は連携が見つからない場合のエラーを生成する。
// 他アカウントの連携IDを指定した場合も同じエラーを返し、存在を漏らさない。
func NewIdentityNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeIdentityNotFound,
		Message:  "指定された連携が見つかりません。",
		Category: "auth",
		Action:   "連携一覧を確認してください。",
	}
}

// NewSessionInvalidError はセッション無効エラーを生成する。
// 未発見と期限切れはログ上でのみ区別し、ユーザーには同じメッセージを返す。
func NewSessionInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionInvalid,
		Message:  "セッションが無効です。",
		Category: "auth",
		Action:   "再度サインインしてください。",
	}
}

// NewAccountNotFoundError はアカウントが見つからない場合のエラーを生成する。
func NewAccountNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeAccountNotFound,
		Message:  "アカウントが見つかりません。",
		Category: "auth",
		Action:   "再度サインインしてください。",
	}
}

// NewProviderUnknownError は許可リスト外のプロバイダー指定エラーを生成する。
func NewProviderUnknownError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeProviderUnknown,
		Message:  fmt.Sprintf("サポートされていないプロバイダーです: %s", name),
		Category: "validation",
		Action:   "対応プロバイダー（Google / GitHub / Discord）から選択してください。",
	}
}
