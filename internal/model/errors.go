// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
// 内部では厳密なエラーコードを保持するが、列挙攻撃に関わる境界
// （ログイン・パスワード再設定要求）ではハンドラー側で
// 一般化したレスポンスに丸める。
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
	ErrCodeInvalidCredentials     = "INVALID_CREDENTIALS"
	ErrCodeAccessDenied           = "ACCESS_DENIED"
	ErrCodeUnauthorized           = "UNAUTHORIZED"
	ErrCodeTokenNotFound          = "TOKEN_NOT_FOUND"
	ErrCodeTokenExpired           = "TOKEN_EXPIRED"
	ErrCodeWeakPassword           = "WEAK_PASSWORD"
	ErrCodePasswordMismatch       = "PASSWORD_MISMATCH"
	ErrCodeEmailTaken             = "EMAIL_TAKEN"
	ErrCodeSamePassword           = "SAME_PASSWORD"
	ErrCodePasswordChangeRequired = "PASSWORD_CHANGE_REQUIRED"
	ErrCodeUserNotFound           = "USER_NOT_FOUND"
	ErrCodeStoreUnavailable       = "STORE_UNAVAILABLE"
)

// MinPasswordLength はパスワードの最小文字数ポリシー。
// 登録・再設定・変更の全フローで同一の値を適用する。
const MinPasswordLength = 8

// NewInvalidCredentialsError は認証失敗エラーを生成する。
// メールアドレスとパスワードのどちらが誤っていたかは開示しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Invalid email or password.",
		Category: "auth",
		Action:   "Check your email address and password, then try again.",
	}
}

// NewAccessDeniedError は権限不足エラーを生成する。
func NewAccessDeniedError() *APIError {
	return &APIError{
		Code:     ErrCodeAccessDenied,
		Message:  "You do not have permission to access this area.",
		Category: "auth",
		Action:   "Sign in with an account that has the required role.",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Authentication is required.",
		Category: "auth",
		Action:   "Sign in and try again.",
	}
}

// NewTokenNotFoundError は再設定トークン未検出エラーを生成する。
func NewTokenNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeTokenNotFound,
		Message:  "Invalid or already used reset token.",
		Category: "auth",
		Action:   "Request a new password reset link.",
	}
}

// NewTokenExpiredError は再設定トークン期限切れエラーを生成する。
func NewTokenExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeTokenExpired,
		Message:  "This reset token has expired.",
		Category: "auth",
		Action:   "Request a new password reset link.",
	}
}

// NewWeakPasswordError はパスワードポリシー違反エラーを生成する。
func NewWeakPasswordError() *APIError {
	return &APIError{
		Code:     ErrCodeWeakPassword,
		Message:  fmt.Sprintf("Password must be at least %d characters long.", MinPasswordLength),
		Category: "validation",
		Action:   fmt.Sprintf("Choose a password with %d or more characters.", MinPasswordLength),
	}
}

// NewPasswordMismatchError は確認用パスワード不一致エラーを生成する。
func NewPasswordMismatchError() *APIError {
	return &APIError{
		Code:     ErrCodePasswordMismatch,
		Message:  "Passwords do not match.",
		Category: "validation",
		Action:   "Enter the same password in both fields.",
	}
}

// NewEmailTakenError はメールアドレス重複エラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  "An account with this email already exists.",
		Category: "validation",
		Action:   "Sign in instead, or use the password reset if you forgot your password.",
	}
}

// NewSamePasswordError は現在と同一のパスワードへの変更を拒否するエラーを生成する。
func NewSamePasswordError() *APIError {
	return &APIError{
		Code:     ErrCodeSamePassword,
		Message:  "New password must be different from the current password.",
		Category: "validation",
		Action:   "Choose a password you have not used before.",
	}
}

// NewPasswordChangeRequiredError はパスワード変更未完了エラーを生成する。
// 仮パスワードのままのメンバーはダッシュボードにアクセスできない。
func NewPasswordChangeRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodePasswordChangeRequired,
		Message:  "You must change your temporary password before continuing.",
		Category: "auth",
		Action:   "Set a new password to activate your member account.",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "User not found.",
		Category: "auth",
		Action:   "Sign in again.",
	}
}

// NewStoreUnavailableError はデータストア障害エラーを生成する。
// 認証失敗とは区別し、インフラ障害として伝播させる。
func NewStoreUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeStoreUnavailable,
		Message:  "The service is temporarily unavailable.",
		Category: "system",
		Action:   "Wait a moment and try again.",
	}
}
