// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/g2melody/memberauth/internal/model"
)

// UserRepository はプリンシパル（ユーザー・メンバー・管理者）の永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。
	// 比較は小文字正規化した上で行う。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。
	// メールアドレスが既に登録済みの場合は*model.APIError（EMAIL_TAKEN）を返す。
	Create(ctx context.Context, user *model.User) error

	// UpdatePassword はパスワードハッシュを更新し、
	// must_change_passwordフラグをfalseに落とす。
	// フラグの遷移はtrue→falseの一方向のみ。
	UpdatePassword(ctx context.Context, userID, passwordHash string) error

	// Promote は既存ユーザーをメンバーに昇格する（管理者による登用）。
	Promote(ctx context.Context, userID string, vocalPart string) error

	// ListByRoles は指定ロールのユーザー一覧をメールアドレス順で返す。
	ListByRoles(ctx context.Context, roles ...model.Role) ([]*model.User, error)

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するsessions、password_reset_tokensはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// ResetTokenRepository はパスワード再設定トークンの永続化インターフェース。
type ResetTokenRepository interface {
	// Replace は同一メールアドレスの既存トークンを全て削除した上で
	// 新しいトークンを保存する。削除と挿入は同一トランザクションで行い、
	// 有効なトークンが常に1件以下であることを保証する。
	Replace(ctx context.Context, token *model.ResetToken) error

	// ConsumeAndRotate はトークンを消費してパスワードを更新する。
	// トークン行のDELETE ... RETURNINGによって並行する消費のうち
	// 必ず1つだけが成功する。期限切れトークンは削除した上で
	// TOKEN_EXPIREDを返す。トークンの消費・兄弟トークンの削除・
	// パスワード更新は単一トランザクションで実行され、
	// パスワード更新に失敗した場合はトークンも消費されない。
	ConsumeAndRotate(ctx context.Context, token, passwordHash string) error

	// DeleteExpired は期限切れトークンを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}
