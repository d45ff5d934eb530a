// Package model はドメインモデルを定義する。
package model

import "time"

// Role はプリンシパルの権限区分を表す。
type Role string

const (
	// RoleUser は一般登録ユーザー。公開サイトの機能のみ利用できる。
	RoleUser Role = "USER"
	// RoleMember は聖歌隊メンバー。メンバーエリアにアクセスできる。
	RoleMember Role = "MEMBER"
	// RoleAdmin は管理者。管理エリアを含む全エリアにアクセスできる。
	RoleAdmin Role = "ADMIN"
)

// Valid はロールが定義済みの値かどうかを返す。
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleMember, RoleAdmin:
		return true
	}
	return false
}

// In はロールが指定されたロール集合に含まれるかどうかを返す。
func (r Role) In(roles ...Role) bool {
	for _, candidate := range roles {
		if r == candidate {
			return true
		}
	}
	return false
}

// User は認証可能なプリンシパル（一般ユーザー・メンバー・管理者）を表す。
// Emailは小文字に正規化して保存し、大文字小文字の違いによる
// アカウントの分裂を防ぐ。
type User struct {
	ID                 string
	Email              string
	Name               string
	PasswordHash       string
	Role               Role
	MustChangePassword bool
	VocalPart          string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Session はユーザーのログインセッションを表す。
// ロールはセッションに保存せず、アクセスチェック時に
// 必ずusersレコードから再取得する。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// ResetToken はパスワード再設定用のワンタイムトークンを表す。
// 同一メールアドレスに対して有効なトークンは常に1件のみ。
type ResetToken struct {
	ID        string
	Email     string
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
}
