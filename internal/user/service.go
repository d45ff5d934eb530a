// Package user はアカウントの登録・登用・退会のビジネスロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/g2melody/memberauth/internal/auth"
	"github.com/g2melody/memberauth/internal/model"
	"github.com/g2melody/memberauth/internal/password"
	"github.com/g2melody/memberauth/internal/repository"
	"github.com/g2melody/memberauth/internal/security"
)

// DefaultTempPassword は管理者がパスワードを指定せずにメンバーを登録した
// 場合に使用する仮パスワード。仮パスワードで作成されたメンバーは
// 初回ログイン時に変更を強制される。
const DefaultTempPassword = "g2melody2024"

// Service はアカウント管理のビジネスロジックを提供する。
type Service struct {
	users     repository.UserRepository
	sessions  repository.SessionRepository
	hasher    *password.Hasher
	sanitizer *security.ProfileSanitizer
}

// NewService はServiceを生成する。
func NewService(
	users repository.UserRepository,
	sessions repository.SessionRepository,
	hasher *password.Hasher,
	sanitizer *security.ProfileSanitizer,
) *Service {
	return &Service{
		users:     users,
		sessions:  sessions,
		hasher:    hasher,
		sanitizer: sanitizer,
	}
}

// Register は一般ユーザー（role=USER）を新規登録する。
func (s *Service) Register(ctx context.Context, email, plaintext, confirmPassword, name string) (*model.User, error) {
	if len(plaintext) < model.MinPasswordLength {
		return nil, model.NewWeakPasswordError()
	}
	if plaintext != confirmPassword {
		return nil, model.NewPasswordMismatchError()
	}

	hash, err := s.hasher.Hash(plaintext)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	user := &model.User{
		ID:           uuid.New().String(),
		Email:        auth.NormalizeEmail(email),
		Name:         s.sanitizer.SanitizeName(name),
		PasswordHash: hash,
		Role:         model.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	slog.Info("user registered",
		slog.String("user_id", user.ID),
	)

	return user, nil
}

// Provision は管理者によるメンバー登用を処理する。
// 既存の一般ユーザーはMEMBERロールに昇格し、パスワードはそのまま維持する。
// 未登録のメールアドレスの場合は仮パスワード付きのメンバーアカウントを
// 新規作成し、初回ログイン時のパスワード変更を必須にする。
func (s *Service) Provision(ctx context.Context, email, name, vocalPart, tempPassword string) (*model.User, error) {
	normalized := auth.NormalizeEmail(email)

	existing, err := s.users.FindByEmail(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if existing != nil {
		if err := s.users.Promote(ctx, existing.ID, s.sanitizer.SanitizeName(vocalPart)); err != nil {
			return nil, err
		}
		promoted, err := s.users.FindByID(ctx, existing.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to reload promoted user: %w", err)
		}
		slog.Info("existing user promoted to member",
			slog.String("user_id", existing.ID),
		)
		return promoted, nil
	}

	if tempPassword == "" {
		tempPassword = DefaultTempPassword
	}

	hash, err := s.hasher.Hash(tempPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to hash temporary password: %w", err)
	}

	now := time.Now()
	member := &model.User{
		ID:                 uuid.New().String(),
		Email:              normalized,
		Name:               s.sanitizer.SanitizeName(name),
		PasswordHash:       hash,
		Role:               model.RoleMember,
		MustChangePassword: true,
		VocalPart:          s.sanitizer.SanitizeName(vocalPart),
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.users.Create(ctx, member); err != nil {
		return nil, err
	}

	slog.Info("member provisioned",
		slog.String("user_id", member.ID),
	)

	return member, nil
}

// ListMembers はメンバーと管理者の一覧を返す。管理画面用。
func (s *Service) ListMembers(ctx context.Context) ([]*model.User, error) {
	members, err := s.users.ListByRoles(ctx, model.RoleMember, model.RoleAdmin)
	if err != nil {
		return nil, err
	}
	return members, nil
}

// Withdraw はアカウントを削除する。
// 関連するセッションと再設定トークンはCASCADE削除される。
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	if err := s.users.DeleteByID(ctx, userID); err != nil {
		return err
	}

	// CASCADEに依存せず、稼働中のセッションを明示的に破棄する
	if err := s.sessions.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete user sessions: %w", err)
	}

	slog.Info("user withdrawn", slog.String("user_id", userID))
	return nil
}
