package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/g2melody/memberauth/internal/model"
)

// ChangePassword はパスワードを変更し、must_change_passwordフラグを落とす。
// 仮パスワードで登録されたメンバーの強制変更フローと、
// 通常の任意変更の両方で使用する。
//
// セッション乗っ取り中の変更を防ぐため、現在のパスワードを必ず再検証する。
// いずれの検査に失敗しても保存済みの状態は一切変更されない。
func (s *Service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword, confirmPassword string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	start := time.Now()
	ok := s.hasher.Verify(currentPassword, user.PasswordHash)
	s.metrics.RecordHashLatency(time.Since(start))
	if !ok {
		return model.NewInvalidCredentialsError()
	}

	if err := validateNewPassword(newPassword, confirmPassword); err != nil {
		return err
	}
	if newPassword == currentPassword {
		return model.NewSamePasswordError()
	}

	start = time.Now()
	hash, err := s.hasher.Hash(newPassword)
	s.metrics.RecordHashLatency(time.Since(start))
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return err
	}

	if user.MustChangePassword {
		s.metrics.RecordPasswordRotation()
	}
	slog.Info("password changed",
		slog.String("user_id", user.ID),
		slog.Bool("forced_rotation", user.MustChangePassword),
	)

	return nil
}
