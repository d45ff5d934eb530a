package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/g2melody/memberauth/internal/model"
)

// RequestPasswordReset はパスワード再設定トークンを発行し、帯域外配送を依頼する。
// アカウントが存在しない場合もエラーを返さない。呼び出し側は存在有無に
// かかわらず同一の成功レスポンスを返すこと（メールアドレス列挙への対策）。
// 新しいトークンの発行により、同一アドレスの既存トークンは全て無効化される。
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	normalized := NormalizeEmail(email)

	user, err := s.users.FindByEmail(ctx, normalized)
	if err != nil {
		return fmt.Errorf("failed to look up principal: %w", err)
	}
	if user == nil {
		// トークンは発行しない。外部レスポンスは成功と同一。
		slog.Info("password reset requested for unknown email")
		return nil
	}

	secret, err := generateSecret()
	if err != nil {
		return fmt.Errorf("failed to generate reset token: %w", err)
	}

	now := time.Now()
	token := &model.ResetToken{
		ID:        uuid.New().String(),
		Email:     normalized,
		Token:     secret,
		ExpiresAt: now.Add(s.config.ResetTokenTTL),
		CreatedAt: now,
	}

	if err := s.resetTokens.Replace(ctx, token); err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}

	s.metrics.RecordResetIssued()
	slog.Info("password reset token issued",
		slog.String("user_id", user.ID),
		slog.Time("expires_at", token.ExpiresAt),
	)

	if err := s.mailer.SendPasswordReset(ctx, normalized, s.resetURL(secret)); err != nil {
		return fmt.Errorf("failed to send reset email: %w", err)
	}

	return nil
}

// ResetPassword は再設定トークンを消費して新しいパスワードを保存する。
// トークンの消費とパスワード更新は単一のトランザクションで行われ、
// 同じトークンを2回消費することはできない。
func (s *Service) ResetPassword(ctx context.Context, token, newPassword, confirmPassword string) error {
	if err := validateNewPassword(newPassword, confirmPassword); err != nil {
		return err
	}

	start := time.Now()
	hash, err := s.hasher.Hash(newPassword)
	s.metrics.RecordHashLatency(time.Since(start))
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.resetTokens.ConsumeAndRotate(ctx, token, hash); err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.Code {
			case model.ErrCodeTokenExpired:
				s.metrics.RecordResetConsumed("expired")
			default:
				s.metrics.RecordResetConsumed("not_found")
			}
		}
		return err
	}

	s.metrics.RecordResetConsumed("success")
	slog.Info("password reset completed")
	return nil
}

// validateNewPassword は新パスワードのポリシー検査を行う。
func validateNewPassword(newPassword, confirmPassword string) error {
	if len(newPassword) < model.MinPasswordLength {
		return model.NewWeakPasswordError()
	}
	if newPassword != confirmPassword {
		return model.NewPasswordMismatchError()
	}
	return nil
}
