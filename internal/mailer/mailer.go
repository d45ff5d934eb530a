// Package mailer はパスワード再設定リンクの帯域外配送を抽象化する。
package mailer

import (
	"context"
	"log/slog"
)

// Mailer はメール配送のインターフェース。
// 本番環境ではSendGrid等の外部サービス実装に差し替える。
type Mailer interface {
	// SendPasswordReset は再設定リンクを含むメールを送信する。
	SendPasswordReset(ctx context.Context, email, resetURL string) error
}

// LogMailer は実際のメール送信を行わず、再設定リンクをログに出力する実装。
// メール基盤が未接続の環境（開発・ステージング）向け。
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer はLogMailerを生成する。
func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// SendPasswordReset は再設定リンクをログに出力する。
func (m *LogMailer) SendPasswordReset(_ context.Context, email, resetURL string) error {
	m.logger.Info("password reset email (mocked delivery)",
		slog.String("to", email),
		slog.String("reset_url", resetURL),
	)
	return nil
}

// compile-time interface check
var _ Mailer = (*LogMailer)(nil)
