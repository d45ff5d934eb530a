// Package cleanup は期限切れレコードの自動削除ジョブを提供する。
// 期限切れの再設定トークンは消費時にも遅延削除されるため、
// このジョブは意味論に影響しないストレージ最適化にすぎない。
package cleanup

import (
	"context"
	"log/slog"
	"time"
)

// ExpiredDeleter は期限切れレコードの削除インターフェース。
// SessionRepositoryとResetTokenRepositoryの部分集合。
type ExpiredDeleter interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// CleanupJob は期限切れセッションと再設定トークンの自動削除ジョブ。
// 定期実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	sessions    ExpiredDeleter
	resetTokens ExpiredDeleter
	logger      *slog.Logger
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(sessions, resetTokens ExpiredDeleter, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		sessions:    sessions,
		resetTokens: resetTokens,
		logger:      logger,
	}
}

// Run は期限切れレコードを1回分削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	expiredSessions, err := j.sessions.DeleteExpired(ctx)
	if err != nil {
		j.logger.Error("failed to purge expired sessions",
			slog.String("error", err.Error()),
		)
		return err
	}

	expiredTokens, err := j.resetTokens.DeleteExpired(ctx)
	if err != nil {
		j.logger.Error("failed to purge expired reset tokens",
			slog.String("error", err.Error()),
		)
		return err
	}

	j.logger.Info("cleanup job completed",
		slog.Int64("expired_sessions", expiredSessions),
		slog.Int64("expired_reset_tokens", expiredTokens),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}

// RunPeriodically は指定間隔でRunを繰り返し実行する。
// コンテキストのキャンセルで停止する。
func (j *CleanupJob) RunPeriodically(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				// 次回の実行で回復を試みる
				continue
			}
		case <-ctx.Done():
			return
		}
	}
}
