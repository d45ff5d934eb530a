package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/g2melody/memberauth/internal/model"
)

// PostgresResetTokenRepo はPostgreSQLを使用したパスワード再設定トークンリポジトリ。
type PostgresResetTokenRepo struct {
	db *sql.DB
}

// NewPostgresResetTokenRepo はPostgresResetTokenRepoを生成する。
func NewPostgresResetTokenRepo(db *sql.DB) *PostgresResetTokenRepo {
	return &PostgresResetTokenRepo{db: db}
}

// Replace は同一メールアドレスの既存トークンを全て削除した上で
// 新しいトークンを保存する。削除と挿入は同一トランザクションで行う。
func (r *PostgresResetTokenRepo) Replace(ctx context.Context, token *model.ResetToken) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 既存トークンを無効化（有効なトークンは常に1件以下）
	_, err = tx.ExecContext(ctx,
		`DELETE FROM password_reset_tokens WHERE email = lower($1)`,
		token.Email,
	)
	if err != nil {
		return fmt.Errorf("failed to delete prior reset tokens: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO password_reset_tokens (id, email, token, expires_at, created_at)
		 VALUES ($1, lower($2), $3, $4, $5)`,
		token.ID, token.Email, token.Token, token.ExpiresAt, token.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert reset token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ConsumeAndRotate はトークンを消費してパスワードを更新する。
// トークン行の削除・兄弟トークンの削除・パスワード更新を
// 単一トランザクションで実行する。
//
// トークン行のDELETE ... RETURNINGにより、同一トークンを並行して
// 消費しようとした場合でも行を取得できるのは1トランザクションだけであり、
// 2回目以降の消費はTOKEN_NOT_FOUNDになる。
func (r *PostgresResetTokenRepo) ConsumeAndRotate(ctx context.Context, token, passwordHash string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var email string
	var expiresAt time.Time
	err = tx.QueryRowContext(ctx,
		`DELETE FROM password_reset_tokens WHERE token = $1
		 RETURNING email, expires_at`,
		token,
	).Scan(&email, &expiresAt)

	if err == sql.ErrNoRows {
		return model.NewTokenNotFoundError()
	}
	if err != nil {
		return fmt.Errorf("failed to consume reset token: %w", err)
	}

	// 期限切れトークンは削除だけをコミットし、パスワードは変更しない
	if time.Now().After(expiresAt) {
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit expired token purge: %w", err)
		}
		return model.NewTokenExpiredError()
	}

	// 同一メールアドレスの兄弟トークンも全て無効化する
	_, err = tx.ExecContext(ctx,
		`DELETE FROM password_reset_tokens WHERE email = $1`,
		email,
	)
	if err != nil {
		return fmt.Errorf("failed to delete sibling reset tokens: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE users
		 SET password_hash = $2, must_change_password = false, updated_at = now()
		 WHERE email = $1`,
		email, passwordHash,
	)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		// パスワードを更新できない場合はトークンの消費もロールバックする
		return model.NewUserNotFoundError()
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// DeleteExpired は期限切れトークンを削除し、削除件数を返す。
func (r *PostgresResetTokenRepo) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM password_reset_tokens WHERE expires_at <= now()`,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired reset tokens: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}

// compile-time interface check
var _ ResetTokenRepository = (*PostgresResetTokenRepo)(nil)
