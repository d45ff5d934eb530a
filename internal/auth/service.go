// Package auth は資格情報の検証、セッション管理、パスワードライフサイクル
// （再設定・強制変更）のビジネスロジックを提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/g2melody/memberauth/internal/mailer"
	"github.com/g2melody/memberauth/internal/metrics"
	"github.com/g2melody/memberauth/internal/model"
	"github.com/g2melody/memberauth/internal/password"
	"github.com/g2melody/memberauth/internal/repository"
)

// Tier はログインのエントリポイント区分を表す。
// エントリポイントはアクセス可能ロールの制約にのみ使い、
// ロール自体は常にusersレコードから読む。
type Tier string

const (
	// TierUser は一般サイトのログインエントリポイント。全ロールが利用できる。
	TierUser Tier = "user"
	// TierMember はメンバーエリアのログインエントリポイント。
	TierMember Tier = "member"
	// TierAdmin は管理エリアのログインエントリポイント。
	TierAdmin Tier = "admin"
)

// allowedRoles はエントリポイントごとにセッション確立を許可するロールを返す。
func (t Tier) allowedRoles() []model.Role {
	switch t {
	case TierAdmin:
		return []model.Role{model.RoleAdmin}
	case TierMember:
		return []model.Role{model.RoleMember, model.RoleAdmin}
	default:
		return []model.Role{model.RoleUser, model.RoleMember, model.RoleAdmin}
	}
}

// passwordHasher はServiceが必要とするハッシュ操作のサブセット。
// 実体は*password.Hasherだが、インターフェースを挟むことで
// テストからダミー比較の実行を観測できる。
type passwordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, encodedHash string) bool
	VerifyDummy(plaintext string) bool
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int           // セッション有効期間（秒）
	ResetTokenTTL time.Duration // 再設定トークンの有効期間
	BaseURL       string        // 再設定リンクの生成に使うサイトURL
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	users       repository.UserRepository
	sessions    repository.SessionRepository
	resetTokens repository.ResetTokenRepository
	hasher      passwordHasher
	mailer      mailer.Mailer
	metrics     metrics.AuthCollector
	config      ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	users repository.UserRepository,
	sessions repository.SessionRepository,
	resetTokens repository.ResetTokenRepository,
	hasher *password.Hasher,
	m mailer.Mailer,
	collector metrics.AuthCollector,
	config ServiceConfig,
) *Service {
	return &Service{
		users:       users,
		sessions:    sessions,
		resetTokens: resetTokens,
		hasher:      hasher,
		mailer:      m,
		metrics:     collector,
		config:      config,
	}
}

// NormalizeEmail はメールアドレスを小文字化し前後の空白を除去する。
// 大文字小文字の違いによるアカウントの分裂を防ぐため、
// 全ての検索・保存はこの正規化を通す。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Authenticate は(メールアドレス, パスワード)の組を検証する。
// アカウントが存在しない場合でも同等コストのダミーハッシュ比較を実行し、
// レスポンス時間からアカウントの有無を推測されないようにする。
// 失敗時はメールアドレスとパスワードのどちらが誤っていたかを区別しない。
func (s *Service) Authenticate(ctx context.Context, email, plaintext string) (*model.User, error) {
	user, err := s.users.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("failed to look up principal: %w", err)
	}

	if user == nil {
		// 実在アカウントの検証と同等のCPU時間を消費させる
		start := time.Now()
		s.hasher.VerifyDummy(plaintext)
		s.metrics.RecordHashLatency(time.Since(start))
		return nil, model.NewInvalidCredentialsError()
	}

	start := time.Now()
	ok := s.hasher.Verify(plaintext, user.PasswordHash)
	s.metrics.RecordHashLatency(time.Since(start))

	if !ok {
		return nil, model.NewInvalidCredentialsError()
	}

	return user, nil
}

// Login は指定エントリポイントでログインを処理し、セッションを確立する。
// 資格情報が正しくてもロールがエントリポイントに許可されていない場合は
// セッションを確立せずACCESS_DENIEDを返す（サイレントな格下げセッションを作らない）。
func (s *Service) Login(ctx context.Context, tier Tier, email, plaintext string) (*model.Session, *model.User, error) {
	user, err := s.Authenticate(ctx, email, plaintext)
	if err != nil {
		s.metrics.RecordLoginFailure(string(tier))
		return nil, nil, err
	}

	if !user.Role.In(tier.allowedRoles()...) {
		s.metrics.RecordLoginFailure(string(tier))
		slog.Warn("login rejected: role not allowed at entry point",
			slog.String("user_id", user.ID),
			slog.String("role", string(user.Role)),
			slog.String("tier", string(tier)),
		)
		return nil, nil, model.NewAccessDeniedError()
	}

	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.metrics.RecordLoginSuccess(string(tier))
	slog.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("tier", string(tier)),
	)

	return session, user, nil
}

// TerminateSession はセッションを明示的に破棄する。
func (s *Service) TerminateSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessions.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("session terminated", slog.String("session_id", sessionID))
	return nil
}

// CurrentUser はセッションIDから現在のユーザーを取得する。
// ロールをセッションにキャッシュせず、チェックのたびにusersレコードから
// 再取得することで、ロール剥奪が次のアクセスチェックで即座に反映される。
func (s *Service) CurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, model.NewUnauthorizedError()
	}

	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, model.NewUnauthorizedError()
	}

	user, err := s.users.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	return user, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSecret()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := time.Now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSecret は256ビットの暗号論的乱数をhexエンコードして返す。
// セッションIDと再設定トークンの両方で使用する。
func generateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// resetURL はトークンを埋め込んだ再設定リンクを組み立てる。
func (s *Service) resetURL(token string) string {
	return strings.TrimRight(s.config.BaseURL, "/") +
		"/reset-password?token=" + url.QueryEscape(token)
}
