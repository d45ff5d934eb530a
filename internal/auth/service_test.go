package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/g2melody/memberauth/internal/metrics"
	"github.com/g2melody/memberauth/internal/model"
	"github.com/g2melody/memberauth/internal/password"
	"github.com/g2melody/memberauth/internal/repository"
)

// --- モック定義 ---

type mockUserRepo struct {
	findByIDFn       func(ctx context.Context, id string) (*model.User, error)
	findByEmailFn    func(ctx context.Context, email string) (*model.User, error)
	createFn         func(ctx context.Context, user *model.User) error
	updatePasswordFn func(ctx context.Context, userID, passwordHash string) error
	promoteFn        func(ctx context.Context, userID, vocalPart string) error
	listByRolesFn    func(ctx context.Context, roles ...model.Role) ([]*model.User, error)
	deleteByIDFn     func(ctx context.Context, id string) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}

func (m *mockUserRepo) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	if m.updatePasswordFn != nil {
		return m.updatePasswordFn(ctx, userID, passwordHash)
	}
	return nil
}

func (m *mockUserRepo) Promote(ctx context.Context, userID, vocalPart string) error {
	if m.promoteFn != nil {
		return m.promoteFn(ctx, userID, vocalPart)
	}
	return nil
}

func (m *mockUserRepo) ListByRoles(ctx context.Context, roles ...model.Role) ([]*model.User, error) {
	if m.listByRolesFn != nil {
		return m.listByRolesFn(ctx, roles...)
	}
	return nil, nil
}

func (m *mockUserRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

type mockSessionRepo struct {
	createFn         func(ctx context.Context, session *model.Session) error
	findByIDFn       func(ctx context.Context, id string) (*model.Session, error)
	deleteByIDFn     func(ctx context.Context, id string) error
	deleteByUserIDFn func(ctx context.Context, userID string) error
	deleteExpiredFn  func(ctx context.Context) (int64, error)
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if m.createFn != nil {
		return m.createFn(ctx, session)
	}
	return nil
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

func (m *mockSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	if m.deleteByUserIDFn != nil {
		return m.deleteByUserIDFn(ctx, userID)
	}
	return nil
}

func (m *mockSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	if m.deleteExpiredFn != nil {
		return m.deleteExpiredFn(ctx)
	}
	return 0, nil
}

type mockResetTokenRepo struct {
	replaceFn          func(ctx context.Context, token *model.ResetToken) error
	consumeAndRotateFn func(ctx context.Context, token, passwordHash string) error
	deleteExpiredFn    func(ctx context.Context) (int64, error)
}

func (m *mockResetTokenRepo) Replace(ctx context.Context, token *model.ResetToken) error {
	if m.replaceFn != nil {
		return m.replaceFn(ctx, token)
	}
	return nil
}

func (m *mockResetTokenRepo) ConsumeAndRotate(ctx context.Context, token, passwordHash string) error {
	if m.consumeAndRotateFn != nil {
		return m.consumeAndRotateFn(ctx, token, passwordHash)
	}
	return nil
}

func (m *mockResetTokenRepo) DeleteExpired(ctx context.Context) (int64, error) {
	if m.deleteExpiredFn != nil {
		return m.deleteExpiredFn(ctx)
	}
	return 0, nil
}

type mockMailer struct {
	sendPasswordResetFn func(ctx context.Context, email, resetURL string) error
}

func (m *mockMailer) SendPasswordReset(ctx context.Context, email, resetURL string) error {
	if m.sendPasswordResetFn != nil {
		return m.sendPasswordResetFn(ctx, email, resetURL)
	}
	return nil
}

// --- compile-time interface checks ---
var _ repository.UserRepository = (*mockUserRepo)(nil)
var _ repository.SessionRepository = (*mockSessionRepo)(nil)
var _ repository.ResetTokenRepository = (*mockResetTokenRepo)(nil)

// --- テストヘルパー ---

func newTestHasher(t *testing.T) *password.Hasher {
	t.Helper()
	h, err := password.NewHasher(password.Params{
		Memory:      1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	})
	if err != nil {
		t.Fatalf("NewHasher() error = %v", err)
	}
	return h
}

func mustHash(t *testing.T, h *password.Hasher, plaintext string) string {
	t.Helper()
	hash, err := h.Hash(plaintext)
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	return hash
}

func newTestService(t *testing.T, users *mockUserRepo, sessions *mockSessionRepo, tokens *mockResetTokenRepo, m *mockMailer) *Service {
	t.Helper()
	if users == nil {
		users = &mockUserRepo{}
	}
	if sessions == nil {
		sessions = &mockSessionRepo{}
	}
	if tokens == nil {
		tokens = &mockResetTokenRepo{}
	}
	if m == nil {
		m = &mockMailer{}
	}
	return NewService(users, sessions, tokens, newTestHasher(t), m, metrics.NopCollector{}, ServiceConfig{
		SessionMaxAge: 86400,
		ResetTokenTTL: time.Hour,
		BaseURL:       "https://example.com",
	})
}

func assertAPIErrorCode(t *testing.T, err error, wantCode string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T: %v", err, err)
	}
	if apiErr.Code != wantCode {
		t.Errorf("error code = %q, want %q", apiErr.Code, wantCode)
	}
}

// --- テスト ---

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Alice@Example.COM", "alice@example.com"},
		{"  bob@example.com  ", "bob@example.com"},
		{"carol@example.com", "carol@example.com"},
	}

	for _, tt := range tests {
		if got := NormalizeEmail(tt.in); got != tt.want {
			t.Errorf("NormalizeEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAuthenticate_Success(t *testing.T) {
	ctx := context.Background()
	hasher := newTestHasher(t)
	hash := mustHash(t, hasher, "correct-password")

	users := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			if email != "alice@example.com" {
				t.Errorf("FindByEmail received %q, want normalized address", email)
			}
			return &model.User{ID: "user-1", Email: email, PasswordHash: hash, Role: model.RoleUser}, nil
		},
	}
	svc := newTestService(t, users, nil, nil, nil)
	svc.hasher = hasher

	user, err := svc.Authenticate(ctx, "Alice@Example.COM", "correct-password")
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if user.ID != "user-1" {
		t.Errorf("user.ID = %q, want %q", user.ID, "user-1")
	}
}

func TestAuthenticate_WrongPassword_ReturnsInvalidCredentials(t *testing.T) {
	ctx := context.Background()
	hasher := newTestHasher(t)
	hash := mustHash(t, hasher, "correct-password")

	users := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{ID: "user-1", PasswordHash: hash, Role: model.RoleUser}, nil
		},
	}
	svc := newTestService(t, users, nil, nil, nil)
	svc.hasher = hasher

	_, err := svc.Authenticate(ctx, "alice@example.com", "wrong-password")
	assertAPIErrorCode(t, err, model.ErrCodeInvalidCredentials)
}

func TestAuthenticate_UnknownEmail_ReturnsSameError(t *testing.T) {
	ctx := context.Background()

	users := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return nil, nil
		},
	}
	svc := newTestService(t, users, nil, nil, nil)

	// 存在しないアカウントでもパスワード誤りと同一のエラーコードを返すこと
	_, err := svc.Authenticate(ctx, "nobody@example.com", "any-password")
	assertAPIErrorCode(t, err, model.ErrCodeInvalidCredentials)
}

// spyHasher はVerifyDummyの実行回数を記録するハッシュ実装。
type spyHasher struct {
	*password.Hasher
	dummyCalls int
}

func (s *spyHasher) VerifyDummy(plaintext string) bool {
	s.dummyCalls++
	return s.Hasher.VerifyDummy(plaintext)
}

func TestAuthenticate_UnknownEmail_RunsDummyVerify(t *testing.T) {
	ctx := context.Background()
	spy := &spyHasher{Hasher: newTestHasher(t)}

	users := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return nil, nil
		},
	}
	svc := newTestService(t, users, nil, nil, nil)
	svc.hasher = spy

	// アカウントが存在しない場合でもダミーハッシュ比較を必ず実行し、
	// レスポンス時間からアカウントの有無を推測されないようにすること
	_, err := svc.Authenticate(ctx, "nobody@example.com", "any-password")
	assertAPIErrorCode(t, err, model.ErrCodeInvalidCredentials)
	if spy.dummyCalls != 1 {
		t.Errorf("VerifyDummy call count = %d, want 1", spy.dummyCalls)
	}
}

func TestAuthenticate_KnownEmail_SkipsDummyVerify(t *testing.T) {
	ctx := context.Background()
	spy := &spyHasher{Hasher: newTestHasher(t)}
	hash := mustHash(t, spy.Hasher, "correct-password")

	users := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{ID: "user-1", PasswordHash: hash, Role: model.RoleUser}, nil
		},
	}
	svc := newTestService(t, users, nil, nil, nil)
	svc.hasher = spy

	// 実在アカウントでは本物のハッシュ比較だけが走る
	_, err := svc.Authenticate(ctx, "alice@example.com", "wrong-password")
	assertAPIErrorCode(t, err, model.ErrCodeInvalidCredentials)
	if spy.dummyCalls != 0 {
		t.Errorf("VerifyDummy call count = %d, want 0", spy.dummyCalls)
	}
}

func TestAuthenticate_StoreError_IsNotCredentialError(t *testing.T) {
	ctx := context.Background()

	users := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return nil, errors.New("connection refused")
		},
	}
	svc := newTestService(t, users, nil, nil, nil)

	_, err := svc.Authenticate(ctx, "alice@example.com", "password")
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		t.Errorf("store error should not be mapped to APIError at service layer, got %v", apiErr)
	}
}

func TestLogin_CreatesSession(t *testing.T) {
	ctx := context.Background()
	hasher := newTestHasher(t)
	hash := mustHash(t, hasher, "password123")

	var created *model.Session
	users := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{ID: "user-1", PasswordHash: hash, Role: model.RoleUser}, nil
		},
	}
	sessions := &mockSessionRepo{
		createFn: func(ctx context.Context, session *model.Session) error {
			created = session
			return nil
		},
	}
	svc := newTestService(t, users, sessions, nil, nil)
	svc.hasher = hasher

	session, user, err := svc.Login(ctx, TierUser, "alice@example.com", "password123")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if user.ID != "user-1" {
		t.Errorf("user.ID = %q, want %q", user.ID, "user-1")
	}
	if created == nil {
		t.Fatal("session should be persisted")
	}
	if len(session.ID) != 64 {
		t.Errorf("session ID length = %d, want 64 hex chars", len(session.ID))
	}
	if session.UserID != "user-1" {
		t.Errorf("session.UserID = %q, want %q", session.UserID, "user-1")
	}

	wantExpiry := time.Now().Add(86400 * time.Second)
	if session.ExpiresAt.Before(wantExpiry.Add(-time.Minute)) || session.ExpiresAt.After(wantExpiry.Add(time.Minute)) {
		t.Errorf("session.ExpiresAt = %v, want ~%v", session.ExpiresAt, wantExpiry)
	}
}

func TestLogin_TierGating(t *testing.T) {
	tests := []struct {
		name        string
		tier        Tier
		role        model.Role
		wantSession bool
	}{
		{"user tier admits USER", TierUser, model.RoleUser, true},
		{"user tier admits MEMBER", TierUser, model.RoleMember, true},
		{"user tier admits ADMIN", TierUser, model.RoleAdmin, true},
		{"member tier rejects USER", TierMember, model.RoleUser, false},
		{"member tier admits MEMBER", TierMember, model.RoleMember, true},
		{"member tier admits ADMIN", TierMember, model.RoleAdmin, true},
		{"admin tier rejects USER", TierAdmin, model.RoleUser, false},
		{"admin tier rejects MEMBER", TierAdmin, model.RoleMember, false},
		{"admin tier admits ADMIN", TierAdmin, model.RoleAdmin, true},
	}

	hasher := newTestHasher(t)
	hash := mustHash(t, hasher, "password123")

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()

			sessionCreated := false
			users := &mockUserRepo{
				findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
					return &model.User{ID: "user-1", PasswordHash: hash, Role: tt.role}, nil
				},
			}
			sessions := &mockSessionRepo{
				createFn: func(ctx context.Context, session *model.Session) error {
					sessionCreated = true
					return nil
				},
			}
			svc := newTestService(t, users, sessions, nil, nil)
			svc.hasher = hasher

			session, _, err := svc.Login(ctx, tt.tier, "x@example.com", "password123")

			if tt.wantSession {
				if err != nil {
					t.Fatalf("Login() error = %v", err)
				}
				if session == nil || !sessionCreated {
					t.Error("expected a session to be created")
				}
				return
			}

			// 正しい資格情報でもロール不足ならセッションを作らないこと
			assertAPIErrorCode(t, err, model.ErrCodeAccessDenied)
			if session != nil || sessionCreated {
				t.Error("no session should be created on a role mismatch")
			}
		})
	}
}

func TestLogin_WrongPassword_NeverChecksRole(t *testing.T) {
	ctx := context.Background()
	hasher := newTestHasher(t)
	hash := mustHash(t, hasher, "correct")

	users := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{ID: "admin-1", PasswordHash: hash, Role: model.RoleAdmin}, nil
		},
	}
	svc := newTestService(t, users, nil, nil, nil)
	svc.hasher = hasher

	// 資格情報が誤っている場合はACCESS_DENIEDではなくINVALID_CREDENTIALS
	_, _, err := svc.Login(ctx, TierAdmin, "admin@example.com", "wrong")
	assertAPIErrorCode(t, err, model.ErrCodeInvalidCredentials)
}

func TestTerminateSession_DeletesSession(t *testing.T) {
	ctx := context.Background()

	var deletedID string
	sessions := &mockSessionRepo{
		deleteByIDFn: func(ctx context.Context, id string) error {
			deletedID = id
			return nil
		},
	}
	svc := newTestService(t, nil, sessions, nil, nil)

	if err := svc.TerminateSession(ctx, "session-abc"); err != nil {
		t.Fatalf("TerminateSession() error = %v", err)
	}
	if deletedID != "session-abc" {
		t.Errorf("deleted session = %q, want %q", deletedID, "session-abc")
	}
}

func TestTerminateSession_EmptyID_ReturnsError(t *testing.T) {
	svc := newTestService(t, nil, nil, nil, nil)

	if err := svc.TerminateSession(context.Background(), ""); err == nil {
		t.Error("expected error for empty session ID")
	}
}

func TestCurrentUser_RefetchesRoleFromStore(t *testing.T) {
	ctx := context.Background()

	users := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			// ロール剥奪後の状態をストアが返す
			return &model.User{ID: id, Role: model.RoleUser}, nil
		},
	}
	sessions := &mockSessionRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			return &model.Session{ID: id, UserID: "user-1", ExpiresAt: time.Now().Add(time.Hour)}, nil
		},
	}
	svc := newTestService(t, users, sessions, nil, nil)

	user, err := svc.CurrentUser(ctx, "session-abc")
	if err != nil {
		t.Fatalf("CurrentUser() error = %v", err)
	}
	// セッション確立時のロールではなく、ストアの現在値が返ること
	if user.Role != model.RoleUser {
		t.Errorf("user.Role = %q, want current store value %q", user.Role, model.RoleUser)
	}
}

func TestCurrentUser_NoSession_ReturnsUnauthorized(t *testing.T) {
	ctx := context.Background()

	sessions := &mockSessionRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			// 期限切れセッションはリポジトリがnilを返す
			return nil, nil
		},
	}
	svc := newTestService(t, nil, sessions, nil, nil)

	_, err := svc.CurrentUser(ctx, "expired-session")
	assertAPIErrorCode(t, err, model.ErrCodeUnauthorized)
}

func TestCurrentUser_EmptySessionID_ReturnsUnauthorized(t *testing.T) {
	svc := newTestService(t, nil, nil, nil, nil)

	_, err := svc.CurrentUser(context.Background(), "")
	assertAPIErrorCode(t, err, model.ErrCodeUnauthorized)
}

func TestCurrentUser_DeletedUser_ReturnsUserNotFound(t *testing.T) {
	ctx := context.Background()

	users := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return nil, nil
		},
	}
	sessions := &mockSessionRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			return &model.Session{ID: id, UserID: "ghost", ExpiresAt: time.Now().Add(time.Hour)}, nil
		},
	}
	svc := newTestService(t, users, sessions, nil, nil)

	_, err := svc.CurrentUser(ctx, "session-abc")
	assertAPIErrorCode(t, err, model.ErrCodeUserNotFound)
}
