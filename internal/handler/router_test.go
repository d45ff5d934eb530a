package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/g2melody/memberauth/internal/auth"
	"github.com/g2melody/memberauth/internal/middleware"
	"github.com/g2melody/memberauth/internal/model"
)

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(_ context.Context) error {
	return m.err
}

var _ HealthChecker = (*mockHealthChecker)(nil)

type routerFixture struct {
	router      http.Handler
	authService *mockAuthService
	provider    *mockRouterUserProvider
	health      *mockHealthChecker
	rateLimiter *middleware.RateLimiter
}

type mockRouterUserProvider struct {
	currentUserFn func(ctx context.Context, sessionID string) (*model.User, error)
}

func (m *mockRouterUserProvider) CurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if m.currentUserFn != nil {
		return m.currentUserFn(ctx, sessionID)
	}
	return nil, model.NewUnauthorizedError()
}

var _ middleware.UserProvider = (*mockRouterUserProvider)(nil)

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()

	f := &routerFixture{
		authService: &mockAuthService{},
		provider:    &mockRouterUserProvider{},
		health:      &mockHealthChecker{},
	}
	f.rateLimiter = middleware.NewRateLimiter(middleware.RateLimiterConfig{
		GeneralRate:     rate.Limit(1000),
		GeneralBurst:    1000,
		LoginRate:       rate.Limit(1000),
		LoginBurst:      1000,
		CleanupInterval: time.Hour,
	})
	t.Cleanup(f.rateLimiter.Stop)

	f.router = NewRouter(&RouterDeps{
		HealthChecker:     f.health,
		Gatherer:          prometheus.NewRegistry(),
		UserProvider:      f.provider,
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       f.rateLimiter,
		CSRFConfig:        middleware.CSRFConfig{},
		AuthService:       f.authService,
		AccountService:    &mockAccountService{},
		UserService:       &mockUserService{},
		AuthConfig:        AuthHandlerConfig{SessionMaxAge: 86400},
	})

	return f
}

// withCSRF は状態変更リクエストにCSRFトークンのCookieとヘッダーを付与する。
func withCSRF(req *http.Request) *http.Request {
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "test-csrf-token"})
	req.Header.Set("X-CSRF-Token", "test-csrf-token")
	return req
}

func TestRouter_HealthEndpoint(t *testing.T) {
	f := newRouterFixture(t)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestRouter_HealthEndpoint_StoreDown_Returns503(t *testing.T) {
	f := newRouterFixture(t)
	f.health.err = errors.New("connection refused")

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	f := newRouterFixture(t)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestRouter_CSRFTokenEndpoint(t *testing.T) {
	f := newRouterFixture(t)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), "csrf_token") {
		t.Error("response should contain a csrf_token")
	}
}

func TestRouter_StateChangingRoutesRequireCSRFToken(t *testing.T) {
	f := newRouterFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"email":"a@example.com","password":"password123"}`))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d (CSRF rejection)", rec.Code, http.StatusForbidden)
	}
}

func TestRouter_LoginFlow(t *testing.T) {
	f := newRouterFixture(t)
	f.authService.loginFn = func(ctx context.Context, tier auth.Tier, email, plaintext string) (*model.Session, *model.User, error) {
		if tier != auth.TierUser {
			t.Errorf("tier = %q, want %q", tier, auth.TierUser)
		}
		return &model.Session{ID: "session-123"}, &model.User{ID: "u-1", Role: model.RoleUser}, nil
	}

	req := withCSRF(httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"email":"a@example.com","password":"password123"}`)))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body: %s)", rec.Code, http.StatusOK, rec.Body.String())
	}

	foundSession := false
	for _, c := range rec.Result().Cookies() {
		if c.Name == middleware.SessionCookieName && c.Value == "session-123" {
			foundSession = true
		}
	}
	if !foundSession {
		t.Error("login should set the session cookie")
	}
}

func TestRouter_TierLoginRoutes(t *testing.T) {
	tests := []struct {
		path     string
		wantTier auth.Tier
	}{
		{"/api/auth/login", auth.TierUser},
		{"/api/members/login", auth.TierMember},
		{"/api/admin/login", auth.TierAdmin},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			f := newRouterFixture(t)

			var gotTier auth.Tier
			f.authService.loginFn = func(ctx context.Context, tier auth.Tier, email, plaintext string) (*model.Session, *model.User, error) {
				gotTier = tier
				return &model.Session{ID: "s"}, &model.User{ID: "u", Role: model.RoleAdmin}, nil
			}

			req := withCSRF(httptest.NewRequest(http.MethodPost, tt.path,
				strings.NewReader(`{"email":"a@example.com","password":"password123"}`)))
			f.router.ServeHTTP(httptest.NewRecorder(), req)

			if gotTier != tt.wantTier {
				t.Errorf("tier = %q, want %q", gotTier, tt.wantTier)
			}
		})
	}
}

func TestRouter_MemberRoutesRequireSession(t *testing.T) {
	f := newRouterFixture(t)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/members/me", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRouter_MemberRoutesRejectUserRole(t *testing.T) {
	f := newRouterFixture(t)
	f.provider.currentUserFn = func(ctx context.Context, sessionID string) (*model.User, error) {
		return &model.User{ID: "u-1", Role: model.RoleUser}, nil
	}

	req := httptest.NewRequest(http.MethodGet, "/api/members/me", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "session-123"})
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func TestRouter_MemberRoutesAdmitAdminRole(t *testing.T) {
	f := newRouterFixture(t)
	f.provider.currentUserFn = func(ctx context.Context, sessionID string) (*model.User, error) {
		return &model.User{ID: "a-1", Role: model.RoleAdmin}, nil
	}

	req := httptest.NewRequest(http.MethodGet, "/api/members/me", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "session-123"})
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestRouter_AdminRoutesRejectMemberRole(t *testing.T) {
	f := newRouterFixture(t)
	f.provider.currentUserFn = func(ctx context.Context, sessionID string) (*model.User, error) {
		return &model.User{ID: "m-1", Role: model.RoleMember}, nil
	}

	req := httptest.NewRequest(http.MethodGet, "/api/admin/members", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "session-123"})
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	// メンバーエリアにアクセスできても管理エリアには入れないこと
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func TestRouter_AdminRoutesAdmitAdminRole(t *testing.T) {
	f := newRouterFixture(t)
	f.provider.currentUserFn = func(ctx context.Context, sessionID string) (*model.User, error) {
		return &model.User{ID: "a-1", Role: model.RoleAdmin}, nil
	}

	req := httptest.NewRequest(http.MethodGet, "/api/admin/members", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "session-123"})
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestRouter_SecurityHeadersApplied(t *testing.T) {
	f := newRouterFixture(t)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q, want configured origin", got)
	}
}
