package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/g2melody/memberauth/internal/auth"
	"github.com/g2melody/memberauth/internal/metrics"
	"github.com/g2melody/memberauth/internal/middleware"
	"github.com/g2melody/memberauth/internal/model"
)

// HealthChecker はヘルスチェックに必要なインターフェース。
// *sql.DBがそのまま満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// インフラ
	HealthChecker HealthChecker
	Gatherer      prometheus.Gatherer

	// ミドルウェア依存
	UserProvider      middleware.UserProvider
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig

	// サービス
	AuthService    AuthServiceInterface
	AccountService AccountServiceInterface
	UserService    UserServiceInterface
	AuthConfig     AuthHandlerConfig
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → [CSRF → (Session → RateLimit)]
//
// 認証エンドポイント（ログイン・登録・再設定）はセッション不要だが、
// ブルートフォース対策としてIP単位のレート制限を通す。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(slog.Default()))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	memberHandler := NewMemberHandler()
	adminHandler := NewAdminHandler(deps.AccountService)
	userHandler := NewUserHandler(deps.UserService)

	// --- 運用エンドポイント（CSRF・セッション不要） ---

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := deps.HealthChecker.PingContext(r.Context()); err != nil {
			writeAPIErrorResponse(w, http.StatusServiceUnavailable, model.NewStoreUnavailableError())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- APIルート ---

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

		// --- 未認証ルート（IP単位レート制限） ---
		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.LoginMiddleware())

			r.Post("/api/auth/register", userHandler.Register)
			r.Post("/api/auth/login", authHandler.Login(auth.TierUser))
			r.Post("/api/members/login", authHandler.Login(auth.TierMember))
			r.Post("/api/admin/login", authHandler.Login(auth.TierAdmin))
			r.Post("/api/auth/forgot-password", authHandler.ForgotPassword)
			r.Post("/api/auth/reset-password", authHandler.ResetPassword)
		})

		// ログアウトと現在ユーザー取得はCookieを自前で読むため
		// セッションミドルウェアの外に置く
		r.Post("/api/auth/logout", authHandler.Logout)
		r.Get("/api/auth/me", authHandler.Me)

		// --- 認証が必要なルート ---
		// ミドルウェアスタック: Session → RateLimit(General)
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewSessionMiddleware(deps.UserProvider))
			r.Use(deps.RateLimiter.GeneralMiddleware())

			// メンバーエリア
			r.Route("/api/members", func(r chi.Router) {
				r.Use(middleware.RequireRole(model.RoleMember, model.RoleAdmin))

				// パスワード変更は強制変更フロー中のメンバーにも許可する
				r.Post("/change-password", authHandler.ChangePassword)
				r.Get("/me", memberHandler.Me)
			})

			// 管理エリア
			r.Route("/api/admin", func(r chi.Router) {
				r.Use(middleware.RequireRole(model.RoleAdmin))

				r.Get("/members", adminHandler.ListMembers)
				r.Post("/members", adminHandler.ProvisionMember)
			})

			// アカウント管理
			r.Route("/api/users", func(r chi.Router) {
				r.Delete("/me", userHandler.Withdraw)
			})
		})
	})

	return r
}
