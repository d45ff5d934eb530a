package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/g2melody/memberauth/internal/auth"
	"github.com/g2melody/memberauth/internal/middleware"
	"github.com/g2melody/memberauth/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Login(ctx context.Context, tier auth.Tier, email, plaintext string) (*model.Session, *model.User, error)
	TerminateSession(ctx context.Context, sessionID string) error
	CurrentUser(ctx context.Context, sessionID string) (*model.User, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword, confirmPassword string) error
	ChangePassword(ctx context.Context, userID, currentPassword, newPassword, confirmPassword string) error
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler は認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

// loginRequest はログインリクエストのJSON表現。
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// userResponse はユーザー情報レスポンスのJSON表現。
type userResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	VocalPart string `json:"vocalPart,omitempty"`
}

// Login は指定エントリポイントのログインハンドラーを返す。
// POST /api/auth/login（user） / POST /api/members/login（member） /
// POST /api/admin/login（admin）
// member階層のレスポンスにはmustChangePasswordを含め、
// 呼び出し側が強制変更フローへ誘導できるようにする。
func (h *AuthHandler) Login(tier auth.Tier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Email == "" || req.Password == "" {
			writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewInvalidCredentialsError())
			return
		}

		session, user, err := h.service.Login(r.Context(), tier, req.Email, req.Password)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		h.setSessionCookie(w, session.ID)

		body := map[string]any{
			"id":    user.ID,
			"email": user.Email,
			"name":  user.Name,
			"role":  string(user.Role),
		}
		if tier == auth.TierMember {
			body["mustChangePassword"] = user.MustChangePassword
		}
		writeJSON(w, http.StatusOK, body)
	}
}

// Logout はセッションを明示的に破棄する。
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.SessionCookieName)
	if err == nil && cookie.Value != "" {
		// セッションをDBから削除
		if termErr := h.service.TerminateSession(r.Context(), cookie.Value); termErr != nil {
			slog.Error("failed to terminate session", slog.String("error", termErr.Error()))
			// 破棄に失敗してもCookieはクリアする
		}
	}

	h.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// Me は現在のログインユーザー情報を返す。
// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.SessionCookieName)
	if err != nil || cookie.Value == "" {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	user, err := h.service.CurrentUser(r.Context(), cookie.Value)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, userResponse{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Role:      string(user.Role),
		VocalPart: user.VocalPart,
	})
}

// ForgotPassword はパスワード再設定トークンの発行を受け付ける。
// POST /api/auth/forgot-password
// アカウントの存在有無にかかわらず同一の成功レスポンスを返す
// （メールアドレス列挙への対策）。
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "Email is required.",
			Category: "validation",
			Action:   "Enter your email address.",
		})
		return
	}

	if err := h.service.RequestPasswordReset(r.Context(), req.Email); err != nil {
		// インフラ障害のみここに到達する。存在有無は漏れない。
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "If an account with this email exists, a password reset link has been sent.",
	})
}

// ResetPassword は再設定トークンを消費してパスワードを更新する。
// POST /api/auth/reset-password
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token           string `json:"token"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirmPassword"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Token == "" || req.Password == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "Token and password are required.",
			Category: "validation",
			Action:   "Use the link from the reset email and enter a new password.",
		})
		return
	}

	if err := h.service.ResetPassword(r.Context(), req.Token, req.Password, req.ConfirmPassword); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Password has been reset successfully.",
	})
}

// ChangePassword は認証済みユーザーのパスワード変更を処理する。
// POST /api/members/change-password
// 現在のパスワードの再検証はサービス層で行う。
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
		ConfirmPassword string `json:"confirmPassword"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.ChangePassword(r.Context(), user.ID, req.CurrentPassword, req.NewPassword, req.ConfirmPassword); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// setSessionCookie はセッションCookieを設定する（HTTP Only）。
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie はセッションCookieをクリアする。
func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
