package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/g2melody/memberauth/internal/middleware"
	"github.com/g2melody/memberauth/internal/model"
)

func TestMemberMe_ReturnsProfile(t *testing.T) {
	h := NewMemberHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/members/me", nil)
	ctx := middleware.ContextWithUser(req.Context(), &model.User{
		ID:        "m-1",
		Email:     "m@example.com",
		Name:      "Member",
		Role:      model.RoleMember,
		VocalPart: "soprano",
	})
	rec := httptest.NewRecorder()
	h.Me(rec, req.WithContext(ctx))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body userResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.ID != "m-1" || body.VocalPart != "soprano" {
		t.Errorf("body = %+v, want member profile", body)
	}
}

func TestMemberMe_MustChangePassword_Returns403(t *testing.T) {
	h := NewMemberHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/members/me", nil)
	ctx := middleware.ContextWithUser(req.Context(), &model.User{
		ID:                 "m-1",
		Role:               model.RoleMember,
		MustChangePassword: true,
	})
	rec := httptest.NewRecorder()
	h.Me(rec, req.WithContext(ctx))

	// 仮パスワードのままのメンバーはダッシュボードにアクセスできない
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
	body := decodeErrorBody(t, rec)
	if body.Code != model.ErrCodePasswordChangeRequired {
		t.Errorf("error code = %q, want %q", body.Code, model.ErrCodePasswordChangeRequired)
	}
}

func TestMemberMe_WithoutSession_Returns401(t *testing.T) {
	h := NewMemberHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/members/me", nil)
	rec := httptest.NewRecorder()
	h.Me(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}
