package handler

import (
	"net/http"

	"github.com/g2melody/memberauth/internal/middleware"
	"github.com/g2melody/memberauth/internal/model"
)

// MemberHandler はメンバーエリアのHTTPハンドラー。
type MemberHandler struct{}

// NewMemberHandler はMemberHandlerを生成する。
func NewMemberHandler() *MemberHandler {
	return &MemberHandler{}
}

// Me はメンバーダッシュボード用のプロフィールを返す。
// GET /api/members/me
// 仮パスワードのままのメンバーはパスワード変更を完了するまで
// ダッシュボードにアクセスできない。
func (h *MemberHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	if user.MustChangePassword {
		writeAPIErrorResponse(w, http.StatusForbidden, model.NewPasswordChangeRequiredError())
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
