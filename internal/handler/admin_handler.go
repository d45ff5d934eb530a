package handler

import (
	"context"
	"net/http"

	"github.com/g2melody/memberauth/internal/model"
)

// AccountServiceInterface はアカウント管理ハンドラーが必要とするサービスインターフェース。
type AccountServiceInterface interface {
	// Register は一般ユーザーを新規登録する。
	Register(ctx context.Context, email, plaintext, confirmPassword, name string) (*model.User, error)
	// Provision は管理者によるメンバー登用を処理する。
	Provision(ctx context.Context, email, name, vocalPart, tempPassword string) (*model.User, error)
	// ListMembers はメンバーと管理者の一覧を返す。
	ListMembers(ctx context.Context) ([]*model.User, error)
}

// AdminHandler は管理エリアのHTTPハンドラー。
// 全エンドポイントはADMINロールのミドルウェアゲートの内側に配置される。
type AdminHandler struct {
	accounts AccountServiceInterface
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(accounts AccountServiceInterface) *AdminHandler {
	return &AdminHandler{accounts: accounts}
}

// memberListItem はメンバー一覧の1件分のJSON表現。
type memberListItem struct {
	ID                 string `json:"id"`
	Email              string `json:"email"`
	Name               string `json:"name"`
	Role               string `json:"role"`
	VocalPart          string `json:"vocalPart,omitempty"`
	MustChangePassword bool   `json:"mustChangePassword"`
}

// ListMembers はメンバーと管理者の一覧を返す。
// GET /api/admin/members
func (h *AdminHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.accounts.ListMembers(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	items := make([]memberListItem, 0, len(members))
	for _, member := range members {
		items = append(items, memberListItem{
			ID:                 member.ID,
			Email:              member.Email,
			Name:               member.Name,
			Role:               string(member.Role),
			VocalPart:          member.VocalPart,
			MustChangePassword: member.MustChangePassword,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"members": items})
}

// ProvisionMember はメンバーを登用する。
// POST /api/admin/members
// パスワード未指定の場合は仮パスワードで作成され、
// 初回ログイン時に変更が強制される。
func (h *AdminHandler) ProvisionMember(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email     string `json:"email"`
		Name      string `json:"name"`
		VocalPart string `json:"vocalPart"`
		Password  string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "Email is required.",
			Category: "validation",
			Action:   "Enter the member's email address.",
		})
		return
	}

	member, err := h.accounts.Provision(r.Context(), req.Email, req.Name, req.VocalPart, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, memberListItem{
		ID:                 member.ID,
		Email:              member.Email,
		Name:               member.Name,
		Role:               string(member.Role),
		VocalPart:          member.VocalPart,
		MustChangePassword: member.MustChangePassword,
	})
}
