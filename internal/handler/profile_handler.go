package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/tsudoi/internal/middleware"
	"github.com/hitoshi/tsudoi/internal/model"
	"github.com/hitoshi/tsudoi/internal/profile"
)

// ProfileServiceInterface は設定ハンドラーが必要とするサービスインターフェース。
type ProfileServiceInterface interface {
	Get(ctx context.Context, userID string) (*profile.View, error)
	UpdateDisplayName(ctx context.Context, userID, displayName, currentPassword string) error
	UpdateInterests(ctx context.Context, userID string, interests []model.Category) error
	UpdateAvatar(ctx context.Context, userID, avatarURL string) error
	ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error
}

// ProfileHandler はユーザー設定のHTTPハンドラー。
type ProfileHandler struct {
	service ProfileServiceInterface
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(service ProfileServiceInterface) *ProfileHandler {
	return &ProfileHandler{
		service: service,
	}
}

// profileResponse はプロフィール設定のAPIレスポンス。
type profileResponse struct {
	UserID      string   `json:"user_id"`
	Email       string   `json:"email"`
	DisplayName string   `json:"display_name"`
	AvatarURL   *string  `json:"avatar_url,omitempty"`
	Interests   []string `json:"interests"`
}

// displayNameRequest は表示名更新リクエストのボディ。
// なりすまし防止のため現在のパスワードを要求する。
type displayNameRequest struct {
	DisplayName     string `json:"display_name"`
	CurrentPassword string `json:"current_password"`
}

// interestsRequest は興味カテゴリ更新リクエストのボディ。
type interestsRequest struct {
	Interests []string `json:"interests"`
}

// avatarRequest はアバター更新リクエストのボディ。
type avatarRequest struct {
	ImageURL string `json:"image_url"`
}

// passwordChangeRequest はパスワード変更リクエストのボディ。
type passwordChangeRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// GetProfile はプロフィール設定を返す。
// GET /api/settings/profile
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorizedResponse(w)
		return
	}

	view, err := h.service.Get(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	interests := make([]string, len(view.Interests))
	for i, c := range view.Interests {
		interests[i] = string(c)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(profileResponse{
		UserID:      view.UserID,
		Email:       view.Email,
		DisplayName: view.DisplayName,
		AvatarURL:   view.AvatarURL,
		Interests:   interests,
	})
}

// UpdateDisplayName は表示名を更新する。
// PUT /api/settings/profile
func (h *ProfileHandler) UpdateDisplayName(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorizedResponse(w)
		return
	}

	var req displayNameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestResponse(w)
		return
	}

	if err := h.service.UpdateDisplayName(r.Context(), userID, req.DisplayName, req.CurrentPassword); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UpdateInterests は興味カテゴリを更新する。
// PUT /api/settings/interests
func (h *ProfileHandler) UpdateInterests(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorizedResponse(w)
		return
	}

	var req interestsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestResponse(w)
		return
	}

	interests := make([]model.Category, len(req.Interests))
	for i, c := range req.Interests {
		interests[i] = model.Category(c)
	}

	if err := h.service.UpdateInterests(r.Context(), userID, interests); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UpdateAvatar は指定URLの画像をアバターとして設定する。
// PUT /api/settings/avatar
func (h *ProfileHandler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorizedResponse(w)
		return
	}

	var req avatarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestResponse(w)
		return
	}

	if err := h.service.UpdateAvatar(r.Context(), userID, req.ImageURL); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ChangePassword はIdP上のパスワードを変更する。
// POST /api/settings/password
func (h *ProfileHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorizedResponse(w)
		return
	}

	var req passwordChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestResponse(w)
		return
	}
	if req.NewPassword == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     model.ErrCodePasswordPolicy,
			Message:  "新しいパスワードが空です。",
			Category: "validation",
			Action:   "新しいパスワードを入力してください。",
		})
		return
	}

	if err := h.service.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
