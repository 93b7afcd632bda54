package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/tsudoi/internal/middleware"
	"github.com/hitoshi/tsudoi/internal/model"
	"github.com/hitoshi/tsudoi/internal/repository"
)

// ParticipationServiceInterface は参加管理ハンドラーが必要とするサービスインターフェース。
type ParticipationServiceInterface interface {
	Join(ctx context.Context, activityID, userID string) (*model.Participant, error)
	Cancel(ctx context.Context, activityID, userID string) error
	SetStatus(ctx context.Context, activityID, actorID, targetUserID string, status model.ParticipantStatus) error
	ApprovePending(ctx context.Context, activityID, actorID string) (int, error)
	TransferOrganizer(ctx context.Context, activityID, actorID, targetUserID string) error
	List(ctx context.Context, activityID, viewerID string) ([]repository.ParticipantWithUser, error)
}

// ParticipantHandler は参加管理のHTTPハンドラー。
type ParticipantHandler struct {
	service ParticipationServiceInterface
}

// NewParticipantHandler はParticipantHandlerを生成する。
func NewParticipantHandler(service ParticipationServiceInterface) *ParticipantHandler {
	return &ParticipantHandler{
		service: service,
	}
}

// participantResponse は参加者のAPIレスポンス。
type participantResponse struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Status      string    `json:"status"`
	Role        string    `json:"role"`
	JoinedAt    time.Time `json:"joined_at"`
}

// setStatusRequest は参加ステータス更新リクエストのボディ。
// ロールはこのエンドポイントでは受け付けない。主催者交代は専用エンドポイントを使う。
type setStatusRequest struct {
	Status string `json:"status"`
}

// transferRequest は主催者交代リクエストのボディ。
type transferRequest struct {
	TargetUserID string `json:"target_user_id"`
}

// Join はアクティビティに参加する。
// POST /api/eventDetail/{id}/join
func (h *ParticipantHandler) Join(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorizedResponse(w)
		return
	}

	activityID := chi.URLParam(r, "id")

	p, err := h.service.Join(r.Context(), activityID, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{
		"status": string(p.Status),
		"role":   string(p.Role),
	})
}

// Cancel は自分の参加をキャンセルする。
// PUT /api/eventDetail/{id}/cancel
func (h *ParticipantHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorizedResponse(w)
		return
	}

	activityID := chi.URLParam(r, "id")

	if err := h.service.Cancel(r.Context(), activityID, userID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListParticipants は参加者一覧を返す。キャンセルしていないメンバーのみ閲覧可能。
// GET /api/activity/{id}/participants
func (h *ParticipantHandler) ListParticipants(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorizedResponse(w)
		return
	}

	activityID := chi.URLParam(r, "id")

	participants, err := h.service.List(r.Context(), activityID, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]participantResponse, len(participants))
	for i, p := range participants {
		name := p.DisplayName
		if name == "" {
			name = p.UserName
		}
		results[i] = participantResponse{
			UserID:      p.UserID,
			DisplayName: name,
			Status:      string(p.Status),
			Role:        string(p.Role),
			JoinedAt:    p.CreatedAt,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}

// SetStatus は主催者が参加者のステータスを変更する。
// PUT /api/activity/{id}/participants/{userID}
func (h *ParticipantHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	actorID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorizedResponse(w)
		return
	}

	activityID := chi.URLParam(r, "id")
	targetUserID := chi.URLParam(r, "userID")

	var req setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestResponse(w)
		return
	}

	status := model.ParticipantStatus(req.Status)
	if status != model.ParticipantStatusJoined && status != model.ParticipantStatusPending && status != model.ParticipantStatusCanceled {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     model.ErrCodeInvalidTransition,
			Message:  "不正なステータスです。",
			Category: "validation",
			Action:   "joined, pending, canceledのいずれかを指定してください。",
		})
		return
	}

	if err := h.service.SetStatus(r.Context(), activityID, actorID, targetUserID, status); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ApprovePending は保留中の参加者を一括で承認する。主催者のみ。
// POST /api/activity/{id}/participants/approve
func (h *ParticipantHandler) ApprovePending(w http.ResponseWriter, r *http.Request) {
	actorID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorizedResponse(w)
		return
	}

	activityID := chi.URLParam(r, "id")

	count, err := h.service.ApprovePending(r.Context(), activityID, actorID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{
		"approved_count": count,
	})
}

// TransferOrganizer は主催者の権限を参加者に移譲する。
// POST /api/activity/{id}/organizer/transfer
func (h *ParticipantHandler) TransferOrganizer(w http.ResponseWriter, r *http.Request) {
	actorID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorizedResponse(w)
		return
	}

	activityID := chi.URLParam(r, "id")

	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestResponse(w)
		return
	}
	if req.TargetUserID == "" {
		writeInvalidRequestResponse(w)
		return
	}

	if err := h.service.TransferOrganizer(r.Context(), activityID, actorID, req.TargetUserID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
