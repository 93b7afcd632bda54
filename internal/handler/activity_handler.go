package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/tsudoi/internal/activity"
	"github.com/hitoshi/tsudoi/internal/middleware"
	"github.com/hitoshi/tsudoi/internal/model"
	"github.com/hitoshi/tsudoi/internal/repository"
)

// ActivityServiceInterface はアクティビティハンドラーが必要とするサービスインターフェース。
type ActivityServiceInterface interface {
	Create(ctx context.Context, ownerID string, input activity.Input) (*model.Activity, error)
	Update(ctx context.Context, userID, activityID string, input activity.Input) (*model.Activity, error)
	Get(ctx context.Context, activityID, viewerID string) (*activity.Detail, error)
	List(ctx context.Context, category model.Category, limit int) ([]repository.ActivityWithCounts, error)
	ListMine(ctx context.Context, userID string) ([]repository.ActivityWithCounts, error)
}

// ActivityHandler はアクティビティ管理のHTTPハンドラー。
type ActivityHandler struct {
	service ActivityServiceInterface
}

// NewActivityHandler はActivityHandlerを生成する。
func NewActivityHandler(service ActivityServiceInterface) *ActivityHandler {
	return &ActivityHandler{
		service: service,
	}
}

// activityRequest はアクティビティ作成・編集リクエストのボディ。
type activityRequest struct {
	Name           string    `json:"name"`
	Category       string    `json:"category"`
	StartsAt       time.Time `json:"starts_at"`
	EndsAt         time.Time `json:"ends_at"`
	SignupDeadline time.Time `json:"signup_deadline"`
	Location       string    `json:"location"`
	Description    string    `json:"description"`
	ImageURL       string    `json:"image_url"`
}

func (req *activityRequest) toInput() activity.Input {
	return activity.Input{
		Name:           req.Name,
		Category:       model.Category(req.Category),
		StartsAt:       req.StartsAt,
		EndsAt:         req.EndsAt,
		SignupDeadline: req.SignupDeadline,
		Location:       req.Location,
		Description:    req.Description,
		ImageURL:       req.ImageURL,
	}
}

// activityResponse はアクティビティのAPIレスポンス。
type activityResponse struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"owner_id"`
	Name           string    `json:"name"`
	Category       string    `json:"category"`
	StartsAt       time.Time `json:"starts_at"`
	EndsAt         time.Time `json:"ends_at"`
	SignupDeadline time.Time `json:"signup_deadline"`
	Location       string    `json:"location"`
	Description    string    `json:"description"`
	ImageURL       string    `json:"image_url,omitempty"`
	JoinedCount    int       `json:"joined_count"`
	PendingCount   int       `json:"pending_count"`
	CreatedAt      time.Time `json:"created_at"`
}

// activityDetailResponse は詳細APIのレスポンス。閲覧者の参加状態を含む。
type activityDetailResponse struct {
	activityResponse
	MyStatus string `json:"my_status,omitempty"`
	MyRole   string `json:"my_role,omitempty"`
}

func toActivityResponse(a *model.Activity, joined, pending int) activityResponse {
	return activityResponse{
		ID:             a.ID,
		OwnerID:        a.OwnerID,
		Name:           a.Name,
		Category:       string(a.Category),
		StartsAt:       a.StartsAt,
		EndsAt:         a.EndsAt,
		SignupDeadline: a.SignupDeadline,
		Location:       a.Location,
		Description:    a.Description,
		ImageURL:       a.ImageURL,
		JoinedCount:    joined,
		PendingCount:   pending,
		CreatedAt:      a.CreatedAt,
	}
}

// CreateActivity はアクティビティを作成する。
// POST /api/createActivity
func (h *ActivityHandler) CreateActivity(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorizedResponse(w)
		return
	}

	var req activityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestResponse(w)
		return
	}

	created, err := h.service.Create(r.Context(), userID, req.toInput())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toActivityResponse(created, 1, 0))
}

// EditActivity はアクティビティを編集する。主催者のみ。
// PUT /api/editActivity/{id}
func (h *ActivityHandler) EditActivity(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorizedResponse(w)
		return
	}

	activityID := chi.URLParam(r, "id")

	var req activityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestResponse(w)
		return
	}

	updated, err := h.service.Update(r.Context(), userID, activityID, req.toInput())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	detail, err := h.service.Get(r.Context(), updated.ID, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toActivityResponse(&detail.Activity, detail.JoinedCount, detail.PendingCount))
}

// EventSchedule はアクティビティの一覧を返す。
// GET /api/eventSchedule?category=sports&limit=50
// mine=trueの場合は認証済みユーザーの参加アクティビティのみを返す。
func (h *ActivityHandler) EventSchedule(w http.ResponseWriter, r *http.Request) {
	var list []repository.ActivityWithCounts
	var err error

	if r.URL.Query().Get("mine") == "true" {
		userID, ctxErr := middleware.UserIDFromContext(r.Context())
		if ctxErr != nil {
			writeUnauthorizedResponse(w)
			return
		}
		list, err = h.service.ListMine(r.Context(), userID)
	} else {
		category := model.Category(r.URL.Query().Get("category"))
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			limit, _ = strconv.Atoi(v)
		}
		list, err = h.service.List(r.Context(), category, limit)
	}
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]activityResponse, len(list))
	for i, a := range list {
		results[i] = toActivityResponse(&a.Activity, a.JoinedCount, a.PendingCount)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}

// EventDetail はアクティビティの詳細を返す。
// GET /api/eventDetail/{id}
// 未ログインでも閲覧可能。ログイン時は閲覧者の参加状態を含む。
func (h *ActivityHandler) EventDetail(w http.ResponseWriter, r *http.Request) {
	activityID := chi.URLParam(r, "id")

	// セッションは任意。あれば参加状態を含める。
	viewerID, _ := middleware.UserIDFromContext(r.Context())

	detail, err := h.service.Get(r.Context(), activityID, viewerID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := activityDetailResponse{
		activityResponse: toActivityResponse(&detail.Activity, detail.JoinedCount, detail.PendingCount),
		MyStatus:         string(detail.MyStatus),
		MyRole:           string(detail.MyRole),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// --- 共通エラーハンドリング ---

// apiErrorResponse はエラーレスポンスのJSONボディ。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category,omitempty"`
	Action   string `json:"action,omitempty"`
}

// writeAPIErrorResponse はAPIErrorをJSONレスポンスとして書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// writeUnauthorizedResponse は401 Unauthorizedレスポンスを書き込む。
func writeUnauthorizedResponse(w http.ResponseWriter) {
	writeAPIErrorResponse(w, http.StatusUnauthorized, &model.APIError{
		Code:     "UNAUTHORIZED",
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	})
}

// writeInvalidRequestResponse はリクエストボディ解析失敗の400レスポンスを書き込む。
func writeInvalidRequestResponse(w http.ResponseWriter) {
	writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
		Code:     "INVALID_REQUEST",
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeActivityNotFound, model.ErrCodeParticipantNotFound, model.ErrCodeUserNotFound:
		return http.StatusNotFound
	case model.ErrCodeOrganizerRequired, model.ErrCodeNotAMember:
		return http.StatusForbidden
	case model.ErrCodeAlreadyJoined, model.ErrCodeAlreadyCanceled, model.ErrCodeInvalidTransition, model.ErrCodeOrganizerCannotLeave:
		return http.StatusConflict
	case model.ErrCodeRegistrationClosed:
		return http.StatusConflict
	case model.ErrCodeInvalidActivity, model.ErrCodeInvalidSchedule, model.ErrCodeInvalidCategory,
		model.ErrCodeInvalidInterests, model.ErrCodeInvalidDisplayName,
		model.ErrCodeEmptyMessage, model.ErrCodeMessageTooLong,
		model.ErrCodeInvalidImageURL, model.ErrCodePasswordPolicy:
		return http.StatusBadRequest
	case model.ErrCodePasswordMismatch:
		return http.StatusUnauthorized
	case model.ErrCodeSSRFBlocked:
		return http.StatusForbidden
	case model.ErrCodeImageFetchFailed, model.ErrCodeAuthUpstreamFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
