package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/tsudoi/internal/middleware"
	"github.com/hitoshi/tsudoi/internal/model"
)

// MessageServiceInterface はチャットハンドラーが必要とするサービスインターフェース。
type MessageServiceInterface interface {
	Append(ctx context.Context, activityID, authorID, body string) (*model.Message, error)
	List(ctx context.Context, activityID, viewerID string, cursor time.Time, limit int) ([]*model.Message, error)
}

// MessageHandler はアクティビティチャットのHTTPハンドラー。
type MessageHandler struct {
	service MessageServiceInterface
}

// NewMessageHandler はMessageHandlerを生成する。
func NewMessageHandler(service MessageServiceInterface) *MessageHandler {
	return &MessageHandler{
		service: service,
	}
}

// messageResponse はチャットメッセージのAPIレスポンス。
type messageResponse struct {
	ID         string    `json:"id"`
	ActivityID string    `json:"activity_id"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

// postMessageRequest はメッセージ投稿リクエストのボディ。
type postMessageRequest struct {
	Body string `json:"body"`
}

func toMessageResponse(m *model.Message) messageResponse {
	return messageResponse{
		ID:         m.ID,
		ActivityID: m.ActivityID,
		AuthorID:   m.AuthorID,
		AuthorName: m.AuthorName,
		Body:       m.Body,
		CreatedAt:  m.CreatedAt,
	}
}

// PostMessage はアクティビティのチャットにメッセージを投稿する。
// POST /api/activity/{id}/messages
// 作成されたメッセージをそのまま返す。
func (h *MessageHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorizedResponse(w)
		return
	}

	activityID := chi.URLParam(r, "id")

	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestResponse(w)
		return
	}

	created, err := h.service.Append(r.Context(), activityID, userID, req.Body)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toMessageResponse(created))
}

// ListMessages はアクティビティのチャット履歴を返す。
// GET /api/activity/{id}/messages?after=2026-01-01T00:00:00Z&limit=50
// afterは前回取得した最後のメッセージのcreated_atを指定するカーソル。
func (h *MessageHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorizedResponse(w)
		return
	}

	activityID := chi.URLParam(r, "id")

	var cursor time.Time
	if v := r.URL.Query().Get("after"); v != "" {
		parsed, parseErr := time.Parse(time.RFC3339, v)
		if parseErr != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
				Code:     "INVALID_CURSOR",
				Message:  "カーソルの形式が不正です。",
				Category: "validation",
				Action:   "RFC3339形式の日時を指定してください。",
			})
			return
		}
		cursor = parsed
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}

	messages, err := h.service.List(r.Context(), activityID, userID, cursor, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]messageResponse, len(messages))
	for i, m := range messages {
		results[i] = toMessageResponse(m)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}
