package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/tsudoi/internal/model"
	"github.com/hitoshi/tsudoi/internal/repository"
)

type mockParticipationService struct {
	joinFn           func(ctx context.Context, activityID, userID string) (*model.Participant, error)
	cancelFn         func(ctx context.Context, activityID, userID string) error
	setStatusFn      func(ctx context.Context, activityID, actorID, targetUserID string, status model.ParticipantStatus) error
	approvePendingFn func(ctx context.Context, activityID, actorID string) (int, error)
	transferFn       func(ctx context.Context, activityID, actorID, targetUserID string) error
	listFn           func(ctx context.Context, activityID, viewerID string) ([]repository.ParticipantWithUser, error)
}

func (m *mockParticipationService) Join(ctx context.Context, activityID, userID string) (*model.Participant, error) {
	return m.joinFn(ctx, activityID, userID)
}
func (m *mockParticipationService) Cancel(ctx context.Context, activityID, userID string) error {
	return m.cancelFn(ctx, activityID, userID)
}
func (m *mockParticipationService) SetStatus(ctx context.Context, activityID, actorID, targetUserID string, status model.ParticipantStatus) error {
	return m.setStatusFn(ctx, activityID, actorID, targetUserID, status)
}
func (m *mockParticipationService) ApprovePending(ctx context.Context, activityID, actorID string) (int, error) {
	return m.approvePendingFn(ctx, activityID, actorID)
}
func (m *mockParticipationService) TransferOrganizer(ctx context.Context, activityID, actorID, targetUserID string) error {
	return m.transferFn(ctx, activityID, actorID, targetUserID)
}
func (m *mockParticipationService) List(ctx context.Context, activityID, viewerID string) ([]repository.ParticipantWithUser, error) {
	return m.listFn(ctx, activityID, viewerID)
}

// TestParticipantHandler_Join は参加の正常系を検証する。
func TestParticipantHandler_Join(t *testing.T) {
	svc := &mockParticipationService{
		joinFn: func(ctx context.Context, activityID, userID string) (*model.Participant, error) {
			return &model.Participant{
				ActivityID: activityID,
				UserID:     userID,
				Status:     model.ParticipantStatusJoined,
				Role:       model.RoleParticipant,
			}, nil
		},
	}
	h := NewParticipantHandler(svc)

	req := authedRequest(t, http.MethodPost, "/api/eventDetail/act-1/join", "user-2", nil)
	req = withURLParam(req, "id", "act-1")
	rec := httptest.NewRecorder()

	h.Join(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != "joined" || resp["role"] != "participant" {
		t.Errorf("response = %v, want joined/participant", resp)
	}
}

// TestParticipantHandler_Join_Conflicts は参加できない場合のステータスコードを検証する。
func TestParticipantHandler_Join_Conflicts(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "already joined", err: model.NewAlreadyJoinedError(), wantStatus: http.StatusConflict},
		{name: "registration closed", err: model.NewRegistrationClosedError(), wantStatus: http.StatusConflict},
		{name: "activity not found", err: model.NewActivityNotFoundError("act-x"), wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockParticipationService{
				joinFn: func(ctx context.Context, activityID, userID string) (*model.Participant, error) {
					return nil, tt.err
				},
			}
			h := NewParticipantHandler(svc)

			req := authedRequest(t, http.MethodPost, "/api/eventDetail/act-1/join", "user-2", nil)
			req = withURLParam(req, "id", "act-1")
			rec := httptest.NewRecorder()

			h.Join(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

// TestParticipantHandler_Cancel はキャンセルの正常系と主催者の拒否を検証する。
func TestParticipantHandler_Cancel(t *testing.T) {
	svc := &mockParticipationService{
		cancelFn: func(ctx context.Context, activityID, userID string) error {
			return nil
		},
	}
	h := NewParticipantHandler(svc)

	req := authedRequest(t, http.MethodPut, "/api/eventDetail/act-1/cancel", "user-2", nil)
	req = withURLParam(req, "id", "act-1")
	rec := httptest.NewRecorder()

	h.Cancel(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}

	// 主催者はキャンセル不可
	svc.cancelFn = func(ctx context.Context, activityID, userID string) error {
		return model.NewOrganizerCannotLeaveError()
	}
	req = authedRequest(t, http.MethodPut, "/api/eventDetail/act-1/cancel", "user-1", nil)
	req = withURLParam(req, "id", "act-1")
	rec = httptest.NewRecorder()

	h.Cancel(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("organizer cancel status = %d, want %d", rec.Code, http.StatusConflict)
	}
}

// TestParticipantHandler_ListParticipants は参加者一覧と表示名のフォールバックを検証する。
func TestParticipantHandler_ListParticipants(t *testing.T) {
	now := time.Now()
	svc := &mockParticipationService{
		listFn: func(ctx context.Context, activityID, viewerID string) ([]repository.ParticipantWithUser, error) {
			return []repository.ParticipantWithUser{
				{
					Participant: model.Participant{UserID: "user-1", Status: model.ParticipantStatusJoined, Role: model.RoleOrganizer, CreatedAt: now},
					UserName:    "Alice",
					DisplayName: "ありす",
				},
				{
					Participant: model.Participant{UserID: "user-2", Status: model.ParticipantStatusPending, Role: model.RoleParticipant, CreatedAt: now},
					UserName:    "Bob",
					DisplayName: "",
				},
			}, nil
		},
	}
	h := NewParticipantHandler(svc)

	req := authedRequest(t, http.MethodGet, "/api/activity/act-1/participants", "user-1", nil)
	req = withURLParam(req, "id", "act-1")
	rec := httptest.NewRecorder()

	h.ListParticipants(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp []participantResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp) != 2 {
		t.Fatalf("len = %d, want 2", len(resp))
	}
	if resp[0].DisplayName != "ありす" {
		t.Errorf("DisplayName = %q, want %q", resp[0].DisplayName, "ありす")
	}
	// プロフィール未設定の場合はユーザー名にフォールバック
	if resp[1].DisplayName != "Bob" {
		t.Errorf("DisplayName = %q, want fallback %q", resp[1].DisplayName, "Bob")
	}
}

// TestParticipantHandler_ListParticipants_NotAMember は非メンバーの閲覧が403に
// なることを検証する。
func TestParticipantHandler_ListParticipants_NotAMember(t *testing.T) {
	svc := &mockParticipationService{
		listFn: func(ctx context.Context, activityID, viewerID string) ([]repository.ParticipantWithUser, error) {
			return nil, model.NewNotAMemberError()
		},
	}
	h := NewParticipantHandler(svc)

	req := authedRequest(t, http.MethodGet, "/api/activity/act-1/participants", "outsider", nil)
	req = withURLParam(req, "id", "act-1")
	rec := httptest.NewRecorder()

	h.ListParticipants(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

// TestParticipantHandler_SetStatus はステータス変更リクエストの検証を行う。
func TestParticipantHandler_SetStatus(t *testing.T) {
	var gotStatus model.ParticipantStatus
	svc := &mockParticipationService{
		setStatusFn: func(ctx context.Context, activityID, actorID, targetUserID string, status model.ParticipantStatus) error {
			gotStatus = status
			return nil
		},
	}
	h := NewParticipantHandler(svc)

	body := []byte(`{"status":"pending"}`)
	req := authedRequest(t, http.MethodPut, "/api/activity/act-1/participants/user-2", "user-1", body)
	req = withURLParam(req, "id", "act-1")
	req = withURLParam(req, "userID", "user-2")
	rec := httptest.NewRecorder()

	h.SetStatus(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusNoContent, rec.Body.String())
	}
	if gotStatus != model.ParticipantStatusPending {
		t.Errorf("status = %q, want %q", gotStatus, model.ParticipantStatusPending)
	}

	// 未知のステータス値は400
	body = []byte(`{"status":"organizer"}`)
	req = authedRequest(t, http.MethodPut, "/api/activity/act-1/participants/user-2", "user-1", body)
	req = withURLParam(req, "id", "act-1")
	req = withURLParam(req, "userID", "user-2")
	rec = httptest.NewRecorder()

	h.SetStatus(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid status code = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

// TestParticipantHandler_ApprovePending は一括承認の件数レスポンスを検証する。
func TestParticipantHandler_ApprovePending(t *testing.T) {
	svc := &mockParticipationService{
		approvePendingFn: func(ctx context.Context, activityID, actorID string) (int, error) {
			return 3, nil
		},
	}
	h := NewParticipantHandler(svc)

	req := authedRequest(t, http.MethodPost, "/api/activity/act-1/participants/approve", "user-1", nil)
	req = withURLParam(req, "id", "act-1")
	rec := httptest.NewRecorder()

	h.ApprovePending(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp map[string]int
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["approved_count"] != 3 {
		t.Errorf("approved_count = %d, want 3", resp["approved_count"])
	}
}

// TestParticipantHandler_TransferOrganizer は主催者交代リクエストを検証する。
func TestParticipantHandler_TransferOrganizer(t *testing.T) {
	var gotTarget string
	svc := &mockParticipationService{
		transferFn: func(ctx context.Context, activityID, actorID, targetUserID string) error {
			gotTarget = targetUserID
			return nil
		},
	}
	h := NewParticipantHandler(svc)

	body := []byte(`{"target_user_id":"user-2"}`)
	req := authedRequest(t, http.MethodPost, "/api/activity/act-1/organizer/transfer", "user-1", body)
	req = withURLParam(req, "id", "act-1")
	rec := httptest.NewRecorder()

	h.TransferOrganizer(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusNoContent, rec.Body.String())
	}
	if gotTarget != "user-2" {
		t.Errorf("target = %q, want %q", gotTarget, "user-2")
	}

	// 対象未指定は400
	req = authedRequest(t, http.MethodPost, "/api/activity/act-1/organizer/transfer", "user-1", []byte(`{}`))
	req = withURLParam(req, "id", "act-1")
	rec = httptest.NewRecorder()

	h.TransferOrganizer(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing target status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}
