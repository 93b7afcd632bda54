package participation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/tsudoi/internal/model"
	"github.com/hitoshi/tsudoi/internal/repository"
)

// --- モック ---

type mockActivityRepo struct {
	findByIDFn func(ctx context.Context, id string) (*model.Activity, error)
}

func (m *mockActivityRepo) FindByID(ctx context.Context, id string) (*model.Activity, error) {
	return m.findByIDFn(ctx, id)
}
func (m *mockActivityRepo) CreateWithOrganizer(ctx context.Context, activity *model.Activity, organizerID string) error {
	return nil
}
func (m *mockActivityRepo) Update(ctx context.Context, activity *model.Activity) error {
	return nil
}
func (m *mockActivityRepo) List(ctx context.Context, category model.Category, from time.Time, limit int) ([]repository.ActivityWithCounts, error) {
	return nil, nil
}
func (m *mockActivityRepo) ListByParticipant(ctx context.Context, userID string) ([]repository.ActivityWithCounts, error) {
	return nil, nil
}

type mockParticipantRepo struct {
	findFn              func(ctx context.Context, activityID, userID string) (*model.Participant, error)
	createFn            func(ctx context.Context, p *model.Participant) (bool, error)
	updateStatusFn      func(ctx context.Context, activityID, userID string, status model.ParticipantStatus) error
	approvePendingFn    func(ctx context.Context, activityID string) (int, error)
	transferOrganizerFn func(ctx context.Context, activityID, fromUserID, toUserID string) error
	listByActivityFn    func(ctx context.Context, activityID string) ([]repository.ParticipantWithUser, error)
}

func (m *mockParticipantRepo) FindByActivityAndUser(ctx context.Context, activityID, userID string) (*model.Participant, error) {
	return m.findFn(ctx, activityID, userID)
}
func (m *mockParticipantRepo) Create(ctx context.Context, p *model.Participant) (bool, error) {
	if m.createFn != nil {
		return m.createFn(ctx, p)
	}
	return true, nil
}
func (m *mockParticipantRepo) UpdateStatus(ctx context.Context, activityID, userID string, status model.ParticipantStatus) error {
	if m.updateStatusFn != nil {
		return m.updateStatusFn(ctx, activityID, userID, status)
	}
	return nil
}
func (m *mockParticipantRepo) ApprovePending(ctx context.Context, activityID string) (int, error) {
	if m.approvePendingFn != nil {
		return m.approvePendingFn(ctx, activityID)
	}
	return 0, nil
}
func (m *mockParticipantRepo) TransferOrganizer(ctx context.Context, activityID, fromUserID, toUserID string) error {
	if m.transferOrganizerFn != nil {
		return m.transferOrganizerFn(ctx, activityID, fromUserID, toUserID)
	}
	return nil
}
func (m *mockParticipantRepo) ListByActivity(ctx context.Context, activityID string) ([]repository.ParticipantWithUser, error) {
	if m.listByActivityFn != nil {
		return m.listByActivityFn(ctx, activityID)
	}
	return nil, nil
}
func (m *mockParticipantRepo) CountJoined(ctx context.Context, activityID string) (int, error) {
	return 0, nil
}

func openActivity() *model.Activity {
	now := time.Now()
	return &model.Activity{
		ID:             "act-1",
		OwnerID:        "organizer-1",
		Name:           "朝のランニング",
		Category:       model.CategorySports,
		StartsAt:       now.Add(48 * time.Hour),
		EndsAt:         now.Add(50 * time.Hour),
		SignupDeadline: now.Add(24 * time.Hour),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func closedActivity() *model.Activity {
	a := openActivity()
	a.SignupDeadline = time.Now().Add(-time.Hour)
	return a
}

func wantAPIError(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *model.APIError with code %s", err, code)
	}
	if apiErr.Code != code {
		t.Errorf("error code = %s, want %s", apiErr.Code, code)
	}
}

// --- テスト ---

// TestService_Join_FirstTime は初回参加でjoined行が作られることを検証する。
func TestService_Join_FirstTime(t *testing.T) {
	activityRepo := &mockActivityRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Activity, error) {
			return openActivity(), nil
		},
	}
	var created *model.Participant
	participantRepo := &mockParticipantRepo{
		findFn: func(ctx context.Context, activityID, userID string) (*model.Participant, error) {
			return nil, nil
		},
		createFn: func(ctx context.Context, p *model.Participant) (bool, error) {
			created = p
			return true, nil
		},
	}

	svc := NewService(activityRepo, participantRepo)

	p, err := svc.Join(context.Background(), "act-1", "user-1")
	if err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if p.Status != model.ParticipantStatusJoined {
		t.Errorf("p.Status = %q, want %q", p.Status, model.ParticipantStatusJoined)
	}
	if p.Role != model.RoleParticipant {
		t.Errorf("p.Role = %q, want %q", p.Role, model.RoleParticipant)
	}
	if created == nil {
		t.Error("participant row should be inserted")
	}
}

// TestService_Join_AfterDeadline は申込締切後の参加拒否を検証する。
func TestService_Join_AfterDeadline(t *testing.T) {
	activityRepo := &mockActivityRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Activity, error) {
			return closedActivity(), nil
		},
	}
	participantRepo := &mockParticipantRepo{
		findFn: func(ctx context.Context, activityID, userID string) (*model.Participant, error) {
			t.Fatal("participant lookup should not happen after deadline")
			return nil, nil
		},
	}

	svc := NewService(activityRepo, participantRepo)

	_, err := svc.Join(context.Background(), "act-1", "user-1")
	wantAPIError(t, err, model.ErrCodeRegistrationClosed)
}

// TestService_Join_AlreadyJoined は重複参加の拒否を検証する。
func TestService_Join_AlreadyJoined(t *testing.T) {
	for _, status := range []model.ParticipantStatus{model.ParticipantStatusJoined, model.ParticipantStatusPending} {
		t.Run(string(status), func(t *testing.T) {
			activityRepo := &mockActivityRepo{
				findByIDFn: func(ctx context.Context, id string) (*model.Activity, error) {
					return openActivity(), nil
				},
			}
			participantRepo := &mockParticipantRepo{
				findFn: func(ctx context.Context, activityID, userID string) (*model.Participant, error) {
					return &model.Participant{ActivityID: activityID, UserID: userID, Status: status, Role: model.RoleParticipant}, nil
				},
			}

			svc := NewService(activityRepo, participantRepo)

			_, err := svc.Join(context.Background(), "act-1", "user-1")
			wantAPIError(t, err, model.ErrCodeAlreadyJoined)
		})
	}
}

// TestService_Join_RejoinReusesRow は取り消し後の再参加が既存行を再利用することを検証する。
func TestService_Join_RejoinReusesRow(t *testing.T) {
	firstJoinedAt := time.Now().Add(-72 * time.Hour)
	activityRepo := &mockActivityRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Activity, error) {
			return openActivity(), nil
		},
	}
	var statusUpdated bool
	participantRepo := &mockParticipantRepo{
		findFn: func(ctx context.Context, activityID, userID string) (*model.Participant, error) {
			return &model.Participant{
				ActivityID: activityID,
				UserID:     userID,
				Status:     model.ParticipantStatusCanceled,
				Role:       model.RoleParticipant,
				CreatedAt:  firstJoinedAt,
			}, nil
		},
		updateStatusFn: func(ctx context.Context, activityID, userID string, status model.ParticipantStatus) error {
			if status != model.ParticipantStatusJoined {
				t.Errorf("UpdateStatus status = %q, want %q", status, model.ParticipantStatusJoined)
			}
			statusUpdated = true
			return nil
		},
		createFn: func(ctx context.Context, p *model.Participant) (bool, error) {
			t.Fatal("rejoin should reuse the existing row, not insert a new one")
			return false, nil
		},
	}

	svc := NewService(activityRepo, participantRepo)

	p, err := svc.Join(context.Background(), "act-1", "user-1")
	if err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if !statusUpdated {
		t.Error("status update should be called for rejoin")
	}
	if !p.CreatedAt.Equal(firstJoinedAt) {
		t.Errorf("p.CreatedAt = %v, want preserved %v", p.CreatedAt, firstJoinedAt)
	}
}

// TestService_Join_ConcurrentConflict はUNIQUE制約の競合でALREADY_JOINEDが返ることを検証する。
func TestService_Join_ConcurrentConflict(t *testing.T) {
	activityRepo := &mockActivityRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Activity, error) {
			return openActivity(), nil
		},
	}
	participantRepo := &mockParticipantRepo{
		findFn: func(ctx context.Context, activityID, userID string) (*model.Participant, error) {
			// 検索時点では行がないが、挿入時には別リクエストが先に挿入している
			return nil, nil
		},
		createFn: func(ctx context.Context, p *model.Participant) (bool, error) {
			return false, nil
		},
	}

	svc := NewService(activityRepo, participantRepo)

	_, err := svc.Join(context.Background(), "act-1", "user-1")
	wantAPIError(t, err, model.ErrCodeAlreadyJoined)
}

// TestService_Join_ActivityNotFound は存在しないアクティビティへの参加拒否を検証する。
func TestService_Join_ActivityNotFound(t *testing.T) {
	activityRepo := &mockActivityRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Activity, error) {
			return nil, nil
		},
	}

	svc := NewService(activityRepo, &mockParticipantRepo{})

	_, err := svc.Join(context.Background(), "missing", "user-1")
	wantAPIError(t, err, model.ErrCodeActivityNotFound)
}

// TestService_Cancel は参加取り消しの正常系を検証する。
func TestService_Cancel(t *testing.T) {
	activityRepo := &mockActivityRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Activity, error) {
			return openActivity(), nil
		},
	}
	var canceled bool
	participantRepo := &mockParticipantRepo{
		findFn: func(ctx context.Context, activityID, userID string) (*model.Participant, error) {
			return &model.Participant{ActivityID: activityID, UserID: userID, Status: model.ParticipantStatusJoined, Role: model.RoleParticipant}, nil
		},
		updateStatusFn: func(ctx context.Context, activityID, userID string, status model.ParticipantStatus) error {
			if status != model.ParticipantStatusCanceled {
				t.Errorf("UpdateStatus status = %q, want %q", status, model.ParticipantStatusCanceled)
			}
			canceled = true
			return nil
		},
	}

	svc := NewService(activityRepo, participantRepo)

	if err := svc.Cancel(context.Background(), "act-1", "user-1"); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if !canceled {
		t.Error("status update should be called")
	}
}

// TestService_Cancel_OrganizerForbidden は主催者の取り消し拒否を検証する。
func TestService_Cancel_OrganizerForbidden(t *testing.T) {
	activityRepo := &mockActivityRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Activity, error) {
			return openActivity(), nil
		},
	}
	participantRepo := &mockParticipantRepo{
		findFn: func(ctx context.Context, activityID, userID string) (*model.Participant, error) {
			return &model.Participant{ActivityID: activityID, UserID: userID, Status: model.ParticipantStatusJoined, Role: model.RoleOrganizer}, nil
		},
	}

	svc := NewService(activityRepo, participantRepo)

	err := svc.Cancel(context.Background(), "act-1", "organizer-1")
	wantAPIError(t, err, model.ErrCodeOrganizerCannotLeave)
}

// TestService_Cancel_AlreadyCanceled は取り消し済み行への再取り消し拒否を検証する。
func TestService_Cancel_AlreadyCanceled(t *testing.T) {
	activityRepo := &mockActivityRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Activity, error) {
			return openActivity(), nil
		},
	}
	participantRepo := &mockParticipantRepo{
		findFn: func(ctx context.Context, activityID, userID string) (*model.Participant, error) {
			return &model.Participant{ActivityID: activityID, UserID: userID, Status: model.ParticipantStatusCanceled, Role: model.RoleParticipant}, nil
		},
	}

	svc := NewService(activityRepo, participantRepo)

	err := svc.Cancel(context.Background(), "act-1", "user-1")
	wantAPIError(t, err, model.ErrCodeAlreadyCanceled)
}

// TestService_Cancel_NotFound は未参加ユーザーの取り消し拒否を検証する。
func TestService_Cancel_NotFound(t *testing.T) {
	activityRepo := &mockActivityRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Activity, error) {
			return openActivity(), nil
		},
	}
	participantRepo := &mockParticipantRepo{
		findFn: func(ctx context.Context, activityID, userID string) (*model.Participant, error) {
			return nil, nil
		},
	}

	svc := NewService(activityRepo, participantRepo)

	err := svc.Cancel(context.Background(), "act-1", "user-1")
	wantAPIError(t, err, model.ErrCodeParticipantNotFound)
}

// TestService_SetStatus_Transitions は状態遷移表の通りに許可・拒否されることを検証する。
func TestService_SetStatus_Transitions(t *testing.T) {
	cases := []struct {
		name     string
		from     model.ParticipantStatus
		to       model.ParticipantStatus
		wantCode string
	}{
		{"joined to pending", model.ParticipantStatusJoined, model.ParticipantStatusPending, ""},
		{"joined to canceled", model.ParticipantStatusJoined, model.ParticipantStatusCanceled, ""},
		{"pending to joined", model.ParticipantStatusPending, model.ParticipantStatusJoined, ""},
		{"pending to canceled", model.ParticipantStatusPending, model.ParticipantStatusCanceled, ""},
		{"canceled to joined", model.ParticipantStatusCanceled, model.ParticipantStatusJoined, model.ErrCodeInvalidTransition},
		{"joined to joined", model.ParticipantStatusJoined, model.ParticipantStatusJoined, model.ErrCodeInvalidTransition},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			activityRepo := &mockActivityRepo{
				findByIDFn: func(ctx context.Context, id string) (*model.Activity, error) {
					return openActivity(), nil
				},
			}
			participantRepo := &mockParticipantRepo{
				findFn: func(ctx context.Context, activityID, userID string) (*model.Participant, error) {
					if userID == "organizer-1" {
						return &model.Participant{ActivityID: activityID, UserID: userID, Status: model.ParticipantStatusJoined, Role: model.RoleOrganizer}, nil
					}
					return &model.Participant{ActivityID: activityID, UserID: userID, Status: tc.from, Role: model.RoleParticipant}, nil
				},
			}

			svc := NewService(activityRepo, participantRepo)

			err := svc.SetStatus(context.Background(), "act-1", "organizer-1", "user-1", tc.to)
			if tc.wantCode == "" {
				if err != nil {
					t.Fatalf("SetStatus() error = %v, want nil", err)
				}
				return
			}
			wantAPIError(t, err, tc.wantCode)
		})
	}
}

// TestService_SetStatus_RequiresOrganizer は一般参加者による状態変更の拒否を検証する。
func TestService_SetStatus_RequiresOrganizer(t *testing.T) {
	activityRepo := &mockActivityRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Activity, error) {
			return openActivity(), nil
		},
	}
	participantRepo := &mockParticipantRepo{
		findFn: func(ctx context.Context, activityID, userID string) (*model.Participant, error) {
			return &model.Participant{ActivityID: activityID, UserID: userID, Status: model.ParticipantStatusJoined, Role: model.RoleParticipant}, nil
		},
	}

	svc := NewService(activityRepo, participantRepo)

	err := svc.SetStatus(context.Background(), "act-1", "user-2", "user-1", model.ParticipantStatusCanceled)
	wantAPIError(t, err, model.ErrCodeOrganizerRequired)
}

// TestService_SetStatus_OrganizerCannotBeCanceled は主催者自身をcanceledにできないことを検証する。
func TestService_SetStatus_OrganizerCannotBeCanceled(t *testing.T) {
	activityRepo := &mockActivityRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Activity, error) {
			return openActivity(), nil
		},
	}
	participantRepo := &mockParticipantRepo{
		findFn: func(ctx context.Context, activityID, userID string) (*model.Participant, error) {
			return &model.Participant{ActivityID: activityID, UserID: userID, Status: model.ParticipantStatusJoined, Role: model.RoleOrganizer}, nil
		},
	}

	svc := NewService(activityRepo, participantRepo)

	err := svc.SetStatus(context.Background(), "act-1", "organizer-1", "organizer-1", model.ParticipantStatusCanceled)
	wantAPIError(t, err, model.ErrCodeOrganizerCannotLeave)
}

// TestService_ApprovePending は承認待ち参加者の一括承認を検証する。
func TestService_ApprovePending(t *testing.T) {
	activityRepo := &mockActivityRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Activity, error) {
			return openActivity(), nil
		},
	}
	participantRepo := &mockParticipantRepo{
		findFn: func(ctx context.Context, activityID, userID string) (*model.Participant, error) {
			return &model.Participant{ActivityID: activityID, UserID: userID, Status: model.ParticipantStatusJoined, Role: model.RoleOrganizer}, nil
		},
		approvePendingFn: func(ctx context.Context, activityID string) (int, error) {
			return 3, nil
		},
	}

	svc := NewService(activityRepo, participantRepo)

	approved, err := svc.ApprovePending(context.Background(), "act-1", "organizer-1")
	if err != nil {
		t.Fatalf("ApprovePending() error = %v", err)
	}
	if approved != 3 {
		t.Errorf("approved = %d, want 3", approved)
	}
}

// TestService_TransferOrganizer は主催者権限の移譲を検証する。
func TestService_TransferOrganizer(t *testing.T) {
	activityRepo := &mockActivityRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Activity, error) {
			return openActivity(), nil
		},
	}
	var transferred bool
	participantRepo := &mockParticipantRepo{
		findFn: func(ctx context.Context, activityID, userID string) (*model.Participant, error) {
			if userID == "organizer-1" {
				return &model.Participant{ActivityID: activityID, UserID: userID, Status: model.ParticipantStatusJoined, Role: model.RoleOrganizer}, nil
			}
			return &model.Participant{ActivityID: activityID, UserID: userID, Status: model.ParticipantStatusJoined, Role: model.RoleParticipant}, nil
		},
		transferOrganizerFn: func(ctx context.Context, activityID, fromUserID, toUserID string) error {
			if fromUserID != "organizer-1" || toUserID != "user-1" {
				t.Errorf("TransferOrganizer(%s, %s), want (organizer-1, user-1)", fromUserID, toUserID)
			}
			transferred = true
			return nil
		},
	}

	svc := NewService(activityRepo, participantRepo)

	if err := svc.TransferOrganizer(context.Background(), "act-1", "organizer-1", "user-1"); err != nil {
		t.Fatalf("TransferOrganizer() error = %v", err)
	}
	if !transferred {
		t.Error("transfer should be executed")
	}
}

// TestService_TransferOrganizer_TargetNotJoined は参加確定していない相手への移譲拒否を検証する。
func TestService_TransferOrganizer_TargetNotJoined(t *testing.T) {
	activityRepo := &mockActivityRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Activity, error) {
			return openActivity(), nil
		},
	}
	participantRepo := &mockParticipantRepo{
		findFn: func(ctx context.Context, activityID, userID string) (*model.Participant, error) {
			if userID == "organizer-1" {
				return &model.Participant{ActivityID: activityID, UserID: userID, Status: model.ParticipantStatusJoined, Role: model.RoleOrganizer}, nil
			}
			return &model.Participant{ActivityID: activityID, UserID: userID, Status: model.ParticipantStatusPending, Role: model.RoleParticipant}, nil
		},
	}

	svc := NewService(activityRepo, participantRepo)

	err := svc.TransferOrganizer(context.Background(), "act-1", "organizer-1", "user-1")
	wantAPIError(t, err, model.ErrCodeInvalidTransition)
}

// TestService_List_RequiresMembership は非メンバーによる参加者一覧閲覧の拒否を検証する。
func TestService_List_RequiresMembership(t *testing.T) {
	participantRepo := &mockParticipantRepo{
		findFn: func(ctx context.Context, activityID, userID string) (*model.Participant, error) {
			return nil, nil
		},
	}

	svc := NewService(&mockActivityRepo{}, participantRepo)

	_, err := svc.List(context.Background(), "act-1", "outsider")
	wantAPIError(t, err, model.ErrCodeNotAMember)
}

// TestService_List はメンバーによる参加者一覧閲覧を検証する。
func TestService_List(t *testing.T) {
	participantRepo := &mockParticipantRepo{
		findFn: func(ctx context.Context, activityID, userID string) (*model.Participant, error) {
			return &model.Participant{ActivityID: activityID, UserID: userID, Status: model.ParticipantStatusJoined, Role: model.RoleParticipant}, nil
		},
		listByActivityFn: func(ctx context.Context, activityID string) ([]repository.ParticipantWithUser, error) {
			return []repository.ParticipantWithUser{
				{Participant: model.Participant{UserID: "organizer-1", Role: model.RoleOrganizer}, DisplayName: "主催者"},
				{Participant: model.Participant{UserID: "user-1", Role: model.RoleParticipant}, DisplayName: "参加者"},
			}, nil
		},
	}

	svc := NewService(&mockActivityRepo{}, participantRepo)

	participants, err := svc.List(context.Background(), "act-1", "user-1")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(participants) != 2 {
		t.Fatalf("len(participants) = %d, want 2", len(participants))
	}
	if participants[0].Role != model.RoleOrganizer {
		t.Errorf("participants[0].Role = %q, want organizer first", participants[0].Role)
	}
}
