// Package activity はアクティビティ管理のドメインロジックを提供する。
package activity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/tsudoi/internal/model"
	"github.com/hitoshi/tsudoi/internal/repository"
	"github.com/hitoshi/tsudoi/internal/security"
)

// MaxNameLength はアクティビティ名の最大文字数。
const MaxNameLength = 100

// MaxDescriptionLength は説明文の最大文字数。
const MaxDescriptionLength = 4000

// Input はアクティビティの作成・編集で受け取る入力。
// 編集時も全フィールドを再検証し、部分的な書き込みは行わない。
type Input struct {
	Name           string
	Category       model.Category
	StartsAt       time.Time
	EndsAt         time.Time
	SignupDeadline time.Time
	Location       string
	Description    string
	ImageURL       string
}

// Detail はアクティビティ詳細と閲覧者の参加状態を結合したドメインオブジェクト。
type Detail struct {
	Activity     model.Activity
	JoinedCount  int
	PendingCount int
	// MyStatus / MyRole は閲覧者の参加状態。未参加または未ログインの場合は空。
	MyStatus model.ParticipantStatus
	MyRole   model.ParticipantRole
}

// Service はアクティビティ管理のサービス層。
// 作成、編集、詳細取得、一覧取得のビジネスロジックを提供する。
type Service struct {
	activityRepo    repository.ActivityRepository
	participantRepo repository.ParticipantRepository
	sanitizer       security.ContentSanitizerService
	ssrfGuard       security.SSRFGuardService
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	activityRepo repository.ActivityRepository,
	participantRepo repository.ParticipantRepository,
	sanitizer security.ContentSanitizerService,
	ssrfGuard security.SSRFGuardService,
) *Service {
	return &Service{
		activityRepo:    activityRepo,
		participantRepo: participantRepo,
		sanitizer:       sanitizer,
		ssrfGuard:       ssrfGuard,
	}
}

// Create はアクティビティを作成し、作成者を主催者として参加登録する。
func (s *Service) Create(ctx context.Context, ownerID string, input Input) (*model.Activity, error) {
	if err := s.validate(&input); err != nil {
		return nil, err
	}

	now := time.Now()
	activity := &model.Activity{
		ID:             uuid.New().String(),
		OwnerID:        ownerID,
		Name:           input.Name,
		Category:       input.Category,
		StartsAt:       input.StartsAt,
		EndsAt:         input.EndsAt,
		SignupDeadline: input.SignupDeadline,
		Location:       input.Location,
		Description:    input.Description,
		ImageURL:       input.ImageURL,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.activityRepo.CreateWithOrganizer(ctx, activity, ownerID); err != nil {
		return nil, fmt.Errorf("アクティビティの作成に失敗しました: %w", err)
	}

	return activity, nil
}

// Update はアクティビティを編集する。主催者のみ実行できる。
// 検証に失敗した場合はいずれのフィールドも更新しない。
func (s *Service) Update(ctx context.Context, userID, activityID string, input Input) (*model.Activity, error) {
	activity, err := s.activityRepo.FindByID(ctx, activityID)
	if err != nil {
		return nil, fmt.Errorf("アクティビティの取得に失敗しました: %w", err)
	}
	if activity == nil {
		return nil, model.NewActivityNotFoundError(activityID)
	}

	p, err := s.participantRepo.FindByActivityAndUser(ctx, activityID, userID)
	if err != nil {
		return nil, fmt.Errorf("参加行の取得に失敗しました: %w", err)
	}
	if p == nil || p.Role != model.RoleOrganizer {
		return nil, model.NewOrganizerRequiredError()
	}

	if err := s.validate(&input); err != nil {
		return nil, err
	}

	activity.Name = input.Name
	activity.Category = input.Category
	activity.StartsAt = input.StartsAt
	activity.EndsAt = input.EndsAt
	activity.SignupDeadline = input.SignupDeadline
	activity.Location = input.Location
	activity.Description = input.Description
	activity.ImageURL = input.ImageURL
	activity.UpdatedAt = time.Now()

	if err := s.activityRepo.Update(ctx, activity); err != nil {
		return nil, fmt.Errorf("アクティビティの更新に失敗しました: %w", err)
	}

	return activity, nil
}

// Get はアクティビティ詳細を返す。
// viewerIDが空でない場合は閲覧者の参加状態も含める。
func (s *Service) Get(ctx context.Context, activityID, viewerID string) (*Detail, error) {
	activity, err := s.activityRepo.FindByID(ctx, activityID)
	if err != nil {
		return nil, fmt.Errorf("アクティビティの取得に失敗しました: %w", err)
	}
	if activity == nil {
		return nil, model.NewActivityNotFoundError(activityID)
	}

	joined, err := s.participantRepo.CountJoined(ctx, activityID)
	if err != nil {
		return nil, fmt.Errorf("参加者数の取得に失敗しました: %w", err)
	}

	detail := &Detail{
		Activity:    *activity,
		JoinedCount: joined,
	}

	if viewerID != "" {
		p, err := s.participantRepo.FindByActivityAndUser(ctx, activityID, viewerID)
		if err != nil {
			return nil, fmt.Errorf("参加行の取得に失敗しました: %w", err)
		}
		if p != nil {
			detail.MyStatus = p.Status
			detail.MyRole = p.Role
		}
	}

	return detail, nil
}

// List はアクティビティ一覧を返す。
// categoryが空の場合は全カテゴリ、空でない場合は定義済みカテゴリのみ受け付ける。
// 終了済みのアクティビティは含めない。
func (s *Service) List(ctx context.Context, category model.Category, limit int) ([]repository.ActivityWithCounts, error) {
	if category != "" && !model.IsValidCategory(category) {
		return nil, model.NewInvalidCategoryError(string(category))
	}
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	results, err := s.activityRepo.List(ctx, category, time.Now(), limit)
	if err != nil {
		return nil, fmt.Errorf("アクティビティ一覧の取得に失敗しました: %w", err)
	}
	return results, nil
}

// ListMine は指定ユーザーが参加しているアクティビティ一覧を返す。
func (s *Service) ListMine(ctx context.Context, userID string) ([]repository.ActivityWithCounts, error) {
	results, err := s.activityRepo.ListByParticipant(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("参加中アクティビティ一覧の取得に失敗しました: %w", err)
	}
	return results, nil
}

// validate は入力を検証し、説明文をサニタイズする。
// 検証順序: 名前、カテゴリ、日程、画像URL。
func (s *Service) validate(input *Input) error {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" || len([]rune(input.Name)) > MaxNameLength {
		return model.NewInvalidActivityError(fmt.Sprintf("アクティビティ名は1文字以上%d文字以内で指定してください", MaxNameLength))
	}

	if !model.IsValidCategory(input.Category) {
		return model.NewInvalidCategoryError(string(input.Category))
	}

	if input.StartsAt.IsZero() || input.EndsAt.IsZero() || input.SignupDeadline.IsZero() {
		return model.NewInvalidScheduleError("開始日時、終了日時、申込締切は全て必須です")
	}
	if input.EndsAt.Before(input.StartsAt) {
		return model.NewInvalidScheduleError("終了日時が開始日時より前です")
	}
	if input.SignupDeadline.After(input.StartsAt) {
		return model.NewInvalidScheduleError("申込締切が開始日時より後です")
	}

	input.Description = s.sanitizer.SanitizeText(input.Description)
	if len([]rune(input.Description)) > MaxDescriptionLength {
		return model.NewInvalidActivityError(fmt.Sprintf("説明文は%d文字以内で指定してください", MaxDescriptionLength))
	}

	if input.ImageURL != "" {
		if err := s.ssrfGuard.ValidateURL(input.ImageURL); err != nil {
			return model.NewInvalidImageURLError(err.Error())
		}
	}

	return nil
}
