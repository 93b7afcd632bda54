// Package participation は参加台帳のドメインロジックを提供する。
//
// 参加状態は行なし（未参加）を起点に、joined、pending、canceledの間を
// 定義された遷移でのみ移動する。(activity_id, user_id)につき行は最大1つで、
// 取り消し後の再参加は既存行のstatusを書き換えることで表現する。
package participation

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/tsudoi/internal/model"
	"github.com/hitoshi/tsudoi/internal/repository"
)

// Service は参加台帳のサービス層。
// 参加、取り消し、承認、状態変更、主催者移譲、一覧取得のビジネスロジックを提供する。
type Service struct {
	activityRepo    repository.ActivityRepository
	participantRepo repository.ParticipantRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	activityRepo repository.ActivityRepository,
	participantRepo repository.ParticipantRepository,
) *Service {
	return &Service{
		activityRepo:    activityRepo,
		participantRepo: participantRepo,
	}
}

// Join はユーザーをアクティビティに参加させる。
// 申込締切後は参加できない。取り消し済みの行がある場合は同じ行を再利用して
// joinedへ戻す（CreatedAtは初回参加時のまま保持される）。
// 同時に同じユーザーが参加した場合、挿入に成功するのは片方だけで、
// もう片方にはALREADY_JOINEDを返す。
func (s *Service) Join(ctx context.Context, activityID, userID string) (*model.Participant, error) {
	activity, err := s.activityRepo.FindByID(ctx, activityID)
	if err != nil {
		return nil, fmt.Errorf("アクティビティの取得に失敗しました: %w", err)
	}
	if activity == nil {
		return nil, model.NewActivityNotFoundError(activityID)
	}

	now := time.Now()
	if now.After(activity.SignupDeadline) {
		return nil, model.NewRegistrationClosedError()
	}

	existing, err := s.participantRepo.FindByActivityAndUser(ctx, activityID, userID)
	if err != nil {
		return nil, fmt.Errorf("参加行の検索に失敗しました: %w", err)
	}

	if existing != nil {
		if existing.Status != model.ParticipantStatusCanceled {
			return nil, model.NewAlreadyJoinedError()
		}
		// 再参加: 既存行を再利用する
		if err := s.participantRepo.UpdateStatus(ctx, activityID, userID, model.ParticipantStatusJoined); err != nil {
			return nil, fmt.Errorf("再参加の反映に失敗しました: %w", err)
		}
		existing.Status = model.ParticipantStatusJoined
		existing.UpdatedAt = now
		return existing, nil
	}

	p := &model.Participant{
		ActivityID: activityID,
		UserID:     userID,
		Status:     model.ParticipantStatusJoined,
		Role:       model.RoleParticipant,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	inserted, err := s.participantRepo.Create(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("参加行の作成に失敗しました: %w", err)
	}
	if !inserted {
		// UNIQUE制約で競合した。先に参加した方が勝つ。
		return nil, model.NewAlreadyJoinedError()
	}

	return p, nil
}

// Cancel はユーザー自身の参加を取り消す。
// 主催者は移譲するまで取り消せない。取り消し済みの行への再取り消しは拒否する。
func (s *Service) Cancel(ctx context.Context, activityID, userID string) error {
	activity, err := s.activityRepo.FindByID(ctx, activityID)
	if err != nil {
		return fmt.Errorf("アクティビティの取得に失敗しました: %w", err)
	}
	if activity == nil {
		return model.NewActivityNotFoundError(activityID)
	}

	p, err := s.participantRepo.FindByActivityAndUser(ctx, activityID, userID)
	if err != nil {
		return fmt.Errorf("参加行の検索に失敗しました: %w", err)
	}
	if p == nil {
		return model.NewParticipantNotFoundError()
	}
	if p.Role == model.RoleOrganizer {
		return model.NewOrganizerCannotLeaveError()
	}
	if p.Status == model.ParticipantStatusCanceled {
		return model.NewAlreadyCanceledError()
	}

	if err := s.participantRepo.UpdateStatus(ctx, activityID, userID, model.ParticipantStatusCanceled); err != nil {
		return fmt.Errorf("参加取り消しの反映に失敗しました: %w", err)
	}
	return nil
}

// SetStatus は主催者が参加者の状態を変更する。
// 役割の変更はこの操作では行えない。主催者権限の移動はTransferOrganizerを使う。
func (s *Service) SetStatus(ctx context.Context, activityID, actorID, targetUserID string, status model.ParticipantStatus) error {
	if status != model.ParticipantStatusJoined &&
		status != model.ParticipantStatusPending &&
		status != model.ParticipantStatusCanceled {
		return model.NewInvalidTransitionError("", status)
	}

	if err := s.requireOrganizer(ctx, activityID, actorID); err != nil {
		return err
	}

	target, err := s.participantRepo.FindByActivityAndUser(ctx, activityID, targetUserID)
	if err != nil {
		return fmt.Errorf("参加行の検索に失敗しました: %w", err)
	}
	if target == nil {
		return model.NewParticipantNotFoundError()
	}
	if target.Role == model.RoleOrganizer && status == model.ParticipantStatusCanceled {
		return model.NewOrganizerCannotLeaveError()
	}

	if !allowedTransition(target.Status, status) {
		return model.NewInvalidTransitionError(target.Status, status)
	}

	if err := s.participantRepo.UpdateStatus(ctx, activityID, targetUserID, status); err != nil {
		return fmt.Errorf("参加状態の更新に失敗しました: %w", err)
	}
	return nil
}

// ApprovePending は主催者が承認待ちの参加者を一括で承認する。
// 承認した人数を返す。承認待ちがいない場合は0を返す。
func (s *Service) ApprovePending(ctx context.Context, activityID, actorID string) (int, error) {
	if err := s.requireOrganizer(ctx, activityID, actorID); err != nil {
		return 0, err
	}

	approved, err := s.participantRepo.ApprovePending(ctx, activityID)
	if err != nil {
		return 0, fmt.Errorf("承認待ち参加者の承認に失敗しました: %w", err)
	}
	return approved, nil
}

// TransferOrganizer は主催者権限を参加確定済みの別の参加者へ移譲する。
// 移譲後も主催者はちょうど1人のまま保たれる。
func (s *Service) TransferOrganizer(ctx context.Context, activityID, actorID, targetUserID string) error {
	if actorID == targetUserID {
		return model.NewInvalidTransitionError(model.ParticipantStatusJoined, model.ParticipantStatusJoined)
	}

	if err := s.requireOrganizer(ctx, activityID, actorID); err != nil {
		return err
	}

	target, err := s.participantRepo.FindByActivityAndUser(ctx, activityID, targetUserID)
	if err != nil {
		return fmt.Errorf("参加行の検索に失敗しました: %w", err)
	}
	if target == nil {
		return model.NewParticipantNotFoundError()
	}
	if target.Status != model.ParticipantStatusJoined {
		return model.NewInvalidTransitionError(target.Status, model.ParticipantStatusJoined)
	}

	if err := s.participantRepo.TransferOrganizer(ctx, activityID, actorID, targetUserID); err != nil {
		return fmt.Errorf("主催者権限の移譲に失敗しました: %w", err)
	}
	return nil
}

// List はアクティビティの参加者一覧を返す。
// 取り消し済み以外の状態で参加しているメンバーのみ閲覧できる。
func (s *Service) List(ctx context.Context, activityID, viewerID string) ([]repository.ParticipantWithUser, error) {
	viewer, err := s.participantRepo.FindByActivityAndUser(ctx, activityID, viewerID)
	if err != nil {
		return nil, fmt.Errorf("参加行の検索に失敗しました: %w", err)
	}
	if viewer == nil || viewer.Status == model.ParticipantStatusCanceled {
		return nil, model.NewNotAMemberError()
	}

	participants, err := s.participantRepo.ListByActivity(ctx, activityID)
	if err != nil {
		return nil, fmt.Errorf("参加者一覧の取得に失敗しました: %w", err)
	}
	return participants, nil
}

// requireOrganizer はactorがアクティビティの主催者であることを確認する。
func (s *Service) requireOrganizer(ctx context.Context, activityID, actorID string) error {
	activity, err := s.activityRepo.FindByID(ctx, activityID)
	if err != nil {
		return fmt.Errorf("アクティビティの取得に失敗しました: %w", err)
	}
	if activity == nil {
		return model.NewActivityNotFoundError(activityID)
	}

	actor, err := s.participantRepo.FindByActivityAndUser(ctx, activityID, actorID)
	if err != nil {
		return fmt.Errorf("参加行の検索に失敗しました: %w", err)
	}
	if actor == nil || actor.Role != model.RoleOrganizer {
		return model.NewOrganizerRequiredError()
	}
	return nil
}

// allowedTransition は参加状態の遷移が許可されているかを判定する。
// joined → {pending, canceled}
// pending → {joined, canceled}
// canceled → 遷移不可（再参加は本人のJoinでのみ行なしと同様に扱う）
func allowedTransition(from, to model.ParticipantStatus) bool {
	if from == to {
		return false
	}
	switch from {
	case model.ParticipantStatusJoined:
		return to == model.ParticipantStatusPending || to == model.ParticipantStatusCanceled
	case model.ParticipantStatusPending:
		return to == model.ParticipantStatusJoined || to == model.ParticipantStatusCanceled
	default:
		return false
	}
}
