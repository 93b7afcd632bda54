// Package message はアクティビティのグループチャットのドメインロジックを提供する。
package message

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

const (
	// DefaultListLimit は一覧取得のデフォルト件数。
	DefaultListLimit = 50
	// MaxListLimit は一覧取得の最大件数。
	MaxListLimit = 200
)

// Service はグループチャットのサービス層。
// 投稿と一覧取得を提供する。メッセージは追記専用で編集・削除はない。
type Service struct {
	messageRepo     repository.MessageRepository
	participantRepo repository.ParticipantRepository
	profileRepo     repository.ProfileRepository
	sanitizer       security.ContentSanitizerService
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	messageRepo repository.MessageRepository,
	participantRepo repository.ParticipantRepository,
	profileRepo repository.ProfileRepository,
	sanitizer security.ContentSanitizerService,
) *Service {
	return &Service{
		messageRepo:     messageRepo,
		participantRepo: participantRepo,
		profileRepo:     profileRepo,
		sanitizer:       sanitizer,
	}
}

// Append はメッセージを投稿する。
// 取り消し済み以外の状態で参加しているメンバーのみ投稿できる。
// 本文はサニタイズ後に空でないこと、最大長以内であることを検証する。
// 作成されたメッセージを投稿者の表示名付きで返す。
func (s *Service) Append(ctx context.Context, activityID, authorID, body string) (*model.Message, error) {
	if err := s.requireMembership(ctx, activityID, authorID); err != nil {
		return nil, err
	}

	body = strings.TrimSpace(s.sanitizer.SanitizeText(body))
	if body == "" {
		return nil, model.NewEmptyMessageError()
	}
	if len([]rune(body)) > model.MaxMessageLength {
		return nil, model.NewMessageTooLongError()
	}

	message := &model.Message{
		ID:         uuid.New().String(),
		ActivityID: activityID,
		AuthorID:   authorID,
		Body:       body,
		CreatedAt:  time.Now(),
	}

	if err := s.messageRepo.Create(ctx, message); err != nil {
		return nil, fmt.Errorf("メッセージの保存に失敗しました: %w", err)
	}

	profile, err := s.profileRepo.FindByUserID(ctx, authorID)
	if err != nil {
		return nil, fmt.Errorf("投稿者プロフィールの取得に失敗しました: %w", err)
	}
	if profile != nil {
		message.AuthorName = profile.DisplayName
	}

	return message, nil
}

// List はアクティビティのメッセージ一覧を作成日時昇順で返す。
// 取り消し済み以外の状態で参加しているメンバーのみ閲覧できる。
// cursorより後のメッセージをlimit件まで返す。cursorがゼロ値の場合は先頭から返す。
func (s *Service) List(ctx context.Context, activityID, viewerID string, cursor time.Time, limit int) ([]*model.Message, error) {
	if err := s.requireMembership(ctx, activityID, viewerID); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	messages, err := s.messageRepo.ListByActivity(ctx, activityID, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("メッセージ一覧の取得に失敗しました: %w", err)
	}
	return messages, nil
}

// requireMembership はユーザーが取り消し済み以外の状態で参加していることを確認する。
func (s *Service) requireMembership(ctx context.Context, activityID, userID string) error {
	p, err := s.participantRepo.FindByActivityAndUser(ctx, activityID, userID)
	if err != nil {
		return fmt.Errorf("参加行の検索に失敗しました: %w", err)
	}
	if p == nil || p.Status == model.ParticipantStatusCanceled {
		return model.NewNotAMemberError()
	}
	return nil
}
