package handler

import (
	"context"
	"errors"

	"github.com/hitoshi/tsudoi/internal/activity"
	"github.com/hitoshi/tsudoi/internal/metrics"
	"github.com/hitoshi/tsudoi/internal/model"
)

// InstrumentedAuthService はAuthServiceInterfaceをラップし、
// ログイン成功をメトリクスに記録するデコレーター。
type InstrumentedAuthService struct {
	AuthServiceInterface
	collector metrics.MetricsCollector
}

// NewInstrumentedAuthService はInstrumentedAuthServiceを生成する。
func NewInstrumentedAuthService(svc AuthServiceInterface, collector metrics.MetricsCollector) *InstrumentedAuthService {
	return &InstrumentedAuthService{
		AuthServiceInterface: svc,
		collector:            collector,
	}
}

// HandleCallback は認証処理を委譲し、成功時にログインを記録する。
func (s *InstrumentedAuthService) HandleCallback(ctx context.Context, code, expectedNonce string) (*model.Session, error) {
	session, err := s.AuthServiceInterface.HandleCallback(ctx, code, expectedNonce)
	if err == nil {
		s.collector.RecordLogin()
	}
	return session, err
}

// InstrumentedActivityService はActivityServiceInterfaceをラップし、
// アクティビティ作成をメトリクスに記録するデコレーター。
type InstrumentedActivityService struct {
	ActivityServiceInterface
	collector metrics.MetricsCollector
}

// NewInstrumentedActivityService はInstrumentedActivityServiceを生成する。
func NewInstrumentedActivityService(svc ActivityServiceInterface, collector metrics.MetricsCollector) *InstrumentedActivityService {
	return &InstrumentedActivityService{
		ActivityServiceInterface: svc,
		collector:                collector,
	}
}

// Create はアクティビティ作成を委譲し、成功時にカテゴリ別カウンタを記録する。
func (s *InstrumentedActivityService) Create(ctx context.Context, ownerID string, input activity.Input) (*model.Activity, error) {
	created, err := s.ActivityServiceInterface.Create(ctx, ownerID, input)
	if err == nil {
		s.collector.RecordActivityCreated(string(created.Category))
	}
	return created, err
}

// InstrumentedParticipationService はParticipationServiceInterfaceをラップし、
// 参加操作の結果をメトリクスに記録するデコレーター。
type InstrumentedParticipationService struct {
	ParticipationServiceInterface
	collector metrics.MetricsCollector
}

// NewInstrumentedParticipationService はInstrumentedParticipationServiceを生成する。
func NewInstrumentedParticipationService(svc ParticipationServiceInterface, collector metrics.MetricsCollector) *InstrumentedParticipationService {
	return &InstrumentedParticipationService{
		ParticipationServiceInterface: svc,
		collector:                     collector,
	}
}

// Join は参加処理を委譲し、結果をカウンタに記録する。
func (s *InstrumentedParticipationService) Join(ctx context.Context, activityID, userID string) (*model.Participant, error) {
	p, err := s.ParticipationServiceInterface.Join(ctx, activityID, userID)
	s.collector.RecordJoin(joinOutcome(err))
	return p, err
}

// joinOutcome は参加処理の結果をメトリクスのラベル値に変換する。
func joinOutcome(err error) string {
	if err == nil {
		return "joined"
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case model.ErrCodeAlreadyJoined:
			return "already_joined"
		case model.ErrCodeRegistrationClosed:
			return "closed"
		case model.ErrCodeActivityNotFound:
			return "not_found"
		}
	}
	return "error"
}

// InstrumentedMessageService はMessageServiceInterfaceをラップし、
// メッセージ投稿をメトリクスに記録するデコレーター。
type InstrumentedMessageService struct {
	MessageServiceInterface
	collector metrics.MetricsCollector
}

// NewInstrumentedMessageService はInstrumentedMessageServiceを生成する。
func NewInstrumentedMessageService(svc MessageServiceInterface, collector metrics.MetricsCollector) *InstrumentedMessageService {
	return &InstrumentedMessageService{
		MessageServiceInterface: svc,
		collector:               collector,
	}
}

// Append はメッセージ投稿を委譲し、成功時にカウンタを記録する。
func (s *InstrumentedMessageService) Append(ctx context.Context, activityID, authorID, body string) (*model.Message, error) {
	created, err := s.MessageServiceInterface.Append(ctx, activityID, authorID, body)
	if err == nil {
		s.collector.RecordMessagePosted()
	}
	return created, err
}

// --- compile-time interface checks ---

var _ AuthServiceInterface = (*InstrumentedAuthService)(nil)
var _ ActivityServiceInterface = (*InstrumentedActivityService)(nil)
var _ ParticipationServiceInterface = (*InstrumentedParticipationService)(nil)
var _ MessageServiceInterface = (*InstrumentedMessageService)(nil)
