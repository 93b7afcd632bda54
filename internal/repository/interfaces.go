// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/hitoshi/tsudoi/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// CreateWithIdentity はユーザー、identity、初期プロフィールを
	// 同一トランザクションで作成する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// Update はユーザーのemailとnameを更新する。
	Update(ctx context.Context, user *model.User) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)

	// FindByUserID はユーザーIDでidentityを検索する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.Identity, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
// Postgres実装のほか、テスト・小規模運用向けのインメモリ実装がある。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// ActivityRepository はアクティビティデータの永続化インターフェース。
type ActivityRepository interface {
	// FindByID は指定IDのアクティビティを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Activity, error)

	// CreateWithOrganizer はアクティビティと主催者の参加行を
	// 同一トランザクションで作成する。
	CreateWithOrganizer(ctx context.Context, activity *model.Activity, organizerID string) error

	// Update はアクティビティの編集可能フィールドを全て上書きする。
	Update(ctx context.Context, activity *model.Activity) error

	// List はアクティビティ一覧を開始日時昇順で返す。
	// categoryが空文字列の場合は全カテゴリを対象とする。
	List(ctx context.Context, category model.Category, from time.Time, limit int) ([]ActivityWithCounts, error)

	// ListByParticipant は指定ユーザーが取り消し以外の状態で参加している
	// アクティビティ一覧を開始日時昇順で返す。
	ListByParticipant(ctx context.Context, userID string) ([]ActivityWithCounts, error)
}

// ParticipantRepository は参加台帳の永続化インターフェース。
// (activity_id, user_id)の一意性はUNIQUE制約で保証する。
type ParticipantRepository interface {
	// FindByActivityAndUser はアクティビティIDとユーザーIDで参加行を検索する。
	// 見つからない場合はnilを返す。
	FindByActivityAndUser(ctx context.Context, activityID, userID string) (*model.Participant, error)

	// Create は参加行を挿入する。既に行が存在する場合は挿入せずfalseを返す。
	// 同時参加の競合はINSERT ... ON CONFLICT DO NOTHINGで解決する。
	Create(ctx context.Context, p *model.Participant) (bool, error)

	// UpdateStatus は参加行の状態を更新する。行が存在しない場合はエラーを返す。
	UpdateStatus(ctx context.Context, activityID, userID string, status model.ParticipantStatus) error

	// ApprovePending は指定アクティビティの承認待ち参加者を一括でjoinedへ更新し、
	// 更新した行数を返す。
	ApprovePending(ctx context.Context, activityID string) (int, error)

	// TransferOrganizer は主催者権限を移譲する。
	// 現主催者をparticipantへ降格し、移譲先をorganizerへ昇格する操作を
	// 同一トランザクションで行う。
	TransferOrganizer(ctx context.Context, activityID, fromUserID, toUserID string) error

	// ListByActivity はアクティビティの参加者一覧をユーザー情報付きで返す。
	// 役割（organizer優先）、作成日時昇順で整列する。
	ListByActivity(ctx context.Context, activityID string) ([]ParticipantWithUser, error)

	// CountJoined はアクティビティの参加確定者数を返す。
	CountJoined(ctx context.Context, activityID string) (int, error)
}

// MessageRepository はグループチャットメッセージの永続化インターフェース。
type MessageRepository interface {
	// Create はメッセージを追記する。
	Create(ctx context.Context, message *model.Message) error

	// ListByActivity はアクティビティのメッセージ一覧を作成日時昇順で返す。
	// cursorがゼロ値の場合は先頭から取得する。
	ListByActivity(ctx context.Context, activityID string, cursor time.Time, limit int) ([]*model.Message, error)
}

// ProfileRepository はユーザープロフィールの永続化インターフェース。
type ProfileRepository interface {
	// FindByUserID は指定ユーザーのプロフィールを取得する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.Profile, error)

	// UpdateDisplayName は表示名を更新する。
	UpdateDisplayName(ctx context.Context, userID, displayName string) error

	// UpdateInterests は興味カテゴリを更新する。
	UpdateInterests(ctx context.Context, userID string, interests []model.Category) error

	// UpdateAvatar はアバター画像データを更新する。
	UpdateAvatar(ctx context.Context, userID string, avatarData []byte, avatarMime string) error
}

// ActivityWithCounts はアクティビティと参加者数を結合した構造体。
type ActivityWithCounts struct {
	model.Activity
	JoinedCount  int
	PendingCount int
}

// ParticipantWithUser は参加行とユーザーの表示情報を結合した構造体。
type ParticipantWithUser struct {
	model.Participant
	UserName    string
	DisplayName string
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
