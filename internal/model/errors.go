// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, activity, participation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeActivityNotFound     = "ACTIVITY_NOT_FOUND"
	ErrCodeParticipantNotFound  = "PARTICIPANT_NOT_FOUND"
	ErrCodeUserNotFound         = "USER_NOT_FOUND"
	ErrCodeRegistrationClosed   = "REGISTRATION_CLOSED"
	ErrCodeAlreadyJoined        = "ALREADY_JOINED"
	ErrCodeAlreadyCanceled      = "ALREADY_CANCELED"
	ErrCodeOrganizerRequired    = "ORGANIZER_REQUIRED"
	ErrCodeOrganizerCannotLeave = "ORGANIZER_CANNOT_LEAVE"
	ErrCodeNotAMember           = "NOT_A_MEMBER"
	ErrCodeInvalidTransition    = "INVALID_TRANSITION"
	ErrCodeInvalidSchedule      = "INVALID_SCHEDULE"
	ErrCodeInvalidActivity      = "INVALID_ACTIVITY"
	ErrCodeInvalidCategory      = "INVALID_CATEGORY"
	ErrCodeInvalidInterests     = "INVALID_INTERESTS"
	ErrCodeInvalidDisplayName   = "INVALID_DISPLAY_NAME"
	ErrCodeEmptyMessage         = "EMPTY_MESSAGE"
	ErrCodeMessageTooLong       = "MESSAGE_TOO_LONG"
	ErrCodePasswordPolicy       = "PASSWORD_POLICY"
	ErrCodePasswordMismatch     = "PASSWORD_MISMATCH"
	ErrCodeAuthUpstreamFailed   = "AUTH_UPSTREAM_FAILED"
	ErrCodeInvalidImageURL      = "INVALID_IMAGE_URL"
	ErrCodeImageFetchFailed     = "IMAGE_FETCH_FAILED"
	ErrCodeSSRFBlocked          = "SSRF_BLOCKED"
)

// NewActivityNotFoundError はアクティビティ未検出エラーを生成する。
func NewActivityNotFoundError(activityID string) *APIError {
	return &APIError{
		Code:     ErrCodeActivityNotFound,
		Message:  fmt.Sprintf("指定されたアクティビティが見つかりません: %s", activityID),
		Category: "activity",
		Action:   "アクティビティIDを確認してください。",
	}
}

// NewParticipantNotFoundError は参加レコード未検出エラーを生成する。
func NewParticipantNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeParticipantNotFound,
		Message:  "参加レコードが見つかりません。",
		Category: "participation",
		Action:   "このアクティビティに参加しているか確認してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewRegistrationClosedError は申込締切超過エラーを生成する。
func NewRegistrationClosedError() *APIError {
	return &APIError{
		Code:     ErrCodeRegistrationClosed,
		Message:  "このアクティビティの申込は締め切られています。",
		Category: "participation",
		Action:   "他のアクティビティを探してください。",
	}
}

// NewAlreadyJoinedError は重複参加エラーを生成する。
func NewAlreadyJoinedError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyJoined,
		Message:  "このアクティビティには既に参加しています。",
		Category: "participation",
		Action:   "参加一覧から状態を確認してください。",
	}
}

// NewAlreadyCanceledError は取り消し済み行への再取り消しエラーを生成する。
func NewAlreadyCanceledError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyCanceled,
		Message:  "参加は既に取り消されています。",
		Category: "participation",
		Action:   "再参加する場合はもう一度参加登録してください。",
	}
}

// NewOrganizerRequiredError は主催者専用操作に対する権限エラーを生成する。
func NewOrganizerRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeOrganizerRequired,
		Message:  "この操作はアクティビティの主催者のみ実行できます。",
		Category: "participation",
		Action:   "主催者に依頼してください。",
	}
}

// NewOrganizerCannotLeaveError は主催者の参加取り消しエラーを生成する。
func NewOrganizerCannotLeaveError() *APIError {
	return &APIError{
		Code:     ErrCodeOrganizerCannotLeave,
		Message:  "主催者は参加を取り消せません。",
		Category: "participation",
		Action:   "先に主催者権限を他の参加者に移譲してください。",
	}
}

// NewNotAMemberError は非メンバーによるグループ操作エラーを生成する。
func NewNotAMemberError() *APIError {
	return &APIError{
		Code:     ErrCodeNotAMember,
		Message:  "このアクティビティのメンバーではありません。",
		Category: "participation",
		Action:   "アクティビティに参加してから操作してください。",
	}
}

// NewInvalidTransitionError は許可されない状態遷移エラーを生成する。
func NewInvalidTransitionError(from, to ParticipantStatus) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTransition,
		Message:  fmt.Sprintf("参加状態を %s から %s へは変更できません。", from, to),
		Category: "participation",
		Action:   "現在の参加状態を確認してください。",
	}
}

// NewInvalidScheduleError は日付整合性エラーを生成する。
func NewInvalidScheduleError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSchedule,
		Message:  fmt.Sprintf("日程が不正です: %s", reason),
		Category: "validation",
		Action:   "終了日時は開始日時以降、申込締切は開始日時以前に設定してください。",
	}
}

// NewInvalidActivityError はアクティビティ入力のバリデーションエラーを生成する。
func NewInvalidActivityError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidActivity,
		Message:  fmt.Sprintf("アクティビティの入力が不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewInvalidCategoryError は未定義カテゴリエラーを生成する。
func NewInvalidCategoryError(category string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCategory,
		Message:  fmt.Sprintf("未定義のカテゴリです: %s", category),
		Category: "validation",
		Action:   "定義済みのカテゴリから選択してください。",
	}
}

// NewInvalidInterestsError は興味タグのバリデーションエラーを生成する。
func NewInvalidInterestsError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidInterests,
		Message:  fmt.Sprintf("興味タグが不正です: %s", reason),
		Category: "validation",
		Action:   fmt.Sprintf("興味タグは定義済みカテゴリから最大%d件、重複なしで指定してください。", MaxInterests),
	}
}

// NewInvalidDisplayNameError は表示名のバリデーションエラーを生成する。
func NewInvalidDisplayNameError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDisplayName,
		Message:  fmt.Sprintf("表示名が不正です: %s", reason),
		Category: "validation",
		Action:   "表示名は1文字以上50文字以内で指定してください。",
	}
}

// NewEmptyMessageError は空メッセージエラーを生成する。
func NewEmptyMessageError() *APIError {
	return &APIError{
		Code:     ErrCodeEmptyMessage,
		Message:  "メッセージ本文が空です。",
		Category: "validation",
		Action:   "本文を入力してください。",
	}
}

// NewMessageTooLongError はメッセージ長超過エラーを生成する。
func NewMessageTooLongError() *APIError {
	return &APIError{
		Code:     ErrCodeMessageTooLong,
		Message:  fmt.Sprintf("メッセージ本文が長すぎます（最大%d文字）。", MaxMessageLength),
		Category: "validation",
		Action:   "本文を短くしてください。",
	}
}

// NewPasswordPolicyError はIdP側のパスワードポリシー違反エラーを生成する。
// reasonにはIdPが返した検証メッセージをそのまま載せる。
func NewPasswordPolicyError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodePasswordPolicy,
		Message:  fmt.Sprintf("パスワードがポリシーを満たしていません: %s", reason),
		Category: "validation",
		Action:   "IdPのパスワード要件（最小長・文字種）を満たすパスワードを指定してください。",
	}
}

// NewPasswordMismatchError は現在パスワードの確認失敗エラーを生成する。
func NewPasswordMismatchError() *APIError {
	return &APIError{
		Code:     ErrCodePasswordMismatch,
		Message:  "現在のパスワードが一致しません。",
		Category: "auth",
		Action:   "現在のパスワードを確認して再入力してください。",
	}
}

// NewAuthUpstreamFailedError はIdPとの通信失敗エラーを生成する。
func NewAuthUpstreamFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthUpstreamFailed,
		Message:  "認証プロバイダーとの通信に失敗しました。",
		Category: "auth",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInvalidImageURLError は画像URLのバリデーションエラーを生成する。
func NewInvalidImageURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidImageURL,
		Message:  fmt.Sprintf("画像URLが不正です: %s", reason),
		Category: "validation",
		Action:   "https:// で始まる画像URLを指定してください。",
	}
}

// NewImageFetchFailedError は画像取得失敗エラーを生成する。
func NewImageFetchFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeImageFetchFailed,
		Message:  fmt.Sprintf("画像の取得に失敗しました: %s", reason),
		Category: "validation",
		Action:   "URLが正しいか確認し、しばらく待ってから再度お試しください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLへのアクセスがブロックされました。",
		Category: "validation",
		Action:   "公開されているWebサイトのURLを入力してください。ローカルネットワークやプライベートIPへのアクセスは許可されていません。",
	}
}
