// Package model はドメインモデルを定義する。
package model

import "time"

// Activity はスケジュールと場所を持つイベント（アクティビティ）を表す。
// OwnerIDは作成時に確定し、以後変更されない。
type Activity struct {
	ID             string
	OwnerID        string
	Name           string
	Category       Category
	StartsAt       time.Time
	EndsAt         time.Time
	SignupDeadline time.Time
	Location       string
	Description    string
	ImageURL       string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Category はアクティビティの分類を表す固定文字列enum。
// プロフィールの興味タグも同じカテゴリ集合を使う。
type Category string

const (
	CategorySports  Category = "sports"
	CategoryMusic   Category = "music"
	CategoryStudy   Category = "study"
	CategoryOutdoor Category = "outdoor"
	CategoryFood    Category = "food"
	CategoryGame    Category = "game"
	CategoryArt     Category = "art"
	CategoryOther   Category = "other"
)

// Categories は定義済みの全カテゴリ。
var Categories = []Category{
	CategorySports, CategoryMusic, CategoryStudy, CategoryOutdoor,
	CategoryFood, CategoryGame, CategoryArt, CategoryOther,
}

// IsValidCategory はカテゴリが定義済みかどうかを判定する。
func IsValidCategory(c Category) bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}

// Participant はユーザーとアクティビティの参加関係を表す。
// (ActivityID, UserID)が複合キー。1ペアにつき行は最大1つで、
// 一意性はストレージ層のUNIQUE制約で保証する。
type Participant struct {
	ActivityID string
	UserID     string
	Status     ParticipantStatus
	Role       ParticipantRole
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ParticipantStatus は参加状態を表す。
// 遷移: NONE(行なし) → joined → {canceled, pending}、pending → {joined, canceled}、
// canceled → joined（本人の再参加のみ）。
type ParticipantStatus string

const (
	// ParticipantStatusJoined は参加確定状態。
	ParticipantStatusJoined ParticipantStatus = "joined"
	// ParticipantStatusPending は主催者の承認待ち状態。
	ParticipantStatusPending ParticipantStatus = "pending"
	// ParticipantStatusCanceled は参加取り消し状態。
	ParticipantStatusCanceled ParticipantStatus = "canceled"
)

// ParticipantRole は参加者の役割を表す。
// 各アクティビティにはrole=organizerの行が常にちょうど1つ存在する。
type ParticipantRole string

const (
	// RoleOrganizer はアクティビティの主催者。編集・承認・役割管理の権限を持つ。
	RoleOrganizer ParticipantRole = "organizer"
	// RoleParticipant は一般参加者。
	RoleParticipant ParticipantRole = "participant"
)
