// Package model はドメインモデルを定義する。
package model

import "time"

// Message はアクティビティのグループチャットに追記されるメッセージを表す。
// 追記専用で、編集・削除は存在しない。
type Message struct {
	ID         string
	ActivityID string
	AuthorID   string
	AuthorName string
	Body       string
	CreatedAt  time.Time
}

// MaxMessageLength はメッセージ本文の最大文字数。
const MaxMessageLength = 2000
