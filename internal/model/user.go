// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// 認証は外部IdPに委譲しており、ローカルにはIdPのクレームのミラーだけを持つ。
type User struct {
	ID        string
	Email     string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Identity は外部IdPとの紐付け情報を表す。
// 将来的に複数のIdP（Keycloak, Google等）に対応可能な構造。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// Session はユーザーのログインセッションを表す。
// CookieのセッションIDとユーザーIDを紐付けるサーバー側レコード。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Profile はユーザーが自分で設定するプロフィール情報を表す。
// パスワード変更はIdPに完全に委譲し、ここではプロキシのみ行う。
type Profile struct {
	UserID      string
	DisplayName string
	AvatarData  []byte
	AvatarMime  string
	Interests   []Category
	UpdatedAt   time.Time
}

// MaxInterests はプロフィールに登録できる興味カテゴリの上限数。
const MaxInterests = 3
