// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizerService はユーザーが入力するテキスト（チャットメッセージ、
// アクティビティの説明文）をサニタイズし、XSS攻撃からユーザーを保護する。
// bluemondayライブラリの許可リストベースのポリシーを使用する。
package security

import (
	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はユーザー入力テキストのサニタイズ機能のインターフェースを定義する。
// チャットメッセージの保存前とアクティビティの説明文の保存前に使用される。
type ContentSanitizerService interface {
	// SanitizeText はユーザー入力からHTMLタグを全て除去し、プレーンテキストを返す。
	// チャット本文とアクティビティ説明文はリッチテキストを持たないため、
	// タグは許可せず全て剥がす。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	SanitizeText(raw string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicyは全てのタグと属性を除去し、テキストのみを残す。
// script, iframe, styleタグおよびon*イベント属性も当然除去される。
func NewContentSanitizer() *contentSanitizer {
	return &contentSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// SanitizeText はユーザー入力からHTMLタグを全て除去する。
func (s *contentSanitizer) SanitizeText(raw string) string {
	return s.policy.Sanitize(raw)
}
