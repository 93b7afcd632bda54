// Package logger は構造化ログの初期化を提供する。
// 全プロセス（API、ワーカー、マイグレーション）で同じJSON形式のログを出す。
package logger

import (
	"io"
	"log/slog"
	"os"
)

// Setup はJSON形式のslog.Loggerを生成して返す。
func Setup(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// SetupDefault はSetupで生成したロガーをグローバルロガーに設定する。
// wがnilの場合はos.Stdoutに出力する。
func SetupDefault(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	slog.SetDefault(Setup(w))
}
