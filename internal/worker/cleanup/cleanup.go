// Package cleanup は期限切れデータの自動削除ジョブを提供する。
// 期限切れセッションと保持期間を超過したチャットメッセージを
// 日次バッチで削除する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// CleanupJob は期限切れデータの自動削除ジョブ。
// 日次実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	db     Executor
	logger *slog.Logger
	// MessageRetentionDays はアクティビティ終了後にチャットメッセージを
	// 保持する日数（デフォルト: 365）。
	MessageRetentionDays int
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(db Executor, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		db:                   db,
		logger:               logger,
		MessageRetentionDays: 365,
	}
}

// Run は期限切れセッションと古いメッセージを削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	expiredSessions, err := j.purgeExpiredSessions(ctx)
	if err != nil {
		return err
	}

	oldMessages, err := j.purgeOldMessages(ctx)
	if err != nil {
		return err
	}

	duration := time.Since(start)
	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("expired_sessions", expiredSessions),
		slog.Int64("deleted_messages", oldMessages),
		slog.Int("message_retention_days", j.MessageRetentionDays),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// purgeExpiredSessions は有効期限切れのセッションを削除する。
func (j *CleanupJob) purgeExpiredSessions(ctx context.Context) (int64, error) {
	result, err := j.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < now()`)
	if err != nil {
		j.logger.Error("期限切れセッションの削除に失敗しました",
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("期限切れセッションの削除に失敗: %w", err)
	}
	return result.RowsAffected()
}

// purgeOldMessages は保持期間を超過したチャットメッセージを削除する。
// 保持期間はアクティビティの終了時刻を起点とする。終了から
// MessageRetentionDays日を過ぎたアクティビティのメッセージを一括で消す。
func (j *CleanupJob) purgeOldMessages(ctx context.Context) (int64, error) {
	interval := fmt.Sprintf("%d days", j.MessageRetentionDays)

	result, err := j.db.ExecContext(ctx,
		`DELETE FROM messages
		 WHERE activity_id IN (
		     SELECT id FROM activities WHERE ends_at < now() - $1::interval
		 )`, interval)
	if err != nil {
		j.logger.Error("古いメッセージの削除に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("message_retention_days", j.MessageRetentionDays),
		)
		return 0, fmt.Errorf("古いメッセージの削除に失敗: %w", err)
	}
	return result.RowsAffected()
}
