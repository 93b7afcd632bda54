package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/tsudoi/internal/model"
)

// PostgresMessageRepo はPostgreSQLを使用したメッセージリポジトリ。
type PostgresMessageRepo struct {
	db *sql.DB
}

// NewPostgresMessageRepo はPostgresMessageRepoを生成する。
func NewPostgresMessageRepo(db *sql.DB) *PostgresMessageRepo {
	return &PostgresMessageRepo{db: db}
}

// Create はメッセージを追記する。
func (r *PostgresMessageRepo) Create(ctx context.Context, message *model.Message) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO messages (id, activity_id, author_id, body, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		message.ID, message.ActivityID, message.AuthorID, message.Body, message.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("メッセージの作成に失敗しました: %w", err)
	}
	return nil
}

// ListByActivity はアクティビティのメッセージ一覧を作成日時昇順で返す。
// 投稿者の表示名はプロフィールとJOINして解決する。
// cursorがゼロ値の場合は先頭から取得する。
func (r *PostgresMessageRepo) ListByActivity(ctx context.Context, activityID string, cursor time.Time, limit int) ([]*model.Message, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT m.id, m.activity_id, m.author_id, pr.display_name, m.body, m.created_at
		 FROM messages m
		 JOIN profiles pr ON pr.user_id = m.author_id
		 WHERE m.activity_id = $1
		   AND ($2::timestamptz IS NULL OR m.created_at > $2)
		 ORDER BY m.created_at ASC, m.id ASC
		 LIMIT $3`,
		activityID, nullableTime(cursor), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("メッセージ一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var messages []*model.Message
	for rows.Next() {
		m := &model.Message{}
		if err := rows.Scan(&m.ID, &m.ActivityID, &m.AuthorID, &m.AuthorName, &m.Body, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("メッセージ行の読み取りに失敗しました: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("メッセージ一覧の走査に失敗しました: %w", err)
	}
	return messages, nil
}

// nullableTime はゼロ値のtime.TimeをSQLのNULLに変換する。
func nullableTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

// compile-time interface check
var _ MessageRepository = (*PostgresMessageRepo)(nil)
