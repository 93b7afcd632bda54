package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/tsudoi/internal/model"
)

// PostgresActivityRepo はPostgreSQLを使用したアクティビティリポジトリ。
type PostgresActivityRepo struct {
	db *sql.DB
}

// NewPostgresActivityRepo はPostgresActivityRepoを生成する。
func NewPostgresActivityRepo(db *sql.DB) *PostgresActivityRepo {
	return &PostgresActivityRepo{db: db}
}

// FindByID は指定IDのアクティビティを取得する。見つからない場合はnilを返す。
func (r *PostgresActivityRepo) FindByID(ctx context.Context, id string) (*model.Activity, error) {
	a := &model.Activity{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, owner_id, name, category, starts_at, ends_at, signup_deadline,
		        location, description, image_url, created_at, updated_at
		 FROM activities WHERE id = $1`,
		id,
	).Scan(&a.ID, &a.OwnerID, &a.Name, &a.Category, &a.StartsAt, &a.EndsAt, &a.SignupDeadline,
		&a.Location, &a.Description, &a.ImageURL, &a.CreatedAt, &a.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("アクティビティの取得に失敗しました: %w", err)
	}

	return a, nil
}

// CreateWithOrganizer はアクティビティと主催者の参加行を同一トランザクションで作成する。
// role=organizerの行がアクティビティと同時に生まれることで、
// 主催者がちょうど1人という不変条件を初期状態から満たす。
func (r *PostgresActivityRepo) CreateWithOrganizer(ctx context.Context, activity *model.Activity, organizerID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO activities (id, owner_id, name, category, starts_at, ends_at, signup_deadline,
		                         location, description, image_url, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		activity.ID, activity.OwnerID, activity.Name, activity.Category,
		activity.StartsAt, activity.EndsAt, activity.SignupDeadline,
		activity.Location, activity.Description, activity.ImageURL,
		activity.CreatedAt, activity.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("アクティビティの作成に失敗しました: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO participants (activity_id, user_id, status, role, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		activity.ID, organizerID, model.ParticipantStatusJoined, model.RoleOrganizer,
		activity.CreatedAt, activity.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("主催者の参加行の作成に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}

	return nil
}

// Update はアクティビティの編集可能フィールドを全て上書きする。
// owner_idとcreated_atは変更しない。
func (r *PostgresActivityRepo) Update(ctx context.Context, activity *model.Activity) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE activities
		 SET name = $2, category = $3, starts_at = $4, ends_at = $5, signup_deadline = $6,
		     location = $7, description = $8, image_url = $9, updated_at = NOW()
		 WHERE id = $1`,
		activity.ID, activity.Name, activity.Category,
		activity.StartsAt, activity.EndsAt, activity.SignupDeadline,
		activity.Location, activity.Description, activity.ImageURL,
	)
	if err != nil {
		return fmt.Errorf("アクティビティの更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("アクティビティが見つかりません: %s", activity.ID)
	}
	return nil
}

// List はアクティビティ一覧を参加者数付きで開始日時昇順に返す。
// categoryが空文字列の場合は全カテゴリを対象とする。
func (r *PostgresActivityRepo) List(ctx context.Context, category model.Category, from time.Time, limit int) ([]ActivityWithCounts, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT
			a.id, a.owner_id, a.name, a.category, a.starts_at, a.ends_at, a.signup_deadline,
			a.location, a.description, a.image_url, a.created_at, a.updated_at,
			COALESCE(j.cnt, 0), COALESCE(p.cnt, 0)
		 FROM activities a
		 LEFT JOIN (
		     SELECT activity_id, COUNT(*) AS cnt FROM participants
		     WHERE status = 'joined' GROUP BY activity_id
		 ) j ON j.activity_id = a.id
		 LEFT JOIN (
		     SELECT activity_id, COUNT(*) AS cnt FROM participants
		     WHERE status = 'pending' GROUP BY activity_id
		 ) p ON p.activity_id = a.id
		 WHERE ($1 = '' OR a.category = $1)
		   AND a.ends_at >= $2
		 ORDER BY a.starts_at ASC
		 LIMIT $3`,
		string(category), from, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("アクティビティ一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanActivityWithCounts(rows)
}

// ListByParticipant は指定ユーザーが取り消し以外の状態で参加している
// アクティビティ一覧を開始日時昇順で返す。
func (r *PostgresActivityRepo) ListByParticipant(ctx context.Context, userID string) ([]ActivityWithCounts, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT
			a.id, a.owner_id, a.name, a.category, a.starts_at, a.ends_at, a.signup_deadline,
			a.location, a.description, a.image_url, a.created_at, a.updated_at,
			COALESCE(j.cnt, 0), COALESCE(p.cnt, 0)
		 FROM activities a
		 JOIN participants mine ON mine.activity_id = a.id
		 LEFT JOIN (
		     SELECT activity_id, COUNT(*) AS cnt FROM participants
		     WHERE status = 'joined' GROUP BY activity_id
		 ) j ON j.activity_id = a.id
		 LEFT JOIN (
		     SELECT activity_id, COUNT(*) AS cnt FROM participants
		     WHERE status = 'pending' GROUP BY activity_id
		 ) p ON p.activity_id = a.id
		 WHERE mine.user_id = $1 AND mine.status <> 'canceled'
		 ORDER BY a.starts_at ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("参加中アクティビティ一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanActivityWithCounts(rows)
}

func scanActivityWithCounts(rows *sql.Rows) ([]ActivityWithCounts, error) {
	var results []ActivityWithCounts
	for rows.Next() {
		var a ActivityWithCounts
		if err := rows.Scan(
			&a.ID, &a.OwnerID, &a.Name, &a.Category, &a.StartsAt, &a.EndsAt, &a.SignupDeadline,
			&a.Location, &a.Description, &a.ImageURL, &a.CreatedAt, &a.UpdatedAt,
			&a.JoinedCount, &a.PendingCount,
		); err != nil {
			return nil, fmt.Errorf("アクティビティ行の読み取りに失敗しました: %w", err)
		}
		results = append(results, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("アクティビティ一覧の走査に失敗しました: %w", err)
	}
	return results, nil
}

// compile-time interface check
var _ ActivityRepository = (*PostgresActivityRepo)(nil)
