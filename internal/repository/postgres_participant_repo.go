package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/tsudoi/internal/model"
)

// PostgresParticipantRepo はPostgreSQLを使用した参加台帳リポジトリ。
type PostgresParticipantRepo struct {
	db *sql.DB
}

// NewPostgresParticipantRepo はPostgresParticipantRepoを生成する。
func NewPostgresParticipantRepo(db *sql.DB) *PostgresParticipantRepo {
	return &PostgresParticipantRepo{db: db}
}

// FindByActivityAndUser はアクティビティIDとユーザーIDで参加行を検索する。
// 見つからない場合はnilを返す。
func (r *PostgresParticipantRepo) FindByActivityAndUser(ctx context.Context, activityID, userID string) (*model.Participant, error) {
	p := &model.Participant{}
	err := r.db.QueryRowContext(ctx,
		`SELECT activity_id, user_id, status, role, created_at, updated_at
		 FROM participants
		 WHERE activity_id = $1 AND user_id = $2`,
		activityID, userID,
	).Scan(&p.ActivityID, &p.UserID, &p.Status, &p.Role, &p.CreatedAt, &p.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("参加行の検索に失敗しました: %w", err)
	}

	return p, nil
}

// Create は参加行を挿入する。既に行が存在する場合は挿入せずfalseを返す。
// 同一ペアへの同時参加はPRIMARY KEY制約とON CONFLICT DO NOTHINGで
// 片方だけが挿入に成功する。
func (r *PostgresParticipantRepo) Create(ctx context.Context, p *model.Participant) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO participants (activity_id, user_id, status, role, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (activity_id, user_id) DO NOTHING`,
		p.ActivityID, p.UserID, p.Status, p.Role, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("参加行の作成に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("作成結果の取得に失敗しました: %w", err)
	}
	return rowsAffected > 0, nil
}

// UpdateStatus は参加行の状態を更新する。行が存在しない場合はエラーを返す。
func (r *PostgresParticipantRepo) UpdateStatus(ctx context.Context, activityID, userID string, status model.ParticipantStatus) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE participants SET status = $3, updated_at = NOW()
		 WHERE activity_id = $1 AND user_id = $2`,
		activityID, userID, status,
	)
	if err != nil {
		return fmt.Errorf("参加状態の更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("参加行が見つかりません: activity=%s user=%s", activityID, userID)
	}
	return nil
}

// ApprovePending は指定アクティビティの承認待ち参加者を一括でjoinedへ更新し、
// 更新した行数を返す。
func (r *PostgresParticipantRepo) ApprovePending(ctx context.Context, activityID string) (int, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE participants SET status = 'joined', updated_at = NOW()
		 WHERE activity_id = $1 AND status = 'pending'`,
		activityID,
	)
	if err != nil {
		return 0, fmt.Errorf("承認待ち参加者の一括承認に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("承認結果の取得に失敗しました: %w", err)
	}
	return int(rowsAffected), nil
}

// TransferOrganizer は主催者権限を移譲する。
// 降格と昇格を同一トランザクションで行い、主催者がちょうど1人という
// 不変条件を途中状態でも外部から観測させない。
func (r *PostgresParticipantRepo) TransferOrganizer(ctx context.Context, activityID, fromUserID, toUserID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE participants SET role = 'participant', updated_at = NOW()
		 WHERE activity_id = $1 AND user_id = $2 AND role = 'organizer'`,
		activityID, fromUserID,
	)
	if err != nil {
		return fmt.Errorf("現主催者の降格に失敗しました: %w", err)
	}
	demoted, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("降格結果の取得に失敗しました: %w", err)
	}
	if demoted == 0 {
		return fmt.Errorf("現主催者の参加行が見つかりません: activity=%s user=%s", activityID, fromUserID)
	}

	result, err = tx.ExecContext(ctx,
		`UPDATE participants SET role = 'organizer', updated_at = NOW()
		 WHERE activity_id = $1 AND user_id = $2 AND status = 'joined'`,
		activityID, toUserID,
	)
	if err != nil {
		return fmt.Errorf("移譲先の昇格に失敗しました: %w", err)
	}
	promoted, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("昇格結果の取得に失敗しました: %w", err)
	}
	if promoted == 0 {
		return fmt.Errorf("移譲先の参加確定行が見つかりません: activity=%s user=%s", activityID, toUserID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}

	return nil
}

// ListByActivity はアクティビティの参加者一覧をユーザー情報付きで返す。
// 主催者を先頭に、以降は参加登録の古い順で整列する。
func (r *PostgresParticipantRepo) ListByActivity(ctx context.Context, activityID string) ([]ParticipantWithUser, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT p.activity_id, p.user_id, p.status, p.role, p.created_at, p.updated_at,
		        u.name, pr.display_name
		 FROM participants p
		 JOIN users u ON u.id = p.user_id
		 JOIN profiles pr ON pr.user_id = p.user_id
		 WHERE p.activity_id = $1
		 ORDER BY (p.role = 'organizer') DESC, p.created_at ASC`,
		activityID,
	)
	if err != nil {
		return nil, fmt.Errorf("参加者一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var results []ParticipantWithUser
	for rows.Next() {
		var p ParticipantWithUser
		if err := rows.Scan(
			&p.ActivityID, &p.UserID, &p.Status, &p.Role, &p.CreatedAt, &p.UpdatedAt,
			&p.UserName, &p.DisplayName,
		); err != nil {
			return nil, fmt.Errorf("参加者行の読み取りに失敗しました: %w", err)
		}
		results = append(results, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("参加者一覧の走査に失敗しました: %w", err)
	}
	return results, nil
}

// CountJoined はアクティビティの参加確定者数を返す。
func (r *PostgresParticipantRepo) CountJoined(ctx context.Context, activityID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM participants WHERE activity_id = $1 AND status = 'joined'`,
		activityID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("参加確定者数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// compile-time interface check
var _ ParticipantRepository = (*PostgresParticipantRepo)(nil)
