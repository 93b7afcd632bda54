package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/tsudoi/internal/model"
)

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

// FindByUserID は指定ユーザーのプロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByUserID(ctx context.Context, userID string) (*model.Profile, error) {
	profile := &model.Profile{}
	var interests pq.StringArray
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, display_name, avatar_data, avatar_mime, interests, updated_at
		 FROM profiles WHERE user_id = $1`,
		userID,
	).Scan(&profile.UserID, &profile.DisplayName, &profile.AvatarData, &profile.AvatarMime, &interests, &profile.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}

	profile.Interests = make([]model.Category, len(interests))
	for i, v := range interests {
		profile.Interests[i] = model.Category(v)
	}

	return profile, nil
}

// UpdateDisplayName は表示名を更新する。
func (r *PostgresProfileRepo) UpdateDisplayName(ctx context.Context, userID, displayName string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE profiles SET display_name = $2, updated_at = NOW() WHERE user_id = $1`,
		userID, displayName,
	)
	if err != nil {
		return fmt.Errorf("表示名の更新に失敗しました: %w", err)
	}
	return requireProfileRow(result, userID)
}

// UpdateInterests は興味カテゴリを更新する。text[]カラムに格納する。
func (r *PostgresProfileRepo) UpdateInterests(ctx context.Context, userID string, interests []model.Category) error {
	values := make([]string, len(interests))
	for i, c := range interests {
		values[i] = string(c)
	}
	result, err := r.db.ExecContext(ctx,
		`UPDATE profiles SET interests = $2, updated_at = NOW() WHERE user_id = $1`,
		userID, pq.Array(values),
	)
	if err != nil {
		return fmt.Errorf("興味カテゴリの更新に失敗しました: %w", err)
	}
	return requireProfileRow(result, userID)
}

// UpdateAvatar はアバター画像データを更新する。
func (r *PostgresProfileRepo) UpdateAvatar(ctx context.Context, userID string, avatarData []byte, avatarMime string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE profiles SET avatar_data = $2, avatar_mime = $3, updated_at = NOW() WHERE user_id = $1`,
		userID, avatarData, avatarMime,
	)
	if err != nil {
		return fmt.Errorf("アバターの更新に失敗しました: %w", err)
	}
	return requireProfileRow(result, userID)
}

func requireProfileRow(result sql.Result, userID string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("プロフィールが見つかりません: %s", userID)
	}
	return nil
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)
