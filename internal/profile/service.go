// Package profile はユーザー設定（表示名、興味、アバター、パスワード）の
// ドメインロジックを提供する。
//
// パスワードの保管と検証は外部IdPに完全に委譲しており、
// このパッケージはIdPへのプロキシとローカルプロフィールの管理だけを行う。
package profile

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/hitoshi/tsudoi/internal/auth"
	"github.com/hitoshi/tsudoi/internal/model"
	"github.com/hitoshi/tsudoi/internal/repository"
)

// MaxDisplayNameLength は表示名の最大文字数。
const MaxDisplayNameLength = 50

// CredentialVerifier はIdPのパスワード操作のうち設定変更で使う部分のインターフェース。
type CredentialVerifier interface {
	// VerifyPassword は現在のパスワードを確認する。不一致の場合はfalseを返す。
	VerifyPassword(ctx context.Context, username, password string) (bool, error)
	// ChangePassword はIdP上のパスワードを更新する。
	// ポリシー違反の場合は*auth.PasswordPolicyErrorを返す。
	ChangePassword(ctx context.Context, providerUserID, newPassword string) error
}

// View はプロフィール設定画面に返すドメインオブジェクト。
type View struct {
	UserID      string
	Email       string
	DisplayName string
	// AvatarURL はアバター画像のdata URL。未設定の場合はnil。
	AvatarURL *string
	Interests []model.Category
}

// Service はユーザー設定のサービス層。
type Service struct {
	profileRepo repository.ProfileRepository
	userRepo    repository.UserRepository
	identRepo   repository.IdentityRepository
	verifier    CredentialVerifier
	fetcher     AvatarFetcherService
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	profileRepo repository.ProfileRepository,
	userRepo repository.UserRepository,
	identRepo repository.IdentityRepository,
	verifier CredentialVerifier,
	fetcher AvatarFetcherService,
) *Service {
	return &Service{
		profileRepo: profileRepo,
		userRepo:    userRepo,
		identRepo:   identRepo,
		verifier:    verifier,
		fetcher:     fetcher,
	}
}

// Get はユーザーのプロフィール設定を返す。
func (s *Service) Get(ctx context.Context, userID string) (*View, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	profile, err := s.profileRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	if profile == nil {
		return nil, model.NewUserNotFoundError()
	}

	view := &View{
		UserID:      userID,
		Email:       user.Email,
		DisplayName: profile.DisplayName,
		Interests:   profile.Interests,
	}

	// アバターデータがある場合はdata URLに変換
	if len(profile.AvatarData) > 0 && profile.AvatarMime != "" {
		dataURL := fmt.Sprintf("data:%s;base64,%s", profile.AvatarMime, base64.StdEncoding.EncodeToString(profile.AvatarData))
		view.AvatarURL = &dataURL
	}

	return view, nil
}

// UpdateDisplayName は表示名を更新する。
// なりすまし防止のため、現在のパスワードの確認を要求する。
func (s *Service) UpdateDisplayName(ctx context.Context, userID, displayName, currentPassword string) error {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return model.NewInvalidDisplayNameError("表示名が空です")
	}
	if len([]rune(displayName)) > MaxDisplayNameLength {
		return model.NewInvalidDisplayNameError(fmt.Sprintf("表示名が%d文字を超えています", MaxDisplayNameLength))
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	ok, err := s.verifier.VerifyPassword(ctx, user.Email, currentPassword)
	if err != nil {
		return model.NewAuthUpstreamFailedError()
	}
	if !ok {
		return model.NewPasswordMismatchError()
	}

	if err := s.profileRepo.UpdateDisplayName(ctx, userID, displayName); err != nil {
		return fmt.Errorf("表示名の更新に失敗しました: %w", err)
	}
	return nil
}

// UpdateInterests は興味カテゴリを更新する。
// 定義済みカテゴリから最大MaxInterests件、重複なしで指定する。空リストは全解除。
func (s *Service) UpdateInterests(ctx context.Context, userID string, interests []model.Category) error {
	if len(interests) > model.MaxInterests {
		return model.NewInvalidInterestsError(fmt.Sprintf("%d件指定されています", len(interests)))
	}
	seen := make(map[model.Category]bool, len(interests))
	for _, c := range interests {
		if !model.IsValidCategory(c) {
			return model.NewInvalidInterestsError(fmt.Sprintf("未定義のカテゴリです: %s", c))
		}
		if seen[c] {
			return model.NewInvalidInterestsError(fmt.Sprintf("カテゴリが重複しています: %s", c))
		}
		seen[c] = true
	}

	if err := s.profileRepo.UpdateInterests(ctx, userID, interests); err != nil {
		return fmt.Errorf("興味カテゴリの更新に失敗しました: %w", err)
	}
	return nil
}

// UpdateAvatar は指定URLから画像を取得してアバターに設定する。
func (s *Service) UpdateAvatar(ctx context.Context, userID, avatarURL string) error {
	data, mimeType, err := s.fetcher.FetchAvatar(ctx, avatarURL)
	if err != nil {
		return err
	}

	if err := s.profileRepo.UpdateAvatar(ctx, userID, data, mimeType); err != nil {
		return fmt.Errorf("アバターの更新に失敗しました: %w", err)
	}
	return nil
}

// ChangePassword はIdP上のパスワードを変更する。
// 現在のパスワードの確認後、IdPの管理APIで更新する。
// IdPのポリシー違反はPASSWORD_POLICYとして呼び出し元に返す。
func (s *Service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	ok, err := s.verifier.VerifyPassword(ctx, user.Email, currentPassword)
	if err != nil {
		return model.NewAuthUpstreamFailedError()
	}
	if !ok {
		return model.NewPasswordMismatchError()
	}

	identity, err := s.identRepo.FindByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("identityの取得に失敗しました: %w", err)
	}
	if identity == nil {
		return model.NewUserNotFoundError()
	}

	if err := s.verifier.ChangePassword(ctx, identity.ProviderUserID, newPassword); err != nil {
		var policyErr *auth.PasswordPolicyError
		if errors.As(err, &policyErr) {
			return model.NewPasswordPolicyError(policyErr.Reason)
		}
		return model.NewAuthUpstreamFailedError()
	}
	return nil
}
