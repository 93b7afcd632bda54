package auth

import (
	"context"
	"testing"
	"time"

	"github.com/hitoshi/tsudoi/internal/model"
	"github.com/hitoshi/tsudoi/internal/repository"
)

// --- モック ---

type mockProvider struct {
	exchangeCodeFn   func(ctx context.Context, code string) (*OAuthUserInfo, error)
	verifyPasswordFn func(ctx context.Context, username, password string) (bool, error)
	changePasswordFn func(ctx context.Context, providerUserID, newPassword string) error
}

func (m *mockProvider) GetLoginURL(state, nonce string) string {
	return "https://idp.example.com/auth?state=" + state + "&nonce=" + nonce
}
func (m *mockProvider) ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error) {
	return m.exchangeCodeFn(ctx, code)
}
func (m *mockProvider) GetLogoutURL(postLogoutRedirectURI string) string {
	return "https://idp.example.com/logout?post_logout_redirect_uri=" + postLogoutRedirectURI
}
func (m *mockProvider) VerifyPassword(ctx context.Context, username, password string) (bool, error) {
	if m.verifyPasswordFn != nil {
		return m.verifyPasswordFn(ctx, username, password)
	}
	return true, nil
}
func (m *mockProvider) ChangePassword(ctx context.Context, providerUserID, newPassword string) error {
	if m.changePasswordFn != nil {
		return m.changePasswordFn(ctx, providerUserID, newPassword)
	}
	return nil
}

type mockUserRepo struct {
	findByIDFn           func(ctx context.Context, id string) (*model.User, error)
	createWithIdentityFn func(ctx context.Context, user *model.User, identity *model.Identity) error
	updateFn             func(ctx context.Context, user *model.User) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockUserRepo) CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error {
	if m.createWithIdentityFn != nil {
		return m.createWithIdentityFn(ctx, user, identity)
	}
	return nil
}
func (m *mockUserRepo) Update(ctx context.Context, user *model.User) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, user)
	}
	return nil
}

type mockIdentRepo struct {
	findFn func(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
}

func (m *mockIdentRepo) FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error) {
	return m.findFn(ctx, provider, providerUserID)
}
func (m *mockIdentRepo) FindByUserID(ctx context.Context, userID string) (*model.Identity, error) {
	return nil, nil
}

// --- テスト ---

// TestService_HandleCallback_NewUser は未登録ユーザーの自動作成とセッション発行を検証する。
func TestService_HandleCallback_NewUser(t *testing.T) {
	var createdUser *model.User
	var createdIdentity *model.Identity

	provider := &mockProvider{
		exchangeCodeFn: func(ctx context.Context, code string) (*OAuthUserInfo, error) {
			return &OAuthUserInfo{
				ProviderUserID: "idp-user-1",
				Email:          "alice@example.com",
				Name:           "Alice",
				Nonce:          "nonce-123",
				Provider:       "oidc",
			}, nil
		},
	}
	userRepo := &mockUserRepo{
		createWithIdentityFn: func(ctx context.Context, user *model.User, identity *model.Identity) error {
			createdUser = user
			createdIdentity = identity
			return nil
		},
	}
	identRepo := &mockIdentRepo{
		findFn: func(ctx context.Context, provider, providerUserID string) (*model.Identity, error) {
			return nil, nil
		},
	}
	sessionRepo := repository.NewMemorySessionRepo()

	svc := NewService(provider, userRepo, identRepo, sessionRepo, ServiceConfig{SessionMaxAge: 3600})

	session, err := svc.HandleCallback(context.Background(), "auth-code", "nonce-123")
	if err != nil {
		t.Fatalf("HandleCallback() error = %v", err)
	}
	if session == nil {
		t.Fatal("HandleCallback() session = nil")
	}
	if createdUser == nil || createdUser.Email != "alice@example.com" {
		t.Errorf("created user = %+v, want email alice@example.com", createdUser)
	}
	if createdIdentity == nil || createdIdentity.ProviderUserID != "idp-user-1" {
		t.Errorf("created identity = %+v, want provider_user_id idp-user-1", createdIdentity)
	}
	if session.UserID != createdUser.ID {
		t.Errorf("session.UserID = %q, want %q", session.UserID, createdUser.ID)
	}
	if !session.ExpiresAt.After(time.Now()) {
		t.Error("session.ExpiresAt should be in the future")
	}
}

// TestService_HandleCallback_ExistingUser は登録済みユーザーのログインとクレーム同期を検証する。
func TestService_HandleCallback_ExistingUser(t *testing.T) {
	var updated *model.User

	provider := &mockProvider{
		exchangeCodeFn: func(ctx context.Context, code string) (*OAuthUserInfo, error) {
			return &OAuthUserInfo{
				ProviderUserID: "idp-user-1",
				Email:          "alice-new@example.com",
				Name:           "Alice",
				Nonce:          "nonce-123",
				Provider:       "oidc",
			}, nil
		},
	}
	userRepo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Email: "alice-old@example.com", Name: "Alice"}, nil
		},
		updateFn: func(ctx context.Context, user *model.User) error {
			updated = user
			return nil
		},
	}
	identRepo := &mockIdentRepo{
		findFn: func(ctx context.Context, provider, providerUserID string) (*model.Identity, error) {
			return &model.Identity{ID: "ident-1", UserID: "user-1", Provider: provider, ProviderUserID: providerUserID}, nil
		},
	}
	sessionRepo := repository.NewMemorySessionRepo()

	svc := NewService(provider, userRepo, identRepo, sessionRepo, ServiceConfig{SessionMaxAge: 3600})

	session, err := svc.HandleCallback(context.Background(), "auth-code", "nonce-123")
	if err != nil {
		t.Fatalf("HandleCallback() error = %v", err)
	}
	if session.UserID != "user-1" {
		t.Errorf("session.UserID = %q, want %q", session.UserID, "user-1")
	}
	if updated == nil || updated.Email != "alice-new@example.com" {
		t.Errorf("synced user = %+v, want email alice-new@example.com", updated)
	}
}

// TestService_HandleCallback_NonceMismatch はnonce不一致時にセッションが発行されないことを検証する。
func TestService_HandleCallback_NonceMismatch(t *testing.T) {
	provider := &mockProvider{
		exchangeCodeFn: func(ctx context.Context, code string) (*OAuthUserInfo, error) {
			return &OAuthUserInfo{
				ProviderUserID: "idp-user-1",
				Nonce:          "attacker-nonce",
				Provider:       "oidc",
			}, nil
		},
	}
	identRepo := &mockIdentRepo{
		findFn: func(ctx context.Context, provider, providerUserID string) (*model.Identity, error) {
			t.Fatal("identity lookup should not happen on nonce mismatch")
			return nil, nil
		},
	}
	sessionRepo := repository.NewMemorySessionRepo()

	svc := NewService(provider, &mockUserRepo{}, identRepo, sessionRepo, ServiceConfig{SessionMaxAge: 3600})

	_, err := svc.HandleCallback(context.Background(), "auth-code", "nonce-123")
	if err == nil {
		t.Fatal("HandleCallback() error = nil, want nonce mismatch error")
	}
}

// TestService_GetCurrentUser はセッションからのユーザー解決を検証する。
func TestService_GetCurrentUser(t *testing.T) {
	sessionRepo := repository.NewMemorySessionRepo()
	session := &model.Session{
		ID:        "session-1",
		UserID:    "user-1",
		ExpiresAt: time.Now().Add(time.Hour),
		CreatedAt: time.Now(),
	}
	if err := sessionRepo.Create(context.Background(), session); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	userRepo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			if id != "user-1" {
				return nil, nil
			}
			return &model.User{ID: "user-1", Email: "alice@example.com"}, nil
		},
	}

	svc := NewService(&mockProvider{}, userRepo, &mockIdentRepo{}, sessionRepo, ServiceConfig{SessionMaxAge: 3600})

	user, err := svc.GetCurrentUser(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("GetCurrentUser() error = %v", err)
	}
	if user.ID != "user-1" {
		t.Errorf("user.ID = %q, want %q", user.ID, "user-1")
	}

	if _, err := svc.GetCurrentUser(context.Background(), "unknown"); err == nil {
		t.Error("GetCurrentUser() with unknown session should fail")
	}
}

// TestService_Logout はセッション破棄を検証する。
func TestService_Logout(t *testing.T) {
	sessionRepo := repository.NewMemorySessionRepo()
	session := &model.Session{
		ID:        "session-1",
		UserID:    "user-1",
		ExpiresAt: time.Now().Add(time.Hour),
		CreatedAt: time.Now(),
	}
	if err := sessionRepo.Create(context.Background(), session); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	svc := NewService(&mockProvider{}, &mockUserRepo{}, &mockIdentRepo{}, sessionRepo, ServiceConfig{SessionMaxAge: 3600})

	if err := svc.Logout(context.Background(), "session-1"); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	found, err := sessionRepo.FindByID(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if found != nil {
		t.Error("session should be deleted after Logout")
	}

	if err := svc.Logout(context.Background(), ""); err == nil {
		t.Error("Logout() with empty session ID should fail")
	}
}
