// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/tsudoi/internal/model"
)

const (
	sessionCookieName = "session_id"
	oauthStateCookie  = "oauth_state"
	oauthNonceCookie  = "oauth_nonce"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	GetLoginURL(state, nonce string) string
	GetLogoutURL(postLogoutRedirectURI string) string
	HandleCallback(ctx context.Context, code, expectedNonce string) (*model.Session, error)
	Logout(ctx context.Context, sessionID string) error
	GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL       string
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はOIDC認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

// Login はOIDC認可コードフローを開始する。
// GET /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state, err := generateRandomToken()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	nonce, err := generateRandomToken()
	if err != nil {
		slog.Error("failed to generate oauth nonce", slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	// stateとnonceをCookieに保存（CSRF・リプレイ対策）
	h.setShortLivedCookie(w, oauthStateCookie, state)
	h.setShortLivedCookie(w, oauthNonceCookie, nonce)

	url := h.service.GetLoginURL(state, nonce)
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

// Callback はOIDCコールバックを処理する。
// GET /auth/callback?code=xxx&state=yyy
// 認証に失敗した場合はセッションを発行せず、エラー付きのログイン画面に
// リダイレクトする。
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	// 1. stateの検証（CSRF対策）
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch", slog.String("query_state", state))
		h.redirectLoginFailed(w, r)
		return
	}

	nonceCookie, err := r.Cookie(oauthNonceCookie)
	if err != nil || nonceCookie.Value == "" {
		slog.Warn("oauth nonce cookie missing")
		h.redirectLoginFailed(w, r)
		return
	}

	// state/nonceクッキーは一度きりなので削除
	h.clearCookie(w, oauthStateCookie)
	h.clearCookie(w, oauthNonceCookie)

	// 2. 認可コードの取得
	code := r.URL.Query().Get("code")
	if code == "" {
		h.redirectLoginFailed(w, r)
		return
	}

	// 3. 認証処理（nonceクレームの検証を含む）
	session, err := h.service.HandleCallback(r.Context(), code, nonceCookie.Value)
	if err != nil {
		slog.Error("oidc callback failed", slog.String("error", err.Error()))
		h.redirectLoginFailed(w, r)
		return
	}

	// 4. セッションCookieを設定（HTTP Only）
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    session.ID,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	// 5. フロントエンドにリダイレクト
	http.Redirect(w, r, h.config.BaseURL, http.StatusTemporaryRedirect)
}

// Logout はセッションを破棄する。
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.destroySession(w, r)
	w.WriteHeader(http.StatusNoContent)
}

// LogoutRedirect はセッションを破棄し、IdPのログアウトエンドポイントへ
// リダイレクトする（RP-Initiated Logout）。
// GET /auth/logout
func (h *AuthHandler) LogoutRedirect(w http.ResponseWriter, r *http.Request) {
	h.destroySession(w, r)

	logoutURL := h.service.GetLogoutURL(h.config.BaseURL)
	if logoutURL == "" {
		logoutURL = h.config.BaseURL
	}
	http.Redirect(w, r, logoutURL, http.StatusTemporaryRedirect)
}

// Status は認証状態を返す。未認証でも常に200を返す。
// GET /api/auth/status
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		json.NewEncoder(w).Encode(authStatusResponse{IsAuthenticated: false})
		return
	}

	user, err := h.service.GetCurrentUser(r.Context(), cookie.Value)
	if err != nil {
		json.NewEncoder(w).Encode(authStatusResponse{IsAuthenticated: false})
		return
	}

	json.NewEncoder(w).Encode(authStatusResponse{
		IsAuthenticated: true,
		UserInfo: &authUserInfo{
			ID:    user.ID,
			Email: user.Email,
			Name:  user.Name,
		},
	})
}

// authStatusResponse は認証状態APIのレスポンス。
type authStatusResponse struct {
	IsAuthenticated bool          `json:"is_authenticated"`
	UserInfo        *authUserInfo `json:"user_info,omitempty"`
}

// authUserInfo は認証済みユーザーの公開情報。
type authUserInfo struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// destroySession はセッションをDBから削除し、Cookieをクリアする。
func (h *AuthHandler) destroySession(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err == nil && cookie.Value != "" {
		if logoutErr := h.service.Logout(r.Context(), cookie.Value); logoutErr != nil {
			slog.Error("failed to logout", slog.String("error", logoutErr.Error()))
			// ログアウト失敗してもCookieはクリアする
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// redirectLoginFailed は認証失敗をフロントエンドに伝えるリダイレクトを行う。
func (h *AuthHandler) redirectLoginFailed(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.config.BaseURL+"/login?error=auth_failed", http.StatusTemporaryRedirect)
}

// setShortLivedCookie は認証フロー中だけ有効な一時Cookieを設定する。
func (h *AuthHandler) setShortLivedCookie(w http.ResponseWriter, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   600, // 10分
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearCookie は指定したCookieを削除する。
func (h *AuthHandler) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// generateRandomToken は認証フロー用のランダムな値を生成する。
func generateRandomToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
