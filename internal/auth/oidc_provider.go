package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// OIDCConfig はOIDCプロバイダーの設定。
// Keycloakのrealmエンドポイントを想定しているが、
// 各URLを個別に指定できるため他のOIDC準拠IdPでも使える。
type OIDCConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	AuthURL       string // 認可エンドポイント
	TokenURL      string // トークンエンドポイント
	LogoutURL     string // RP-Initiated Logoutエンドポイント
	CredentialURL string // 管理API: ユーザーのパスワード更新エンドポイント
}

// OIDCProvider はOIDC Authorization Code Flowによる認証を提供する。
// ログインのほか、ROPCグラントによるパスワード確認と
// 管理APIによるパスワード変更のプロキシも担う。
type OIDCProvider struct {
	config OIDCConfig
	client *http.Client
}

// NewOIDCProvider はOIDCProviderを生成する。
func NewOIDCProvider(config OIDCConfig) *OIDCProvider {
	return &OIDCProvider{
		config: config,
		client: http.DefaultClient,
	}
}

// GetLoginURL はOIDC認可URLを生成する。
// nonceはid_tokenに埋め込まれ、コールバック時にCookieの値と突合する。
func (p *OIDCProvider) GetLoginURL(state, nonce string) string {
	params := url.Values{
		"client_id":     {p.config.ClientID},
		"redirect_uri":  {p.config.RedirectURL},
		"response_type": {"code"},
		"scope":         {"openid email profile"},
		"state":         {state},
		"nonce":         {nonce},
	}
	return p.config.AuthURL + "?" + params.Encode()
}

// GetLogoutURL はIdP側セッションも終了させるログアウトURLを生成する。
func (p *OIDCProvider) GetLogoutURL(postLogoutRedirectURI string) string {
	params := url.Values{
		"client_id":                {p.config.ClientID},
		"post_logout_redirect_uri": {postLogoutRedirectURI},
	}
	return p.config.LogoutURL + "?" + params.Encode()
}

// tokenResponse はトークンエンドポイントのレスポンス。
type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	IDToken          string `json:"id_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int    `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// idTokenClaims はid_tokenペイロードから取り出すクレーム。
type idTokenClaims struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Nonce string `json:"nonce"`
}

// ExchangeCode は認可コードをトークンに交換し、id_tokenのクレームを取り出す。
// トークンはTLSのバックチャネルでIdPから直接受け取るため、
// 署名検証は行わずペイロードのデコードのみ行う。
func (p *OIDCProvider) ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error) {
	data := url.Values{
		"code":          {code},
		"client_id":     {p.config.ClientID},
		"client_secret": {p.config.ClientSecret},
		"redirect_uri":  {p.config.RedirectURL},
		"grant_type":    {"authorization_code"},
	}

	tokenResp, err := p.postToken(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}
	if tokenResp.IDToken == "" {
		return nil, fmt.Errorf("empty id_token in response")
	}

	claims, err := decodeIDTokenClaims(tokenResp.IDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to decode id_token: %w", err)
	}
	if claims.Sub == "" {
		return nil, fmt.Errorf("empty sub in id_token")
	}

	return &OAuthUserInfo{
		ProviderUserID: claims.Sub,
		Email:          claims.Email,
		Name:           claims.Name,
		Nonce:          claims.Nonce,
		Provider:       "oidc",
	}, nil
}

// VerifyPassword はROPCグラントで現在のパスワードを確認する。
// パスワードが一致しない場合はfalse、IdPとの通信に失敗した場合はエラーを返す。
func (p *OIDCProvider) VerifyPassword(ctx context.Context, username, password string) (bool, error) {
	data := url.Values{
		"client_id":     {p.config.ClientID},
		"client_secret": {p.config.ClientSecret},
		"grant_type":    {"password"},
		"username":      {username},
		"password":      {password},
		"scope":         {"openid"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return false, fmt.Errorf("failed to create password grant request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("password grant request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("failed to read password grant response: %w", err)
	}

	if resp.StatusCode == http.StatusOK {
		return true, nil
	}

	// invalid_grantは認証情報不一致。それ以外はIdP側の異常として扱う。
	var tokenResp tokenResponse
	if err := json.Unmarshal(body, &tokenResp); err == nil && tokenResp.Error == "invalid_grant" {
		return false, nil
	}
	return false, fmt.Errorf("password grant failed with status %d: %s", resp.StatusCode, string(body))
}

// PasswordPolicyError は管理APIが返したパスワードポリシー違反を表す。
type PasswordPolicyError struct {
	Reason string
}

func (e *PasswordPolicyError) Error() string {
	return fmt.Sprintf("password rejected by policy: %s", e.Reason)
}

// ChangePassword は管理APIでユーザーのパスワードを更新する。
// ポリシー違反（400）の場合は*PasswordPolicyErrorを返す。
func (p *OIDCProvider) ChangePassword(ctx context.Context, providerUserID, newPassword string) error {
	adminToken, err := p.fetchAdminToken(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch admin token: %w", err)
	}

	payload, err := json.Marshal(map[string]any{
		"type":      "password",
		"value":     newPassword,
		"temporary": false,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal credential payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/reset-password", strings.TrimRight(p.config.CredentialURL, "/"), url.PathEscape(providerUserID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, strings.NewReader(string(payload)))
	if err != nil {
		return fmt.Errorf("failed to create credential request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+adminToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("credential request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read credential response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusBadRequest:
		var policyResp struct {
			ErrorMessage string `json:"error_description"`
			Message      string `json:"errorMessage"`
		}
		reason := string(body)
		if err := json.Unmarshal(body, &policyResp); err == nil {
			if policyResp.Message != "" {
				reason = policyResp.Message
			} else if policyResp.ErrorMessage != "" {
				reason = policyResp.ErrorMessage
			}
		}
		return &PasswordPolicyError{Reason: reason}
	default:
		return fmt.Errorf("credential update failed with status %d: %s", resp.StatusCode, string(body))
	}
}

// fetchAdminToken はclient_credentialsグラントで管理API用トークンを取得する。
// クライアントにはmanage-usersロールが付与されている前提。
func (p *OIDCProvider) fetchAdminToken(ctx context.Context) (string, error) {
	data := url.Values{
		"client_id":     {p.config.ClientID},
		"client_secret": {p.config.ClientSecret},
		"grant_type":    {"client_credentials"},
	}
	tokenResp, err := p.postToken(ctx, data)
	if err != nil {
		return "", err
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("empty access token in response")
	}
	return tokenResp.AccessToken, nil
}

// postToken はトークンエンドポイントにフォームをPOSTする。
func (p *OIDCProvider) postToken(ctx context.Context, data url.Values) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp tokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	return &tokenResp, nil
}

// decodeIDTokenClaims はJWT形式のid_tokenのペイロード部をデコードする。
func decodeIDTokenClaims(idToken string) (*idTokenClaims, error) {
	parts := strings.Split(idToken, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("malformed id_token: expected 3 segments, got %d", len(parts))
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("failed to decode id_token payload: %w", err)
	}
	var claims idTokenClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("failed to parse id_token claims: %w", err)
	}
	return &claims, nil
}

// compile-time interface check
var _ OAuthProvider = (*OIDCProvider)(nil)
