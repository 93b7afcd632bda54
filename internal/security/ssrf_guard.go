// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// SSRFGuardService はユーザー入力URLへのアウトバウンド通信を防護する。
// アバター画像とアクティビティ画像のURLはユーザーが自由に指定できるため、
// 内部ネットワークやメタデータエンドポイントを指すURLを遮断する必要がある。
type SSRFGuardService interface {
	// NewSafeClient はSSRF防護付きのHTTPクライアントを生成する。
	// safeurlがDialerのControlフックでDNS解決後のIPを検証するため、
	// DNS再バインディングを使った迂回も通らない。
	NewSafeClient(timeout time.Duration) *http.Client

	// ValidateURL はURLを取得前に静的に検証する。
	// httpsのみ許可し、IPリテラルやlocalhostで内部を指すURLを拒否する。
	// DNS解決は行わないため、最終防衛線はNewSafeClient側にある。
	ValidateURL(rawURL string) error
}

// ssrfGuard はSSRFGuardServiceの実装。
type ssrfGuard struct{}

// NewSSRFGuard はSSRFGuardServiceの新しいインスタンスを生成する。
func NewSSRFGuard() *ssrfGuard {
	return &ssrfGuard{}
}

// NewSafeClient はSSRF防護付きのHTTPクライアントを生成する。
func (g *ssrfGuard) NewSafeClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("https").
		SetAllowedPorts(443).
		Build()

	return safeurl.Client(config).Client
}

// ValidateURL はURLを取得前に静的に検証する。
func (g *ssrfGuard) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("URLが空です")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("URLを解釈できません: %w", err)
	}

	if !strings.EqualFold(parsed.Scheme, "https") {
		return fmt.Errorf("httpsのURLのみ指定できます: %s", parsed.Scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("ホストが空です: %s", rawURL)
	}

	if strings.EqualFold(host, "localhost") {
		return fmt.Errorf("内部ホストは指定できません: %s", host)
	}

	if ip := net.ParseIP(host); ip != nil && isInternalIP(ip) {
		return fmt.Errorf("内部ネットワークのIPアドレスは指定できません: %s", ip)
	}

	return nil
}

// isInternalIP は外部公開されていないアドレス帯かどうかを判定する。
// RFC 1918のプライベート帯とIPv6 ULA（fc00::/7）はIsPrivateが、
// 169.254.0.0/16（クラウドメタデータIPを含む）はIsLinkLocalUnicastが拾う。
// 0.0.0.0/8のカレントネットワークだけは個別に判定する。
func isInternalIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() {
		return true
	}
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	if v4 := ip.To4(); v4 != nil && v4[0] == 0 {
		return true
	}
	return false
}
