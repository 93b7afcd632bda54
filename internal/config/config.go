// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// OIDC
	OIDCClientID      string
	OIDCClientSecret  string
	OIDCRedirectURL   string
	OIDCAuthURL       string
	OIDCTokenURL      string
	OIDCLogoutURL     string
	OIDCCredentialURL string

	// Session
	SessionMaxAge int
	// SessionStore はセッションの保存先。"postgres"または"memory"。
	SessionStore string

	// Avatar
	AvatarFetchTimeout time.Duration

	// Rate Limit
	RateLimitGeneral     int
	RateLimitMessagePost int

	// Retention
	MessageRetentionDays int
	CleanupInterval      time.Duration

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// 必須の環境変数。不足分はまとめて1つのエラーで報告する。
	required := []struct {
		key  string
		dest *string
	}{
		{"DATABASE_URL", &cfg.DatabaseURL},
		{"OIDC_CLIENT_ID", &cfg.OIDCClientID},
		{"OIDC_CLIENT_SECRET", &cfg.OIDCClientSecret},
		{"OIDC_REDIRECT_URL", &cfg.OIDCRedirectURL},
		{"OIDC_AUTH_URL", &cfg.OIDCAuthURL},
		{"OIDC_TOKEN_URL", &cfg.OIDCTokenURL},
		{"BASE_URL", &cfg.BaseURL},
	}

	var missing []string
	for _, r := range required {
		*r.dest = os.Getenv(r.key)
		if *r.dest == "" {
			missing = append(missing, r.key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// 任意の環境変数（既定値あり）
	cfg.OIDCLogoutURL = getEnvString("OIDC_LOGOUT_URL", "")
	cfg.OIDCCredentialURL = getEnvString("OIDC_CREDENTIAL_URL", "")
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.SessionStore = getEnvString("SESSION_STORE", "postgres")
	cfg.AvatarFetchTimeout = getEnvDuration("AVATAR_FETCH_TIMEOUT", 5*time.Second)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitMessagePost = getEnvInt("RATE_LIMIT_MESSAGE_POST", 10)
	cfg.MessageRetentionDays = getEnvInt("MESSAGE_RETENTION_DAYS", 365)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", 24*time.Hour)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	if cfg.SessionStore != "postgres" && cfg.SessionStore != "memory" {
		return nil, fmt.Errorf("SESSION_STORE must be \"postgres\" or \"memory\", got %q", cfg.SessionStore)
	}

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
