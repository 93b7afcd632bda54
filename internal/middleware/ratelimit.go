package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig はレート制限の設定。
type RateLimiterConfig struct {
	// GeneralRate は一般APIの1秒あたりのリクエスト数。
	GeneralRate rate.Limit
	// GeneralBurst は一般APIのバーストサイズ。
	GeneralBurst int
	// MessagePostRate はチャット投稿の1秒あたりのリクエスト数。
	// 連投によるスパムを防ぐため一般APIより厳しくする。
	MessagePostRate rate.Limit
	// MessagePostBurst はチャット投稿のバーストサイズ。
	MessagePostBurst int
	// CleanupInterval は未使用リミッターの掃除間隔。
	CleanupInterval time.Duration
}

// DefaultRateLimiterConfig は本番向けのデフォルト設定を返す。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:      10,
		GeneralBurst:     20,
		MessagePostRate:  1,
		MessagePostBurst: 5,
		CleanupInterval:  10 * time.Minute,
	}
}

// clientLimiter はクライアントごとのリミッターと最終アクセス時刻。
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter はクライアントIPごとのトークンバケットレート制限を提供する。
type RateLimiter struct {
	config RateLimiterConfig

	mu          sync.Mutex
	general     map[string]*clientLimiter
	messagePost map[string]*clientLimiter

	stopCh chan struct{}
}

// NewRateLimiter はRateLimiterの新しいインスタンスを生成し、
// バックグラウンドの掃除ループを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:      config,
		general:     make(map[string]*clientLimiter),
		messagePost: make(map[string]*clientLimiter),
		stopCh:      make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Stop は掃除ループを停止する。
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

// GeneralMiddleware は一般APIエンドポイント向けのレート制限ミドルウェアを返す。
func (rl *RateLimiter) GeneralMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		limiter := rl.getLimiter(rl.general, ip, rl.config.GeneralRate, rl.config.GeneralBurst)
		if !limiter.Allow() {
			slog.Warn("rate limit exceeded",
				slog.String("ip", ip),
				slog.String("path", r.URL.Path),
			)
			writeRateLimitResponse(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// MessagePostMiddleware はチャット投稿エンドポイント向けの
// 厳しめのレート制限ミドルウェアを返す。
func (rl *RateLimiter) MessagePostMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		limiter := rl.getLimiter(rl.messagePost, ip, rl.config.MessagePostRate, rl.config.MessagePostBurst)
		if !limiter.Allow() {
			slog.Warn("message post rate limit exceeded",
				slog.String("ip", ip),
				slog.String("path", r.URL.Path),
			)
			writeRateLimitResponse(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// getLimiter はクライアントIPに対応するリミッターを返す。なければ作成する。
func (rl *RateLimiter) getLimiter(limiters map[string]*clientLimiter, ip string, r rate.Limit, burst int) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cl, ok := limiters[ip]
	if !ok {
		cl = &clientLimiter{
			limiter: rate.NewLimiter(r, burst),
		}
		limiters[ip] = cl
	}
	cl.lastSeen = time.Now()
	return cl.limiter
}

// cleanupLoop は一定間隔で未使用のリミッターをメモリから削除する。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は掃除間隔の3倍以上アクセスのないリミッターを削除する。
func (rl *RateLimiter) cleanup() {
	threshold := time.Now().Add(-3 * rl.config.CleanupInterval)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for ip, cl := range rl.general {
		if cl.lastSeen.Before(threshold) {
			delete(rl.general, ip)
		}
	}
	for ip, cl := range rl.messagePost {
		if cl.lastSeen.Before(threshold) {
			delete(rl.messagePost, ip)
		}
	}
}

// clientIP はリクエストからクライアントIPを取得する。
// リバースプロキシ背後での運用を想定し、X-Forwarded-Forを優先する。
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		// 最初のIPがオリジナルのクライアント
		for i := 0; i < len(forwarded); i++ {
			if forwarded[i] == ',' {
				return forwarded[:i]
			}
		}
		return forwarded
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
func writeRateLimitResponse(w http.ResponseWriter) {
	w.Header().Set("Retry-After", "60")
	WriteErrorResponse(w, http.StatusTooManyRequests, "RATE_LIMITED",
		"リクエストが多すぎます", "しばらく待ってから再試行してください")
}
