package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/tsudoi/internal/metrics"
	"github.com/hitoshi/tsudoi/internal/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig

	// メトリクス
	MetricsGatherer prometheus.Gatherer
	// MetricsRecorder はリクエストログミドルウェアが記録するHTTPメトリクス。
	// nilの場合はログのみ出力する。
	MetricsRecorder middleware.HTTPMetricsRecorder

	// サービス
	AuthService          AuthServiceInterface
	AuthConfig           AuthHandlerConfig
	ActivityService      ActivityServiceInterface
	ParticipationService ParticipationServiceInterface
	MessageService       MessageServiceInterface
	ProfileService       ProfileServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Logging → CORS
//
// 認証が必要なルートにはさらに Session → CSRF → RateLimit(General) を適用する。
// 公開ルート（一覧・詳細・認証状態）はセッション任意で通す。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.MetricsRecorder))
	r.Use(middleware.NewCORSMiddleware(middleware.CORSConfig{AllowedOrigin: deps.CORSAllowedOrigin}))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	activityHandler := NewActivityHandler(deps.ActivityService)
	participantHandler := NewParticipantHandler(deps.ParticipationService)
	messageHandler := NewMessageHandler(deps.MessageService)
	profileHandler := NewProfileHandler(deps.ProfileService)

	// --- 認証不要のルート ---

	// OIDC認証フロー
	r.Route("/auth", func(r chi.Router) {
		r.Get("/login", authHandler.Login)
		r.Get("/callback", authHandler.Callback)
		r.Get("/logout", authHandler.LogoutRedirect)
	})

	// 認証状態（未認証でも200）
	r.Get("/api/auth/status", authHandler.Status)

	// CSRFトークン取得
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	// 公開読み取り（セッション任意: ログイン時は参加状態を含める）
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewOptionalSessionMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware)

		r.Get("/api/eventSchedule", activityHandler.EventSchedule)
		r.Get("/api/eventDetail/{id}", activityHandler.EventDetail)
	})

	// ヘルスチェックとメトリクス
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if deps.MetricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → CSRF → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware)

		// セッション管理
		r.Post("/api/auth/logout", authHandler.Logout)

		// アクティビティ管理
		r.Post("/api/createActivity", activityHandler.CreateActivity)
		r.Put("/api/editActivity/{id}", activityHandler.EditActivity)

		// 参加管理
		r.Post("/api/eventDetail/{id}/join", participantHandler.Join)
		r.Put("/api/eventDetail/{id}/cancel", participantHandler.Cancel)

		r.Route("/api/activity/{id}", func(r chi.Router) {
			r.Get("/participants", participantHandler.ListParticipants)
			r.Put("/participants/{userID}", participantHandler.SetStatus)
			r.Post("/participants/approve", participantHandler.ApprovePending)
			r.Post("/organizer/transfer", participantHandler.TransferOrganizer)

			// チャット（投稿には連投防止のレート制限を追加）
			r.Get("/messages", messageHandler.ListMessages)
			r.With(deps.RateLimiter.MessagePostMiddleware).Post("/messages", messageHandler.PostMessage)
		})

		// ユーザー設定
		r.Route("/api/settings", func(r chi.Router) {
			r.Get("/profile", profileHandler.GetProfile)
			r.Put("/profile", profileHandler.UpdateDisplayName)
			r.Put("/interests", profileHandler.UpdateInterests)
			r.Put("/avatar", profileHandler.UpdateAvatar)
			r.Post("/password", profileHandler.ChangePassword)
		})
	})

	return r
}
