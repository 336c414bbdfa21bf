package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/playscore/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionValidator  middleware.SessionValidator
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig
	Logger            *slog.Logger

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 連携管理
	IdentityService IdentityServiceInterface

	// アカウント管理
	AccountService AccountServiceInterface

	// Prometheusメトリクス（nilなら/metricsを公開しない）
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Logging → CORS
//	認証フロー（/auth/*）: + RateLimit(Auth, IP単位)
//	保護ルート（/api/*）: + Session → RateLimit(General, アカウント単位) → CSRF
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	identityHandler := NewIdentityHandler(deps.IdentityService)
	accountHandler := NewAccountHandler(deps.AccountService, deps.AuthConfig)

	// --- 認証不要のルート ---

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// OAuthフロー（IP単位のレート制限）
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.AuthMiddleware())

		r.Get("/auth/providers", authHandler.Providers)
		r.Get("/auth/{provider}/login", authHandler.Login)
		r.Get("/auth/{provider}/callback", authHandler.Callback)
	})

	// ログアウトは冪等。セッションの有無に関わらず受け付ける。
	r.Post("/auth/logout", authHandler.Logout)

	// CSRFトークン取得とアカウント情報はCookieベースで認証する
	r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)
	r.Get("/api/me", authHandler.Me)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General) → CSRF
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionValidator))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		// 連携管理
		r.Route("/api/identities", func(r chi.Router) {
			r.Get("/", identityHandler.List)
			r.Delete("/{id}", identityHandler.Detach)
		})

		// アカウント管理
		r.Get("/api/me/avatar", accountHandler.Avatar)
		r.Delete("/api/account", accountHandler.Withdraw)
	})

	return r
}
