package handler

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/postboard/internal/client"
	"github.com/hitoshi/postboard/internal/feed"
	"github.com/hitoshi/postboard/internal/identity"
	"github.com/hitoshi/postboard/internal/metrics"
	"github.com/hitoshi/postboard/internal/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

const signInPath = "/signin"

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ワークスペース
	Clients     middleware.ClientAcquirer
	RateLimiter *middleware.RateLimiter
	Cookie      middleware.CookieConfig

	// 認証
	Identity      *identity.Service
	SessionMaxAge int // セッションCookieの有効期間（秒）

	// 公開エンドポイント
	Atom           *feed.AtomPublisher
	BaseURL        string
	FeedCORSOrigin string
	Health         HealthChecker
	Gatherer       prometheus.Gatherer

	Metrics metrics.MetricsCollector
	Logger  *slog.Logger
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → Client → CSRF → RateLimit(General)
//
// 公開エンドポイント（/health, /metrics, /feed.atom, /asset/*）はClient以降のチェーンの外に配置する。
func NewRouter(deps *RouterDeps) (http.Handler, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	v, err := newViews(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}
	pages := NewPageHandler(v, logger)
	modals := NewModalHandler(pages, logger)
	auth := NewAuthHandler(deps.Identity, v, AuthHandlerConfig{
		Cookie:        deps.Cookie,
		SessionMaxAge: deps.SessionMaxAge,
	}, logger)
	public := NewPublicHandler(deps.Atom, deps.Health, deps.BaseURL, logger)

	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger, deps.Metrics))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.Cookie.Secure))

	// --- 公開ルート ---
	r.Get("/health", public.Health)
	r.Get("/asset/avatar.png", public.Avatar)
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewPublicCORSMiddleware(deps.FeedCORSOrigin))
		r.Get("/feed.atom", public.Atom)
		r.Options("/feed.atom", public.Atom)
	})

	// --- ワークスペースを伴うルート ---
	// ミドルウェアスタック: Client → CSRF → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewClientMiddleware(deps.Clients, deps.Cookie))
		r.Use(middleware.NewCSRFMiddleware(deps.Cookie))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/"+client.PageHome, http.StatusSeeOther)
		})
		r.Get("/"+client.PageHome, pages.Home)

		// 認証
		r.Get(signInPath, auth.SignInPage)
		r.Post(signInPath, auth.SignIn)
		r.Get("/signup", auth.SignUpPage)
		r.Post("/signup", auth.SignUp)
		r.Post("/signout", auth.SignOut)
		r.Get("/auth/google/login", auth.GoogleLogin)
		r.Get("/auth/google/callback", auth.GoogleCallback)
		r.Get("/password/reset", auth.ResetPage)
		r.Post("/password/reset", auth.Reset)
		r.Get("/password/reset/confirm", auth.ResetConfirmPage)
		r.Post("/password/reset/confirm", auth.ResetConfirm)

		// --- ログインが必要なルート ---
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewRequireSessionMiddleware(signInPath))

			r.Get("/"+client.PageMyPage, pages.MyPage)

			for _, page := range []string{client.PageHome, client.PageMyPage} {
				base := "/" + page
				r.Post(base+"/compose/open", modals.OpenComposer(page))
				r.Post(base+"/compose/cancel", modals.CancelComposer(page))
				// 投稿作成のみ専用のレート制限を追加
				r.With(deps.RateLimiter.ComposeMiddleware()).Post(base+"/compose/submit", modals.SubmitComposer(page))

				r.Post(base+"/posts/{id}/edit", modals.OpenEditor(page))
				r.Post(base+"/edit/cancel", modals.CancelEditor(page))
				r.Post(base+"/edit/submit", modals.SubmitEditor(page))

				r.Post(base+"/posts/{id}/delete", modals.OpenDeleter(page))
				r.Post(base+"/delete/cancel", modals.CancelDeleter(page))
				r.Post(base+"/delete/confirm", modals.ConfirmDeleter(page))
			}

			r.Post("/mypage/profile/open", modals.OpenProfile)
			r.Post("/mypage/profile/cancel", modals.CancelProfile)
			r.Post("/mypage/profile/submit", modals.SubmitProfile)
		})
	})

	return r, nil
}
