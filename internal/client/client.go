// Package client はブラウザクライアントごとのワークスペースを組み立てる。
//
// ワークスペースは1つのAuth、1つのsession.Store、ヘッダー・フィード・プロフィールの
// 各コントローラーと、ページごとのモーダルを持つ。
package client

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/postboard/internal/docstore"
	"github.com/hitoshi/postboard/internal/feed"
	"github.com/hitoshi/postboard/internal/header"
	"github.com/hitoshi/postboard/internal/identity"
	"github.com/hitoshi/postboard/internal/metrics"
	"github.com/hitoshi/postboard/internal/modal"
	"github.com/hitoshi/postboard/internal/profile"
	"github.com/hitoshi/postboard/internal/render"
	"github.com/hitoshi/postboard/internal/security"
	"github.com/hitoshi/postboard/internal/session"
)

// ページ名
const (
	PageHome   = "home"
	PageMyPage = "mypage"
)

// Deps はワークスペースの生成に必要な共有依存。
type Deps struct {
	Identity  *identity.Service
	Store     docstore.Gateway
	Sanitizer security.ContentSanitizerService
	Metrics   metrics.MetricsCollector
	Logger    *slog.Logger
	Location  *time.Location
	Now       func() time.Time
}

// Page はページに属する投稿モーダル。成功時は同じページの表示を更新する。
type Page struct {
	Name     string
	Composer *modal.Composer
	Editor   *modal.Editor
	Deleter  *modal.Deleter
}

// Client は1つのブラウザクライアントのワークスペース。
type Client struct {
	ID            string
	Auth          *identity.Auth
	Session       *session.Store
	Header        *header.Controller
	Feed          *feed.Controller
	Profile       *profile.Controller
	Home          *Page
	MyPage        *Page
	ProfileEditor *modal.ProfileEditor

	mu       sync.Mutex
	lastSeen time.Time

	// Registryが生成したワークスペースは初回の復元が終わるまでreadyを閉じない
	ready chan struct{}
}

// New はワークスペースを生成する。リスナーはヘッダー、フィード、プロフィールの順に登録する。
func New(id string, deps Deps) *Client {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Location == nil {
		deps.Location = time.Local
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	logger := deps.Logger.With(slog.String("client_id", id))

	auth := deps.Identity.NewAuth()
	opts := []session.Option{session.WithLogger(logger)}
	if deps.Metrics != nil {
		opts = append(opts, session.WithMetrics(deps.Metrics))
	}
	store := session.NewStore(auth, opts...)

	renderer := func(basePath string) *render.Renderer {
		return render.NewRenderer(deps.Store, deps.Sanitizer, basePath).
			WithLocation(deps.Location).
			WithLogger(logger)
	}

	c := &Client{
		ID:       id,
		Auth:     auth,
		Session:  store,
		Header:   header.NewController(deps.Store),
		Feed:     feed.NewController(deps.Store, renderer("/"+PageHome)),
		Profile:  profile.NewController(deps.Store, store, renderer("/"+PageMyPage)),
		lastSeen: deps.Now(),
	}

	store.OnChange("header", c.Header.OnSessionChange)
	store.OnChange("feed", c.Feed.OnSessionChange)
	store.OnChange("profile", c.Profile.OnSessionChange)

	md := modal.Deps{
		Store:    deps.Store,
		Sessions: store,
		Metrics:  deps.Metrics,
		Logger:   logger,
		Now:      deps.Now,
	}
	c.Home = newPage(PageHome, md, c.Feed.Refresh)
	c.MyPage = newPage(PageMyPage, md, c.Profile.Refresh)
	c.ProfileEditor = modal.NewProfileEditor(md, c.Profile.Refresh)
	return c
}

func newPage(name string, md modal.Deps, onSuccess modal.SuccessFunc) *Page {
	return &Page{
		Name:     name,
		Composer: modal.NewComposer(md, onSuccess),
		Editor:   modal.NewEditor(md, onSuccess),
		Deleter:  modal.NewDeleter(md, onSuccess),
	}
}

// Page はページ名に対応するモーダル群を返す。未知のページはnil。
func (c *Client) Page(name string) *Page {
	switch name {
	case PageHome:
		return c.Home
	case PageMyPage:
		return c.MyPage
	default:
		return nil
	}
}

// Refresh はページ表示時にコントローラーの表示内容を読み直す。
func (c *Client) Refresh(ctx context.Context, page string) error {
	switch page {
	case PageHome:
		return c.Feed.Refresh(ctx)
	case PageMyPage:
		return c.Profile.Refresh(ctx)
	default:
		return nil
	}
}

// SignedIn はログイン中かを返す。
func (c *Client) SignedIn() bool {
	return c.Session.Current() != nil
}

func (c *Client) touch(now time.Time) {
	c.mu.Lock()
	c.lastSeen = now
	c.mu.Unlock()
}

// LastSeen は最後にリクエストを受けた時刻を返す。
func (c *Client) LastSeen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}
