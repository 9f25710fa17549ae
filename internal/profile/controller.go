package profile

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hitoshi/postboard/internal/docstore"
	"github.com/hitoshi/postboard/internal/model"
	"github.com/hitoshi/postboard/internal/render"
)

// 表示用の既定値とメッセージ
const (
	DefaultIntroduction = "説明文が設定されていません。"
	EditPath            = "/mypage/profile/open"
	SignInPath          = "/signin"
	PostsFailedMessage  = "投稿の取得に失敗しました。"
	LoadFailedMessage   = "ユーザー情報の取得に失敗しました。"
)

// SessionSource は現在のセッションを返す。session.Storeが実装する。
type SessionSource interface {
	Current() *model.Session
}

// Card はプロフィール欄の表示内容。
type Card struct {
	ID           string
	Name         string
	Email        string
	Introduction string
	Icon         string
	EditURL      string
}

// View はマイページの表示内容。Cardがnilの場合プロフィール欄は表示しない。
type View struct {
	Card     *Card
	Posts    []*render.PostView
	Alert    string
	Redirect string
}

// Controller はマイページのプロフィールと本人の投稿一覧を保持する。
type Controller struct {
	store    docstore.Gateway
	sessions SessionSource
	renderer *render.Renderer

	mu   sync.RWMutex
	view View
}

// NewController はControllerを生成する。
func NewController(store docstore.Gateway, sessions SessionSource, renderer *render.Renderer) *Controller {
	return &Controller{store: store, sessions: sessions, renderer: renderer}
}

// LoadProfile は現在のセッションのプロフィールを表示内容に反映し、そのプロフィールを返す。
// プロフィールが存在しない場合は処理を中断し、アラートとサインイン画面への遷移を設定する。
func (c *Controller) LoadProfile(ctx context.Context) (*model.Profile, error) {
	p, err := Resolve(ctx, c.store, c.sessions.Current())
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			c.update(func(v *View) {
				*v = View{Alert: apiErr.Message, Redirect: SignInPath}
			})
			return nil, err
		}
		c.update(func(v *View) {
			v.Alert = LoadFailedMessage
			v.Card = nil
			v.Posts = nil
		})
		return nil, err
	}

	card := &Card{
		ID:           p.ID,
		Name:         render.DisplayName(p.Name),
		Email:        p.Email,
		Introduction: p.Introduction,
		Icon:         render.IconSource(p.Icon),
		EditURL:      EditPath,
	}
	if card.Introduction == "" {
		card.Introduction = DefaultIntroduction
	}
	c.update(func(v *View) { v.Card = card })
	return p, nil
}

// LoadUserPosts はprofileIDのユーザーの投稿だけを新しい順に表示内容へ反映する。
// 全投稿を取得してからuserIdの完全一致で絞り込む。
func (c *Controller) LoadUserPosts(ctx context.Context, profileID string) error {
	docs, err := c.store.GetMany(ctx, model.CollectionPosts, nil, nil)
	if err != nil {
		c.update(func(v *View) { v.Alert = PostsFailedMessage })
		return fmt.Errorf("failed to fetch posts: %w", err)
	}

	owner := model.ProfileRef(profileID).String()
	mine := make([]docstore.Document, 0, len(docs))
	for _, d := range docs {
		if model.StringValue(d.Data["userId"]) == owner {
			mine = append(mine, d)
		}
	}

	views := c.renderer.RenderAll(ctx, render.PostsNewestFirst(mine))
	c.update(func(v *View) { v.Posts = views })
	return nil
}

// Refresh はプロフィールと投稿一覧を読み直す。
// ログアウト状態では表示内容を空にする。
func (c *Controller) Refresh(ctx context.Context) error {
	if c.sessions.Current() == nil {
		c.update(func(v *View) { *v = View{} })
		return nil
	}
	p, err := c.LoadProfile(ctx)
	if err != nil {
		return err
	}
	return c.LoadUserPosts(ctx, p.ID)
}

// OnSessionChange はセッション変更リスナーとして登録する関数。
func (c *Controller) OnSessionChange(ctx context.Context, _ *model.Session) error {
	return c.Refresh(ctx)
}

// View は現在の表示内容を返す。
func (c *Controller) View() View {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v := c.view
	if c.view.Card != nil {
		card := *c.view.Card
		v.Card = &card
	}
	v.Posts = append([]*render.PostView(nil), c.view.Posts...)
	return v
}

// TakeRedirect は保留中の遷移先を返し、クリアする。
func (c *Controller) TakeRedirect() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.view.Redirect
	c.view.Redirect = ""
	return r
}

// DismissAlert はアラートを消す。
func (c *Controller) DismissAlert() {
	c.update(func(v *View) { v.Alert = "" })
}

func (c *Controller) update(fn func(v *View)) {
	c.mu.Lock()
	fn(&c.view)
	c.mu.Unlock()
}
