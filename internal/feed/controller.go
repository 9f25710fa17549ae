// Package feed は全投稿を新しい順に表示するホームフィードを提供する。
package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hitoshi/postboard/internal/docstore"
	"github.com/hitoshi/postboard/internal/model"
	"github.com/hitoshi/postboard/internal/render"
)

// FetchFailedMessage は投稿の取得に失敗した場合に表示する文言。
const FetchFailedMessage = "投稿の取得に失敗しました。"

// View はフィードの表示内容。
type View struct {
	Posts       []*render.PostView
	Alert       string
	RefreshedAt time.Time
}

// Controller はホームフィードの表示内容を保持する。
// フィードは公開情報のためセッションの有無にかかわらず表示する。
// セッション変更時の再取得は投稿者情報の更新を反映するために行う。
type Controller struct {
	store    docstore.Gateway
	renderer *render.Renderer
	now      func() time.Time

	mu   sync.RWMutex
	view View
}

// NewController はControllerを生成する。
func NewController(store docstore.Gateway, renderer *render.Renderer) *Controller {
	return &Controller{store: store, renderer: renderer, now: time.Now}
}

// Refresh は全投稿を取得し直し、updatedの降順で表示内容を置き換える。
// 取得に失敗した場合は既存の表示を残してアラートを設定し、エラーを返す。
func (c *Controller) Refresh(ctx context.Context) error {
	docs, err := c.store.GetMany(ctx, model.CollectionPosts, nil, nil)
	if err != nil {
		c.mu.Lock()
		c.view.Alert = FetchFailedMessage
		c.mu.Unlock()
		return fmt.Errorf("failed to fetch posts: %w", err)
	}

	views := c.renderer.RenderAll(ctx, render.PostsNewestFirst(docs))

	c.mu.Lock()
	c.view = View{Posts: views, RefreshedAt: c.now()}
	c.mu.Unlock()
	return nil
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
	v.Posts = append([]*render.PostView(nil), c.view.Posts...)
	return v
}

// DismissAlert はアラートを消す。アラートは一度表示したら消える。
func (c *Controller) DismissAlert() {
	c.mu.Lock()
	c.view.Alert = ""
	c.mu.Unlock()
}
