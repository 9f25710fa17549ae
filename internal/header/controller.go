// Package header は画面上部のユーザー表示を提供する。
package header

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hitoshi/postboard/internal/docstore"
	"github.com/hitoshi/postboard/internal/model"
	"github.com/hitoshi/postboard/internal/profile"
	"github.com/hitoshi/postboard/internal/render"
)

// SignInPath はプロフィールが見つからない場合の遷移先。
const SignInPath = "/signin"

// LoadFailedMessage はユーザー情報の取得に失敗した場合に表示する文言。
const LoadFailedMessage = "ユーザー情報の取得に失敗しました。"

// View はヘッダーの表示内容。SignedInがfalseの場合は空のヘッダーを表示する。
type View struct {
	SignedIn bool
	Name     string
	Email    string
	Icon     string
	Alert    string
	Redirect string
}

// Controller はセッションに応じてヘッダーの表示内容を更新する。
type Controller struct {
	store docstore.Gateway

	mu   sync.RWMutex
	view View
}

// NewController はControllerを生成する。
func NewController(store docstore.Gateway) *Controller {
	return &Controller{store: store}
}

// OnSessionChange はセッション変更リスナーとして登録する関数。
func (c *Controller) OnSessionChange(ctx context.Context, s *model.Session) error {
	if s == nil {
		c.set(View{})
		return nil
	}

	p, err := profile.Resolve(ctx, c.store, s)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeProfileNotFound {
			c.set(View{Alert: apiErr.Message, Redirect: SignInPath})
			return err
		}
		c.set(View{Alert: LoadFailedMessage})
		return fmt.Errorf("failed to load header profile: %w", err)
	}

	c.set(View{
		SignedIn: true,
		Name:     render.DisplayName(p.Name),
		Email:    p.Email,
		Icon:     render.IconSource(p.Icon),
	})
	return nil
}

// View は現在の表示内容を返す。
func (c *Controller) View() View {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.view
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
	c.mu.Lock()
	c.view.Alert = ""
	c.mu.Unlock()
}

func (c *Controller) set(v View) {
	c.mu.Lock()
	c.view = v
	c.mu.Unlock()
}
