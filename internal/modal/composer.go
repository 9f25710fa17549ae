package modal

import (
	"context"
	"fmt"
	"strings"

	"github.com/hitoshi/postboard/internal/model"
	"github.com/hitoshi/postboard/internal/profile"
)

// 投稿モーダルのメッセージ
const (
	PostFieldsRequiredMessage = "タイトルと本文を入力してください。"
	CreateFailedMessage       = "投稿に失敗しました。"
)

// PostForm は投稿モーダルの表示内容。
type PostForm struct {
	State  State
	PostID string
	Title  string
	Body   string
	Alert  string
}

// Composer は新規投稿モーダル。
type Composer struct {
	machine
	deps      Deps
	onSuccess SuccessFunc

	title string
	body  string
}

// NewComposer はComposerを生成する。onSuccessは投稿作成後に呼ばれる。
func NewComposer(deps Deps, onSuccess SuccessFunc) *Composer {
	return &Composer{deps: deps.withDefaults(), onSuccess: onSuccess}
}

// Open は空の入力欄でモーダルを表示する。
func (c *Composer) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.show(); err != nil {
		return err
	}
	c.title, c.body = "", ""
	return nil
}

// Cancel はモーダルを閉じて入力内容を破棄する。
func (c *Composer) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.hide(); err != nil {
		return err
	}
	c.title, c.body = "", ""
	return nil
}

// Submit は投稿を作成する。タイトルと本文のどちらかが空の場合はバックエンドを呼ばずに検証エラーを返す。
// 投稿者は現在のセッションのプロフィール。
func (c *Composer) Submit(ctx context.Context, title, body string) error {
	c.mu.Lock()
	if err := c.ready(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.title, c.body = title, body
	if blank(title) || blank(body) {
		c.alert = PostFieldsRequiredMessage
		c.mu.Unlock()
		return model.NewValidationError(PostFieldsRequiredMessage)
	}
	_ = c.begin()
	c.mu.Unlock()

	err := c.create(ctx, strings.TrimSpace(title), body)
	c.finish(err, alertFor(err, CreateFailedMessage))
	if err != nil {
		logFailure(ctx, c.deps.Logger, "create", err)
		return err
	}

	c.mu.Lock()
	c.title, c.body = "", ""
	c.mu.Unlock()

	if c.deps.Metrics != nil {
		c.deps.Metrics.RecordPostMutation("create")
	}
	refresh(ctx, c.deps.Logger, "create", c.onSuccess)
	return nil
}

func (c *Composer) create(ctx context.Context, title, body string) error {
	author, err := profile.Resolve(ctx, c.deps.Store, c.deps.Sessions.Current())
	if err != nil {
		return err
	}

	post := &model.Post{
		Title:   title,
		Body:    body,
		Author:  author.Ref(),
		Updated: c.deps.Now(),
	}
	if _, err := c.deps.Store.Create(ctx, model.CollectionPosts, post.Data()); err != nil {
		return fmt.Errorf("failed to create post: %w", err)
	}
	return nil
}

// Form は現在の表示内容を返す。
func (c *Composer) Form() PostForm {
	c.mu.Lock()
	defer c.mu.Unlock()
	return PostForm{State: c.state, Title: c.title, Body: c.body, Alert: c.alert}
}
