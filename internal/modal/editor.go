package modal

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hitoshi/postboard/internal/docstore"
	"github.com/hitoshi/postboard/internal/model"
)

// 編集モーダルのメッセージ
const (
	LoadPostFailedMessage = "投稿の取得に失敗しました。"
	EditFailedMessage     = "投稿の更新に失敗しました。"
)

// Editor は既存投稿の編集モーダル。対象の投稿IDを保持する。
type Editor struct {
	machine
	deps      Deps
	onSuccess SuccessFunc

	postID string
	title  string
	body   string
}

// NewEditor はEditorを生成する。onSuccessは更新後に呼ばれる。
func NewEditor(deps Deps, onSuccess SuccessFunc) *Editor {
	return &Editor{deps: deps.withDefaults(), onSuccess: onSuccess}
}

// Open は対象投稿の現在のタイトルと本文を読み込んでモーダルを表示する。
func (e *Editor) Open(ctx context.Context, postID string) error {
	post, err := loadPost(ctx, e.deps.Store, postID)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.alert = alertFor(err, LoadPostFailedMessage)
		logFailure(ctx, e.deps.Logger, "edit", err)
		return err
	}
	if err := e.show(); err != nil {
		return err
	}
	e.postID, e.title, e.body = post.ID, post.Title, post.Body
	return nil
}

// Cancel はモーダルを閉じて入力内容を破棄する。
func (e *Editor) Cancel() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.hide(); err != nil {
		return err
	}
	e.postID, e.title, e.body = "", "", ""
	return nil
}

// Submit は対象投稿のtitle, body, updatedを更新する。
func (e *Editor) Submit(ctx context.Context, title, body string) error {
	e.mu.Lock()
	if err := e.ready(); err != nil {
		e.mu.Unlock()
		return err
	}
	e.title, e.body = title, body
	if blank(title) || blank(body) {
		e.alert = PostFieldsRequiredMessage
		e.mu.Unlock()
		return model.NewValidationError(PostFieldsRequiredMessage)
	}
	_ = e.begin()
	postID := e.postID
	e.mu.Unlock()

	err := e.update(ctx, postID, strings.TrimSpace(title), body)
	e.finish(err, alertFor(err, EditFailedMessage))
	if err != nil {
		logFailure(ctx, e.deps.Logger, "edit", err)
		return err
	}

	e.mu.Lock()
	e.postID, e.title, e.body = "", "", ""
	e.mu.Unlock()

	if e.deps.Metrics != nil {
		e.deps.Metrics.RecordPostMutation("edit")
	}
	refresh(ctx, e.deps.Logger, "edit", e.onSuccess)
	return nil
}

func (e *Editor) update(ctx context.Context, postID, title, body string) error {
	err := e.deps.Store.Update(ctx, model.CollectionPosts, postID, map[string]any{
		"title":   title,
		"body":    body,
		"updated": e.deps.Now(),
	})
	if errors.Is(err, docstore.ErrNotFound) {
		return model.NewPostNotFoundError(postID)
	}
	if err != nil {
		return fmt.Errorf("failed to update post: %w", err)
	}
	return nil
}

// Form は現在の表示内容を返す。
func (e *Editor) Form() PostForm {
	e.mu.Lock()
	defer e.mu.Unlock()
	return PostForm{State: e.state, PostID: e.postID, Title: e.title, Body: e.body, Alert: e.alert}
}

func loadPost(ctx context.Context, store docstore.Gateway, postID string) (*model.Post, error) {
	if blank(postID) {
		return nil, model.NewPostNotFoundError(postID)
	}
	doc, err := store.GetOne(ctx, model.CollectionPosts, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to load post: %w", err)
	}
	if doc == nil {
		return nil, model.NewPostNotFoundError(postID)
	}
	return model.PostFromData(doc.ID, doc.Data), nil
}
