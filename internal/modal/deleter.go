package modal

import (
	"context"
	"fmt"

	"github.com/hitoshi/postboard/internal/model"
)

// DeleteFailedMessage は削除に失敗した場合に表示する文言。
const DeleteFailedMessage = "投稿の削除に失敗しました。"

// DeleteForm は削除確認モーダルの表示内容。
type DeleteForm struct {
	State  State
	PostID string
	Title  string
	Alert  string
}

// Deleter は投稿の削除確認モーダル。削除はConfirmでのみ実行する。
type Deleter struct {
	machine
	deps      Deps
	onSuccess SuccessFunc

	postID string
	title  string
}

// NewDeleter はDeleterを生成する。onSuccessは削除後に呼ばれる。
func NewDeleter(deps Deps, onSuccess SuccessFunc) *Deleter {
	return &Deleter{deps: deps.withDefaults(), onSuccess: onSuccess}
}

// Open は対象投稿を確認するモーダルを表示する。この時点ではバックエンドを変更しない。
func (d *Deleter) Open(ctx context.Context, postID string) error {
	post, err := loadPost(ctx, d.deps.Store, postID)

	d.mu.Lock()
	defer d.mu.Unlock()
	if err != nil {
		d.alert = alertFor(err, LoadPostFailedMessage)
		logFailure(ctx, d.deps.Logger, "delete", err)
		return err
	}
	if err := d.show(); err != nil {
		return err
	}
	d.postID, d.title = post.ID, post.Title
	return nil
}

// Cancel はモーダルを閉じる。投稿は削除しない。
func (d *Deleter) Cancel() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.hide(); err != nil {
		return err
	}
	d.postID, d.title = "", ""
	return nil
}

// Confirm は対象投稿を削除する。
func (d *Deleter) Confirm(ctx context.Context) error {
	d.mu.Lock()
	if err := d.begin(); err != nil {
		d.mu.Unlock()
		return err
	}
	postID := d.postID
	d.mu.Unlock()

	err := d.deps.Store.Delete(ctx, model.CollectionPosts, postID)
	if err != nil {
		err = fmt.Errorf("failed to delete post: %w", err)
	}
	d.finish(err, DeleteFailedMessage)
	if err != nil {
		logFailure(ctx, d.deps.Logger, "delete", err)
		return err
	}

	d.mu.Lock()
	d.postID, d.title = "", ""
	d.mu.Unlock()

	if d.deps.Metrics != nil {
		d.deps.Metrics.RecordPostMutation("delete")
	}
	refresh(ctx, d.deps.Logger, "delete", d.onSuccess)
	return nil
}

// Form は現在の表示内容を返す。
func (d *Deleter) Form() DeleteForm {
	d.mu.Lock()
	defer d.mu.Unlock()
	return DeleteForm{State: d.state, PostID: d.postID, Title: d.title, Alert: d.alert}
}
