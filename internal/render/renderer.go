// Package render は保存された投稿を表示用のビューに変換する。
package render

import (
	"context"
	"html/template"
	"log/slog"
	"time"

	"github.com/hitoshi/postboard/internal/docstore"
	"github.com/hitoshi/postboard/internal/model"
	"github.com/hitoshi/postboard/internal/security"
)

// UpdatedLayout は投稿日時の表示形式。
const UpdatedLayout = "2006/1/2 15:04:05"

// PostView は1件の投稿の表示内容。
// EditURLとDeleteURLはページの編集・削除モーダルを開くためのアクション。
type PostView struct {
	ID           string
	Title        string
	Body         template.HTML
	AuthorName   string
	AuthorIcon   string
	Updated      time.Time
	UpdatedLabel string
	EditURL      string
	DeleteURL    string
}

// Renderer は投稿と投稿者のプロフィールからPostViewを生成する。
// 状態の変更は行わない。
type Renderer struct {
	store     docstore.Gateway
	sanitizer security.ContentSanitizerService
	basePath  string
	location  *time.Location
	logger    *slog.Logger
}

// NewRenderer はRendererを生成する。basePathはアクションURLの接頭辞（"/home", "/mypage"）。
func NewRenderer(store docstore.Gateway, sanitizer security.ContentSanitizerService, basePath string) *Renderer {
	return &Renderer{
		store:     store,
		sanitizer: sanitizer,
		basePath:  basePath,
		location:  time.Local,
		logger:    slog.Default(),
	}
}

// WithLocation は日時表示に使うタイムゾーンを設定する。
func (r *Renderer) WithLocation(loc *time.Location) *Renderer {
	r.location = loc
	return r
}

// WithLogger はログの出力先を設定する。
func (r *Renderer) WithLogger(l *slog.Logger) *Renderer {
	r.logger = l
	return r
}

// Render は投稿を表示用に変換する。userId, title, bodyのいずれかが欠けている場合はnilを返す。
// 投稿者のプロフィールが取得できない場合は既定の名前とアイコンを使用する。
func (r *Renderer) Render(ctx context.Context, post *model.Post) *PostView {
	if post == nil || !post.IsComplete() {
		attrs := []any{}
		if post != nil {
			attrs = append(attrs, slog.String("post_id", post.ID))
		}
		r.logger.WarnContext(ctx, "skipping malformed post", attrs...)
		return nil
	}

	name, icon := r.author(ctx, post)

	return &PostView{
		ID:           post.ID,
		Title:        post.Title,
		Body:         r.sanitizer.FormatBody(post.Body),
		AuthorName:   name,
		AuthorIcon:   icon,
		Updated:      post.Updated,
		UpdatedLabel: post.Updated.In(r.location).Format(UpdatedLayout),
		EditURL:      r.basePath + "/posts/" + post.ID + "/edit",
		DeleteURL:    r.basePath + "/posts/" + post.ID + "/delete",
	}
}

// RenderAll は投稿を順に変換し、nilになったものを除いて返す。
func (r *Renderer) RenderAll(ctx context.Context, posts []*model.Post) []*PostView {
	views := make([]*PostView, 0, len(posts))
	for _, p := range posts {
		if v := r.Render(ctx, p); v != nil {
			views = append(views, v)
		}
	}
	return views
}

func (r *Renderer) author(ctx context.Context, post *model.Post) (string, string) {
	if post.Author.IsZero() || post.Author.Collection != model.CollectionProfiles {
		r.logger.WarnContext(ctx, "post has invalid author reference",
			slog.String("post_id", post.ID),
			slog.String("user_id", post.UserID),
		)
		return AnonymousName, DefaultIcon
	}

	doc, err := r.store.GetOne(ctx, model.CollectionProfiles, post.Author.ID)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to load post author",
			slog.String("post_id", post.ID),
			slog.String("error", err.Error()),
		)
		return AnonymousName, DefaultIcon
	}
	if doc == nil {
		return AnonymousName, DefaultIcon
	}

	profile := model.ProfileFromData(doc.ID, doc.Data)
	return DisplayName(profile.Name), IconSource(profile.Icon)
}
