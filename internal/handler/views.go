// Package handler はHTTPハンドラーを提供する。
//
// ページはhtml/templateでサーバー側で描画する。モーダルの開閉や送信はフォームのPOSTで受け、
// ワークスペースのコントローラーを操作した後に同じページを描画し直す。
package handler

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/postboard/internal/header"
	"github.com/hitoshi/postboard/internal/modal"
	"github.com/hitoshi/postboard/internal/profile"
	"github.com/hitoshi/postboard/internal/render"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/avatar.png
var avatarPNG []byte

// テンプレート名
const (
	viewHome         = "home"
	viewMyPage       = "mypage"
	viewSignIn       = "signin"
	viewSignUp       = "signup"
	viewReset        = "reset"
	viewResetConfirm = "reset_confirm"
)

// PageData はテンプレートに渡す表示内容。
type PageData struct {
	Title     string
	Page      string
	CSRFToken string
	Header    header.View
	Alerts    []string
	Notice    string

	// 投稿ページ
	Posts       []*render.PostView
	Card        *profile.Card
	Composer    *modal.PostForm
	Editor      *modal.PostForm
	Deleter     *modal.DeleteForm
	ProfileForm *modal.ProfileForm

	// 認証ページ
	Email         string
	Token         string
	GoogleEnabled bool
}

// views はページごとに base.html と組み合わせて解析済みのテンプレートを保持する。
type views struct {
	pages  map[string]*template.Template
	logger *slog.Logger
}

var templateFuncs = template.FuncMap{
	"iconURL": iconURL,
}

func newViews(logger *slog.Logger) (*views, error) {
	v := &views{pages: make(map[string]*template.Template), logger: logger}
	for _, name := range []string{viewHome, viewMyPage, viewSignIn, viewSignUp, viewReset, viewResetConfirm} {
		tmpl, err := template.New(name).Funcs(templateFuncs).ParseFS(templateFS,
			"templates/base.html",
			"templates/"+name+".html",
		)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		v.pages[name] = tmpl
	}
	return v, nil
}

// render はテンプレートをバッファに描画してから書き出す。
// 描画に失敗した場合は500を返し、途中までのHTMLは送らない。
func (v *views) render(w http.ResponseWriter, r *http.Request, status int, name string, data *PageData) {
	tmpl, ok := v.pages[name]
	if !ok {
		v.logger.ErrorContext(r.Context(), "unknown template", slog.String("template", name))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", data); err != nil {
		v.logger.ErrorContext(r.Context(), "failed to render template",
			slog.String("template", name),
			slog.String("error", err.Error()),
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		v.logger.WarnContext(r.Context(), "failed to write response", slog.String("error", err.Error()))
	}
}

// iconURL はアイコンをimg要素のsrcとして使える値に変換する。
// 画像のdata URLとサイト内パスのみ許可し、それ以外は既定のアイコンにする。
func iconURL(src string) template.URL {
	switch {
	case strings.HasPrefix(src, "data:image/"):
		return template.URL(src)
	case strings.HasPrefix(src, "/") && !strings.HasPrefix(src, "//"):
		return template.URL(src)
	default:
		return template.URL(render.DefaultIcon)
	}
}
