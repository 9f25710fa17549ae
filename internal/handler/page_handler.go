package handler

import (
	"log/slog"
	"net/http"

	"github.com/hitoshi/postboard/internal/client"
	"github.com/hitoshi/postboard/internal/middleware"
)

var pageTitles = map[string]string{
	client.PageHome:   "ホーム",
	client.PageMyPage: "マイページ",
}

// PageHandler はホームとマイページを描画する。
type PageHandler struct {
	views  *views
	logger *slog.Logger
}

// NewPageHandler はPageHandlerを生成する。
func NewPageHandler(v *views, logger *slog.Logger) *PageHandler {
	return &PageHandler{views: v, logger: logger}
}

// Home はフィードを読み直してホームを表示する。
// GET /home
func (h *PageHandler) Home(w http.ResponseWriter, r *http.Request) {
	h.show(w, r, client.PageHome)
}

// MyPage はプロフィールと自分の投稿を読み直してマイページを表示する。
// GET /mypage
func (h *PageHandler) MyPage(w http.ResponseWriter, r *http.Request) {
	h.show(w, r, client.PageMyPage)
}

func (h *PageHandler) show(w http.ResponseWriter, r *http.Request, page string) {
	c, err := middleware.ClientFromContext(r.Context())
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	// 失敗はコントローラーがアラートとして保持する
	if err := c.Refresh(r.Context(), page); err != nil {
		h.logger.WarnContext(r.Context(), "page refresh failed",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
	}
	h.renderPage(w, r, c, page, http.StatusOK)
}

// renderPage はワークスペースの現在の表示内容でページを描画する。
// コントローラーがリダイレクトを要求している場合は描画せずに遷移する。
func (h *PageHandler) renderPage(w http.ResponseWriter, r *http.Request, c *client.Client, page string, status int) {
	headerRedirect := c.Header.TakeRedirect()
	profileRedirect := c.Profile.TakeRedirect()
	if headerRedirect != "" {
		http.Redirect(w, r, headerRedirect, http.StatusSeeOther)
		return
	}
	if page == client.PageMyPage && profileRedirect != "" {
		http.Redirect(w, r, profileRedirect, http.StatusSeeOther)
		return
	}

	h.views.render(w, r, status, page, buildPageData(r, c, page))
	dismissAlerts(c, page)
}

func buildPageData(r *http.Request, c *client.Client, page string) *PageData {
	hv := c.Header.View()
	data := &PageData{
		Title:     pageTitles[page],
		Page:      page,
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
		Header:    hv,
	}
	data.addAlert(hv.Alert)

	switch page {
	case client.PageHome:
		fv := c.Feed.View()
		data.Posts = fv.Posts
		data.addAlert(fv.Alert)
	case client.PageMyPage:
		pv := c.Profile.View()
		data.Posts = pv.Posts
		data.Card = pv.Card
		data.addAlert(pv.Alert)

		form := c.ProfileEditor.Form()
		data.ProfileForm = &form
		if !form.Visible() {
			data.addAlert(form.Alert)
		}
	}

	p := c.Page(page)
	composer, editor, deleter := p.Composer.Form(), p.Editor.Form(), p.Deleter.Form()
	data.Composer, data.Editor, data.Deleter = &composer, &editor, &deleter
	// 開けなかったモーダルのアラートはページに出す
	if !editor.Visible() {
		data.addAlert(editor.Alert)
	}
	if !deleter.Visible() {
		data.addAlert(deleter.Alert)
	}
	return data
}

// dismissAlerts は表示済みのアラートを消す。表示中のモーダルのアラートは再送信まで残す。
func dismissAlerts(c *client.Client, page string) {
	c.Header.DismissAlert()
	switch page {
	case client.PageHome:
		c.Feed.DismissAlert()
	case client.PageMyPage:
		c.Profile.DismissAlert()
		if !c.ProfileEditor.Form().Visible() {
			c.ProfileEditor.DismissAlert()
		}
	}
	p := c.Page(page)
	if !p.Editor.Form().Visible() {
		p.Editor.DismissAlert()
	}
	if !p.Deleter.Form().Visible() {
		p.Deleter.DismissAlert()
	}
}

func (d *PageData) addAlert(msg string) {
	if msg != "" {
		d.Alerts = append(d.Alerts, msg)
	}
}
