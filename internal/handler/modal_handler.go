package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/postboard/internal/client"
	"github.com/hitoshi/postboard/internal/middleware"
	"github.com/hitoshi/postboard/internal/modal"
)

// maxProfileFormMemory はプロフィール編集フォームをメモリに保持する上限。
const maxProfileFormMemory = modal.MaxIconBytes + 64<<10

// modalOp はワークスペースのモーダルを操作する。
type modalOp func(r *http.Request, c *client.Client, p *client.Page) error

// ModalHandler はモーダルの開閉と送信を処理する。
// 成功時はページへリダイレクトし、失敗時はアラート付きでページを描画する。
type ModalHandler struct {
	pages  *PageHandler
	logger *slog.Logger
}

// NewModalHandler はModalHandlerを生成する。
func NewModalHandler(pages *PageHandler, logger *slog.Logger) *ModalHandler {
	return &ModalHandler{pages: pages, logger: logger}
}

// OpenComposer は投稿作成モーダルを開く。
// POST /{page}/compose/open
func (h *ModalHandler) OpenComposer(page string) http.HandlerFunc {
	return h.action(page, func(_ *http.Request, _ *client.Client, p *client.Page) error {
		return p.Composer.Open()
	})
}

// CancelComposer は投稿作成モーダルを閉じる。
// POST /{page}/compose/cancel
func (h *ModalHandler) CancelComposer(page string) http.HandlerFunc {
	return h.action(page, func(_ *http.Request, _ *client.Client, p *client.Page) error {
		return p.Composer.Cancel()
	})
}

// SubmitComposer は投稿を作成する。
// POST /{page}/compose/submit
func (h *ModalHandler) SubmitComposer(page string) http.HandlerFunc {
	return h.action(page, func(r *http.Request, _ *client.Client, p *client.Page) error {
		return p.Composer.Submit(r.Context(), r.PostFormValue("title"), r.PostFormValue("body"))
	})
}

// OpenEditor は投稿の編集モーダルを開く。
// POST /{page}/posts/{id}/edit
func (h *ModalHandler) OpenEditor(page string) http.HandlerFunc {
	return h.action(page, func(r *http.Request, _ *client.Client, p *client.Page) error {
		return p.Editor.Open(r.Context(), chi.URLParam(r, "id"))
	})
}

// CancelEditor は編集モーダルを閉じる。
// POST /{page}/edit/cancel
func (h *ModalHandler) CancelEditor(page string) http.HandlerFunc {
	return h.action(page, func(_ *http.Request, _ *client.Client, p *client.Page) error {
		return p.Editor.Cancel()
	})
}

// SubmitEditor は投稿を更新する。
// POST /{page}/edit/submit
func (h *ModalHandler) SubmitEditor(page string) http.HandlerFunc {
	return h.action(page, func(r *http.Request, _ *client.Client, p *client.Page) error {
		return p.Editor.Submit(r.Context(), r.PostFormValue("title"), r.PostFormValue("body"))
	})
}

// OpenDeleter は削除確認モーダルを開く。この時点では削除しない。
// POST /{page}/posts/{id}/delete
func (h *ModalHandler) OpenDeleter(page string) http.HandlerFunc {
	return h.action(page, func(r *http.Request, _ *client.Client, p *client.Page) error {
		return p.Deleter.Open(r.Context(), chi.URLParam(r, "id"))
	})
}

// CancelDeleter は削除せずに確認モーダルを閉じる。
// POST /{page}/delete/cancel
func (h *ModalHandler) CancelDeleter(page string) http.HandlerFunc {
	return h.action(page, func(_ *http.Request, _ *client.Client, p *client.Page) error {
		return p.Deleter.Cancel()
	})
}

// ConfirmDeleter は投稿を削除する。
// POST /{page}/delete/confirm
func (h *ModalHandler) ConfirmDeleter(page string) http.HandlerFunc {
	return h.action(page, func(r *http.Request, _ *client.Client, p *client.Page) error {
		return p.Deleter.Confirm(r.Context())
	})
}

// OpenProfile はプロフィール編集モーダルを開く。
// POST /mypage/profile/open
func (h *ModalHandler) OpenProfile(w http.ResponseWriter, r *http.Request) {
	h.action(client.PageMyPage, func(r *http.Request, c *client.Client, _ *client.Page) error {
		return c.ProfileEditor.Open(r.Context())
	})(w, r)
}

// CancelProfile はプロフィール編集モーダルを閉じる。
// POST /mypage/profile/cancel
func (h *ModalHandler) CancelProfile(w http.ResponseWriter, r *http.Request) {
	h.action(client.PageMyPage, func(_ *http.Request, c *client.Client, _ *client.Page) error {
		return c.ProfileEditor.Cancel()
	})(w, r)
}

// SubmitProfile はプロフィールを更新する。アイコンのファイルは任意。
// POST /mypage/profile/submit (multipart/form-data)
func (h *ModalHandler) SubmitProfile(w http.ResponseWriter, r *http.Request) {
	h.action(client.PageMyPage, func(r *http.Request, c *client.Client, _ *client.Page) error {
		icon, err := readIcon(r)
		if err != nil {
			// 読めなかったファイルは不正な画像として編集モーダルに判定させる
			h.logger.WarnContext(r.Context(), "failed to read icon upload", slog.String("error", err.Error()))
			icon = &modal.IconUpload{}
		}
		return c.ProfileEditor.Submit(r.Context(), modal.ProfileInput{
			Name:         r.PostFormValue("name"),
			Email:        r.PostFormValue("email"),
			Introduction: r.PostFormValue("introduction"),
			Icon:         icon,
		})
	})(w, r)
}

func (h *ModalHandler) action(page string, op modalOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := middleware.ClientFromContext(r.Context())
		if err != nil {
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}

		if err := op(r, c, c.Page(page)); err != nil {
			h.logger.DebugContext(r.Context(), "modal action failed",
				slog.String("page", page),
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()),
			)
			h.pages.renderPage(w, r, c, page, statusForModalError(err))
			return
		}
		http.Redirect(w, r, "/"+page, http.StatusSeeOther)
	}
}

// readIcon はアップロードされたアイコンを読み込む。ファイルが無い場合はnil。
func readIcon(r *http.Request) (*modal.IconUpload, error) {
	if err := r.ParseMultipartForm(maxProfileFormMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return nil, fmt.Errorf("failed to parse profile form: %w", err)
	}
	file, _, err := r.FormFile("icon")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read icon: %w", err)
	}
	defer file.Close()

	// 上限を1バイト超えて読み、サイズ超過はEncodeIconで判定する
	data, err := io.ReadAll(io.LimitReader(file, modal.MaxIconBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read icon: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	return &modal.IconUpload{Data: data}, nil
}

// statusForModalError はモーダル操作の失敗をHTTPステータスに変換する。
func statusForModalError(err error) int {
	if errors.Is(err, modal.ErrNotVisible) || errors.Is(err, modal.ErrBusy) {
		return http.StatusConflict
	}
	return middleware.StatusForError(err)
}
