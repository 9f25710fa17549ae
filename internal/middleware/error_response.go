package middleware

import (
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strings"

	"github.com/hitoshi/postboard/internal/model"
)

// ErrorResponseBody はJSONで返すエラーの形式。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// errorPage はページを描画できない段階（ミドルウェア）で返す最小限のHTML。
var errorPage = template.Must(template.New("error").Parse(`<!DOCTYPE html>
<html lang="ja">
<head><meta charset="utf-8"><title>{{.Message}}</title></head>
<body data-error-code="{{.Code}}">
<p class="alert">{{.Message}}</p>
<p class="action">{{.Action}}</p>
<p><a href="/home">ホームへ戻る</a></p>
</body>
</html>
`))

// WriteErrorResponse はミドルウェアで打ち切ったリクエストにエラーを返す。
// ブラウザからのリクエスト（AcceptにHTMLを含む）にはHTMLを、それ以外にはJSONを返す。
func WriteErrorResponse(w http.ResponseWriter, r *http.Request, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Cache-Control", "no-store")
	if acceptsHTML(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(statusCode)
		errorPage.Execute(w, apiErr)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteInternalServerError は内部エラーを返す。詳細はログにのみ記録する。
func WriteInternalServerError(w http.ResponseWriter, r *http.Request) {
	WriteErrorResponse(w, r, http.StatusInternalServerError, &model.APIError{
		Code:     model.ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: model.CategorySystem,
		Action:   "しばらく待ってから再度お試しください。",
	})
}

func acceptsHTML(r *http.Request) bool {
	if r == nil {
		return false
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

// StatusForError はエラーのカテゴリに対応するHTTPステータスコードを返す。
// モーダルとフォームの失敗時に、ページを描画し直す際のステータスとして使う。
func StatusForError(err error) int {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		return http.StatusInternalServerError
	}
	switch apiErr.Category {
	case model.CategoryValidation:
		return http.StatusUnprocessableEntity
	case model.CategoryAuth:
		return http.StatusUnauthorized
	case model.CategoryData:
		if apiErr.Code == model.ErrCodePostNotFound {
			return http.StatusNotFound
		}
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
