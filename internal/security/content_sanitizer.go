// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizerService は利用者が入力した投稿のテキストを、
// 改行のみを<br>として許可した安全なHTMLに変換する。入力は加工せずに保存し、表示時にのみ変換する。
package security

import (
	"html"
	"html/template"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はテキストのサニタイズ機能のインターフェースを定義する。
type ContentSanitizerService interface {
	// FormatBody はプレーンテキストをエスケープし、改行を<br>に変換したHTMLを返す。
	FormatBody(text string) template.HTML
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーはスレッドセーフに共有できる。
type contentSanitizer struct {
	body *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
// 出力にはbrタグのみ許可する。
func NewContentSanitizer() *contentSanitizer {
	body := bluemonday.NewPolicy()
	body.AllowElements("br")

	return &contentSanitizer{body: body}
}

// FormatBody はテキストを表示用のHTMLに変換する。
func (s *contentSanitizer) FormatBody(text string) template.HTML {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	escaped := html.EscapeString(normalized)
	withBreaks := strings.ReplaceAll(escaped, "\n", "<br>")
	return template.HTML(s.body.Sanitize(withBreaks))
}

// compile-time interface check
var _ ContentSanitizerService = (*contentSanitizer)(nil)
