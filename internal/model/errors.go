// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, data, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation      = "VALIDATION_FAILED"
	ErrCodeUnauthenticated = "UNAUTHENTICATED"
	ErrCodeProfileNotFound = "PROFILE_NOT_FOUND"
	ErrCodePostNotFound    = "POST_NOT_FOUND"
	ErrCodeInvalidRef      = "INVALID_REFERENCE"
	ErrCodeBackend         = "BACKEND_FAILED"
	ErrCodeInternal        = "INTERNAL_ERROR"
)

// エラーカテゴリ
const (
	CategoryValidation = "validation"
	CategoryAuth       = "auth"
	CategoryData       = "data"
	CategorySystem     = "system"
)

// NewValidationError は入力検証エラーを生成する。
// バックエンド呼び出し前に検出され、ログ出力は不要。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: CategoryValidation,
		Action:   "入力内容を確認してください。",
	}
}

// NewUnauthenticatedError はセッションが存在しない場合のエラーを生成する。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "ログインしていません。再ログインしてください。",
		Category: CategoryAuth,
		Action:   "サインインしてください。",
	}
}

// NewProfileNotFoundError はセッションに対応するプロフィールが見つからない場合のエラーを生成する。
func NewProfileNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeProfileNotFound,
		Message:  "ユーザー情報が見つかりません。",
		Category: CategoryData,
		Action:   "管理者にお問い合わせください。",
	}
}

// NewPostNotFoundError は投稿が見つからない場合のエラーを生成する。
func NewPostNotFoundError(postID string) *APIError {
	return &APIError{
		Code:     ErrCodePostNotFound,
		Message:  fmt.Sprintf("指定された投稿が見つかりません: %s", postID),
		Category: CategoryData,
		Action:   "ページを再読み込みしてください。",
	}
}

// NewInvalidRefError は参照文字列の形式が不正な場合のエラーを生成する。
func NewInvalidRefError(raw string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRef,
		Message:  fmt.Sprintf("参照の形式が不正です: %q", raw),
		Category: CategoryData,
		Action:   "データを確認してください。",
	}
}

// NewBackendError はバックエンド障害時の汎用エラーを生成する。
// message はユーザー向けの文言（例: "投稿に失敗しました。"）。
func NewBackendError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeBackend,
		Message:  message,
		Category: CategorySystem,
		Action:   "時間を置いて再試行してください。",
	}
}
