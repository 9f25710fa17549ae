package identity

import (
	"errors"
	"fmt"

	"github.com/hitoshi/postboard/internal/model"
)

// Identity Providerが返すエラーコード
const (
	CodeEmailAlreadyInUse = "auth/email-already-in-use"
	CodeWrongPassword     = "auth/wrong-password"
	CodeUserNotFound      = "auth/user-not-found"
	CodeInvalidEmail      = "auth/invalid-email"
	CodeWeakPassword      = "auth/weak-password"
	CodeInvalidToken      = "auth/invalid-action-code"
	CodeGoogleFailed      = "auth/google-sign-in-failed"
)

// Error はIdentity Providerの失敗を表す。Codeで原因を判別する。
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Action はエラーメッセージの文脈となる操作。
type Action int

const (
	ActionSignIn Action = iota
	ActionSignUp
	ActionGoogle
	ActionPasswordReset
)

var actionPrefixes = map[Action]string{
	ActionSignIn:        "サインインに失敗しました",
	ActionSignUp:        "アカウント作成に失敗しました",
	ActionGoogle:        "Google アカウントでのサインインに失敗しました",
	ActionPasswordReset: "パスワードリセットに失敗しました",
}

var knownMessages = map[string]string{
	CodeUserNotFound:      "ユーザーが見つかりません。サインアップしてください。",
	CodeWrongPassword:     "パスワードが間違っています。もう一度お試しください。",
	CodeEmailAlreadyInUse: "このメールアドレスは既に登録されています。別のメールアドレスで作成してください。",
	CodeInvalidToken:      "リセット用のリンクが無効か、有効期限が切れています。",
}

// UserMessage はエラーをユーザー向けの文言に変換する。
// 既知のコードは定型文に、未知のコードは "{操作}: {code} - {message}" にする。
func UserMessage(action Action, err error) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}

	var idErr *Error
	if errors.As(err, &idErr) {
		if msg, ok := knownMessages[idErr.Code]; ok {
			return msg
		}
		return fmt.Sprintf("%s: %s - %s", actionPrefixes[action], idErr.Code, idErr.Message)
	}

	msg := "No message available"
	if err != nil {
		msg = err.Error()
	}
	return fmt.Sprintf("%s: Unknown - %s", actionPrefixes[action], msg)
}
