package identity

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/postboard/internal/model"
)

// MinPasswordLength はパスワードの最小文字数。
const MinPasswordLength = 6

var emailPattern = regexp.MustCompile(`\S+@\S+\.\S+`)

// ValidateCredentials はバックエンド呼び出し前に入力を検証する。
// checkStrength=falseの場合（サインイン）は必須チェックのみ行う。
func ValidateCredentials(email, password string, checkStrength bool) error {
	if strings.TrimSpace(email) == "" || password == "" {
		return model.NewValidationError("メールアドレスとパスワードを入力してください")
	}
	if !checkStrength {
		return nil
	}
	if !emailPattern.MatchString(email) {
		return model.NewValidationError("有効なメールアドレスを入力してください")
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return model.NewValidationError("パスワードは6文字以上である必要があります")
	}
	return nil
}

// ValidateEmail はメールアドレスの必須チェックと形式チェックを行う。
func ValidateEmail(email string) error {
	if strings.TrimSpace(email) == "" {
		return model.NewValidationError("メールアドレスを入力してください")
	}
	if !emailPattern.MatchString(email) {
		return model.NewValidationError("有効なメールアドレスを入力してください")
	}
	return nil
}
