package identity

import (
	"context"
	"log/slog"
)

// Mailer はパスワードリセットのリンクを利用者へ届ける。
type Mailer interface {
	SendPasswordReset(ctx context.Context, email, link string) error
}

// LogMailer はリンクをログに出力するだけのMailer。
// メール配信基盤を持たない開発環境で使用する。
type LogMailer struct {
	Logger *slog.Logger
}

// SendPasswordReset はリセットリンクをログに出力する。
func (m *LogMailer) SendPasswordReset(ctx context.Context, email, link string) error {
	l := m.Logger
	if l == nil {
		l = slog.Default()
	}
	l.InfoContext(ctx, "password reset requested",
		slog.String("email", email),
		slog.String("link", link),
	)
	return nil
}

// compile-time interface check
var _ Mailer = (*LogMailer)(nil)
