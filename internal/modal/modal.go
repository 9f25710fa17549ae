// Package modal は投稿作成・編集・削除とプロフィール編集のモーダルを提供する。
//
// 各モーダルは Hidden → Visible → Submitting → Hidden の状態遷移を持つ。
// キャンセルは Visible → Hidden で、バックエンドは変更しない。
// 送信に失敗した場合は Visible に戻り、入力内容を保持する。
package modal

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/postboard/internal/docstore"
	"github.com/hitoshi/postboard/internal/metrics"
	"github.com/hitoshi/postboard/internal/model"
)

// State はモーダルの表示状態。
type State int

const (
	Hidden State = iota
	Visible
	Submitting
)

func (s State) String() string {
	switch s {
	case Visible:
		return "visible"
	case Submitting:
		return "submitting"
	default:
		return "hidden"
	}
}

var (
	// ErrNotVisible はモーダルが開いていない状態で送信やキャンセルをした場合のエラー。
	ErrNotVisible = errors.New("modal is not visible")
	// ErrBusy は送信中に別の操作をした場合のエラー。
	ErrBusy = errors.New("modal is submitting")
)

// SuccessFunc は送信成功後に呼ばれる。ページの表示を更新する処理を注入する。
type SuccessFunc func(ctx context.Context) error

// SessionSource は現在のセッションを返す。session.Storeが実装する。
type SessionSource interface {
	Current() *model.Session
}

// Deps は全モーダルに共通の依存。
type Deps struct {
	Store    docstore.Gateway
	Sessions SessionSource
	Metrics  metrics.MetricsCollector
	Logger   *slog.Logger
	Now      func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// machine は状態遷移とアラートを保持する。各モーダルに埋め込んで使う。
type machine struct {
	mu    sync.Mutex
	state State
	alert string
}

// show は Hidden または Visible から Visible へ遷移する。呼び出し側でロックを取得しておく。
func (m *machine) show() error {
	if m.state == Submitting {
		return ErrBusy
	}
	m.state = Visible
	m.alert = ""
	return nil
}

// begin は Visible から Submitting へ遷移する。呼び出し側でロックを取得しておく。
func (m *machine) begin() error {
	switch m.state {
	case Visible:
		m.state = Submitting
		return nil
	case Submitting:
		return ErrBusy
	default:
		return ErrNotVisible
	}
}

// ready は送信前の状態を確認する。呼び出し側でロックを取得しておく。
func (m *machine) ready() error {
	switch m.state {
	case Visible:
		return nil
	case Submitting:
		return ErrBusy
	default:
		return ErrNotVisible
	}
}

// hide は Visible から Hidden へ遷移する。Hiddenの場合は何もしない。
func (m *machine) hide() error {
	if m.state == Submitting {
		return ErrBusy
	}
	m.state = Hidden
	m.alert = ""
	return nil
}

// finish は送信結果に応じて Hidden か Visible に戻す。
func (m *machine) finish(err error, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.state = Visible
		m.alert = message
		return
	}
	m.state = Hidden
	m.alert = ""
}

// State は現在の状態を返す。
func (m *machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// DismissAlert はアラートを消す。
func (m *machine) DismissAlert() {
	m.mu.Lock()
	m.alert = ""
	m.mu.Unlock()
}

// alertFor はユーザーに表示する文言を決める。APIErrorはそのメッセージ、それ以外は既定の文言。
func alertFor(err error, fallback string) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return fallback
}

// logFailure は検証エラー以外の失敗をログに出力する。
func logFailure(ctx context.Context, logger *slog.Logger, op string, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.Category == model.CategoryValidation {
		return
	}
	logger.ErrorContext(ctx, "modal submit failed",
		slog.String("modal", op),
		slog.String("error", err.Error()),
	)
}

// refresh は成功後の表示更新を行う。失敗はログのみで、送信結果には影響しない。
func refresh(ctx context.Context, logger *slog.Logger, op string, onSuccess SuccessFunc) {
	if onSuccess == nil {
		return
	}
	if err := onSuccess(ctx); err != nil {
		logger.ErrorContext(ctx, "refresh after submit failed",
			slog.String("modal", op),
			slog.String("error", err.Error()),
		)
	}
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// Visible はモーダルを表示すべきかを返す。送信中も表示を続ける。
func (f PostForm) Visible() bool { return f.State != Hidden }

// Visible はモーダルを表示すべきかを返す。
func (f DeleteForm) Visible() bool { return f.State != Hidden }

// Visible はモーダルを表示すべきかを返す。
func (f ProfileForm) Visible() bool { return f.State != Hidden }
