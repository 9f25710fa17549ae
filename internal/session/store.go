// Package session は現在の認証セッションを保持し、変更をリスナーへ配信する。
//
// 1つのStoreは1つのワークスペース（ブラウザクライアント）に対応し、
// Identity Providerの変更通知を生成時に一度だけ購読する。
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hitoshi/postboard/internal/metrics"
	"github.com/hitoshi/postboard/internal/model"
)

// IdentityObserver はIdentity Providerの変更通知を購読するインターフェース。
type IdentityObserver interface {
	OnIdentityChange(callback func(ctx context.Context, s *model.Session))
}

// Listener はセッション変更時に呼び出されるコールバック。
// sがnilの場合はログアウト状態を表す。
type Listener func(ctx context.Context, s *model.Session) error

// ListenerID はRemoveListenerで使用する登録ID。
type ListenerID uint64

type registration struct {
	id   ListenerID
	name string
	fn   Listener
}

// Store は現在のSessionとリスナーの登録を保持する。
//
// 配信はIdentity Providerのコールバック内で同期的に行い、登録順に全リスナーへ
// 同じ値を渡す。配信中のリスナー追加は次回の変更から有効になり、
// 配信中に削除されたリスナーはまだ呼ばれていなければ呼ばれない。
// リスナー内で同期的にIdentity Providerの状態を変更してはならない。
type Store struct {
	fanout sync.Mutex

	mu        sync.RWMutex
	current   *model.Session
	listeners []registration
	nextID    ListenerID

	logger  *slog.Logger
	metrics metrics.MetricsCollector
}

// Option はStoreの生成オプション。
type Option func(*Store)

// WithLogger はリスナー失敗の出力先を指定する。
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithMetrics はメトリクスの記録先を指定する。
func WithMetrics(m metrics.MetricsCollector) Option {
	return func(s *Store) { s.metrics = m }
}

// NewStore はStoreを生成し、observerの変更通知を購読する。
func NewStore(observer IdentityObserver, opts ...Option) *Store {
	s := &Store{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	observer.OnIdentityChange(s.handleChange)
	return s
}

// Current は現在のSessionのコピーを返す。ログアウト状態ではnilを返す。
func (s *Store) Current() *model.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySession(s.current)
}

// OnChange はリスナーを登録する。nameはログとメトリクスで使用する。
func (s *Store) OnChange(name string, fn Listener) ListenerID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.listeners = append(s.listeners, registration{id: s.nextID, name: name, fn: fn})
	return s.nextID
}

// RemoveListener はリスナーの登録を解除する。未登録のIDは無視する。
func (s *Store) RemoveListener(id ListenerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.listeners {
		if r.id == id {
			s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
			return
		}
	}
}

// handleChange はIdentity Providerからの通知を受けて値を置き換え、全リスナーへ配信する。
func (s *Store) handleChange(ctx context.Context, next *model.Session) {
	s.fanout.Lock()
	defer s.fanout.Unlock()

	s.mu.Lock()
	s.current = copySession(next)
	snapshot := make([]registration, len(s.listeners))
	copy(snapshot, s.listeners)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordSessionChange(next != nil)
	}

	for _, r := range snapshot {
		if !s.registered(r.id) {
			continue
		}
		s.invoke(ctx, r, copySession(next))
	}
}

func (s *Store) registered(id ListenerID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.listeners {
		if r.id == id {
			return true
		}
	}
	return false
}

// invoke はリスナーを1つ呼び出す。エラーとpanicはここで捕捉し、後続の配信を止めない。
func (s *Store) invoke(ctx context.Context, r registration, value *model.Session) {
	defer func() {
		if rec := recover(); rec != nil {
			s.fail(r, fmt.Errorf("panic: %v", rec))
		}
	}()
	if err := r.fn(ctx, value); err != nil {
		s.fail(r, err)
	}
}

func (s *Store) fail(r registration, err error) {
	s.logger.Error("session listener failed",
		slog.String("listener", r.name),
		slog.String("error", err.Error()),
	)
	if s.metrics != nil {
		s.metrics.RecordListenerFailure(r.name)
	}
}

func copySession(s *model.Session) *model.Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
