package client

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Registry はclient_idとワークスペースの対応を保持する。
type Registry struct {
	deps        Deps
	idleTimeout time.Duration

	mu      sync.Mutex
	clients map[string]*Client
}

// NewRegistry はRegistryを生成する。idleTimeoutを超えて使われていないワークスペースはEvictIdleで破棄する。
func NewRegistry(deps Deps, idleTimeout time.Duration) *Registry {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Registry{deps: deps, idleTimeout: idleTimeout, clients: make(map[string]*Client)}
}

// Acquire はclientIDのワークスペースを返す。
//
// 存在しない場合は生成し、authSessionIDからログイン状態を復元してから他のリクエストに公開する。
// 復元の結果は初回の通知として全リスナーへ配信される。
// 既存のワークスペースは毎回authSessionIDと認証セッションの有効性を確認し、
// 期限切れや破棄済みであればログアウト状態を通知する。
func (r *Registry) Acquire(ctx context.Context, clientID, authSessionID string) *Client {
	now := r.deps.Now()

	r.mu.Lock()
	c, ok := r.clients[clientID]
	if !ok {
		c = New(clientID, r.deps)
		c.ready = make(chan struct{})
		r.clients[clientID] = c
	}
	r.mu.Unlock()

	c.touch(now)
	if !ok {
		r.restore(ctx, c, authSessionID)
		close(c.ready)
		return c
	}

	select {
	case <-c.ready:
	case <-ctx.Done():
		return c
	}
	if err := c.Auth.Revalidate(ctx, authSessionID); err != nil {
		r.deps.Logger.ErrorContext(ctx, "failed to revalidate auth session",
			slog.String("client_id", clientID),
			slog.String("error", err.Error()),
		)
	}
	return c
}

// Transient はRegistryに登録しない使い捨てのワークスペースを返す。
// client_id Cookieを持たないリクエストに使う。
// authSessionIDが空の場合は復元の通知を行わない。表示内容はページの読み込み時に取得される。
func (r *Registry) Transient(ctx context.Context, clientID, authSessionID string) *Client {
	c := New(clientID, r.deps)
	if authSessionID != "" {
		r.restore(ctx, c, authSessionID)
	}
	return c
}

func (r *Registry) restore(ctx context.Context, c *Client, authSessionID string) {
	if err := c.Auth.Restore(ctx, authSessionID); err != nil {
		r.deps.Logger.ErrorContext(ctx, "failed to restore auth session",
			slog.String("client_id", c.ID),
			slog.String("error", err.Error()),
		)
	}
}

// Get はclientIDのワークスペースを返す。
func (r *Registry) Get(clientID string) (*Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[clientID]
	return c, ok
}

// Remove はワークスペースを破棄する。
func (r *Registry) Remove(clientID string) {
	r.mu.Lock()
	delete(r.clients, clientID)
	r.mu.Unlock()
}

// Len は保持しているワークスペースの数を返す。
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// EvictIdle はidleTimeoutを超えて使われていないワークスペースを破棄し、破棄した数を返す。
func (r *Registry) EvictIdle(ctx context.Context) int {
	cutoff := r.deps.Now().Add(-r.idleTimeout)

	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for id, c := range r.clients {
		if c.LastSeen().Before(cutoff) {
			delete(r.clients, id)
			evicted++
		}
	}
	if evicted > 0 {
		r.deps.Logger.InfoContext(ctx, "evicted idle clients",
			slog.Int("count", evicted),
			slog.Int("remaining", len(r.clients)),
		)
	}
	return evicted
}
