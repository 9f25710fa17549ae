// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/hitoshi/postboard/internal/client"
)

// Cookie名
const (
	ClientCookieName  = "client_id"
	SessionCookieName = "session_id"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	clientContextKey    = contextKey("client")
	csrfTokenContextKey = contextKey("csrf_token")
)

// ClientAcquirer はワークスペースの取得に必要なインターフェース。
// client.Registryが実装する。
type ClientAcquirer interface {
	Acquire(ctx context.Context, clientID, authSessionID string) *client.Client
	Transient(ctx context.Context, clientID, authSessionID string) *client.Client
}

// CookieConfig はミドルウェアとハンドラーが発行するCookieの設定。
type CookieConfig struct {
	Secure bool
	Domain string
	MaxAge int // 秒
}

// NewClientMiddleware はclient_id Cookieからワークスペースを解決し、
// リクエストコンテキストに注入するミドルウェアを返す。
// Cookieが無いか不正な場合は新しいIDを発行し、そのリクエストには登録しない使い捨てのワークスペースを使う。
// ワークスペースはsession_id Cookieでログイン状態を復元し、以後のリクエストで有効性を確認する。
func NewClientMiddleware(clients ClientAcquirer, config CookieConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := ""
			if cookie, err := r.Cookie(ClientCookieName); err == nil {
				if id, err := uuid.Parse(cookie.Value); err == nil {
					clientID = id.String()
				}
			}
			issued := clientID == ""
			if issued {
				clientID = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     ClientCookieName,
					Value:    clientID,
					Path:     "/",
					Domain:   config.Domain,
					MaxAge:   config.MaxAge,
					HttpOnly: true,
					Secure:   config.Secure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			authSessionID := ""
			if cookie, err := r.Cookie(SessionCookieName); err == nil {
				authSessionID = cookie.Value
			}

			var c *client.Client
			if issued {
				c = clients.Transient(r.Context(), clientID, authSessionID)
			} else {
				c = clients.Acquire(r.Context(), clientID, authSessionID)
			}
			setRequestClientID(r.Context(), c.ID)
			ctx := ContextWithClient(r.Context(), c)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewRequireSessionMiddleware はログインしていないリクエストをサインイン画面へリダイレクトする。
// NewClientMiddlewareの後に配置する。
func NewRequireSessionMiddleware(signInPath string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, err := ClientFromContext(r.Context())
			if err != nil || !c.SignedIn() {
				http.Redirect(w, r, signInPath, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientFromContext はリクエストコンテキストからワークスペースを取得する。
// クライアントミドルウェアを通過したリクエストでのみ有効。
func ClientFromContext(ctx context.Context) (*client.Client, error) {
	c, ok := ctx.Value(clientContextKey).(*client.Client)
	if !ok || c == nil {
		return nil, fmt.Errorf("client not found in context")
	}
	return c, nil
}

// ContextWithClient はコンテキストにワークスペースを注入する。
func ContextWithClient(ctx context.Context, c *client.Client) context.Context {
	return context.WithValue(ctx, clientContextKey, c)
}

// clientIDFromContext はログ出力用にワークスペースのIDを返す。
func clientIDFromContext(ctx context.Context) string {
	if c, err := ClientFromContext(ctx); err == nil {
		return c.ID
	}
	return ""
}
