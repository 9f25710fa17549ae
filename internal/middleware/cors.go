package middleware

import (
	"net/http"
	"strings"
)

// NewPublicCORSMiddleware はAtomフィード向けのCORSミドルウェアを返す。
// allowedOriginsはカンマ区切りで複数指定でき、"*"または空の場合は全オリジンを許可する。
// Cookieを送らない取得のみを想定しているため、credentialsは許可しない。
func NewPublicCORSMiddleware(allowedOrigins string) func(next http.Handler) http.Handler {
	allowAll := false
	allowed := make(map[string]bool)
	for _, o := range strings.Split(allowedOrigins, ",") {
		o = strings.TrimSpace(o)
		if o == "*" {
			allowAll = true
		}
		if o != "" {
			allowed[o] = true
		}
	}
	if len(allowed) == 0 {
		allowAll = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			switch origin := r.Header.Get("Origin"); {
			case allowAll:
				h.Set("Access-Control-Allow-Origin", "*")
			case allowed[origin]:
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			default:
				h.Add("Vary", "Origin")
			}
			h.Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
			h.Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
