package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/postboard/internal/model"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralRate     rate.Limit    // 全リクエストのレート（req/sec）
	GeneralBurst    int           // 全リクエストのバーストサイズ
	ComposeRate     rate.Limit    // 投稿作成のレート（req/sec）
	ComposeBurst    int           // 投稿作成のバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// 全リクエスト 120 req/min/address、投稿作成 10 req/min/account
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfigPerMinute(120, 10)
}

// RateLimiterConfigPerMinute は分あたりの回数からRateLimiterConfigを生成する。
func RateLimiterConfigPerMinute(general, compose int) RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(float64(general) / 60.0),
		GeneralBurst:    general,
		ComposeRate:     rate.Limit(float64(compose) / 60.0),
		ComposeBurst:    compose,
		CleanupInterval: 5 * time.Minute,
	}
}

// clientLimiter はキーごとのレートリミッターとアクセス時刻を保持する。
type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// limiterSet は1種類のレート制限についてキーごとのリミッターを保持する。
type limiterSet struct {
	kind  string
	limit rate.Limit
	burst int
	key   func(r *http.Request) string

	mu       sync.Mutex
	limiters map[string]*clientLimiter
}

func newLimiterSet(kind string, limit rate.Limit, burst int, key func(r *http.Request) string) *limiterSet {
	return &limiterSet{kind: kind, limit: limit, burst: burst, key: key, limiters: make(map[string]*clientLimiter)}
}

func (s *limiterSet) allow(key string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cl, ok := s.limiters[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.limiters[key] = cl
	}
	cl.lastAccess = now
	return cl.limiter.AllowN(now, 1)
}

func (s *limiterSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

func (s *limiterSet) prune(now time.Time, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, cl := range s.limiters {
		if now.Sub(cl.lastAccess) > ttl {
			delete(s.limiters, id)
		}
	}
}

func (s *limiterSet) middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := s.key(r)
			if !s.allow(key, time.Now()) {
				writeRateLimitResponse(w, r, s.limit)
				slog.Warn("rate limit exceeded",
					slog.String("key", key),
					slog.String("client_id", clientIDFromContext(r.Context())),
					slog.String("limit_type", s.kind),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimiter はレート制限を管理する。
// 接続元アドレスごとの全リクエストのレート制限と、アカウントごとの投稿作成のレート制限の2種類を提供する。
// どちらもclient_id Cookieを作り直しても解除されない。
type RateLimiter struct {
	config  RateLimiterConfig
	general *limiterSet
	compose *limiterSet

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:  config,
		general: newLimiterSet("general", config.GeneralRate, config.GeneralBurst, remoteAddrKey),
		compose: newLimiterSet("compose", config.ComposeRate, config.ComposeBurst, accountKey),
		stopCh:  make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// GeneralMiddleware は全リクエストのレート制限ミドルウェアを返す。
// NewClientMiddlewareの後に配置する。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return rl.general.middleware()
}

// ComposeMiddleware は投稿作成専用のレート制限ミドルウェアを返す。
// 全リクエストのレート制限とは独立に動作する。
func (rl *RateLimiter) ComposeMiddleware() func(next http.Handler) http.Handler {
	return rl.compose.middleware()
}

// GeneralLimiterCount は管理している全リクエスト用リミッターの数を返す。
func (rl *RateLimiter) GeneralLimiterCount() int {
	return rl.general.len()
}

// ComposeLimiterCount は管理している投稿作成用リミッターの数を返す。
func (rl *RateLimiter) ComposeLimiterCount() int {
	return rl.compose.len()
}

// remoteAddrKey は接続元アドレスをキーにする。
// 転送ヘッダーはクライアントが自由に書き換えられるため使わない。
func remoteAddrKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "addr:" + r.RemoteAddr
	}
	return "addr:" + host
}

// accountKey はログイン中のアカウントをキーにする。未ログインなら接続元アドレスを使う。
func accountKey(r *http.Request) string {
	if c, err := ClientFromContext(r.Context()); err == nil {
		if s := c.Session.Current(); s != nil {
			return "account:" + s.Identifier
		}
	}
	return remoteAddrKey(r)
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup(now time.Time) {
	ttl := rl.config.CleanupInterval * 2
	rl.general.prune(now, ttl)
	rl.compose.prune(now, ttl)
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, req *http.Request, r rate.Limit) {
	retryAfterSec := 1
	if r > 0 {
		retryAfterSec = int(math.Ceil(1.0 / float64(r)))
	}
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteErrorResponse(w, req, http.StatusTooManyRequests, &model.APIError{
		Code:     "RATE_LIMIT_EXCEEDED",
		Message:  "リクエストが多すぎます。",
		Category: model.CategorySystem,
		Action:   "しばらく待ってから再度お試しください。",
	})
}
