package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/hitoshi/postboard/internal/client"
)

func testRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(1),
		GeneralBurst:    3,
		ComposeRate:     rate.Limit(0.5),
		ComposeBurst:    1,
		CleanupInterval: time.Hour,
	}
}

// requestFrom は接続元アドレスとワークスペースを指定したリクエストを返す。cがnilならワークスペースなし。
func requestFrom(method, target, remoteAddr string, c *client.Client) *http.Request {
	r := httptest.NewRequest(method, target, nil)
	r.RemoteAddr = remoteAddr
	if c != nil {
		r = withClient(r, c)
	}
	return r
}

func TestRateLimiter_GeneralLimit(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()
	handler := rl.GeneralMiddleware()(okHandler)

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestFrom(http.MethodGet, "/home", "203.0.113.5:40000", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, w.Code)
		}
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom(http.MethodGet, "/home", "203.0.113.5:40000", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") != "1" {
		t.Errorf("Retry-After = %q, want %q", w.Header().Get("Retry-After"), "1")
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("expected JSON body: %v", err)
	}
	if body.Code != "RATE_LIMIT_EXCEEDED" || body.Category != "system" {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestRateLimiter_GeneralLimitSurvivesNewClientIDs(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()
	handler := rl.GeneralMiddleware()(okHandler)

	// Cookieを捨てるたびに新しいワークスペースになっても、同じアドレスなら同じ制限を受ける
	for i := 0; i < 3; i++ {
		c := reg.Transient(ctx, uuid.NewString(), "")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestFrom(http.MethodGet, "/home", "203.0.113.5:"+strconv.Itoa(40000+i), c))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, w.Code)
		}
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom(http.MethodGet, "/home", "203.0.113.5:40009", reg.Transient(ctx, uuid.NewString(), "")))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom(http.MethodGet, "/home", "198.51.100.7:40000", nil))
	if w.Code != http.StatusOK {
		t.Errorf("other address: status = %d, want 200", w.Code)
	}
	if rl.GeneralLimiterCount() != 2 {
		t.Errorf("GeneralLimiterCount = %d, want 2", rl.GeneralLimiterCount())
	}
}

func TestRateLimiter_ComposeLimitPerAccount(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	first := reg.Acquire(ctx, "c1", "")
	if err := first.Auth.Register(ctx, "a@x.com", "secret1"); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	// 同じアカウントでログインした別のワークスペース
	second := reg.Acquire(ctx, "c2", first.Auth.AuthSessionID())
	if !second.SignedIn() {
		t.Fatal("second workspace should be signed in")
	}
	other := reg.Acquire(ctx, "c3", "")
	if err := other.Auth.Register(ctx, "b@x.com", "secret1"); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()
	handler := rl.ComposeMiddleware()(okHandler)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom(http.MethodPost, "/home/compose/submit", "203.0.113.5:40000", first))
	if w.Code != http.StatusOK {
		t.Fatalf("first: status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom(http.MethodPost, "/home/compose/submit", "198.51.100.7:40000", second))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("same account from another workspace: status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") != "2" {
		t.Errorf("Retry-After = %q, want %q", w.Header().Get("Retry-After"), "2")
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom(http.MethodPost, "/home/compose/submit", "203.0.113.5:40000", other))
	if w.Code != http.StatusOK {
		t.Errorf("other account: status = %d, want 200", w.Code)
	}
	if rl.ComposeLimiterCount() != 2 {
		t.Errorf("ComposeLimiterCount = %d, want 2", rl.ComposeLimiterCount())
	}
	if rl.GeneralLimiterCount() != 0 {
		t.Errorf("GeneralLimiterCount = %d, want 0", rl.GeneralLimiterCount())
	}
}

func TestRateLimiter_CleanupRemovesExpiredEntries(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	rl.GeneralMiddleware()(okHandler).ServeHTTP(httptest.NewRecorder(),
		requestFrom(http.MethodGet, "/home", "203.0.113.5:40000", nil))
	if rl.GeneralLimiterCount() != 1 {
		t.Fatalf("GeneralLimiterCount = %d, want 1", rl.GeneralLimiterCount())
	}

	rl.cleanup(time.Now().Add(time.Hour))
	if rl.GeneralLimiterCount() != 1 {
		t.Error("entry within TTL should be kept")
	}
	rl.cleanup(time.Now().Add(3 * time.Hour))
	if rl.GeneralLimiterCount() != 0 {
		t.Error("expired entry should be removed")
	}

	rl.Stop()
	rl.Stop()
}

func TestRateLimiterConfigPerMinute(t *testing.T) {
	cfg := DefaultRateLimiterConfig()
	if cfg.GeneralRate != rate.Limit(2) || cfg.GeneralBurst != 120 {
		t.Errorf("general = %v/%d, want 2/120", cfg.GeneralRate, cfg.GeneralBurst)
	}
	if cfg.ComposeBurst != 10 {
		t.Errorf("compose burst = %d, want 10", cfg.ComposeBurst)
	}
	if cfg.CleanupInterval != 5*time.Minute {
		t.Errorf("cleanup interval = %v", cfg.CleanupInterval)
	}
}
