package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/postboard/internal/feed"
)

const healthTimeout = 2 * time.Second

// HealthChecker はバックエンドの疎通確認を行う。*sql.DBが実装する。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// PublicHandler はログイン不要の公開エンドポイントを提供する。
type PublicHandler struct {
	atom    *feed.AtomPublisher
	health  HealthChecker
	baseURL string
	logger  *slog.Logger
}

// NewPublicHandler はPublicHandlerを生成する。healthがnilの場合は常に正常を返す。
func NewPublicHandler(atom *feed.AtomPublisher, health HealthChecker, baseURL string, logger *slog.Logger) *PublicHandler {
	return &PublicHandler{atom: atom, health: health, baseURL: baseURL, logger: logger}
}

// Atom は全投稿のAtomフィードを返す。
// GET /feed.atom
func (h *PublicHandler) Atom(w http.ResponseWriter, r *http.Request) {
	body, err := h.atom.Atom(r.Context(), h.baseURL)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to build atom feed", slog.String("error", err.Error()))
		http.Error(w, "failed to build feed", http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/atom+xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// Health はプロセスとバックエンドの状態を返す。
// GET /health
func (h *PublicHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := h.health.PingContext(ctx); err != nil {
			h.logger.WarnContext(r.Context(), "health check failed", slog.String("error", err.Error()))
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// Avatar はアイコン未設定時の既定画像を返す。
// GET /asset/avatar.png
func (h *PublicHandler) Avatar(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	_, _ = w.Write(avatarPNG)
}
