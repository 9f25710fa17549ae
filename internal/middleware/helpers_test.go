package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/postboard/internal/client"
	"github.com/hitoshi/postboard/internal/docstore"
	"github.com/hitoshi/postboard/internal/identity"
	"github.com/hitoshi/postboard/internal/profile"
	"github.com/hitoshi/postboard/internal/security"
)

// newTestRegistry はメモリストアを使うRegistryを生成する。
func newTestRegistry(t *testing.T) (*client.Registry, *identity.Service) {
	t.Helper()
	store := docstore.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tokens, err := identity.NewResetTokens("0123456789abcdef0123456789abcdef", time.Hour)
	if err != nil {
		t.Fatalf("failed to create reset tokens: %v", err)
	}
	svc := identity.NewService(store, identity.NewPasswordHasher(bcrypt.MinCost), nil, tokens,
		&identity.LogMailer{Logger: logger},
		identity.Config{SessionMaxAge: time.Hour, BaseURL: "http://localhost:8080"},
	)
	svc.OnAccountCreated(profile.NewProvisioner(store).Provision)

	reg := client.NewRegistry(client.Deps{
		Identity:  svc,
		Store:     store,
		Sanitizer: security.NewContentSanitizer(),
		Logger:    logger,
	}, time.Hour)
	return reg, svc
}

// withClient はワークスペースをコンテキストに注入したリクエストを返す。
func withClient(r *http.Request, c *client.Client) *http.Request {
	return r.WithContext(ContextWithClient(r.Context(), c))
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})
