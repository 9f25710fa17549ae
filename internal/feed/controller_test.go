package feed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/postboard/internal/docstore"
	"github.com/hitoshi/postboard/internal/model"
	"github.com/hitoshi/postboard/internal/render"
	"github.com/hitoshi/postboard/internal/security"
)

func newTestRenderer(store docstore.Gateway) *render.Renderer {
	return render.NewRenderer(store, security.NewContentSanitizer(), "/home").
		WithLocation(time.UTC).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// seedScenario はU1（プロフィールあり）とU2（プロフィールなし）の投稿を用意する。
func seedScenario(store *docstore.MemoryStore) {
	store.Put(model.CollectionProfiles, "U1", map[string]any{"name": "Alice", "email": "a@x.com"})
	store.Put(model.CollectionPosts, "P1", map[string]any{
		"title":   "first",
		"body":    "hello",
		"userId":  "users/U1",
		"updated": time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
	})
	store.Put(model.CollectionPosts, "P2", map[string]any{
		"title":   "second",
		"body":    "world",
		"userId":  "users/U2",
		"updated": time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC),
	})
}

func TestController_Refresh_NewestFirstWithFallback(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedScenario(store)
	c := NewController(store, newTestRenderer(store))

	require.NoError(t, c.Refresh(context.Background()))

	v := c.View()
	require.Len(t, v.Posts, 2)
	assert.Equal(t, "P2", v.Posts[0].ID)
	assert.Equal(t, render.AnonymousName, v.Posts[0].AuthorName)
	assert.Equal(t, render.DefaultIcon, v.Posts[0].AuthorIcon)
	assert.Equal(t, "P1", v.Posts[1].ID)
	assert.Equal(t, "Alice", v.Posts[1].AuthorName)
	assert.Empty(t, v.Alert)
}

func TestController_Refresh_SkipsMalformedPosts(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedScenario(store)
	store.Put(model.CollectionPosts, "P3", map[string]any{
		"title":   "no author",
		"body":    "x",
		"updated": time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC),
	})
	c := NewController(store, newTestRenderer(store))

	require.NoError(t, c.Refresh(context.Background()))

	v := c.View()
	require.Len(t, v.Posts, 2)
	assert.Equal(t, "P2", v.Posts[0].ID)
}

func TestController_Refresh_ReplacesPreviousView(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedScenario(store)
	c := NewController(store, newTestRenderer(store))
	require.NoError(t, c.Refresh(context.Background()))

	require.NoError(t, store.Delete(context.Background(), model.CollectionPosts, "P2"))
	require.NoError(t, c.Refresh(context.Background()))

	v := c.View()
	require.Len(t, v.Posts, 1)
	assert.Equal(t, "P1", v.Posts[0].ID)
}

func TestController_Refresh_BackendFailure(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedScenario(store)
	c := NewController(store, newTestRenderer(store))
	require.NoError(t, c.Refresh(context.Background()))

	store.FailOn("getMany", errors.New("unavailable"))
	err := c.Refresh(context.Background())

	require.Error(t, err)
	var storeErr *docstore.Error
	assert.True(t, errors.As(err, &storeErr))

	v := c.View()
	assert.Equal(t, FetchFailedMessage, v.Alert)
	assert.Len(t, v.Posts, 2, "previous view is kept")

	c.DismissAlert()
	assert.Empty(t, c.View().Alert)
}

func TestController_OnSessionChange_RefreshesWithoutSession(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedScenario(store)
	c := NewController(store, newTestRenderer(store))

	require.NoError(t, c.OnSessionChange(context.Background(), nil))
	assert.Len(t, c.View().Posts, 2)
}

func TestController_View_ReturnsCopy(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedScenario(store)
	c := NewController(store, newTestRenderer(store))
	require.NoError(t, c.Refresh(context.Background()))

	v := c.View()
	v.Posts[0] = nil

	assert.NotNil(t, c.View().Posts[0])
}
