package header

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/postboard/internal/docstore"
	"github.com/hitoshi/postboard/internal/model"
	"github.com/hitoshi/postboard/internal/render"
)

func TestController_SignedIn(t *testing.T) {
	store := docstore.NewMemoryStore()
	store.Put(model.CollectionProfiles, "U1", map[string]any{
		"accountId": "acc-1", "email": "a@x.com", "name": "Alice", "icon": "data:image/jpeg;base64,AAA",
	})
	c := NewController(store)

	err := c.OnSessionChange(context.Background(), &model.Session{Identifier: "acc-1", Email: "a@x.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	v := c.View()
	if !v.SignedIn {
		t.Fatal("expected signed in header")
	}
	if v.Name != "Alice" || v.Email != "a@x.com" {
		t.Errorf("unexpected header: %+v", v)
	}
	if v.Icon != "data:image/jpeg;base64,AAA" {
		t.Errorf("Icon = %q", v.Icon)
	}
}

func TestController_EmptyNameFallsBack(t *testing.T) {
	store := docstore.NewMemoryStore()
	store.Put(model.CollectionProfiles, "U1", map[string]any{"email": "a@x.com"})
	c := NewController(store)

	if err := c.OnSessionChange(context.Background(), &model.Session{Email: "a@x.com"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	v := c.View()
	if v.Name != render.AnonymousName {
		t.Errorf("Name = %q, want %q", v.Name, render.AnonymousName)
	}
	if v.Icon != render.DefaultIcon {
		t.Errorf("Icon = %q, want %q", v.Icon, render.DefaultIcon)
	}
}

func TestController_SignedOutClearsHeader(t *testing.T) {
	store := docstore.NewMemoryStore()
	store.Put(model.CollectionProfiles, "U1", map[string]any{"email": "a@x.com", "name": "Alice"})
	c := NewController(store)
	_ = c.OnSessionChange(context.Background(), &model.Session{Email: "a@x.com"})

	if err := c.OnSessionChange(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v := c.View(); v != (View{}) {
		t.Errorf("expected empty header, got %+v", v)
	}
}

func TestController_MissingProfileRedirects(t *testing.T) {
	c := NewController(docstore.NewMemoryStore())

	err := c.OnSessionChange(context.Background(), &model.Session{Identifier: "acc-1", Email: "a@x.com"})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeProfileNotFound {
		t.Fatalf("expected profile not found error, got %v", err)
	}

	v := c.View()
	if v.SignedIn {
		t.Error("header should not show a user")
	}
	if v.Alert == "" {
		t.Error("expected alert")
	}
	if got := c.TakeRedirect(); got != SignInPath {
		t.Errorf("TakeRedirect() = %q, want %q", got, SignInPath)
	}
	if got := c.TakeRedirect(); got != "" {
		t.Errorf("redirect should be consumed, got %q", got)
	}
}

func TestController_BackendFailure(t *testing.T) {
	store := docstore.NewMemoryStore()
	store.FailOn("getMany", errors.New("down"))
	c := NewController(store)

	err := c.OnSessionChange(context.Background(), &model.Session{Identifier: "acc-1"})
	if err == nil {
		t.Fatal("expected error")
	}
	if v := c.View(); v.Alert != LoadFailedMessage || v.Redirect != "" {
		t.Errorf("unexpected view: %+v", v)
	}

	c.DismissAlert()
	if c.View().Alert != "" {
		t.Error("alert should be dismissed")
	}
}
