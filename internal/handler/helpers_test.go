package handler

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/net/html"

	"github.com/hitoshi/postboard/internal/client"
	"github.com/hitoshi/postboard/internal/docstore"
	"github.com/hitoshi/postboard/internal/feed"
	"github.com/hitoshi/postboard/internal/identity"
	"github.com/hitoshi/postboard/internal/metrics"
	"github.com/hitoshi/postboard/internal/middleware"
	"github.com/hitoshi/postboard/internal/model"
	"github.com/hitoshi/postboard/internal/profile"
	"github.com/hitoshi/postboard/internal/render"
	"github.com/hitoshi/postboard/internal/security"
)

// recordingMailer は送信されたリセットリンクを保持する。
type recordingMailer struct {
	mu    sync.Mutex
	links map[string]string
}

func (m *recordingMailer) SendPasswordReset(_ context.Context, email, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.links == nil {
		m.links = make(map[string]string)
	}
	m.links[email] = link
	return nil
}

func (m *recordingMailer) link(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.links[email]
}

// testEnv はメモリストアで構成したルーターとテストサーバー。
type testEnv struct {
	server   *httptest.Server
	store    *docstore.MemoryStore
	identity *identity.Service
	registry *client.Registry
	mailer   *recordingMailer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := docstore.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tokens, err := identity.NewResetTokens("0123456789abcdef0123456789abcdef", time.Hour)
	if err != nil {
		t.Fatalf("failed to create reset tokens: %v", err)
	}
	mailer := &recordingMailer{}
	svc := identity.NewService(store, identity.NewPasswordHasher(bcrypt.MinCost), nil, tokens, mailer,
		identity.Config{SessionMaxAge: time.Hour, BaseURL: "http://postboard.test"},
	)
	svc.OnAccountCreated(profile.NewProvisioner(store).Provision)

	sanitizer := security.NewContentSanitizer()
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	registry := client.NewRegistry(client.Deps{
		Identity:  svc,
		Store:     store,
		Sanitizer: sanitizer,
		Metrics:   collector,
		Logger:    logger,
	}, time.Hour)

	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(limiter.Stop)

	router, err := NewRouter(&RouterDeps{
		Clients:       registry,
		RateLimiter:   limiter,
		Identity:      svc,
		SessionMaxAge: 3600,
		Atom:          feed.NewAtomPublisher(store, render.NewRenderer(store, sanitizer, "/home")),
		BaseURL:       "http://postboard.test",
		Gatherer:      reg,
		Metrics:       collector,
		Logger:        logger,
	})
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testEnv{
		server:   server,
		store:    store,
		identity: svc,
		registry: registry,
		mailer:   mailer,
	}
}

// seedPost はプロフィールと投稿をストアに直接登録する。
func (e *testEnv) seedPost(id, profileID, name, title, body string, updated time.Time) {
	e.store.Put(model.CollectionProfiles, profileID, map[string]any{"name": name, "email": profileID + "@example.com"})
	e.store.Put(model.CollectionPosts, id, map[string]any{
		"title":   title,
		"body":    body,
		"userId":  "users/" + profileID,
		"updated": updated,
	})
}

// browser はCookieを保持するテスト用のクライアント。
type browser struct {
	t      *testing.T
	env    *testEnv
	client *http.Client
}

func (e *testEnv) newBrowser(t *testing.T) *browser {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar.New() error = %v", err)
	}
	return &browser{t: t, env: e, client: &http.Client{Jar: jar}}
}

func (b *browser) url(path string) string {
	return b.env.server.URL + path
}

func (b *browser) cookie(name string) string {
	u, _ := url.Parse(b.env.server.URL)
	for _, c := range b.client.Jar.Cookies(u) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

func (b *browser) setCookie(name, value string) {
	u, _ := url.Parse(b.env.server.URL)
	b.client.Jar.SetCookies(u, []*http.Cookie{{Name: name, Value: value, Path: "/"}})
}

// get はページを取得してHTMLを解析する。リダイレクトは追従する。
func (b *browser) get(path string) (*http.Response, *html.Node) {
	b.t.Helper()
	resp, err := b.client.Get(b.url(path))
	if err != nil {
		b.t.Fatalf("GET %s error = %v", path, err)
	}
	return resp, b.parse(resp)
}

// post はCSRFトークンを付けてフォームを送信する。トークンが無ければ先に/signinを取得する。
func (b *browser) post(path string, form url.Values) (*http.Response, *html.Node) {
	b.t.Helper()
	if form == nil {
		form = url.Values{}
	}
	form.Set(middleware.CSRFFieldName, b.csrfToken())
	resp, err := b.client.PostForm(b.url(path), form)
	if err != nil {
		b.t.Fatalf("POST %s error = %v", path, err)
	}
	return resp, b.parse(resp)
}

// postMultipart はファイル付きのフォームを送信する。
func (b *browser) postMultipart(path string, fields map[string]string, fileField string, file []byte) (*http.Response, *html.Node) {
	b.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField(middleware.CSRFFieldName, b.csrfToken())
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	if file != nil {
		fw, err := mw.CreateFormFile(fileField, "icon.png")
		if err != nil {
			b.t.Fatalf("CreateFormFile() error = %v", err)
		}
		_, _ = fw.Write(file)
	}
	_ = mw.Close()

	resp, err := b.client.Post(b.url(path), mw.FormDataContentType(), &buf)
	if err != nil {
		b.t.Fatalf("POST %s error = %v", path, err)
	}
	return resp, b.parse(resp)
}

func (b *browser) csrfToken() string {
	if token := b.cookie("csrf_token"); token != "" {
		return token
	}
	b.get("/signin")
	return b.cookie("csrf_token")
}

func (b *browser) parse(resp *http.Response) *html.Node {
	b.t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		b.t.Fatalf("failed to read body: %v", err)
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html") {
		return nil
	}
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		b.t.Fatalf("html.Parse() error = %v", err)
	}
	return doc
}

// signUp はアカウントを作成してホームに移動する。
func (b *browser) signUp(email, password string) {
	b.t.Helper()
	resp, _ := b.post("/signup", url.Values{"email": {email}, "password": {password}})
	if resp.StatusCode != http.StatusOK || resp.Request.URL.Path != "/home" {
		b.t.Fatalf("sign up: status = %d, path = %s", resp.StatusCode, resp.Request.URL.Path)
	}
}

// --- HTML検査ヘルパー ---

func findAll(n *html.Node, match func(*html.Node) bool) []*html.Node {
	if n == nil {
		return nil
	}
	var found []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && match(n) {
			found = append(found, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return found
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func byClass(doc *html.Node, class string) []*html.Node {
	return findAll(doc, func(n *html.Node) bool {
		for _, c := range strings.Fields(attr(n, "class")) {
			if c == class {
				return true
			}
		}
		return false
	})
}

func byID(doc *html.Node, id string) *html.Node {
	nodes := findAll(doc, func(n *html.Node) bool { return attr(n, "id") == id })
	if len(nodes) == 0 {
		return nil
	}
	return nodes[0]
}

func textOf(n *html.Node) string {
	if n == nil {
		return ""
	}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}

func texts(nodes []*html.Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, textOf(n))
	}
	return out
}
