package feed

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/postboard/internal/docstore"
	"github.com/hitoshi/postboard/internal/model"
	"github.com/hitoshi/postboard/internal/render"
)

// AtomTitle はAtomフィードのタイトル。
const AtomTitle = "postboard"

type atomFeed struct {
	XMLName xml.Name    `xml:"http://www.w3.org/2005/Atom feed"`
	Title   string      `xml:"title"`
	ID      string      `xml:"id"`
	Updated string      `xml:"updated"`
	Links   []atomLink  `xml:"link"`
	Entries []atomEntry `xml:"entry"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr,omitempty"`
}

type atomEntry struct {
	Title   string      `xml:"title"`
	ID      string      `xml:"id"`
	Updated string      `xml:"updated"`
	Link    atomLink    `xml:"link"`
	Author  atomAuthor  `xml:"author"`
	Content atomContent `xml:"content"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

type atomContent struct {
	Type string `xml:"type,attr"`
	Body string `xml:",chardata"`
}

// AtomPublisher は全投稿をAtomフィードとして出力する。
type AtomPublisher struct {
	store    docstore.Gateway
	renderer *render.Renderer
	now      func() time.Time
}

// NewAtomPublisher はAtomPublisherを生成する。
func NewAtomPublisher(store docstore.Gateway, renderer *render.Renderer) *AtomPublisher {
	return &AtomPublisher{store: store, renderer: renderer, now: time.Now}
}

// Atom は全投稿を新しい順に並べたAtom文書を返す。baseURLはリンクの組み立てに使用する。
func (p *AtomPublisher) Atom(ctx context.Context, baseURL string) ([]byte, error) {
	docs, err := p.store.GetMany(ctx, model.CollectionPosts, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch posts: %w", err)
	}
	views := p.renderer.RenderAll(ctx, render.PostsNewestFirst(docs))

	base := strings.TrimRight(baseURL, "/")
	updated := p.now()
	if len(views) > 0 {
		updated = views[0].Updated
	}

	feed := atomFeed{
		Title:   AtomTitle,
		ID:      base + "/feed.atom",
		Updated: updated.UTC().Format(time.RFC3339),
		Links: []atomLink{
			{Href: base + "/feed.atom", Rel: "self"},
			{Href: base + "/home", Rel: "alternate"},
		},
	}
	for _, v := range views {
		feed.Entries = append(feed.Entries, atomEntry{
			Title:   v.Title,
			ID:      "urn:postboard:post:" + v.ID,
			Updated: v.Updated.UTC().Format(time.RFC3339),
			Link:    atomLink{Href: base + "/home#post-" + v.ID, Rel: "alternate"},
			Author:  atomAuthor{Name: v.AuthorName},
			Content: atomContent{Type: "html", Body: string(v.Body)},
		})
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(feed); err != nil {
		return nil, fmt.Errorf("failed to encode atom feed: %w", err)
	}
	return buf.Bytes(), nil
}
