package render

import (
	"sort"

	"github.com/hitoshi/postboard/internal/docstore"
	"github.com/hitoshi/postboard/internal/model"
)

// PostsNewestFirst はドキュメントを投稿に変換し、updatedの降順に並べる。
// 同時刻の投稿はストアの返却順を保つ。
func PostsNewestFirst(docs []docstore.Document) []*model.Post {
	posts := make([]*model.Post, len(docs))
	for i, d := range docs {
		posts[i] = model.PostFromData(d.ID, d.Data)
	}
	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].Updated.After(posts[j].Updated)
	})
	return posts
}
