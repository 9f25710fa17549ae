package model

import (
	"strings"
	"time"
)

// CollectionPosts は投稿ドキュメントのコレクション名。
const CollectionPosts = "posts"

// Ref はコレクション名とドキュメントIDからなる型付き参照。
// 保存時は "users/{id}" 形式の文字列になる。
type Ref struct {
	Collection string
	ID         string
}

// ParseRef は "{collection}/{id}" 形式の文字列を参照に変換する。
func ParseRef(raw string) (Ref, error) {
	collection, id, ok := strings.Cut(raw, "/")
	if !ok || collection == "" || id == "" || strings.Contains(id, "/") {
		return Ref{}, NewInvalidRefError(raw)
	}
	return Ref{Collection: collection, ID: id}, nil
}

// ProfileRef はプロフィールIDから参照を生成する。
func ProfileRef(profileID string) Ref {
	return Ref{Collection: CollectionProfiles, ID: profileID}
}

// String は保存用の文字列表現を返す。
func (r Ref) String() string {
	return r.Collection + "/" + r.ID
}

// IsZero は参照が未設定かどうかを返す。
func (r Ref) IsZero() bool {
	return r.Collection == "" && r.ID == ""
}

// Post はプロフィールに紐づく短いテキスト投稿を表す。
type Post struct {
	ID      string
	Title   string
	Body    string
	UserID  string // 保存されている参照文字列（未検証）
	Author  Ref    // UserIDが正しい形式の場合のみ設定される
	Updated time.Time
}

// PostFromData はドキュメントのフィールドからPostを復元する。
// userIdの形式が不正な場合はAuthorをゼロ値のままにする。
func PostFromData(id string, data map[string]any) *Post {
	p := &Post{
		ID:      id,
		Title:   StringValue(data["title"]),
		Body:    StringValue(data["body"]),
		UserID:  StringValue(data["userId"]),
		Updated: TimeValue(data["updated"]),
	}
	if ref, err := ParseRef(p.UserID); err == nil {
		p.Author = ref
	}
	return p
}

// Data はPostをドキュメントのフィールドに変換する。
func (p *Post) Data() map[string]any {
	userID := p.UserID
	if !p.Author.IsZero() {
		userID = p.Author.String()
	}
	return map[string]any{
		"title":   p.Title,
		"body":    p.Body,
		"userId":  userID,
		"updated": p.Updated,
	}
}

// IsComplete は描画に必要なフィールド（userId, title, body）が揃っているかを返す。
func (p *Post) IsComplete() bool {
	return p.UserID != "" && p.Title != "" && p.Body != ""
}
