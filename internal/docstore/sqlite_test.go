package docstore

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

const sqliteTestSchema = `CREATE TABLE documents (
	collection TEXT NOT NULL,
	id TEXT NOT NULL,
	data TEXT NOT NULL,
	created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (collection, id)
)`

func newSQLiteTestStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(sqliteTestSchema)
	require.NoError(t, err)
	return NewSQLiteStore(db)
}

func TestSQLiteStore_CreateAndGetOne(t *testing.T) {
	s := newSQLiteTestStore(t)
	ctx := context.Background()

	id, err := s.Create(ctx, "posts", map[string]any{"title": "hello", "userId": "users/u1"})
	require.NoError(t, err)

	doc, err := s.GetOne(ctx, "posts", id)
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, id, doc.ID)
	assert.Equal(t, "hello", doc.Data["title"])

	missing, err := s.GetOne(ctx, "posts", "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLiteStore_GetManyFiltersAndOrders(t *testing.T) {
	s := newSQLiteTestStore(t)
	ctx := context.Background()

	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	first, err := s.Create(ctx, "posts", map[string]any{"title": "first", "updated": older, "likes": 1})
	require.NoError(t, err)
	second, err := s.Create(ctx, "posts", map[string]any{"title": "second", "updated": newer, "likes": 5})
	require.NoError(t, err)
	third, err := s.Create(ctx, "posts", map[string]any{"title": "third", "updated": older, "likes": 5})
	require.NoError(t, err)

	docs, err := s.GetMany(ctx, "posts", nil, &Order{Field: "updated", Direction: Desc})
	require.NoError(t, err)
	assert.Equal(t, []string{second, first, third}, ids(docs))

	docs, err = s.GetMany(ctx, "posts", []Condition{Where("likes", OpGreater, 2)}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{second, third}, ids(docs))
}

func TestSQLiteStore_UpdateMergesAndStamps(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := newSQLiteTestStore(t).WithClock(func() time.Time { return now })
	ctx := context.Background()

	id, err := s.Create(ctx, "users", map[string]any{"name": "old", "icon": "abc"})
	require.NoError(t, err)

	require.NoError(t, s.Update(ctx, "users", id, map[string]any{"name": "new"}))

	doc, err := s.GetOne(ctx, "users", id)
	require.NoError(t, err)
	assert.Equal(t, "new", doc.Data["name"])
	assert.Equal(t, "abc", doc.Data["icon"])
	assert.Equal(t, "2024-05-01T12:00:00.000000000Z", doc.Data[UpdatedAtField])

	err = s.Update(ctx, "users", "missing", map[string]any{"name": "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_Delete(t *testing.T) {
	s := newSQLiteTestStore(t)
	ctx := context.Background()

	id, err := s.Create(ctx, "posts", map[string]any{"title": "bye"})
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "posts", id))
	require.NoError(t, s.Delete(ctx, "posts", id))

	doc, err := s.GetOne(ctx, "posts", id)
	require.NoError(t, err)
	assert.Nil(t, doc)
}
