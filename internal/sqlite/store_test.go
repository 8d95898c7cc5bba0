package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedant-vijay/community-platform/internal/docstore"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSetAndGet(t *testing.T) {
	s := newTestStore(t)

	err := s.Set(t.Context(), "users", "user1", docstore.Fields{"name": "Alex", "email": "alex@example.com"})
	require.NoError(t, err)

	d, err := s.Get(t.Context(), "users", "user1")
	require.NoError(t, err)
	assert.Equal(t, "user1", d.ID)
	assert.Equal(t, "Alex", d.String("name"))
	assert.False(t, d.CreateTime.IsZero())

	err = s.Set(t.Context(), "users", "user1", docstore.Fields{"name": "Alexandra"})
	require.NoError(t, err)

	d2, err := s.Get(t.Context(), "users", "user1")
	require.NoError(t, err)
	assert.Equal(t, "Alexandra", d2.String("name"))
	assert.Equal(t, "", d2.String("email"), "set replaces the whole document")
	assert.Equal(t, d.CreateTime, d2.CreateTime)
	assert.True(t, d2.UpdateTime.After(d.UpdateTime))
}

func TestGet_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get(t.Context(), "users", "missing")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestAdd_ServerTimestamp(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := newTestStore(t, WithClock(func() time.Time { return fixed }))

	id1, err := s.Add(t.Context(), "posts", docstore.Fields{"content": "a", "createdAt": docstore.ServerTimestamp})
	require.NoError(t, err)
	id2, err := s.Add(t.Context(), "posts", docstore.Fields{"content": "b", "createdAt": docstore.ServerTimestamp})
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	d1, err := s.Get(t.Context(), "posts", id1)
	require.NoError(t, err)
	d2, err := s.Get(t.Context(), "posts", id2)
	require.NoError(t, err)

	assert.Equal(t, fixed, d1.Time("createdAt"))
	assert.True(t, d2.Time("createdAt").After(d1.Time("createdAt")), "server timestamps strictly increase")
}

func TestQuery_FilterAndOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	for _, p := range []struct{ author, content string }{
		{"u1", "first"},
		{"u2", "second"},
		{"u1", "third"},
	} {
		_, err := s.Add(ctx, "posts", docstore.Fields{
			"authorId":  p.author,
			"content":   p.content,
			"createdAt": docstore.ServerTimestamp,
		})
		require.NoError(t, err)
	}

	all, err := s.Query(ctx, docstore.Query{Collection: "posts", OrderBy: "createdAt", Direction: docstore.Desc})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"third", "second", "first"}, contents(all))

	mine, err := s.Query(ctx, docstore.Query{Collection: "posts", OrderBy: "createdAt", Direction: docstore.Desc}.Where("authorId", "u1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"third", "first"}, contents(mine))

	asc, err := s.Query(ctx, docstore.Query{Collection: "posts", OrderBy: "createdAt"}.Where("authorId", "u1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "third"}, contents(asc))
}

func TestQuery_InvalidField(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Query(t.Context(), docstore.Query{Collection: "posts"}.Where("x') OR 1=1 --", "a"))
	assert.ErrorIs(t, err, docstore.ErrInvalidField)
}

func TestListen_ReceivesWrites(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	sub, err := s.Listen(ctx, docstore.Query{Collection: "posts", OrderBy: "createdAt", Direction: docstore.Desc}.Where("authorId", "u1"))
	require.NoError(t, err)
	defer sub.Close()

	snap := <-sub.Snapshots()
	assert.Empty(t, snap.Documents)

	_, err = s.Add(ctx, "posts", docstore.Fields{"authorId": "u2", "content": "other", "createdAt": docstore.ServerTimestamp})
	require.NoError(t, err)
	_, err = s.Add(ctx, "posts", docstore.Fields{"authorId": "u1", "content": "mine", "createdAt": docstore.ServerTimestamp})
	require.NoError(t, err)

	select {
	case snap = <-sub.Snapshots():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	require.Len(t, snap.Documents, 1)
	assert.Equal(t, "mine", snap.Documents[0].String("content"))
	require.Len(t, snap.Changes, 1)
	assert.Equal(t, docstore.Added, snap.Changes[0].Kind)
}

func contents(docs []docstore.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.String("content")
	}
	return out
}
