package docstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu   sync.Mutex
	docs []Document
	err  error
}

func (b *fakeBackend) set(docs []Document, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.docs = docs
	b.err = err
}

func (b *fakeBackend) fetch(_ context.Context, _ Query) ([]Document, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Document, len(b.docs))
	copy(out, b.docs)
	return out, b.err
}

func doc(id string, updated time.Time, content string) Document {
	return Document{
		Collection: "posts",
		ID:         id,
		Fields:     Fields{"content": content},
		UpdateTime: updated,
	}
}

func nextSnapshot(t *testing.T, sub *Subscription) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-sub.Snapshots():
		require.True(t, ok, "subscription ended unexpectedly")
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return Snapshot{}
	}
}

func TestWatch_InitialSnapshotAndChanges(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	backend := &fakeBackend{}
	backend.set([]Document{doc("a", t0, "one")}, nil)
	hub := NewHub()

	sub, err := Watch(t.Context(), hub, Query{Collection: "posts"}, backend.fetch)
	require.NoError(t, err)
	defer sub.Close()

	snap := nextSnapshot(t, sub)
	require.Len(t, snap.Documents, 1)
	require.Len(t, snap.Changes, 1)
	assert.Equal(t, Added, snap.Changes[0].Kind)

	backend.set([]Document{doc("b", t0, "two"), doc("a", t0.Add(time.Second), "one!")}, nil)
	hub.Notify("posts")

	snap = nextSnapshot(t, sub)
	require.Len(t, snap.Documents, 2)
	kinds := map[string]ChangeKind{}
	for _, c := range snap.Changes {
		kinds[c.Document.ID] = c.Kind
	}
	assert.Equal(t, map[string]ChangeKind{"b": Added, "a": Modified}, kinds)

	backend.set([]Document{doc("b", t0, "two")}, nil)
	hub.Notify("posts")

	snap = nextSnapshot(t, sub)
	require.Len(t, snap.Changes, 1)
	assert.Equal(t, Removed, snap.Changes[0].Kind)
	assert.Equal(t, "a", snap.Changes[0].Document.ID)
}

func TestWatch_IgnoresOtherCollectionsAndNoopChanges(t *testing.T) {
	backend := &fakeBackend{}
	hub := NewHub()

	sub, err := Watch(t.Context(), hub, Query{Collection: "posts"}, backend.fetch)
	require.NoError(t, err)
	defer sub.Close()

	nextSnapshot(t, sub)

	hub.Notify("users")
	hub.Notify("posts") // same result, no snapshot

	select {
	case <-sub.Snapshots():
		t.Fatal("unexpected snapshot")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWatch_CloseIsSynchronous(t *testing.T) {
	backend := &fakeBackend{}
	hub := NewHub()

	sub, err := Watch(context.Background(), hub, Query{Collection: "posts"}, backend.fetch)
	require.NoError(t, err)
	assert.Equal(t, 1, hub.Len())

	sub.Close()

	assert.Equal(t, 0, hub.Len())
	_, ok := <-sub.Snapshots()
	assert.False(t, ok)
	assert.NoError(t, sub.Err())
}

func TestWatch_FetchErrorEndsSubscription(t *testing.T) {
	backend := &fakeBackend{}
	backend.set(nil, errors.New("connection refused"))
	hub := NewHub()

	sub, err := Watch(t.Context(), hub, Query{Collection: "posts"}, backend.fetch)
	require.NoError(t, err)

	_, ok := <-sub.Snapshots()
	assert.False(t, ok)
	assert.ErrorContains(t, sub.Err(), "connection refused")
}

func TestWatch_InvalidQuery(t *testing.T) {
	_, err := Watch(t.Context(), NewHub(), Query{Collection: "posts", OrderBy: "created at"}, (&fakeBackend{}).fetch)
	assert.ErrorIs(t, err, ErrInvalidField)
}

func TestResolve(t *testing.T) {
	now := time.Date(2024, 5, 6, 7, 8, 9, 123456000, time.UTC)
	in := Fields{"content": "hi", "createdAt": ServerTimestamp}

	out, err := Resolve(in, now)
	require.NoError(t, err)

	assert.Equal(t, "2024-05-06T07:08:09.123456Z", out["createdAt"])
	assert.Equal(t, ServerTimestamp, in["createdAt"])

	_, err = Resolve(Fields{"bad-name": 1}, now)
	assert.ErrorIs(t, err, ErrInvalidField)
}

func TestQueryWhere(t *testing.T) {
	base := Query{Collection: "posts"}
	q := base.Where("authorId", "u1")

	assert.Empty(t, base.Filters)
	assert.Equal(t, []Filter{{Field: "authorId", Value: "u1"}}, q.Filters)
}

func TestTimeRoundTripOrdersLexically(t *testing.T) {
	a := FormatTime(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	b := FormatTime(time.Date(2024, 1, 1, 0, 0, 0, 1000, time.UTC))
	assert.Less(t, a, b)

	parsed, err := ParseTime(b)
	require.NoError(t, err)
	assert.Equal(t, 1000, parsed.Nanosecond())
}
