package seed

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedant-vijay/community-platform/internal/docstore"
	"github.com/vedant-vijay/community-platform/internal/domain"
	"github.com/vedant-vijay/community-platform/internal/sqlite"
)

func TestRun_RerunOverwritesUsersAndDuplicatesPosts(t *testing.T) {
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "seed.db"))
	require.NoError(t, err)
	defer store.Close()

	logger := slog.New(slog.DiscardHandler)
	svc := domain.NewFeedService(store, nil, logger)
	ctx := t.Context()

	require.NoError(t, Run(ctx, svc, logger))
	require.NoError(t, Run(ctx, svc, logger))

	users, err := store.Query(ctx, docstore.Query{Collection: "users"})
	require.NoError(t, err)
	assert.Len(t, users, 5)

	posts, err := store.Query(ctx, docstore.Query{Collection: "posts"})
	require.NoError(t, err)
	assert.Len(t, posts, 20)

	u, err := svc.GetUser(ctx, "user2")
	require.NoError(t, err)
	assert.Equal(t, "Sarah Chen", u.Name)
	assert.Equal(t, "sarah@example.com", u.Email)

	for _, p := range posts {
		assert.False(t, p.Time("createdAt").IsZero())
	}
}

type mockWriter struct {
	saveUserFunc    func(ctx context.Context, u domain.User) error
	publishPostFunc func(ctx context.Context, p domain.NewPost) (string, error)
}

func (m *mockWriter) SaveUser(ctx context.Context, u domain.User) error {
	return m.saveUserFunc(ctx, u)
}

func (m *mockWriter) PublishPost(ctx context.Context, p domain.NewPost) (string, error) {
	return m.publishPostFunc(ctx, p)
}

func TestRun_StopsOnFailure(t *testing.T) {
	posts := 0
	w := &mockWriter{
		saveUserFunc: func(ctx context.Context, u domain.User) error {
			if u.ID == "user3" {
				return errors.New("quota exceeded")
			}
			return nil
		},
		publishPostFunc: func(ctx context.Context, p domain.NewPost) (string, error) {
			posts++
			return "id", nil
		},
	}

	err := Run(t.Context(), w, slog.New(slog.DiscardHandler))
	assert.ErrorContains(t, err, "quota exceeded")
	assert.Zero(t, posts)
}
