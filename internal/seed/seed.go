// Package seed writes a fixed set of sample users and posts.
package seed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vedant-vijay/community-platform/internal/domain"
)

// Writer is the store surface used for seeding.
type Writer interface {
	SaveUser(ctx context.Context, u domain.User) error
	PublishPost(ctx context.Context, p domain.NewPost) (string, error)
}

// Run writes the sample users, keyed by fixed ids so reruns overwrite them,
// and the sample posts, which are added again on every run. It stops at the
// first failed write.
func Run(ctx context.Context, w Writer, logger *slog.Logger) error {
	logger.Info("seeding sample data", "users", len(sampleUsers), "posts", len(samplePosts))

	for _, u := range sampleUsers {
		if err := w.SaveUser(ctx, u); err != nil {
			return fmt.Errorf("seed user %s: %w", u.ID, err)
		}
		logger.Debug("added user", "name", u.Name)
	}

	for _, p := range samplePosts {
		if _, err := w.PublishPost(ctx, p); err != nil {
			return fmt.Errorf("seed post by %s: %w", p.AuthorID, err)
		}
		logger.Debug("added post", "author", p.AuthorName)
	}

	logger.Info("seeding complete")
	return nil
}
