package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vedant-vijay/community-platform/internal/docstore"
)

const (
	usersCollection = "users"
	postsCollection = "posts"
)

var (
	// ErrUserNotFound is returned when no user record exists for an id.
	ErrUserNotFound = errors.New("user not found")

	// ErrEmptyPost is returned when a post has no content after trimming.
	ErrEmptyPost = errors.New("post content is empty")
)

// FeedService is the data-sync layer between views and the document store.
// It opens live queries for the feed and profiles, fills in missing author
// names, and performs user and post writes.
type FeedService struct {
	docs    DocumentStore
	authors AuthorCache // nil disables caching
	logger  *slog.Logger
}

// NewFeedService creates a FeedService. authors may be nil.
func NewFeedService(docs DocumentStore, authors AuthorCache, logger *slog.Logger) *FeedService {
	return &FeedService{
		docs:    docs,
		authors: authors,
		logger:  logger,
	}
}

// Feed streams every post, newest first.
func (s *FeedService) Feed() *Stream[[]Post] {
	return s.postStream(docstore.Query{
		Collection: postsCollection,
		OrderBy:    "createdAt",
		Direction:  docstore.Desc,
	})
}

// ProfilePosts streams the posts written by one user, newest first. It is
// independent of GetUser: a profile's posts may arrive before, after or
// without its user record.
func (s *FeedService) ProfilePosts(userID string) *Stream[[]Post] {
	return s.postStream(docstore.Query{
		Collection: postsCollection,
		OrderBy:    "createdAt",
		Direction:  docstore.Desc,
	}.Where("authorId", userID))
}

func (s *FeedService) postStream(q docstore.Query) *Stream[[]Post] {
	return NewStream(func(ctx context.Context, yield func([]Post) bool) error {
		sub, err := s.docs.Listen(ctx, q)
		if err != nil {
			return fmt.Errorf("listen %s: %w", q.Collection, err)
		}
		defer sub.Close()

		var prev map[string]Post
		for snap := range sub.Snapshots() {
			var posts []Post
			posts, prev = s.enrich(ctx, snap, prev)
			if !yield(posts) {
				return nil
			}
		}

		if err := sub.Err(); err != nil {
			s.logger.Error("post subscription failed", "collection", q.Collection, "filters", len(q.Filters), "error", err)
			return err
		}
		return nil
	})
}

// enrich converts a snapshot into posts, filling in missing author names.
// Added or modified posts without a name are looked up once per author per
// batch. Unchanged posts reuse the name resolved for the previous batch.
func (s *FeedService) enrich(ctx context.Context, snap docstore.Snapshot, prev map[string]Post) ([]Post, map[string]Post) {
	changed := make(map[string]struct{}, len(snap.Changes))
	for _, c := range snap.Changes {
		if c.Kind != docstore.Removed {
			changed[c.Document.ID] = struct{}{}
		}
	}

	posts := make([]Post, 0, len(snap.Documents))
	next := make(map[string]Post, len(snap.Documents))
	names := make(map[string]string)

	for _, d := range snap.Documents {
		p := postFromDocument(d)

		if p.AuthorName == "" && p.AuthorID != "" {
			old, seen := prev[p.ID]
			if _, isChanged := changed[p.ID]; seen && !isChanged {
				p.AuthorName = old.AuthorName
			} else {
				name, ok := names[p.AuthorID]
				if !ok {
					name = s.authorName(ctx, p.AuthorID)
					names[p.AuthorID] = name
				}
				p.AuthorName = name
			}
		}

		posts = append(posts, p)
		next[p.ID] = p
	}

	if len(names) > 0 {
		s.logger.Debug("resolved author names", "lookups", len(names), "posts", len(posts))
	}
	return posts, next
}

// authorName returns the author's current name, or "" if it cannot be read.
func (s *FeedService) authorName(ctx context.Context, userID string) string {
	if s.authors != nil {
		if name, ok := s.authors.Get(userID); ok {
			return name
		}
	}

	u, err := s.GetUser(ctx, userID)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("author lookup failed", "authorId", userID, "error", err)
		}
		return ""
	}

	if s.authors != nil {
		s.authors.Set(userID, u.Name)
	}
	return u.Name
}

// GetUser reads a user record. Returns ErrUserNotFound if none exists.
func (s *FeedService) GetUser(ctx context.Context, id string) (User, error) {
	d, err := s.docs.Get(ctx, usersCollection, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("get user %s: %w", id, err)
	}
	return userFromDocument(d), nil
}

// SaveUser creates or replaces a user record.
func (s *FeedService) SaveUser(ctx context.Context, u User) error {
	err := s.docs.Set(ctx, usersCollection, u.ID, docstore.Fields{
		"uid":   u.ID,
		"name":  u.Name,
		"email": u.Email,
		"bio":   u.Bio,
	})
	if err != nil {
		return fmt.Errorf("save user %s: %w", u.ID, err)
	}
	return nil
}

// PublishPost writes a new post stamped with the store's time and returns its
// id. Content is trimmed.
func (s *FeedService) PublishPost(ctx context.Context, p NewPost) (string, error) {
	content := strings.TrimSpace(p.Content)
	if content == "" {
		return "", ErrEmptyPost
	}

	id, err := s.docs.Add(ctx, postsCollection, docstore.Fields{
		"content":    content,
		"authorId":   p.AuthorID,
		"authorName": p.AuthorName,
		"createdAt":  docstore.ServerTimestamp,
	})
	if err != nil {
		s.logger.Error("failed to publish post", "authorId", p.AuthorID, "error", err)
		return "", fmt.Errorf("publish post: %w", err)
	}

	s.logger.Info("post published", "id", id, "authorId", p.AuthorID)
	return id, nil
}

func postFromDocument(d docstore.Document) Post {
	return Post{
		ID:         d.ID,
		Content:    d.String("content"),
		AuthorID:   d.String("authorId"),
		AuthorName: d.String("authorName"),
		CreatedAt:  d.Time("createdAt"),
	}
}

func userFromDocument(d docstore.Document) User {
	return User{
		ID:    d.ID,
		Name:  d.String("name"),
		Email: d.String("email"),
		Bio:   d.String("bio"),
	}
}
