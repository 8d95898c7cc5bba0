package domain

import (
	"context"

	"github.com/vedant-vijay/community-platform/internal/docstore"
)

// DocumentStore is the subset of docstore.Store the feed service needs.
type DocumentStore interface {
	// Get reads a single document. Returns docstore.ErrNotFound if missing.
	Get(ctx context.Context, collection, id string) (docstore.Document, error)

	// Set creates or replaces the document with the given id.
	Set(ctx context.Context, collection, id string, fields docstore.Fields) error

	// Add creates a document with a generated id.
	Add(ctx context.Context, collection string, fields docstore.Fields) (string, error)

	// Listen opens a live query.
	Listen(ctx context.Context, q docstore.Query) (*docstore.Subscription, error)
}

// AuthorCache remembers author names across feed batches.
type AuthorCache interface {
	Get(userID string) (string, bool)
	Set(userID, name string)
}
