package domain

import "time"

// Post is a short text update shown in the feed and on profiles.
type Post struct {
	ID      string
	Content string

	// AuthorID is the id of the user who wrote the post.
	AuthorID string

	// AuthorName is the author's name at the time of posting. It may be empty
	// on stored posts and is filled in from the user record when the feed is
	// read. It is not updated when the user changes their name.
	AuthorName string

	// CreatedAt is assigned by the store when the post is written.
	CreatedAt time.Time
}

// NewPost is a post that has not been written yet.
type NewPost struct {
	AuthorID   string
	AuthorName string
	Content    string
}
