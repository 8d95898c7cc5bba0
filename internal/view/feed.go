package view

import (
	"context"
	"log/slog"
	"strings"

	"github.com/vedant-vijay/community-platform/internal/domain"
	"github.com/vedant-vijay/community-platform/internal/session"
)

// ComposeStatus is the state of the post composer.
type ComposeStatus int

const (
	ComposeIdle ComposeStatus = iota
	ComposePosting
	ComposeReady
	ComposeError
)

func (s ComposeStatus) String() string {
	switch s {
	case ComposeIdle:
		return "idle"
	case ComposePosting:
		return "posting"
	case ComposeReady:
		return "ready"
	case ComposeError:
		return "error"
	default:
		return "unknown"
	}
}

// FeedState is everything the feed page renders.
type FeedState struct {
	Posts       []domain.Post
	PostsStatus PostsStatus
	PostsError  string

	// Viewer is nil when nobody is signed in.
	Viewer *session.Session

	Draft   string
	Compose ComposeStatus
	Error   string
}

// Feed is the feed page: a live list of every post and a composer.
type Feed struct {
	*core[FeedState]

	feeds     Feeds
	sessions  Sessions
	sessionID string
}

// NewFeed creates an unmounted feed view. sessionID may be empty. onChange,
// if set, receives every state change until Unmount.
func NewFeed(feeds Feeds, sessions Sessions, sessionID string, logger *slog.Logger, onChange func(FeedState)) *Feed {
	return &Feed{
		core:      newCore(FeedState{}, logger, onChange),
		feeds:     feeds,
		sessions:  sessions,
		sessionID: sessionID,
	}
}

// Mount resolves the viewer and starts the live post query. The view stays
// live until Unmount or until ctx is cancelled.
func (f *Feed) Mount(ctx context.Context) {
	ctx, f.cancel = context.WithCancel(ctx)

	f.watchViewer(ctx, f.sessions, f.sessionID, func(st *FeedState, s *session.Session) {
		st.Viewer = s
	})

	f.start(ctx, func(ctx context.Context) {
		for posts, err := range f.feeds.Feed().All(ctx) {
			if err != nil {
				f.logger.Error("feed query failed", "error", err)
				f.update(func(st *FeedState) {
					st.PostsStatus = PostsFailed
					st.PostsError = MsgPostsFailed
				})
				break
			}
			f.update(func(st *FeedState) {
				st.Posts = posts
				st.PostsStatus = PostsReady
				st.PostsError = ""
			})
			f.markReady()
		}
		f.markReady()
	})
}

// SetDraft records the composer text without submitting it.
func (f *Feed) SetDraft(draft string) {
	f.update(func(st *FeedState) {
		st.Draft = draft
	})
}

// Submit publishes draft as a new post by the viewer. Empty drafts and
// anonymous viewers are rejected without contacting the store. On success the
// draft is cleared; on failure it is kept.
func (f *Feed) Submit(ctx context.Context, draft string) error {
	content := strings.TrimSpace(draft)

	var (
		viewer *session.Session
		reject error
	)
	f.update(func(st *FeedState) {
		st.Draft = draft
		switch {
		case st.Compose == ComposePosting:
			reject = ErrPostInFlight
			return
		case content == "":
			reject = ErrEmptyDraft
			st.Error = MsgEmptyDraft
		case st.Viewer == nil:
			reject = ErrNotAuthenticated
			st.Error = MsgNotAuthenticated
		default:
			viewer = st.Viewer
			st.Compose = ComposePosting
			st.Error = ""
			return
		}
		st.Compose = ComposeError
	})
	if reject != nil {
		return reject
	}
	if viewer == nil {
		// Unmounted.
		return context.Canceled
	}

	_, err := f.feeds.PublishPost(ctx, domain.NewPost{
		AuthorID:   viewer.UserID,
		AuthorName: viewer.Name,
		Content:    content,
	})

	f.update(func(st *FeedState) {
		if err != nil {
			st.Compose = ComposeError
			st.Error = MsgPostFailed
			return
		}
		st.Compose = ComposeReady
		st.Draft = ""
		st.Error = ""
	})

	if err != nil {
		f.logger.Error("failed to create post", "userId", viewer.UserID, "error", err)
		return err
	}
	return nil
}
