// Package view holds the page state machines. A view is mounted for as long
// as a page is open, keeps its state current from live queries and reports
// every change through an onChange callback.
package view

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/vedant-vijay/community-platform/internal/domain"
	"github.com/vedant-vijay/community-platform/internal/session"
)

// User-facing messages.
const (
	MsgEmptyDraft       = "Please write something to post"
	MsgNotAuthenticated = "You must be logged in to post"
	MsgPostFailed       = "Failed to create post"
	MsgPostsFailed      = "Failed to load posts"
	MsgProfileFailed    = "Failed to load profile"
)

var (
	ErrEmptyDraft       = errors.New("draft is empty")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrPostInFlight     = errors.New("a post is already being created")
)

// Feeds is the data-sync layer used by views.
type Feeds interface {
	Feed() *domain.Stream[[]domain.Post]
	ProfilePosts(userID string) *domain.Stream[[]domain.Post]
	GetUser(ctx context.Context, id string) (domain.User, error)
	PublishPost(ctx context.Context, p domain.NewPost) (string, error)
}

// Sessions is the session context used by views.
type Sessions interface {
	Current(ctx context.Context, id string) (session.Session, error)
	Subscribe(id string, fn session.Listener) func()
}

// PostsStatus is the state of a view's post list.
type PostsStatus int

const (
	LoadingPosts PostsStatus = iota
	PostsReady
	PostsFailed
)

func (s PostsStatus) String() string {
	switch s {
	case LoadingPosts:
		return "loading-posts"
	case PostsReady:
		return "ready"
	case PostsFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// core is the lifecycle and state plumbing shared by views. State is only
// touched under mu; onChange is called under emitMu with a copy, so callers
// observe states in order and never after unmount.
type core[S any] struct {
	logger   *slog.Logger
	onChange func(S)

	mu     sync.Mutex
	state  S
	closed bool

	emitMu sync.Mutex

	cancel      context.CancelFunc
	wg          sync.WaitGroup
	unsubscribe func()

	ready     chan struct{}
	readyOnce sync.Once
}

func newCore[S any](initial S, logger *slog.Logger, onChange func(S)) *core[S] {
	return &core[S]{
		logger:   logger,
		onChange: onChange,
		state:    initial,
		ready:    make(chan struct{}),
	}
}

// State returns a copy of the current state.
func (c *core[S]) State() S {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Ready is closed once the view has its first complete state.
func (c *core[S]) Ready() <-chan struct{} {
	return c.ready
}

func (c *core[S]) markReady() {
	c.readyOnce.Do(func() { close(c.ready) })
}

// update applies fn to the state and reports the change. It is a no-op after
// unmount.
func (c *core[S]) update(fn func(*S)) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	fn(&c.state)
	c.mu.Unlock()
	c.emit()
}

func (c *core[S]) emit() {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	st := c.state
	c.mu.Unlock()

	if c.onChange != nil {
		c.onChange(st)
	}
}

// watchViewer resolves the viewer for sessionID and follows later changes.
func (c *core[S]) watchViewer(ctx context.Context, sessions Sessions, sessionID string, set func(*S, *session.Session)) {
	if sessionID == "" {
		return
	}

	s, err := sessions.Current(ctx, sessionID)
	switch {
	case err == nil:
		c.mu.Lock()
		set(&c.state, &s)
		c.mu.Unlock()
	case errors.Is(err, session.ErrNoSession):
	default:
		c.logger.Warn("failed to resolve session", "error", err)
	}

	c.unsubscribe = sessions.Subscribe(sessionID, func(s *session.Session) {
		c.update(func(st *S) { set(st, s) })
	})
}

// start runs fn in a goroutine that Unmount waits for.
func (c *core[S]) start(ctx context.Context, fn func(ctx context.Context)) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn(ctx)
	}()
}

// Unmount stops every live query and session subscription. When it returns
// the view no longer changes state or calls onChange.
func (c *core[S]) Unmount() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	if c.unsubscribe != nil {
		c.unsubscribe()
	}

	c.emitMu.Lock()
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.emitMu.Unlock()

	c.markReady()
}
