package view

import (
	"context"
	"errors"
	"log/slog"

	"github.com/vedant-vijay/community-platform/internal/domain"
	"github.com/vedant-vijay/community-platform/internal/session"
)

// ProfileStatus is the state of a profile's user record.
type ProfileStatus int

const (
	LoadingProfile ProfileStatus = iota
	ProfileReady
	ProfileNotFound
	ProfileFailed
)

func (s ProfileStatus) String() string {
	switch s {
	case LoadingProfile:
		return "loading-profile"
	case ProfileReady:
		return "ready"
	case ProfileNotFound:
		return "not-found"
	case ProfileFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ProfileState is everything the profile page renders.
type ProfileState struct {
	UserID  string
	User    domain.User
	Profile ProfileStatus
	Error   string

	Posts       []domain.Post
	PostsStatus PostsStatus
	PostsError  string

	// Viewer is nil when nobody is signed in.
	Viewer *session.Session
}

// IsOwn reports whether the viewer is looking at their own profile.
func (s ProfileState) IsOwn() bool {
	return s.Viewer != nil && s.Viewer.UserID == s.UserID
}

// complete reports whether the page has everything it needs to render.
// A missing or unreadable profile does not wait for posts.
func (s ProfileState) complete() bool {
	switch s.Profile {
	case ProfileNotFound, ProfileFailed:
		return true
	case ProfileReady:
		return s.PostsStatus != LoadingPosts
	default:
		return false
	}
}

// Profile is a user's profile page: the user record plus a live list of
// their posts. The two are loaded independently.
type Profile struct {
	*core[ProfileState]

	feeds     Feeds
	sessions  Sessions
	sessionID string
}

// NewProfile creates an unmounted profile view for userID.
func NewProfile(feeds Feeds, sessions Sessions, userID, sessionID string, logger *slog.Logger, onChange func(ProfileState)) *Profile {
	return &Profile{
		core:      newCore(ProfileState{UserID: userID}, logger, onChange),
		feeds:     feeds,
		sessions:  sessions,
		sessionID: sessionID,
	}
}

// Mount resolves the viewer, reads the user record and starts the live post
// query.
func (p *Profile) Mount(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	userID := p.State().UserID

	p.watchViewer(ctx, p.sessions, p.sessionID, func(st *ProfileState, s *session.Session) {
		st.Viewer = s
	})

	p.start(ctx, func(ctx context.Context) {
		u, err := p.feeds.GetUser(ctx, userID)
		if err != nil && ctx.Err() != nil {
			return
		}
		p.set(func(st *ProfileState) {
			switch {
			case err == nil:
				st.User = u
				st.Profile = ProfileReady
			case errors.Is(err, domain.ErrUserNotFound):
				st.Profile = ProfileNotFound
			default:
				p.logger.Error("failed to load profile", "userId", userID, "error", err)
				st.Profile = ProfileFailed
				st.Error = MsgProfileFailed
			}
		})
	})

	p.start(ctx, func(ctx context.Context) {
		for posts, err := range p.feeds.ProfilePosts(userID).All(ctx) {
			if err != nil {
				p.logger.Error("profile posts query failed", "userId", userID, "error", err)
				p.set(func(st *ProfileState) {
					st.PostsStatus = PostsFailed
					st.PostsError = MsgPostsFailed
				})
				return
			}
			p.set(func(st *ProfileState) {
				st.Posts = posts
				st.PostsStatus = PostsReady
				st.PostsError = ""
			})
		}
	})
}

func (p *Profile) set(fn func(*ProfileState)) {
	p.update(fn)
	if p.State().complete() {
		p.markReady()
	}
}
