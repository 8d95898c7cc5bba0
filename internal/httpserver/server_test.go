package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedant-vijay/community-platform/internal/config"
	"github.com/vedant-vijay/community-platform/internal/domain"
	"github.com/vedant-vijay/community-platform/internal/identity"
	"github.com/vedant-vijay/community-platform/internal/session"
	"github.com/vedant-vijay/community-platform/internal/sqlite"
)

type mockSessions struct {
	signUpFunc  func(ctx context.Context, name, email, password string) (session.Session, error)
	signInFunc  func(ctx context.Context, email, password string) (session.Session, error)
	signOutFunc func(ctx context.Context, id string) error
	sessions    map[string]session.Session
}

func (m *mockSessions) SignUp(ctx context.Context, name, email, password string) (session.Session, error) {
	return m.signUpFunc(ctx, name, email, password)
}

func (m *mockSessions) SignIn(ctx context.Context, email, password string) (session.Session, error) {
	return m.signInFunc(ctx, email, password)
}

func (m *mockSessions) SignOut(ctx context.Context, id string) error {
	return m.signOutFunc(ctx, id)
}

func (m *mockSessions) Current(_ context.Context, id string) (session.Session, error) {
	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	return session.Session{}, session.ErrNoSession
}

func (m *mockSessions) Subscribe(string, session.Listener) func() {
	return func() {}
}

type noLive struct{}

func (noLive) ServeFeed(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusTeapot)
}

func (noLive) ServeProfile(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusTeapot)
}

var alex = session.Session{ID: "sid-1", UserID: "u1", Email: "alex@example.com", Name: "Alex Thompson"}

type testEnv struct {
	handler  http.Handler
	feeds    *domain.FeedService
	sessions *mockSessions
}

func newTestEnv(t *testing.T, seed Seeder) *testEnv {
	t.Helper()

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := slog.New(slog.DiscardHandler)
	feeds := domain.NewFeedService(store, nil, logger)
	sessions := &mockSessions{sessions: map[string]session.Session{alex.ID: alex}}
	cfg := &config.Config{Port: 0, SessionTTL: time.Hour, FeedRenderWait: 2 * time.Second}

	srv, err := NewServer(cfg, feeds, sessions, noLive{}, seed, logger)
	require.NoError(t, err)

	return &testEnv{handler: srv.Handler(), feeds: feeds, sessions: sessions}
}

func (e *testEnv) do(t *testing.T, method, path string, form url.Values, signedIn bool) *httptest.ResponseRecorder {
	t.Helper()
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}

	req := httptest.NewRequest(method, path, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if signedIn {
		req.AddCookie(&http.Cookie{Name: session.CookieName, Value: alex.ID})
	}

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/health", nil, false)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServer_Landing(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/", nil, false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Create an account")

	rec = env.do(t, http.MethodGet, "/nope", nil, false)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_FeedRendersPostsWithAuthors(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := t.Context()

	require.NoError(t, env.feeds.SaveUser(ctx, domain.User{ID: "u2", Name: "Sarah Chen"}))
	_, err := env.feeds.PublishPost(ctx, domain.NewPost{AuthorID: "u2", Content: "Coffee & <code>"})
	require.NoError(t, err)

	rec := env.do(t, http.MethodGet, "/feed", nil, false)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Sarah Chen")
	assert.Contains(t, body, "SC")
	assert.Contains(t, body, "Coffee &amp; &lt;code&gt;")
	assert.Contains(t, body, `href="/profile/u2"`)
	assert.Contains(t, body, "Sign in</a> to share a post")
}

func TestServer_FeedEmpty(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/feed", nil, true)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "No posts yet.")
	assert.Contains(t, body, `action="/feed/posts"`)
	assert.NotContains(t, body, "Add sample data")
}

func TestServer_CreatePost(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/feed/posts", url.Values{"content": {"  hello world  "}}, true)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/feed", rec.Header().Get("Location"))

	rec = env.do(t, http.MethodGet, "/feed", nil, true)
	body := rec.Body.String()
	assert.Contains(t, body, "hello world")
	assert.Contains(t, body, "Alex Thompson")
}

func TestServer_CreatePostRejected(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		signedIn bool
		status   int
		message  string
	}{
		{"empty draft", "   ", true, http.StatusUnprocessableEntity, "Please write something to post"},
		{"anonymous", "hello", false, http.StatusUnauthorized, "You must be logged in to post"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)

			rec := env.do(t, http.MethodPost, "/feed/posts", url.Values{"content": {tt.content}}, tt.signedIn)

			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.message)

			rec = env.do(t, http.MethodGet, "/feed", nil, false)
			assert.Contains(t, rec.Body.String(), "No posts yet.")
		})
	}
}

func TestServer_Profile(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := t.Context()

	require.NoError(t, env.feeds.SaveUser(ctx, domain.User{ID: "u1", Name: "Alex Thompson", Email: "alex@example.com", Bio: "Gardener"}))
	_, err := env.feeds.PublishPost(ctx, domain.NewPost{AuthorID: "u1", AuthorName: "Alex Thompson", Content: "first"})
	require.NoError(t, err)
	_, err = env.feeds.PublishPost(ctx, domain.NewPost{AuthorID: "u2", Content: "not mine"})
	require.NoError(t, err)

	rec := env.do(t, http.MethodGet, "/profile/u1", nil, true)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Gardener")
	assert.Contains(t, body, "first")
	assert.Contains(t, body, "This is you")
	assert.NotContains(t, body, "not mine")
}

func TestServer_ProfileNotFound(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/profile/ghost", nil, false)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "User not found")
}

func TestServer_OwnProfileRedirect(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/profile", nil, true)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/profile/u1", rec.Header().Get("Location"))

	rec = env.do(t, http.MethodGet, "/profile", nil, false)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestServer_SignUp(t *testing.T) {
	env := newTestEnv(t, nil)
	env.sessions.signUpFunc = func(ctx context.Context, name, email, password string) (session.Session, error) {
		assert.Equal(t, "Sam", name)
		assert.Equal(t, "sam@example.com", email)
		assert.Equal(t, "secret1", password)
		return session.Session{ID: "sid-new", UserID: "u9", Name: name}, nil
	}

	rec := env.do(t, http.MethodPost, "/signup", url.Values{
		"name":     {"Sam"},
		"email":    {"sam@example.com"},
		"password": {"secret1"},
	}, false)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/feed", rec.Header().Get("Location"))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, session.CookieName, cookies[0].Name)
	assert.Equal(t, "sid-new", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, 3600, cookies[0].MaxAge)
}

func TestServer_AuthErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"email exists", identity.ErrEmailExists, http.StatusConflict, "An account with this email already exists"},
		{"weak password", identity.ErrWeakPassword, http.StatusUnprocessableEntity, "Password should be at least 6 characters"},
		{"bad credentials", identity.ErrInvalidCredentials, http.StatusUnauthorized, "Invalid email or password"},
		{"name required", session.ErrNameRequired, http.StatusUnprocessableEntity, "Please enter your name"},
		{"backend down", errors.New("connection refused"), http.StatusBadGateway, "Something went wrong"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			env.sessions.signUpFunc = func(context.Context, string, string, string) (session.Session, error) {
				return session.Session{}, tt.err
			}
			env.sessions.signInFunc = func(context.Context, string, string) (session.Session, error) {
				return session.Session{}, tt.err
			}
			form := url.Values{"name": {"Sam"}, "email": {"sam@example.com"}, "password": {"x"}}

			for _, path := range []string{"/signup", "/login"} {
				rec := env.do(t, http.MethodPost, path, form, false)

				assert.Equal(t, tt.status, rec.Code, path)
				body := rec.Body.String()
				assert.Contains(t, body, tt.message, path)
				assert.Contains(t, body, `value="sam@example.com"`, path)
				assert.Empty(t, rec.Result().Cookies(), path)
			}
		})
	}
}

func TestServer_AuthFormsRedirectWhenSignedIn(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, path := range []string{"/signup", "/login"} {
		rec := env.do(t, http.MethodGet, path, nil, true)
		assert.Equal(t, http.StatusSeeOther, rec.Code, path)

		rec = env.do(t, http.MethodGet, path, nil, false)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestServer_Logout(t *testing.T) {
	env := newTestEnv(t, nil)
	var signedOut string
	env.sessions.signOutFunc = func(ctx context.Context, id string) error {
		signedOut = id
		return nil
	}

	rec := env.do(t, http.MethodPost, "/logout", nil, true)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, alex.ID, signedOut)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)
}

func TestServer_Seed(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		env := newTestEnv(t, nil)

		rec := env.do(t, http.MethodPost, "/seed", nil, true)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("enabled", func(t *testing.T) {
		calls := 0
		env := newTestEnv(t, func(context.Context) error {
			calls++
			return nil
		})

		rec := env.do(t, http.MethodGet, "/feed", nil, false)
		assert.Contains(t, rec.Body.String(), "Add sample data")

		rec = env.do(t, http.MethodPost, "/seed", nil, false)
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, 1, calls)
	})

	t.Run("failure", func(t *testing.T) {
		env := newTestEnv(t, func(context.Context) error {
			return errors.New("store unavailable")
		})

		rec := env.do(t, http.MethodPost, "/seed", nil, false)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), "SeedFailed")
	})
}

func TestServer_LiveRoutes(t *testing.T) {
	env := newTestEnv(t, nil)

	assert.Equal(t, http.StatusTeapot, env.do(t, http.MethodGet, "/live/feed", nil, false).Code)
	assert.Equal(t, http.StatusTeapot, env.do(t, http.MethodGet, "/live/profile/u1", nil, false).Code)
}

func TestWithRecover(t *testing.T) {
	h := withRecover(slog.New(slog.DiscardHandler), http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
