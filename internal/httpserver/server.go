package httpserver

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vedant-vijay/community-platform/internal/config"
	"github.com/vedant-vijay/community-platform/internal/identity"
	"github.com/vedant-vijay/community-platform/internal/session"
	"github.com/vedant-vijay/community-platform/internal/view"
)

//go:embed templates/*.html
var templateFS embed.FS

// Sessions is the session context used by the auth handlers and views.
type Sessions interface {
	view.Sessions
	SignUp(ctx context.Context, name, email, password string) (session.Session, error)
	SignIn(ctx context.Context, email, password string) (session.Session, error)
	SignOut(ctx context.Context, id string) error
}

// Seeder writes the sample data set.
type Seeder func(ctx context.Context) error

// LiveHandlers serves the websocket endpoints.
type LiveHandlers interface {
	ServeFeed(w http.ResponseWriter, r *http.Request)
	ServeProfile(w http.ResponseWriter, r *http.Request)
}

// Server is the HTTP server for the web pages and live endpoints.
type Server struct {
	cfg        *config.Config
	feeds      view.Feeds
	sessions   Sessions
	seed       Seeder // nil when seeding is disabled
	tmpl       map[string]*template.Template
	logger     *slog.Logger
	httpServer *http.Server
}

// NewServer creates a new HTTP server. seed may be nil.
func NewServer(cfg *config.Config, feeds view.Feeds, sessions Sessions, live LiveHandlers, seed Seeder, logger *slog.Logger) (*Server, error) {
	tmpl, err := parseTemplates()
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	s := &Server{
		cfg:      cfg,
		feeds:    feeds,
		sessions: sessions,
		seed:     seed,
		tmpl:     tmpl,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleLanding)
	mux.HandleFunc("GET /signup", s.handleSignupForm)
	mux.HandleFunc("POST /signup", s.handleSignup)
	mux.HandleFunc("GET /login", s.handleLoginForm)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("POST /logout", s.handleLogout)
	mux.HandleFunc("GET /feed", s.handleFeed)
	mux.HandleFunc("POST /feed/posts", s.handleCreatePost)
	mux.HandleFunc("GET /profile", s.handleOwnProfile)
	mux.HandleFunc("GET /profile/{userID}", s.handleProfile)
	mux.HandleFunc("POST /seed", s.handleSeed)
	mux.HandleFunc("GET /live/feed", live.ServeFeed)
	mux.HandleFunc("GET /live/profile/{userID}", live.ServeProfile)
	mux.HandleFunc("GET /health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      withLogging(logger, withRecover(logger, mux)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the root handler, middleware included.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for HTTP requests. It blocks until the server is
// shut down or an error occurs.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server. Hijacked websocket
// connections are not tracked here; close the live relay separately.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLanding(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "landing", pageData{
		Title:  "Welcome",
		Viewer: s.viewer(r),
	})
}

type authPage struct {
	Name  string
	Email string
	Error string
}

func (s *Server) handleSignupForm(w http.ResponseWriter, r *http.Request) {
	if s.viewer(r) != nil {
		http.Redirect(w, r, "/feed", http.StatusSeeOther)
		return
	}
	s.render(w, http.StatusOK, "signup", pageData{Title: "Sign up", Auth: &authPage{}})
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	name := r.FormValue("name")
	email := r.FormValue("email")
	password := r.FormValue("password")

	sess, err := s.sessions.SignUp(r.Context(), name, email, password)
	if err != nil {
		status, msg := authError(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error("sign up failed", "error", err)
		}
		s.render(w, status, "signup", pageData{
			Title: "Sign up",
			Auth:  &authPage{Name: name, Email: email, Error: msg},
		})
		return
	}

	s.setSessionCookie(w, r, sess.ID)
	http.Redirect(w, r, "/feed", http.StatusSeeOther)
}

func (s *Server) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	if s.viewer(r) != nil {
		http.Redirect(w, r, "/feed", http.StatusSeeOther)
		return
	}
	s.render(w, http.StatusOK, "login", pageData{Title: "Sign in", Auth: &authPage{}})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	email := r.FormValue("email")
	password := r.FormValue("password")

	sess, err := s.sessions.SignIn(r.Context(), email, password)
	if err != nil {
		status, msg := authError(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error("sign in failed", "error", err)
		}
		s.render(w, status, "login", pageData{
			Title: "Sign in",
			Auth:  &authPage{Email: email, Error: msg},
		})
		return
	}

	s.setSessionCookie(w, r, sess.ID)
	http.Redirect(w, r, "/feed", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if id := sessionID(r); id != "" {
		if err := s.sessions.SignOut(r.Context(), id); err != nil {
			s.logger.Error("sign out failed", "error", err)
		}
	}
	http.SetCookie(w, &http.Cookie{Name: session.CookieName, Path: "/", MaxAge: -1, HttpOnly: true})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	f := view.NewFeed(s.feeds, s.sessions, sessionID(r), s.logger, nil)
	f.Mount(r.Context())
	s.waitReady(r.Context(), f.Ready())
	st := f.State()
	f.Unmount()

	s.renderFeed(w, http.StatusOK, st)
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	f := view.NewFeed(s.feeds, s.sessions, sessionID(r), s.logger, nil)
	f.Mount(r.Context())
	defer f.Unmount()

	err := f.Submit(r.Context(), r.FormValue("content"))
	if err == nil {
		http.Redirect(w, r, "/feed", http.StatusSeeOther)
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, view.ErrEmptyDraft):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, view.ErrNotAuthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, view.ErrPostInFlight):
		status = http.StatusConflict
	}

	s.waitReady(r.Context(), f.Ready())
	s.renderFeed(w, status, f.State())
}

func (s *Server) renderFeed(w http.ResponseWriter, status int, st view.FeedState) {
	s.render(w, status, "feed", pageData{
		Title:       "Feed",
		Viewer:      st.Viewer,
		Feed:        &st,
		SeedEnabled: s.seed != nil,
	})
}

func (s *Server) handleOwnProfile(w http.ResponseWriter, r *http.Request) {
	v := s.viewer(r)
	if v == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/profile/"+url.PathEscape(v.UserID), http.StatusSeeOther)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	p := view.NewProfile(s.feeds, s.sessions, r.PathValue("userID"), sessionID(r), s.logger, nil)
	p.Mount(r.Context())
	s.waitReady(r.Context(), p.Ready())
	st := p.State()
	p.Unmount()

	status := http.StatusOK
	title := st.User.Name
	switch st.Profile {
	case view.ProfileNotFound:
		status = http.StatusNotFound
		title = "User not found"
	case view.ProfileFailed:
		status = http.StatusBadGateway
		title = "Profile"
	case view.LoadingProfile:
		title = "Profile"
	}

	s.render(w, status, "profile", pageData{
		Title:   title,
		Viewer:  st.Viewer,
		Profile: &st,
	})
}

func (s *Server) handleSeed(w http.ResponseWriter, r *http.Request) {
	if s.seed == nil {
		http.NotFound(w, r)
		return
	}

	if err := s.seed(r.Context()); err != nil {
		s.logger.Error("seeding failed", "error", err)
		writeError(w, http.StatusInternalServerError, "SeedFailed", "failed to add sample data")
		return
	}
	http.Redirect(w, r, "/feed", http.StatusSeeOther)
}

// waitReady blocks until ready is closed, the render wait elapses or the
// request is cancelled.
func (s *Server) waitReady(ctx context.Context, ready <-chan struct{}) {
	timer := time.NewTimer(s.cfg.FeedRenderWait)
	defer timer.Stop()
	select {
	case <-ready:
	case <-timer.C:
	case <-ctx.Done():
	}
}

func (s *Server) viewer(r *http.Request) *session.Session {
	id := sessionID(r)
	if id == "" {
		return nil
	}
	sess, err := s.sessions.Current(r.Context(), id)
	if err != nil {
		if !errors.Is(err, session.ErrNoSession) {
			s.logger.Warn("failed to resolve session", "error", err)
		}
		return nil
	}
	return &sess
}

func (s *Server) setSessionCookie(w http.ResponseWriter, r *http.Request, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(s.cfg.SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

func sessionID(r *http.Request) string {
	c, err := r.Cookie(session.CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// authError maps a sign-up or sign-in failure to a status and a message fit
// for the form.
func authError(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrNameRequired):
		return http.StatusUnprocessableEntity, "Please enter your name"
	case errors.Is(err, identity.ErrEmailExists):
		return http.StatusConflict, "An account with this email already exists"
	case errors.Is(err, identity.ErrWeakPassword):
		return http.StatusUnprocessableEntity, "Password should be at least 6 characters"
	case errors.Is(err, identity.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid email or password"
	default:
		return http.StatusBadGateway, "Something went wrong. Please try again."
	}
}

type pageData struct {
	Title       string
	Viewer      *session.Session
	Auth        *authPage
	Feed        *view.FeedState
	Profile     *view.ProfileState
	SeedEnabled bool
}

var templateFuncs = template.FuncMap{
	"author":     view.DisplayAuthor,
	"initials":   view.Initials,
	"ago":        view.Ago,
	"pathEscape": url.PathEscape,
}

func parseTemplates() (map[string]*template.Template, error) {
	pages, err := fs.Glob(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	templates := make(map[string]*template.Template, len(pages))
	for _, page := range pages {
		name := strings.TrimSuffix(strings.TrimPrefix(page, "templates/"), ".html")
		if name == "layout" {
			continue
		}
		t, err := template.New(name).Funcs(templateFuncs).ParseFS(templateFS, "templates/layout.html", page)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		templates[name] = t
	}
	return templates, nil
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data pageData) {
	t, ok := s.tmpl[name]
	if !ok {
		s.logger.Error("template not found", "template", name)
		http.Error(w, "template not found", http.StatusInternalServerError)
		return
	}

	var buf strings.Builder
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		s.logger.Error("failed to render template", "template", name, "error", err)
		http.Error(w, "render error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprint(w, buf.String())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, map[string]string{
		"error":   errType,
		"message": message,
	})
}
