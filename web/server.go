package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"memory-duel-server/auth"
	"memory-duel-server/game"
)

// Options tunes the HTTP layer.
type Options struct {
	RequestTimeout time.Duration
	PollInterval   time.Duration
	LobbyLimit     int
	BoardCols      int
}

// Deps are the services the HTTP layer drives.
type Deps struct {
	Games    *game.Manager
	Accounts *auth.Accounts
	Sessions *auth.Sessions
	// External is optional; when nil bearer tokens are ignored.
	External *auth.ExternalValidator
	// Ping reports backend health for /health. Optional.
	Ping func(r *http.Request) error
}

// Server bundles the router and its dependencies.
type Server struct {
	r     *chi.Mux
	deps  Deps
	opts  Options
	views *views
}

// New constructs a Server, installs middleware, and registers routes.
func New(deps Deps, opts Options) (*Server, error) {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.LobbyLimit <= 0 {
		opts.LobbyLimit = 50
	}
	if opts.BoardCols <= 0 {
		opts.BoardCols = 4
	}
	v, err := loadViews()
	if err != nil {
		return nil, err
	}
	s := &Server{r: chi.NewRouter(), deps: deps, opts: opts, views: v}

	s.r.Use(chimw.RequestID)
	s.r.Use(chimw.RealIP)
	s.r.Use(accessLog)
	s.r.Use(chimw.Recoverer)
	s.r.Use(chimw.Timeout(opts.RequestTimeout))
	s.r.Use(s.loadSession)

	s.r.Get("/", s.handleHome)
	s.r.Get("/health", s.handleHealth)

	s.r.Route("/account", func(r chi.Router) {
		r.Get("/register", s.handleRegisterForm)
		r.Post("/register", s.handleRegister)
		r.Get("/login", s.handleLoginForm)
		r.Post("/login", s.handleLogin)
		r.Post("/logout", s.handleLogout)
	})

	s.r.Route("/game", func(r chi.Router) {
		r.Use(requireSession)
		r.Get("/lobby", s.handleLobby)
		r.Post("/create", s.handleCreate)
		r.Route("/{id}", func(r chi.Router) {
			r.Post("/join", s.handleJoin)
			r.Get("/play", s.handlePlay)
			r.Post("/flip", s.handleFlip)
			r.Get("/state", s.handleState)
			r.Get("/poll", s.handlePoll)
			r.Post("/delete", s.handleDelete)
		})
	})

	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found", "path": r.URL.Path})
	})
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.r.ServeHTTP(w, r) }

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentUser(r); ok {
		http.Redirect(w, r, "/game/lobby", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/account/login", http.StatusSeeOther)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ping != nil {
		if err := s.deps.Ping(r); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
