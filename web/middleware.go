package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"memory-duel-server/auth"
	"memory-duel-server/game"
)

// principal is the signed-in user behind a request.
type principal struct {
	UserID    int64
	Username  string
	SessionID string
}

func (p principal) actor() game.Actor {
	return game.Actor{UserID: p.UserID, SessionID: p.SessionID}
}

type contextKey string

var userCtxKey = contextKey("user")

func currentUser(r *http.Request) (principal, bool) {
	p, ok := r.Context().Value(userCtxKey).(principal)
	return p, ok
}

// accessLog writes one line per request.
func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		slog.Info("request", "tag", "http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).Round(time.Microsecond),
			"request_id", chimw.GetReqID(r.Context()))
	})
}

// loadSession attaches the principal from the session cookie or, when an
// external validator is configured, from an "Authorization: Bearer" token.
// Requests without valid credentials continue anonymously.
func (s *Server) loadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p, ok := s.sessionPrincipal(w, r); ok {
			r = r.WithContext(context.WithValue(r.Context(), userCtxKey, p))
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) sessionPrincipal(w http.ResponseWriter, r *http.Request) (principal, bool) {
	if s.deps.External != nil {
		if token := auth.BearerToken(r.Header.Get("Authorization")); token != "" {
			id, err := s.deps.External.Validate(token)
			if err != nil {
				slog.Debug("rejected bearer token", "tag", "auth", "err", err)
				return principal{}, false
			}
			u, err := s.deps.Accounts.Link(r.Context(), id)
			if err != nil {
				slog.Error("link external identity failed", "tag", "auth", "err", err)
				return principal{}, false
			}
			return principal{UserID: u.ID, Username: u.Username, SessionID: "ext:" + id.Subject}, true
		}
	}

	claims, err := s.deps.Sessions.FromRequest(r)
	if err != nil {
		if !errors.Is(err, http.ErrNoCookie) {
			s.deps.Sessions.ClearCookie(w)
		}
		return principal{}, false
	}
	uid, err := claims.UserID()
	if err != nil {
		s.deps.Sessions.ClearCookie(w)
		return principal{}, false
	}
	// Ensure the user still exists.
	u, err := s.deps.Accounts.Lookup(r.Context(), uid)
	if err != nil {
		s.deps.Sessions.ClearCookie(w)
		return principal{}, false
	}
	return principal{UserID: u.ID, Username: u.Username, SessionID: claims.SessionID}, true
}

// requireSession rejects anonymous requests: API calls get 401 JSON, pages
// are redirected to the login form.
func requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := currentUser(r); !ok {
			if wantsJSON(r) {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Please sign in first."})
				return
			}
			http.Redirect(w, r, "/account/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// wantsJSON reports whether the client expects a JSON response.
func wantsJSON(r *http.Request) bool {
	if strings.HasSuffix(r.URL.Path, "/state") || strings.HasSuffix(r.URL.Path, "/poll") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json") ||
		strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}
