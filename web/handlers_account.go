package web

import (
	"log/slog"
	"net/http"

	"memory-duel-server/auth"
)

type registerForm struct {
	Username string
	Email    string
}

func (s *Server) handleRegisterForm(w http.ResponseWriter, r *http.Request) {
	s.views.render(w, http.StatusOK, "register", page{Title: "Register", Flash: takeFlash(w, r), Data: registerForm{}})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	form := registerForm{Username: r.PostFormValue("username"), Email: r.PostFormValue("email")}
	u, err := s.deps.Accounts.Register(r.Context(), form.Username, form.Email, r.PostFormValue("password"))
	if err != nil {
		logFailure(r, err)
		s.views.render(w, statusFor(err), "register", page{Title: "Register", Error: message(err), Data: form})
		return
	}
	if !s.startSession(w, r, u) {
		return
	}
	slog.Info("user registered", "tag", "auth", "user_id", u.ID)
	redirectWithFlash(w, r, "/game/lobby", "Welcome, "+u.Username+"!")
}

func (s *Server) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentUser(r); ok {
		http.Redirect(w, r, "/game/lobby", http.StatusSeeOther)
		return
	}
	s.views.render(w, http.StatusOK, "login", page{Title: "Log in", Flash: takeFlash(w, r), Data: ""})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	username := r.PostFormValue("username")
	u, err := s.deps.Accounts.Authenticate(r.Context(), username, r.PostFormValue("password"))
	if err != nil {
		logFailure(r, err)
		s.views.render(w, statusFor(err), "login", page{Title: "Log in", Error: message(err), Data: username})
		return
	}
	if !s.startSession(w, r, u) {
		return
	}
	http.Redirect(w, r, "/game/lobby", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.deps.Sessions.ClearCookie(w)
	redirectWithFlash(w, r, "/account/login", "You have been logged out.")
}

// startSession sets the session cookie, writing an error page on failure.
func (s *Server) startSession(w http.ResponseWriter, r *http.Request, u auth.User) bool {
	if _, err := s.deps.Sessions.SetCookie(w, u); err != nil {
		slog.Error("issue session failed", "tag", "auth", "user_id", u.ID, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return false
	}
	return true
}
