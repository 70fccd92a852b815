package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"memory-duel-server/auth"
	"memory-duel-server/gameerrors"
)

const flashCookie = "memory_flash"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps an error to its HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, gameerrors.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, gameerrors.ErrUnauthenticated), errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, gameerrors.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, gameerrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, gameerrors.ErrGameFull),
		errors.Is(err, gameerrors.ErrAlreadyJoined),
		errors.Is(err, gameerrors.ErrNotYourTurn),
		errors.Is(err, gameerrors.ErrGameCompleted),
		errors.Is(err, gameerrors.ErrInvalidSelection),
		errors.Is(err, auth.ErrUsernameTaken):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// message is gameerrors.Message extended with the account errors.
func message(err error) string {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return "Invalid username or password."
	case errors.Is(err, auth.ErrUsernameTaken):
		return "That username is already taken."
	default:
		return gameerrors.Message(err)
	}
}

// logFailure records errors the user cannot fix.
func logFailure(r *http.Request, err error) {
	if statusFor(err) >= http.StatusInternalServerError {
		slog.Error("request failed", "tag", "http", "path", r.URL.Path,
			"request_id", chimw.GetReqID(r.Context()), "err", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	logFailure(r, err)
	writeJSON(w, statusFor(err), map[string]string{"error": message(err)})
}

// redirectWithFlash sends the browser to target with a one-shot message.
func redirectWithFlash(w http.ResponseWriter, r *http.Request, target, msg string) {
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    url.QueryEscape(msg),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// redirectError logs err if needed and redirects with its message.
func redirectError(w http.ResponseWriter, r *http.Request, target string, err error) {
	logFailure(r, err)
	redirectWithFlash(w, r, target, message(err))
}

// takeFlash returns and clears the pending flash message.
func takeFlash(w http.ResponseWriter, r *http.Request) string {
	c, err := r.Cookie(flashCookie)
	if err != nil {
		return ""
	}
	http.SetCookie(w, &http.Cookie{Name: flashCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	msg, err := url.QueryUnescape(c.Value)
	if err != nil {
		return ""
	}
	return msg
}

func gameIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, gameerrors.Validation("game id must be a positive number")
	}
	return id, nil
}

func playPath(id int64) string { return "/game/" + strconv.FormatInt(id, 10) + "/play" }
