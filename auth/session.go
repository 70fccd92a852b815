package auth

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionClaims is the payload of the session cookie. Subject is the user id.
type SessionClaims struct {
	SessionID string `json:"sid"`
	Username  string `json:"name"`
	jwt.RegisteredClaims
}

// UserID parses the numeric subject.
func (c *SessionClaims) UserID() (int64, error) {
	return strconv.ParseInt(c.Subject, 10, 64)
}

// Sessions issues and verifies HS256 session cookies.
type Sessions struct {
	secret     []byte
	cookieName string
	ttl        time.Duration
	secure     bool
	now        func() time.Time
}

// NewSessions returns a cookie session manager.
func NewSessions(secret, cookieName string, ttl time.Duration, secure bool) *Sessions {
	return &Sessions{secret: []byte(secret), cookieName: cookieName, ttl: ttl, secure: secure, now: time.Now}
}

// Issue signs a fresh session for u with a new session id.
func (s *Sessions) Issue(u User) (string, *SessionClaims, error) {
	now := s.now()
	claims := &SessionClaims{
		SessionID: uuid.NewString(),
		Username:  u.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(u.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, err
	}
	return token, claims, nil
}

// Parse verifies a session token.
func (s *Sessions) Parse(token string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	t, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, err
	}
	if !t.Valid || claims.SessionID == "" {
		return nil, errors.New("invalid session")
	}
	if _, err := claims.UserID(); err != nil {
		return nil, errors.New("invalid session subject")
	}
	return claims, nil
}

// SetCookie issues a session for u and writes it to w.
func (s *Sessions) SetCookie(w http.ResponseWriter, u User) (*SessionClaims, error) {
	token, claims, err := s.Issue(u)
	if err != nil {
		return nil, err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  claims.ExpiresAt.Time,
	})
	return claims, nil
}

// ClearCookie expires the session cookie.
func (s *Sessions) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// FromRequest returns the verified session carried by the request cookie.
func (s *Sessions) FromRequest(r *http.Request) (*SessionClaims, error) {
	c, err := r.Cookie(s.cookieName)
	if err != nil {
		return nil, err
	}
	return s.Parse(c.Value)
}
