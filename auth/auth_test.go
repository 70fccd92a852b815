package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"memory-duel-server/gameerrors"
)

type fakeUsers struct {
	byName map[string]User
	nextID int64
}

func newFakeUsers() *fakeUsers { return &fakeUsers{byName: map[string]User{}} }

func (f *fakeUsers) CreateUser(_ context.Context, username string, email *string, hash string) (User, error) {
	key := strings.ToLower(username)
	if _, ok := f.byName[key]; ok {
		return User{}, ErrUsernameTaken
	}
	f.nextID++
	u := User{ID: f.nextID, Username: username, Email: email, PasswordHash: hash, CreatedAt: time.Now()}
	f.byName[key] = u
	return u, nil
}

func (f *fakeUsers) UserByUsername(_ context.Context, username string) (User, error) {
	u, ok := f.byName[strings.ToLower(username)]
	if !ok {
		return User{}, gameerrors.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) UserByID(_ context.Context, id int64) (User, error) {
	for _, u := range f.byName {
		if u.ID == id {
			return u, nil
		}
	}
	return User{}, gameerrors.ErrNotFound
}

func (f *fakeUsers) LinkExternalUser(_ context.Context, subject, username string) (User, error) {
	for _, u := range f.byName {
		if u.ExternalSubject != nil && *u.ExternalSubject == subject {
			return u, nil
		}
	}
	f.nextID++
	u := User{ID: f.nextID, Username: username, ExternalSubject: &subject}
	f.byName[strings.ToLower(username)] = u
	return u, nil
}

func TestValidateSignup(t *testing.T) {
	tests := []struct {
		user, pass string
		ok         bool
	}{
		{"alice", "password1", true},
		{"al", "password1", false},
		{strings.Repeat("a", 25), "password1", false},
		{"al ice", "password1", false},
		{"al-ice", "password1", false},
		{"alice_2", "password1", true},
		{"alice", "short", false},
		{"alice", strings.Repeat("p", 101), false},
	}
	for _, tt := range tests {
		err := ValidateSignup(tt.user, tt.pass)
		if tt.ok && err != nil {
			t.Errorf("ValidateSignup(%q, %q) = %v, want nil", tt.user, tt.pass, err)
		}
		if !tt.ok && !errors.Is(err, gameerrors.ErrValidation) {
			t.Errorf("ValidateSignup(%q, %q) = %v, want ErrValidation", tt.user, tt.pass, err)
		}
	}
}

func TestRegisterAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	a := NewAccounts(newFakeUsers(), bcrypt.MinCost)

	u, err := a.Register(ctx, "  alice ", "", "password1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.Email != nil {
		t.Errorf("expected no email, got %q", *u.Email)
	}
	if u.Username != "alice" {
		t.Errorf("expected trimmed username, got %q", u.Username)
	}
	if u.PasswordHash == "password1" || u.PasswordHash == "" {
		t.Error("expected password to be hashed")
	}
	if _, err := a.Register(ctx, "ALICE", "", "password2"); !errors.Is(err, ErrUsernameTaken) {
		t.Errorf("expected ErrUsernameTaken, got %v", err)
	}

	got, err := a.Authenticate(ctx, "Alice", "password1")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if got.ID != u.ID {
		t.Errorf("expected user %d, got %d", u.ID, got.ID)
	}
	if _, err := a.Authenticate(ctx, "alice", "wrongpass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := a.Authenticate(ctx, "bob", "password1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown user: expected ErrInvalidCredentials, got %v", err)
	}
}

func TestRegisterEmail(t *testing.T) {
	ctx := context.Background()
	a := NewAccounts(newFakeUsers(), bcrypt.MinCost)

	u, err := a.Register(ctx, "carol", " carol@example.com ", "password1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.Email == nil || *u.Email != "carol@example.com" {
		t.Errorf("unexpected email %v", u.Email)
	}
	for _, bad := range []string{"carol", "@example.com", "carol@", "ca rol@example.com"} {
		if _, err := a.Register(ctx, "dave", bad, "password1"); !errors.Is(err, gameerrors.ErrValidation) {
			t.Errorf("email %q: expected ErrValidation, got %v", bad, err)
		}
	}
}

func TestRegisterLongPasswords(t *testing.T) {
	ctx := context.Background()
	a := NewAccounts(newFakeUsers(), bcrypt.MinCost)

	tests := []struct {
		name     string
		username string
		length   int
	}{
		{"at bcrypt limit", "len_72", 72},
		{"past bcrypt limit", "len_73", 73},
		{"at signup limit", "len_100", 100},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			pw := strings.Repeat("a", tc.length-1) + "x"
			if _, err := a.Register(ctx, tc.username, "", pw); err != nil {
				t.Fatalf("Register: %v", err)
			}
			if _, err := a.Authenticate(ctx, tc.username, pw); err != nil {
				t.Fatalf("Authenticate: %v", err)
			}
			other := strings.Repeat("a", tc.length-1) + "y"
			if _, err := a.Authenticate(ctx, tc.username, other); !errors.Is(err, ErrInvalidCredentials) {
				t.Errorf("different last byte: expected ErrInvalidCredentials, got %v", err)
			}
		})
	}

	if _, err := a.Register(ctx, "len_101", "", strings.Repeat("a", 101)); !errors.Is(err, gameerrors.ErrValidation) {
		t.Errorf("101 characters: expected ErrValidation, got %v", err)
	}
}

func TestLinkExternal(t *testing.T) {
	ctx := context.Background()
	a := NewAccounts(newFakeUsers(), bcrypt.MinCost)

	u1, err := a.Link(ctx, ExternalIdentity{Subject: "ext-1", Name: "Maria"})
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	u2, err := a.Link(ctx, ExternalIdentity{Subject: "ext-1", Name: "Maria"})
	if err != nil {
		t.Fatalf("Link again: %v", err)
	}
	if u1.ID != u2.ID {
		t.Errorf("expected same account, got %d and %d", u1.ID, u2.ID)
	}
	if _, err := a.Authenticate(ctx, u1.Username, ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("external accounts must not log in with a password, got %v", err)
	}
}

func TestExternalUsername(t *testing.T) {
	tests := map[string]string{
		"Maria Silva": "Maria",
		"Jo":          "player_Jo",
		"":            "player_",
		"Zoë":         "player_Zo",
	}
	for in, want := range tests {
		if got := externalUsername(ExternalIdentity{Name: in}); got != want {
			t.Errorf("externalUsername(%q) = %q, want %q", in, got, want)
		}
	}
	long := externalUsername(ExternalIdentity{Name: strings.Repeat("x", 40)})
	if len(long) != 24 {
		t.Errorf("expected 24 chars, got %d", len(long))
	}
}

func TestSessionIssueAndParse(t *testing.T) {
	s := NewSessions("secret", "memory_session", time.Hour, false)
	token, claims, err := s.Issue(User{ID: 42, Username: "alice"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	got, err := s.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if id, _ := got.UserID(); id != 42 {
		t.Errorf("expected user 42, got %d", id)
	}
	if got.Username != "alice" || got.SessionID != claims.SessionID || got.SessionID == "" {
		t.Errorf("unexpected claims %+v", got)
	}

	_, other, _ := s.Issue(User{ID: 42, Username: "alice"})
	if other.SessionID == claims.SessionID {
		t.Error("expected a fresh session id per login")
	}

	if _, err := NewSessions("other", "memory_session", time.Hour, false).Parse(token); err == nil {
		t.Error("expected wrong secret to be rejected")
	}
}

func TestSessionExpired(t *testing.T) {
	s := NewSessions("secret", "memory_session", time.Hour, false)
	s.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, err := s.Issue(User{ID: 1, Username: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	s.now = time.Now
	if _, err := s.Parse(token); !errors.Is(err, jwt.ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
}

func TestSessionCookieRoundTrip(t *testing.T) {
	s := NewSessions("secret", "memory_session", time.Hour, true)
	rec := httptest.NewRecorder()
	if _, err := s.SetCookie(rec, User{ID: 7, Username: "bob"}); err != nil {
		t.Fatal(err)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != "memory_session" || !cookies[0].HttpOnly || !cookies[0].Secure {
		t.Fatalf("unexpected cookies %+v", cookies)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	claims, err := s.FromRequest(req)
	if err != nil {
		t.Fatalf("FromRequest: %v", err)
	}
	if id, _ := claims.UserID(); id != 7 {
		t.Errorf("expected user 7, got %d", id)
	}

	rec = httptest.NewRecorder()
	s.ClearCookie(rec)
	if c := rec.Result().Cookies(); len(c) != 1 || c[0].MaxAge >= 0 {
		t.Errorf("expected expired cookie, got %+v", c)
	}
}

func TestExternalValidator(t *testing.T) {
	key := []byte("provider-key")
	v := newExternalValidator("https://auth.example.com", func(*jwt.Token) (interface{}, error) {
		return key, nil
	}, []string{"HS256"})

	sign := func(claims jwt.MapClaims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
		if err != nil {
			t.Fatal(err)
		}
		return s
	}

	id, err := v.Validate(sign(jwt.MapClaims{"iss": "https://auth.example.com", "sub": "u-1", "name": "Ana Souza"}))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if id.Subject != "u-1" || id.Name != "Ana" {
		t.Errorf("unexpected identity %+v", id)
	}

	if _, err := v.Validate(sign(jwt.MapClaims{"iss": "https://evil.example.com", "sub": "u-1"})); err == nil {
		t.Error("expected wrong issuer to be rejected")
	}
	if _, err := v.Validate(sign(jwt.MapClaims{"iss": "https://auth.example.com"})); err == nil {
		t.Error("expected missing subject to be rejected")
	}
	id, err = v.Validate(sign(jwt.MapClaims{"iss": "https://auth.example.com", "id": "u-2"}))
	if err != nil || id.Subject != "u-2" || id.Name != "Player" {
		t.Errorf("expected id fallback, got %+v, %v", id, err)
	}
}

func TestBearerToken(t *testing.T) {
	if got := BearerToken("Bearer abc"); got != "abc" {
		t.Errorf("got %q", got)
	}
	if got := BearerToken("bearer  xyz "); got != "xyz" {
		t.Errorf("got %q", got)
	}
	if got := BearerToken("Basic abc"); got != "" {
		t.Errorf("got %q", got)
	}
}
