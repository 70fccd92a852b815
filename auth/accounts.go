package auth

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"memory-duel-server/gameerrors"
)

var (
	// ErrUsernameTaken is returned when registering a name that is already in use.
	ErrUsernameTaken = errors.New("username taken")
	// ErrInvalidCredentials covers both an unknown username and a wrong password.
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// User is an application account. ExternalSubject is set for accounts linked
// to an external identity provider; such accounts have no password.
type User struct {
	ID              int64
	Username        string
	Email           *string
	PasswordHash    string
	ExternalSubject *string
	CreatedAt       time.Time
}

// UserStore persists accounts. Username lookups are case-insensitive.
type UserStore interface {
	CreateUser(ctx context.Context, username string, email *string, passwordHash string) (User, error)
	UserByUsername(ctx context.Context, username string) (User, error)
	UserByID(ctx context.Context, id int64) (User, error)
	// LinkExternalUser returns the account bound to subject, creating it with
	// the given username on first sight.
	LinkExternalUser(ctx context.Context, subject, username string) (User, error)
}

const maxBcryptBytes = 72

// Accounts registers and authenticates password users.
type Accounts struct {
	users UserStore
	cost  int
}

// NewAccounts returns Accounts hashing with bcrypt at cost. A cost of zero
// uses bcrypt.DefaultCost.
func NewAccounts(users UserStore, cost int) *Accounts {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Accounts{users: users, cost: cost}
}

// NormalizeUsername trims surrounding whitespace.
func NormalizeUsername(u string) string {
	return strings.TrimSpace(u)
}

// ValidateSignup checks username and password shape.
func ValidateSignup(u, p string) error {
	if len(u) < 3 || len(u) > 24 {
		return gameerrors.Validation("username must be 3 to 24 characters")
	}
	for _, r := range u {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return gameerrors.Validation("username may only contain letters, numbers and underscore")
		}
	}
	if len(p) < 8 || len(p) > 100 {
		return gameerrors.Validation("password must be 8 to 100 characters")
	}
	return nil
}

// ValidateEmail accepts an empty address or a plausible one.
func ValidateEmail(e string) error {
	if e == "" {
		return nil
	}
	at := strings.IndexByte(e, '@')
	if len(e) > 254 || at < 1 || at == len(e)-1 || strings.ContainsAny(e, " \t\r\n") {
		return gameerrors.Validation("email address is not valid")
	}
	return nil
}

// Register creates a password account. email may be empty.
func (a *Accounts) Register(ctx context.Context, username, email, password string) (User, error) {
	username = NormalizeUsername(username)
	email = strings.TrimSpace(email)
	if err := ValidateSignup(username, password); err != nil {
		return User{}, err
	}
	if err := ValidateEmail(email); err != nil {
		return User{}, err
	}
	h, err := bcrypt.GenerateFromPassword(bcryptInput(password), a.cost)
	if err != nil {
		return User{}, err
	}
	var ep *string
	if email != "" {
		ep = &email
	}
	return a.users.CreateUser(ctx, username, ep, string(h))
}

// bcryptInput returns the bytes handed to bcrypt. Passwords beyond bcrypt's
// 72 byte limit are reduced to a base64 SHA-256 digest (44 bytes).
func bcryptInput(password string) []byte {
	if len(password) <= maxBcryptBytes {
		return []byte(password)
	}
	sum := sha256.Sum256([]byte(password))
	return []byte(base64.StdEncoding.EncodeToString(sum[:]))
}

// Authenticate returns the user for a username/password pair.
func (a *Accounts) Authenticate(ctx context.Context, username, password string) (User, error) {
	u, err := a.users.UserByUsername(ctx, NormalizeUsername(username))
	if errors.Is(err, gameerrors.ErrNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	if u.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), bcryptInput(password)) != nil {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

// Lookup returns the account with the given id.
func (a *Accounts) Lookup(ctx context.Context, id int64) (User, error) {
	return a.users.UserByID(ctx, id)
}

// Link returns the local account for an external identity, creating it if
// needed.
func (a *Accounts) Link(ctx context.Context, id ExternalIdentity) (User, error) {
	return a.users.LinkExternalUser(ctx, id.Subject, externalUsername(id))
}

// externalUsername derives a valid local username from the identity's name.
func externalUsername(id ExternalIdentity) string {
	var b strings.Builder
	for _, r := range id.Name {
		if r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else if r == ' ' && b.Len() > 0 {
			break
		}
	}
	name := b.String()
	if len(name) < 3 {
		name = "player_" + name
	}
	if len(name) > 24 {
		name = name[:24]
	}
	return name
}
