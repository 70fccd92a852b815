package auth

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// ExternalIdentity is the subset of an external token the server uses.
type ExternalIdentity struct {
	Subject string
	Name    string
}

// ExternalValidator verifies bearer tokens issued by an external identity
// provider against its JWKS.
type ExternalValidator struct {
	issuer  string
	keyfunc jwt.Keyfunc
	methods []string
}

// NewExternalValidator fetches the provider's JWKS from
// baseURL/.well-known/jwks.json. The expected issuer is the scheme and host of
// baseURL. The key set is refreshed in the background until ctx is done.
func NewExternalValidator(ctx context.Context, baseURL string) (*ExternalValidator, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("EXTERNAL_AUTH_BASE_URL is not set")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	jwks, err := keyfunc.NewDefaultCtx(ctx, []string{strings.TrimRight(baseURL, "/") + "/.well-known/jwks.json"})
	if err != nil {
		return nil, err
	}
	return newExternalValidator(u.Scheme+"://"+u.Host, jwks.Keyfunc, []string{"EdDSA", "RS256", "ES256"}), nil
}

func newExternalValidator(issuer string, kf jwt.Keyfunc, methods []string) *ExternalValidator {
	return &ExternalValidator{issuer: issuer, keyfunc: kf, methods: methods}
}

// Validate verifies tokenString and extracts the identity.
func (v *ExternalValidator) Validate(tokenString string) (ExternalIdentity, error) {
	token, err := jwt.Parse(tokenString, v.keyfunc,
		jwt.WithIssuer(v.issuer),
		jwt.WithValidMethods(v.methods))
	if err != nil {
		return ExternalIdentity{}, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return ExternalIdentity{}, fmt.Errorf("invalid token claims")
	}
	id := ExternalIdentity{Subject: subjectFromClaims(claims), Name: nameFromClaims(claims)}
	if id.Subject == "" {
		return ExternalIdentity{}, fmt.Errorf("token has no subject")
	}
	return id, nil
}

// nameFromClaims returns the first word of the "name" claim, or a fallback.
func nameFromClaims(claims jwt.MapClaims) string {
	name, _ := claims["name"].(string)
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return "Player"
	}
	return parts[0]
}

// subjectFromClaims returns "sub", falling back to "id".
func subjectFromClaims(claims jwt.MapClaims) string {
	if sub, ok := claims["sub"].(string); ok && sub != "" {
		return sub
	}
	if id, ok := claims["id"].(string); ok && id != "" {
		return id
	}
	return ""
}

// BearerToken returns the token from an "Authorization: Bearer" header value.
func BearerToken(header string) string {
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
