// Package auth gates API access on the project keys.
//
// A request authenticates when one of its credential headers carries the
// service-role key or the anon key. Keys are usually Supabase JWTs; their
// role claim is read to label the caller but never verified, since the key
// itself has already been matched byte for byte.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	jwt "github.com/golang-jwt/jwt/v5"
)

// Roles assigned when a key carries no role claim.
const (
	RoleServiceRole = "service_role"
	RoleAnon        = "anon"
)

// ErrUnauthorized is returned when no credential matched a configured key.
var ErrUnauthorized = errors.New("unauthorized")

// Principal represents the authenticated caller.
type Principal struct {
	Role   string
	Header string // header the credential came from
}

type principalKey struct{}

// WithPrincipal stores the principal in context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext retrieves the principal from context (if any).
func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok
}

// Authenticator matches request credentials against the project keys.
type Authenticator struct {
	serviceKey string
	anonKey    string
}

// NewAuthenticator creates an authenticator. Empty keys never match.
func NewAuthenticator(serviceKey, anonKey string) *Authenticator {
	return &Authenticator{serviceKey: serviceKey, anonKey: anonKey}
}

// Authenticate checks the Authorization bearer token, then the apikey and
// x-api-key headers, and returns the principal for the first match.
func (a *Authenticator) Authenticate(r *http.Request) (*Principal, error) {
	for _, c := range candidates(r) {
		if role, ok := a.match(c.value); ok {
			return &Principal{Role: role, Header: c.header}, nil
		}
	}
	return nil, ErrUnauthorized
}

type credential struct {
	header string
	value  string
}

func candidates(r *http.Request) []credential {
	var out []credential

	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			if token := strings.TrimSpace(parts[1]); token != "" {
				out = append(out, credential{header: "authorization", value: token})
			}
		}
	}
	for _, name := range []string{"apikey", "x-api-key"} {
		if v := strings.TrimSpace(r.Header.Get(name)); v != "" {
			out = append(out, credential{header: name, value: v})
		}
	}
	return out
}

func (a *Authenticator) match(key string) (string, bool) {
	switch {
	case equal(key, a.serviceKey):
		return roleOf(key, RoleServiceRole), true
	case equal(key, a.anonKey):
		return roleOf(key, RoleAnon), true
	}
	return "", false
}

func equal(given, want string) bool {
	if want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(given), []byte(want)) == 1
}

// roleOf returns the role claim of a JWT key, or fallback for opaque keys.
func roleOf(key, fallback string) string {
	if strings.Count(key, ".") != 2 {
		return fallback
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(key, claims); err != nil {
		return fallback
	}
	if role, ok := claims["role"].(string); ok && role != "" {
		return role
	}
	return fallback
}
