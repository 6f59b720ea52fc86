package authn

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// Identity describes an authenticated caller.
type Identity struct {
	// Subject is the "sub" claim of the verified token.
	Subject string `json:"sub,omitempty"`

	// Email is the "email" claim of the verified token.
	Email string `json:"email,omitempty"`

	// Anonymous is set when authentication is disabled.
	Anonymous bool `json:"anonymous,omitempty"`

	// Claims holds every claim of the verified token.
	Claims map[string]any `json:"claims,omitempty"`
}

// Authenticator decides whether a request comes from an authorized caller.
type Authenticator interface {
	// Authenticate returns the caller's identity, or nil when the request is
	// not authenticated. It must not read the request body.
	Authenticate(r *http.Request) *Identity
}

// Principal names the caller for logs: the email claim, else the subject.
func (i *Identity) Principal() string {
	switch {
	case i == nil:
		return ""
	case i.Anonymous:
		return "anonymous"
	case i.Email != "":
		return i.Email
	default:
		return i.Subject
	}
}

// LogValue implements slog.LogValuer without exposing raw claims.
func (i *Identity) LogValue() slog.Value {
	return slog.StringValue(i.Principal())
}

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying the authenticated caller.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext returns the authenticated caller stored in ctx.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(*Identity)
	return identity, ok && identity != nil
}

// NoAuth accepts every request as anonymous.
type NoAuth struct{}

// Authenticate implements Authenticator.
func (NoAuth) Authenticate(*http.Request) *Identity {
	return &Identity{Anonymous: true}
}

// bearerToken extracts the token of an "Authorization: Bearer <token>" header.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}

	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}

	token = strings.TrimSpace(token)
	return token, token != ""
}
