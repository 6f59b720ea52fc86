package authn

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/spf13/cast"
	"google.golang.org/api/idtoken"
	"google.golang.org/api/option"

	"github.com/phrazzld/pushtasks/internal/redact"
)

// TokenVerifier checks a bearer token's signature and validity and returns
// its claims.
type TokenVerifier interface {
	Verify(ctx context.Context, token, audience string) (map[string]any, error)
}

// GoogleIDTokenVerifier verifies Google-signed OIDC ID tokens, the tokens a
// push queue attaches when a task carries an OIDC token.
type GoogleIDTokenVerifier struct {
	validator *idtoken.Validator
}

// NewGoogleIDTokenVerifier creates a verifier with custom client options,
// for example an HTTP client used to fetch Google's signing keys.
func NewGoogleIDTokenVerifier(ctx context.Context, opts ...option.ClientOption) (*GoogleIDTokenVerifier, error) {
	v, err := idtoken.NewValidator(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &GoogleIDTokenVerifier{validator: v}, nil
}

// Verify implements TokenVerifier. An empty audience skips the audience check.
func (v *GoogleIDTokenVerifier) Verify(ctx context.Context, token, audience string) (map[string]any, error) {
	var (
		payload *idtoken.Payload
		err     error
	)
	if v == nil || v.validator == nil {
		payload, err = idtoken.Validate(ctx, token, audience)
	} else {
		payload, err = v.validator.Validate(ctx, token, audience)
	}
	if err != nil {
		return nil, err
	}

	claims := make(map[string]any, len(payload.Claims)+1)
	for k, val := range payload.Claims {
		claims[k] = val
	}
	if _, ok := claims["sub"]; !ok {
		claims["sub"] = payload.Subject
	}
	return claims, nil
}

// OIDCTokenAuth authenticates requests carrying an OIDC bearer token.
type OIDCTokenAuth struct {
	// Verifier checks the token. Nil means Google ID tokens.
	Verifier TokenVerifier

	// Audience is the expected "aud" claim. Empty accepts any audience.
	Audience string

	// ServiceAccountEmail, when set, must equal the token's "email" claim.
	ServiceAccountEmail string

	// Logger receives rejection reasons at debug level. Nil means slog.Default().
	Logger *slog.Logger
}

var _ Authenticator = (*OIDCTokenAuth)(nil)

// Authenticate implements Authenticator. Every verification failure yields
// nil; the caller is never told why a token was rejected.
func (a *OIDCTokenAuth) Authenticate(r *http.Request) *Identity {
	log := a.Logger
	if log == nil {
		log = slog.Default()
	}

	token, ok := bearerToken(r)
	if !ok {
		log.Debug("request has no bearer token")
		return nil
	}

	verifier := a.Verifier
	if verifier == nil {
		verifier = &GoogleIDTokenVerifier{}
	}

	claims, err := verifier.Verify(r.Context(), token, a.Audience)
	if err != nil {
		log.Debug("bearer token rejected", redact.ErrorAttr(err))
		return nil
	}

	email := cast.ToString(claims["email"])
	if a.ServiceAccountEmail != "" && email != a.ServiceAccountEmail {
		log.Debug("bearer token email does not match the configured service account",
			slog.String("email", redact.String(email)))
		return nil
	}

	return &Identity{
		Subject: cast.ToString(claims["sub"]),
		Email:   email,
		Claims:  claims,
	}
}
