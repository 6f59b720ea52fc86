package authn

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cast"

	"github.com/phrazzld/pushtasks/internal/config"
)

// Authenticator kinds accepted by New.
const (
	KindNone = "none"
	KindOIDC = "oidc"
	KindJWT  = "jwt"
)

// New builds the authenticator named by kind from its params.
//
// Recognized params: service_account_email and audience (oidc, jwt); secret
// and issuer (jwt).
func New(kind string, params map[string]any, logger *slog.Logger) (Authenticator, error) {
	email := cast.ToString(params["service_account_email"])
	audience := cast.ToString(params["audience"])

	switch kind {
	case "":
		return nil, fmt.Errorf("%w: view_authn is required; set it to %q to disable authentication",
			config.ErrImproperlyConfigured, KindNone)
	case KindNone:
		return NoAuth{}, nil
	case KindOIDC:
		return &OIDCTokenAuth{
			Audience:            audience,
			ServiceAccountEmail: email,
			Logger:              logger,
		}, nil
	case KindJWT:
		verifier, err := NewJWTVerifier(
			cast.ToString(params["secret"]),
			WithIssuer(cast.ToString(params["issuer"])),
		)
		if err != nil {
			return nil, fmt.Errorf("%w: view_authn_params: %v", config.ErrImproperlyConfigured, err)
		}
		return &OIDCTokenAuth{
			Verifier:            verifier,
			Audience:            audience,
			ServiceAccountEmail: email,
			Logger:              logger,
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown view_authn %q", config.ErrImproperlyConfigured, kind)
	}
}
