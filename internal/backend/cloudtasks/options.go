package cloudtasks

import (
	"github.com/spf13/cast"
)

// Options configures a Backend. Zero values mean "not configured"; required
// settings are checked when they are first used.
type Options struct {
	ProjectID       string
	Location        string
	CredentialsFile string
	CredentialsJSON string

	// DefaultTarget is the URL of the dispatch endpoint the queue pushes to.
	DefaultTarget string

	// ViewAuthn selects the authenticator of the dispatch endpoint:
	// "none", "oidc" or "jwt".
	ViewAuthn       string
	ViewAuthnParams map[string]any

	// EnqueueOnCommit defers submission until the enclosing transaction commits.
	EnqueueOnCommit bool

	// Queues, when non-empty, restricts the queues tasks may use.
	Queues []string

	// OIDCServiceAccountEmail makes the queue attach an OIDC token minted for
	// this service account to every push request.
	OIDCServiceAccountEmail string
	OIDCAudience            string
}

// ParseOptions reads options from a loosely typed configuration map, as
// decoded from YAML or environment variables.
func ParseOptions(m map[string]any, queues []string) Options {
	return Options{
		ProjectID:               cast.ToString(m["project_id"]),
		Location:                cast.ToString(m["location"]),
		CredentialsFile:         cast.ToString(m["credentials_file"]),
		CredentialsJSON:         cast.ToString(m["credentials_json"]),
		DefaultTarget:           cast.ToString(m["default_target"]),
		ViewAuthn:               cast.ToString(m["view_authn"]),
		ViewAuthnParams:         cast.ToStringMap(m["view_authn_params"]),
		EnqueueOnCommit:         cast.ToBool(m["enqueue_on_commit"]),
		Queues:                  append([]string(nil), queues...),
		OIDCServiceAccountEmail: cast.ToString(m["oidc_service_account_email"]),
		OIDCAudience:            cast.ToString(m["oidc_audience"]),
	}
}
