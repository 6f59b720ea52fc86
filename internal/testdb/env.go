//go:build integration

package testdb

import (
	"log/slog"
	"os"

	"github.com/phrazzld/pushtasks/internal/redact"
)

// Environment variables consulted by the helpers.
const (
	EnvTestDBURL   = "PUSHTASKS_TEST_DB_URL"
	EnvDatabaseURL = "DATABASE_URL"
)

// ciVariables are set by the CI providers the project runs on.
var ciVariables = []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "CIRCLECI"}

// IsCI reports whether the tests run in a CI environment.
func IsCI() bool {
	for _, v := range ciVariables {
		if os.Getenv(v) != "" {
			return true
		}
	}
	return false
}

// GetTestDatabaseURL returns the first database URL found in the
// environment, or "" when none is set.
func GetTestDatabaseURL() string {
	for i, name := range []string{EnvTestDBURL, EnvDatabaseURL} {
		if url := os.Getenv(name); url != "" {
			if i > 0 {
				slog.Default().Debug("using fallback database URL variable",
					slog.String("used_var", name),
					slog.String("preferred_var", EnvTestDBURL),
					slog.String("url", redact.String(url)))
			}
			return url
		}
	}
	return ""
}
