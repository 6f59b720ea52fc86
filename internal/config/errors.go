package config

import "errors"

// ErrImproperlyConfigured is returned when a required setting is absent or
// malformed. It is fatal and never retried.
var ErrImproperlyConfigured = errors.New("improperly configured")
