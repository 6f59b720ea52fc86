// Package authn implements the authentication gate of the dispatch endpoint.
//
// An Authenticator inspects an incoming request and returns the caller's
// Identity, or nil when the caller is not authenticated. The dispatch
// endpoint rejects a nil identity before it reads the request body.
package authn
