// Package api serves the HTTP surface of the task service: the dispatch
// endpoint a push queue calls to execute a task, and the mapping of internal
// errors to HTTP responses.
package api
