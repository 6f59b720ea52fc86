// Package task defines deferred units of work and the record of their execution.
//
// A Task is a named, registered function that can be enqueued to a backend and
// later executed when the push queue calls back. Every enqueue and every
// callback produces a fresh Result which moves forward through
// READY → ENQUEUED → RUNNING → SUCCESSFUL|FAILED and never regresses.
package task
