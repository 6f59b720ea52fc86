// Package postgres persists task results in PostgreSQL.
//
// ResultStore subscribes to task lifecycle events and upserts a snapshot of
// the result on every transition, so the table always holds the latest known
// state of each enqueue and each execution attempt. Writes go through
// store.Conn and therefore join a transaction carried by the context.
//
// The schema is managed with goose; migrations are embedded in the binary and
// applied with Migrate.
package postgres
