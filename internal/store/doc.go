// Package store provides the database/sql transaction boundary used by the
// application and by backends that defer work until commit.
//
// RunInTransaction places a *Tx in the context. Code further down the call
// chain registers commit hooks with OnCommit without needing to know whether
// a transaction is open: with no transaction in the context the hook runs
// immediately, as it would under autocommit.
package store
