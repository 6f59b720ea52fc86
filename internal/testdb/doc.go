//go:build integration

// Package testdb provides helpers for tests that need a real PostgreSQL
// database. It is only compiled with the integration build tag.
//
// The database URL is read from PUSHTASKS_TEST_DB_URL, falling back to
// DATABASE_URL. Tests are skipped when neither is set, except in CI where a
// missing database fails the test.
//
//	func TestSomething(t *testing.T) {
//		db := testdb.SetupTestDatabase(t)
//		testdb.WithTx(t, db, func(ctx context.Context) {
//			// writes made through store.Conn(ctx, db) are rolled back
//		})
//	}
package testdb
