//go:build integration

package testdb

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/phrazzld/pushtasks/internal/platform/postgres"
	"github.com/phrazzld/pushtasks/internal/store"
)

// errRollback aborts the transaction opened by WithTx.
var errRollback = errors.New("testdb: rollback")

// SetupTestDatabase opens the test database, applies all migrations and
// closes the connection when the test ends.
func SetupTestDatabase(t *testing.T) *sql.DB {
	t.Helper()

	url := GetTestDatabaseURL()
	if url == "" {
		if IsCI() {
			t.Fatalf("no database URL in CI; set %s", EnvTestDBURL)
		}
		t.Skipf("%s not set; skipping database integration test", EnvTestDBURL)
	}

	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	db, err := postgres.Open(ctx, url, logger)
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("failed to close test database: %v", err)
		}
	})

	if err := postgres.Migrate(ctx, db, logger); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

// WithTx runs fn with a context carrying a transaction that is always rolled
// back, so writes made through store.Conn never persist. Commit hooks
// registered inside fn do not run.
func WithTx(t *testing.T, db *sql.DB, fn func(ctx context.Context)) {
	t.Helper()

	err := store.RunInTransaction(context.Background(), db, func(ctx context.Context, _ *store.Tx) error {
		fn(ctx)
		return errRollback
	})
	if !errors.Is(err, errRollback) {
		t.Fatalf("test transaction failed: %v", err)
	}
}
