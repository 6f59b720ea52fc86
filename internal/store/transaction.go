package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"github.com/phrazzld/pushtasks/internal/platform/logger"
)

// HookFn is a function run after a transaction commits.
type HookFn func(ctx context.Context) error

// Tx is a transaction opened by RunInTransaction. It implements DBTX and
// collects commit hooks.
type Tx struct {
	*sql.Tx

	mu        sync.Mutex
	hooks     []HookFn
	committed bool
	done      bool
}

// OnCommit registers fn to run once after tx commits. Hooks run in
// registration order and are discarded if the transaction rolls back.
// Registering on an already committed transaction runs fn immediately.
func (tx *Tx) OnCommit(ctx context.Context, fn HookFn) error {
	tx.mu.Lock()
	switch {
	case tx.committed:
		tx.mu.Unlock()
		return fn(ctx)
	case tx.done:
		tx.mu.Unlock()
		return ErrTransactionDone
	}
	tx.hooks = append(tx.hooks, fn)
	tx.mu.Unlock()
	return nil
}

func (tx *Tx) markCommitted() []HookFn {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.committed = true
	tx.done = true
	hooks := tx.hooks
	tx.hooks = nil
	return hooks
}

func (tx *Tx) isCommitted() bool {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.committed
}

func (tx *Tx) markRolledBack() {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.done = true
	tx.hooks = nil
}

type txKey struct{}

// WithTx returns a copy of ctx carrying tx.
func WithTx(ctx context.Context, tx *Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFromContext returns the transaction carried by ctx, if any.
func TxFromContext(ctx context.Context) (*Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*Tx)
	return tx, ok && tx != nil
}

// OnCommit defers fn until the transaction in ctx commits. Without a
// transaction in ctx, fn runs immediately.
func OnCommit(ctx context.Context, fn HookFn) error {
	if tx, ok := TxFromContext(ctx); ok {
		return tx.OnCommit(ctx, fn)
	}
	return fn(ctx)
}

// TxFn is a function that executes within a database transaction.
// The ctx it receives carries the *Tx, so OnCommit inside fn defers to commit.
// The transaction is committed if the function returns nil, or rolled back if it returns an error.
type TxFn func(ctx context.Context, tx *Tx) error

// RunInTransaction executes the given function within a database transaction.
// If the function returns an error, the transaction is rolled back.
// Otherwise, the transaction is committed and its commit hooks are run.
// The function handles rollbacks in case of panic and logs appropriate information.
func RunInTransaction(ctx context.Context, db *sql.DB, fn TxFn) error {
	log := logger.FromContext(ctx)

	sqlTx, err := db.BeginTx(ctx, nil)
	if err != nil {
		log.Error("failed to begin transaction",
			slog.String("error", err.Error()))
		return fmt.Errorf("%w: failed to begin transaction: %w", ErrTransactionFailed, err)
	}
	tx := &Tx{Tx: sqlTx}
	txCtx := WithTx(ctx, tx)

	defer func() {
		if p := recover(); p != nil {
			if tx.isCommitted() {
				log.Error("commit hook panicked after transaction committed",
					slog.Any("panic", p))
				// ALLOW-PANIC: Propagating caught panic from commit hook
				panic(p)
			}
			tx.markRolledBack()
			txErr := sqlTx.Rollback()
			if txErr != nil {
				log.Error("failed to roll back transaction after panic",
					slog.String("error", txErr.Error()),
					slog.Any("panic", p))
			} else {
				log.Error("rolled back transaction after panic",
					slog.Any("panic", p))
			}
			// ALLOW-PANIC: Propagating caught panic from transaction
			panic(p)
		}
	}()

	err = fn(txCtx, tx)
	if err != nil {
		tx.markRolledBack()
		rollbackErr := sqlTx.Rollback()
		if rollbackErr != nil {
			log.Error("failed to roll back transaction",
				slog.String("rollback_error", rollbackErr.Error()),
				slog.String("original_error", err.Error()))
			return fmt.Errorf(
				"error rolling back transaction: %v (original error: %w)",
				rollbackErr,
				err,
			)
		}
		log.Debug("rolled back transaction due to error",
			slog.String("error", err.Error()))
		return err
	}

	err = sqlTx.Commit()
	if err != nil {
		tx.markRolledBack()
		log.Error("failed to commit transaction",
			slog.String("error", err.Error()))
		return fmt.Errorf("%w: failed to commit transaction: %w", ErrTransactionFailed, err)
	}

	hooks := tx.markCommitted()
	log.Debug("transaction committed successfully", slog.Int("commit_hooks", len(hooks)))

	// Hooks run with the caller's context: the transaction is finished, and
	// hooks registering further hooks must not see it.
	var hookErrs []error
	for i, hook := range hooks {
		if err := hook(ctx); err != nil {
			log.Error("commit hook failed",
				slog.Int("hook_index", i),
				slog.String("error", err.Error()))
			hookErrs = append(hookErrs, err)
		}
	}
	if len(hookErrs) > 0 {
		return &HookError{Errs: hookErrs}
	}
	return nil
}
