package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/digiflow/taskkeeper/internal/platform/logger"
)

// TxFn runs inside a transaction and reports how many rows it changed
type TxFn func(ctx context.Context, tx *sql.Tx) (int64, error)

// RunInTransaction runs fn in a transaction and returns the row count fn
// reported. The transaction commits only if fn succeeds. On error or panic it
// is rolled back and the count is 0; a panic is re-raised after the rollback.
func RunInTransaction(ctx context.Context, db *sql.DB, fn TxFn) (rows int64, err error) {
	log := logger.FromContext(ctx)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin: %w", ErrTransactionFailed, err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		p := recover()
		rows = 0
		// After a failed commit the tx is already done and Rollback reports ErrTxDone
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.Error("failed to roll back transaction", "error", rbErr, "panic", p)
			err = errors.Join(err, fmt.Errorf("%w: rollback: %w", ErrTransactionFailed, rbErr))
		}
		if p != nil {
			panic(p)
		}
	}()

	rows, err = fn(ctx, tx)
	if err != nil {
		log.Debug("rolling back transaction", "error", err)
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit: %w", ErrTransactionFailed, err)
	}
	committed = true

	log.Debug("transaction committed", "rows", rows)
	return rows, nil
}
