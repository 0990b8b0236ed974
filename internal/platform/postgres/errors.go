package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/digiflow/taskkeeper/internal/store"
	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes the history store maps
const (
	uniqueViolationCode = "23505"
	checkViolationCode  = "23514"
)

// CHECK constraints of the task_history table
const (
	stateCheckConstraint    = "task_history_state_check"
	progressCheckConstraint = "task_history_progress_check"
)

// MapError translates a database error into the store error taxonomy. A
// duplicate task id maps to ErrDuplicate; a record rejected by a CHECK
// constraint maps to ErrInvalidEntity naming the offending column.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %v", store.ErrRecordNotFound, err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case uniqueViolationCode:
		return fmt.Errorf("%w: %v", store.ErrDuplicate, err)
	case checkViolationCode:
		switch pgErr.ConstraintName {
		case stateCheckConstraint:
			return fmt.Errorf("%w: record state must be finished, stopped or crashed", store.ErrInvalidEntity)
		case progressCheckConstraint:
			return fmt.Errorf("%w: record progress must be between 0 and 100", store.ErrInvalidEntity)
		default:
			return fmt.Errorf("%w: check constraint %s: %v", store.ErrInvalidEntity, pgErr.ConstraintName, err)
		}
	}
	return err
}
