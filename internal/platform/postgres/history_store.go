package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/digiflow/taskkeeper/internal/platform/logger"
	"github.com/digiflow/taskkeeper/internal/store"
	"github.com/google/uuid"
)

// purgeStatementTimeout bounds a single purge so it cannot hold locks on
// the history table for long
const purgeStatementTimeout = "30s"

const recordColumns = `id, kind, name, state, progress, detail, behaviour, error_message, reason, terminated_at, recorded_at`

// HistoryStore implements the store.HistoryStore interface using PostgreSQL
type HistoryStore struct {
	db *sql.DB
}

// NewHistoryStore creates a new HistoryStore
func NewHistoryStore(db *sql.DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// SaveRecord persists a record of a disposed task
func (s *HistoryStore) SaveRecord(ctx context.Context, record *store.TaskRecord) error {
	log := logger.FromContext(ctx)

	if err := record.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO task_history (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := s.db.ExecContext(ctx, query,
		record.ID,
		record.Kind,
		record.Name,
		record.State.String(),
		record.Progress,
		record.Detail,
		record.Behaviour.String(),
		record.Error,
		record.Reason,
		record.TerminatedAt,
		record.RecordedAt,
	)
	if err != nil {
		err = MapError(err)
		if errors.Is(err, store.ErrDuplicate) {
			return fmt.Errorf("task %s already recorded: %w", record.ID, err)
		}
		log.Error("failed to save task record",
			"task_id", record.ID,
			"task_kind", record.Kind,
			"error", err)
		return store.NewStoreError("task_record", "save", "failed to insert record", err)
	}

	return nil
}

// GetRecord retrieves the record of the task with the given ID
func (s *HistoryStore) GetRecord(ctx context.Context, id uuid.UUID) (*store.TaskRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM task_history WHERE id = $1`

	record, err := scanRecord(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrRecordNotFound, id)
		}
		logger.FromContext(ctx).Error("failed to get task record",
			"task_id", id,
			"error", err)
		return nil, store.NewStoreError("task_record", "get", "failed to query record", MapError(err))
	}
	return record, nil
}

// ListRecords returns the records matching filter, most recently terminated first
func (s *HistoryStore) ListRecords(ctx context.Context, filter store.RecordFilter) ([]*store.TaskRecord, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		conditions = append(conditions, fmt.Sprintf("kind = $%d", len(args)))
	}
	if filter.State.IsTerminal() {
		args = append(args, filter.State.String())
		conditions = append(conditions, fmt.Sprintf("state = $%d", len(args)))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since.UTC())
		conditions = append(conditions, fmt.Sprintf("terminated_at >= $%d", len(args)))
	}

	query := `SELECT ` + recordColumns + ` FROM task_history`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	args = append(args, filter.EffectiveLimit())
	query += fmt.Sprintf(` ORDER BY terminated_at DESC, id LIMIT $%d`, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		logger.FromContext(ctx).Error("failed to list task records", "error", err)
		return nil, store.NewStoreError("task_record", "list", "failed to query records", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var records []*store.TaskRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, store.NewStoreError("task_record", "list", "failed to scan record", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("task_record", "list", "failed to iterate records", err)
	}

	return records, nil
}

// PurgeOlderThan deletes records of tasks that terminated before cutoff
func (s *HistoryStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	purged, err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) (int64, error) {
		if _, err := tx.ExecContext(ctx, `SET LOCAL statement_timeout = '`+purgeStatementTimeout+`'`); err != nil {
			return 0, fmt.Errorf("failed to set statement timeout: %w", err)
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM task_history WHERE terminated_at < $1`, cutoff.UTC())
		if err != nil {
			return 0, MapError(err)
		}
		return result.RowsAffected()
	})
	if err != nil {
		return 0, store.NewStoreError("task_record", "purge", "failed to delete records", err)
	}

	logger.FromContext(ctx).Info("purged task history",
		"cutoff", cutoff,
		"purged", purged)
	return purged, nil
}

// Close closes the underlying database connection
func (s *HistoryStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*store.TaskRecord, error) {
	var r store.RecordRow
	if err := row.Scan(
		&r.ID,
		&r.Kind,
		&r.Name,
		&r.State,
		&r.Progress,
		&r.Detail,
		&r.Behaviour,
		&r.Error,
		&r.Reason,
		&r.TerminatedAt,
		&r.RecordedAt,
	); err != nil {
		return nil, err
	}
	return r.Decode()
}

var _ store.HistoryStore = (*HistoryStore)(nil)
