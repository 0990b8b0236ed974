package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/digiflow/taskkeeper/internal/platform/logger"
	"github.com/digiflow/taskkeeper/internal/store"
	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

// DriverName is the database/sql driver registered by go-sqlite3
const DriverName = "sqlite3"

// Timestamps are stored as unix nanoseconds so that ordering and range
// filters work on plain integers.
const schema = `
	CREATE TABLE IF NOT EXISTS task_history (
		id               TEXT PRIMARY KEY,
		kind             TEXT NOT NULL,
		name             TEXT NOT NULL,
		state            TEXT NOT NULL,
		progress         INTEGER NOT NULL CHECK (progress BETWEEN 0 AND 100),
		detail           TEXT NOT NULL DEFAULT '',
		behaviour        TEXT NOT NULL,
		error_message    TEXT NOT NULL DEFAULT '',
		reason           TEXT NOT NULL,
		terminated_at_ns INTEGER NOT NULL,
		recorded_at_ns   INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_task_history_terminated_at ON task_history (terminated_at_ns DESC);
	CREATE INDEX IF NOT EXISTS idx_task_history_kind ON task_history (kind);
`

const recordColumns = `id, kind, name, state, progress, detail, behaviour, error_message, reason, terminated_at_ns, recorded_at_ns`

// HistoryStore implements the store.HistoryStore interface on a SQLite file
type HistoryStore struct {
	db *sql.DB
}

// Open opens or creates the history database at path and ensures its schema
func Open(ctx context.Context, path string) (*HistoryStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open(DriverName, fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	// SQLite allows a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Minute * 5)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create history schema: %w", err)
	}

	return &HistoryStore{db: db}, nil
}

// SaveRecord persists a record of a disposed task
func (s *HistoryStore) SaveRecord(ctx context.Context, record *store.TaskRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO task_history (`+recordColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID.String(),
		record.Kind,
		record.Name,
		record.State.String(),
		record.Progress,
		record.Detail,
		record.Behaviour.String(),
		record.Error,
		record.Reason,
		record.TerminatedAt.UnixNano(),
		record.RecordedAt.UnixNano(),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("%w: task %s already recorded", store.ErrDuplicate, record.ID)
		}
		logger.FromContext(ctx).Error("failed to save task record",
			"task_id", record.ID,
			"error", err)
		return store.NewStoreError("task_record", "save", "failed to insert record", err)
	}
	return nil
}

// GetRecord retrieves the record of the task with the given ID
func (s *HistoryStore) GetRecord(ctx context.Context, id uuid.UUID) (*store.TaskRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM task_history WHERE id = ?`, id.String())

	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", store.ErrRecordNotFound, id)
	}
	if err != nil {
		return nil, store.NewStoreError("task_record", "get", "failed to query record", err)
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
		conditions = append(conditions, "kind = ?")
		args = append(args, filter.Kind)
	}
	if filter.State.IsTerminal() {
		conditions = append(conditions, "state = ?")
		args = append(args, filter.State.String())
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "terminated_at_ns >= ?")
		args = append(args, filter.Since.UnixNano())
	}

	query := `SELECT ` + recordColumns + ` FROM task_history`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY terminated_at_ns DESC, id LIMIT ?`
	args = append(args, filter.EffectiveLimit())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, store.NewStoreError("task_record", "list", "failed to query records", err)
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
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM task_history WHERE terminated_at_ns < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, store.NewStoreError("task_record", "purge", "failed to delete records", err)
	}

	purged, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	logger.FromContext(ctx).Info("purged task history",
		"cutoff", cutoff,
		"purged", purged)
	return purged, nil
}

// Close closes the database file
func (s *HistoryStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*store.TaskRecord, error) {
	var (
		r                        store.RecordRow
		terminatedNs, recordedNs int64
	)
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
		&terminatedNs,
		&recordedNs,
	); err != nil {
		return nil, err
	}
	r.TerminatedAt = time.Unix(0, terminatedNs)
	r.RecordedAt = time.Unix(0, recordedNs)
	return r.Decode()
}

func isConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

var _ store.HistoryStore = (*HistoryStore)(nil)
