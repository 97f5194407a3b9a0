package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/platform/logger"
	"github.com/phrazzld/quill-api/internal/store"
	"github.com/phrazzld/quill-api/internal/task"
)

const taskColumns = `id, type, payload, status, attempts, error_message, run_after, created_at, updated_at`

// PostgresTaskStore implements the task.TaskStore interface using PostgreSQL
type PostgresTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
	now    func() time.Time
}

// NewPostgresTaskStore creates a new PostgresTaskStore
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger) *PostgresTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

var _ task.TaskStore = (*PostgresTaskStore)(nil)

// WithTx returns a store bound to tx
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) task.TaskStore {
	return &PostgresTaskStore{db: tx, logger: s.logger, now: s.now}
}

// SaveTask persists a task in the pending state, runnable immediately
func (s *PostgresTaskStore) SaveTask(ctx context.Context, t task.Task) error {
	payload := t.Payload()
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	now := s.now()

	query := `INSERT INTO tasks (` + taskColumns + `) VALUES ($1, $2, $3, $4, 0, '', $5, $5, $5)`
	if _, err := s.db.ExecContext(ctx, query, t.ID(), t.Type(), payload, task.TaskStatusPending, now); err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to save task",
			slog.String("task_id", t.ID().String()),
			slog.String("task_type", t.Type()),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to save task to database: %w", MapError(err))
	}
	return nil
}

// UpdateTaskStatus sets the status. An empty errorMsg keeps the stored error.
func (s *PostgresTaskStore) UpdateTaskStatus(ctx context.Context, taskID uuid.UUID, status task.TaskStatus, errorMsg string) error {
	query := `
		UPDATE tasks
		SET status = $1,
		    error_message = CASE WHEN $2 = '' THEN error_message ELSE $2 END,
		    updated_at = $3
		WHERE id = $4`
	return s.exec(ctx, "update task status", taskID, query, status, errorMsg, s.now(), taskID)
}

// MarkForRetry implements task.TaskStore.MarkForRetry
func (s *PostgresTaskStore) MarkForRetry(ctx context.Context, taskID uuid.UUID, attempts int, errorMsg string, runAfter time.Time) error {
	query := `
		UPDATE tasks
		SET status = $1, attempts = $2, error_message = $3, run_after = $4, updated_at = $5
		WHERE id = $6`
	return s.exec(ctx, "mark task for retry", taskID, query,
		task.TaskStatusPending, attempts, errorMsg, runAfter.UTC(), s.now(), taskID)
}

// MarkFailed implements task.TaskStore.MarkFailed
func (s *PostgresTaskStore) MarkFailed(ctx context.Context, taskID uuid.UUID, attempts int, errorMsg string) error {
	query := `
		UPDATE tasks
		SET status = $1, attempts = $2, error_message = $3, updated_at = $4
		WHERE id = $5`
	return s.exec(ctx, "mark task failed", taskID, query,
		task.TaskStatusFailed, attempts, errorMsg, s.now(), taskID)
}

func (s *PostgresTaskStore) exec(ctx context.Context, op string, taskID uuid.UUID, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to "+op,
			slog.String("task_id", taskID.String()),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to %s: %w", op, MapError(err))
	}
	return CheckRowsAffected(result, store.ErrTaskNotFound)
}

// GetPendingTasks returns pending tasks ordered by run_after
func (s *PostgresTaskStore) GetPendingTasks(ctx context.Context) ([]task.TaskRecord, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE status = $1 ORDER BY run_after ASC, created_at ASC`
	return s.query(ctx, query, task.TaskStatusPending)
}

// GetProcessingTasks returns processing tasks, optionally only those
// untouched for at least olderThan.
func (s *PostgresTaskStore) GetProcessingTasks(ctx context.Context, olderThan time.Duration) ([]task.TaskRecord, error) {
	if olderThan <= 0 {
		query := `SELECT ` + taskColumns + ` FROM tasks WHERE status = $1 ORDER BY updated_at ASC`
		return s.query(ctx, query, task.TaskStatusProcessing)
	}
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE status = $1 AND updated_at < $2 ORDER BY updated_at ASC`
	return s.query(ctx, query, task.TaskStatusProcessing, s.now().Add(-olderThan))
}

func (s *PostgresTaskStore) query(ctx context.Context, query string, args ...any) ([]task.TaskRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to query tasks",
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to query tasks: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var records []task.TaskRecord
	for rows.Next() {
		var rec task.TaskRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.Type,
			&rec.Payload,
			&rec.Status,
			&rec.Attempts,
			&rec.LastError,
			&rec.RunAfter,
			&rec.CreatedAt,
			&rec.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}
	return records, nil
}
