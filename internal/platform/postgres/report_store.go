package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/domain"
	"github.com/phrazzld/quill-api/internal/platform/logger"
	"github.com/phrazzld/quill-api/internal/store"
)

const reportColumns = `id, blog_id, reporter_id, reason, details, status, resolved_by, resolved_at, created_at, updated_at`

var reportConstraintErrors = map[string]error{
	"content_reports_blog_reporter_key": store.ErrDuplicateReport,
}

// PostgresReportStore implements the store.ReportStore interface.
type PostgresReportStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresReportStore creates a new PostgreSQL implementation of the ReportStore interface.
func NewPostgresReportStore(db store.DBTX, logger *slog.Logger) *PostgresReportStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresReportStore{
		db:     db,
		logger: logger.With(slog.String("component", "report_store")),
	}
}

var _ store.ReportStore = (*PostgresReportStore)(nil)

// WithTx implements store.ReportStore.WithTx
func (s *PostgresReportStore) WithTx(tx *sql.Tx) store.ReportStore {
	return &PostgresReportStore{db: tx, logger: s.logger}
}

// Create implements store.ReportStore.Create
func (s *PostgresReportStore) Create(ctx context.Context, r *domain.ContentReport) error {
	query := `INSERT INTO content_reports (` + reportColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.BlogID, r.ReporterID, r.Reason, r.Details, r.Status,
		nullUUID(r.ResolvedBy), nullTime(r.ResolvedAt), r.CreatedAt, r.UpdatedAt)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: blog or reporter does not exist", store.ErrInvalidEntity)
		}
		mapped := mapUniqueViolation(err, reportConstraintErrors)
		logger.FromContextOrDefault(ctx, s.logger).Warn("failed to create content report",
			slog.String("blog_id", r.BlogID.String()),
			slog.String("error", mapped.Error()))
		return mapped
	}
	return nil
}

// GetByID implements store.ReportStore.GetByID
func (s *PostgresReportStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.ContentReport, error) {
	query := `SELECT ` + reportColumns + ` FROM content_reports WHERE id = $1`
	r, err := scanReport(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrReportNotFound
		}
		return nil, MapError(err)
	}
	return r, nil
}

// Update implements store.ReportStore.Update
func (s *PostgresReportStore) Update(ctx context.Context, r *domain.ContentReport) error {
	query := `
		UPDATE content_reports
		SET status = $1, resolved_by = $2, resolved_at = $3, updated_at = $4
		WHERE id = $5
	`
	result, err := s.db.ExecContext(ctx, query,
		r.Status, nullUUID(r.ResolvedBy), nullTime(r.ResolvedAt), r.UpdatedAt, r.ID)
	if err != nil {
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrReportNotFound)
}

// List implements store.ReportStore.List
func (s *PostgresReportStore) List(
	ctx context.Context,
	status *domain.ReportStatus,
	page store.Page,
) ([]*domain.ContentReport, error) {
	page = page.Normalize()
	var rows *sql.Rows
	var err error
	if status != nil {
		rows, err = s.db.QueryContext(ctx, `SELECT `+reportColumns+` FROM content_reports
			WHERE status = $1 ORDER BY created_at ASC LIMIT $2 OFFSET $3`, *status, page.Limit, page.Offset)
	} else {
		rows, err = s.db.QueryContext(ctx, `SELECT `+reportColumns+` FROM content_reports
			ORDER BY created_at ASC LIMIT $1 OFFSET $2`, page.Limit, page.Offset)
	}
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	reports := make([]*domain.ContentReport, 0)
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, MapError(err)
		}
		reports = append(reports, r)
	}
	return reports, MapError(rows.Err())
}

// ResolvePending implements store.ReportStore.ResolvePending
func (s *PostgresReportStore) ResolvePending(ctx context.Context, blogID, adminID uuid.UUID, at time.Time) (int64, error) {
	query := `
		UPDATE content_reports
		SET status = 'resolved', resolved_by = $1, resolved_at = $2, updated_at = $2
		WHERE blog_id = $3 AND status = 'pending'
	`
	result, err := s.db.ExecContext(ctx, query, adminID, at.UTC(), blogID)
	if err != nil {
		return 0, MapError(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// DeleteByBlog implements store.ReportStore.DeleteByBlog
func (s *PostgresReportStore) DeleteByBlog(ctx context.Context, blogID uuid.UUID) (int64, error) {
	return deleteByBlog(ctx, s.db, "content_reports", blogID)
}

func scanReport(row rowScanner) (*domain.ContentReport, error) {
	var r domain.ContentReport
	var reason, status string
	var resolvedBy uuid.NullUUID
	var resolvedAt sql.NullTime
	err := row.Scan(&r.ID, &r.BlogID, &r.ReporterID, &reason, &r.Details, &status,
		&resolvedBy, &resolvedAt, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.Reason = domain.ReportReason(reason)
	r.Status = domain.ReportStatus(status)
	if resolvedBy.Valid {
		id := resolvedBy.UUID
		r.ResolvedBy = &id
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		r.ResolvedAt = &t
	}
	return &r, nil
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}
