package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/domain"
)

// ReportStore defines the interface for content report persistence.
type ReportStore interface {
	// Create returns ErrDuplicateReport when the reporter already reported the blog.
	Create(ctx context.Context, report *domain.ContentReport) error

	// GetByID returns ErrReportNotFound if the report does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.ContentReport, error)

	Update(ctx context.Context, report *domain.ContentReport) error

	// List returns reports, optionally filtered by status, oldest first.
	List(ctx context.Context, status *domain.ReportStatus, page Page) ([]*domain.ContentReport, error)

	// ResolvePending marks every pending report on a blog as resolved by adminID.
	ResolvePending(ctx context.Context, blogID, adminID uuid.UUID, at time.Time) (int64, error)

	// DeleteByBlog removes every report on a post.
	DeleteByBlog(ctx context.Context, blogID uuid.UUID) (int64, error)

	WithTx(tx *sql.Tx) ReportStore
}
