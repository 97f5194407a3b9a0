package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/domain"
)

// BlogFilter narrows List results. Zero values mean "any".
// Blogs whose deletion status is not none are never returned.
type BlogFilter struct {
	AuthorID *uuid.UUID
	Status   *domain.PublishStatus
	Tag      string
	Page     Page
}

// BlogStore defines the interface for blog post persistence.
type BlogStore interface {
	// Create saves a new blog post.
	Create(ctx context.Context, blog *domain.Blog) error

	// GetByID retrieves a blog post regardless of its deletion status.
	// Returns ErrBlogNotFound if the row does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Blog, error)

	// Update writes every mutable column of blog.
	// Returns ErrBlogNotFound if the row does not exist.
	Update(ctx context.Context, blog *domain.Blog) error

	// List returns live posts matching filter, newest first.
	List(ctx context.Context, filter BlogFilter) ([]*domain.Blog, error)

	// Search matches published posts by title, content or tag (case-insensitive).
	Search(ctx context.Context, query string, page Page) ([]*domain.Blog, error)

	// Delete removes the blog row. Returns ErrBlogNotFound if it does not exist.
	Delete(ctx context.Context, id uuid.UUID) error

	// TransitionDeletion moves deletion status from one value to another, recording errMsg.
	// It reports false when the row was not in the expected state.
	TransitionDeletion(ctx context.Context, id uuid.UUID, from, to domain.DeletionStatus, errMsg string) (bool, error)

	// TransitionSchedule moves schedule status from one value to another.
	// It reports false when the row was not in the expected state.
	TransitionSchedule(ctx context.Context, id uuid.UUID, from, to domain.ScheduleStatus) (bool, error)

	// ListDueScheduled returns live posts with the given schedule status whose
	// scheduled time is at or before now, oldest first.
	ListDueScheduled(ctx context.Context, status domain.ScheduleStatus, now time.Time, limit int) ([]*domain.Blog, error)

	// ListByDeletionStatus returns posts in the given deletion state, oldest first.
	ListByDeletionStatus(ctx context.Context, status domain.DeletionStatus, limit int) ([]*domain.Blog, error)

	// ListStaleDeletions returns posts in the given deletion state that have
	// not changed since updatedBefore, oldest first.
	ListStaleDeletions(ctx context.Context, status domain.DeletionStatus, updatedBefore time.Time, limit int) ([]*domain.Blog, error)

	// ListStaleSchedules returns live posts in the given schedule state that
	// have not changed since updatedBefore, oldest first.
	ListStaleSchedules(ctx context.Context, status domain.ScheduleStatus, updatedBefore time.Time, limit int) ([]*domain.Blog, error)

	// ListIDsByAuthor returns the IDs of every post by authorID, whatever its state.
	ListIDsByAuthor(ctx context.Context, authorID uuid.UUID) ([]uuid.UUID, error)

	// WithTx returns a BlogStore bound to tx.
	WithTx(tx *sql.Tx) BlogStore
}
