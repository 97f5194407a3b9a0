package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/domain"
)

// CommentStore defines the interface for comment persistence.
type CommentStore interface {
	Create(ctx context.Context, comment *domain.Comment) error

	// GetByID returns ErrCommentNotFound if the comment does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Comment, error)

	Update(ctx context.Context, comment *domain.Comment) error

	// Delete returns ErrCommentNotFound if the comment does not exist.
	Delete(ctx context.Context, id uuid.UUID) error

	// ListByBlog returns comments on a post, oldest first.
	ListByBlog(ctx context.Context, blogID uuid.UUID, page Page) ([]*domain.Comment, error)

	// DeleteByBlog removes every comment on a post and returns how many were removed.
	DeleteByBlog(ctx context.Context, blogID uuid.UUID) (int64, error)

	WithTx(tx *sql.Tx) CommentStore
}
