package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/domain"
)

// InteractionStore defines the interface for like/dislike persistence.
// A user has at most one interaction per blog.
type InteractionStore interface {
	// Upsert inserts the interaction or replaces the type of the existing one.
	Upsert(ctx context.Context, interaction *domain.Interaction) error

	// Get returns ErrInteractionNotFound when the user has not reacted.
	Get(ctx context.Context, blogID, userID uuid.UUID) (*domain.Interaction, error)

	// Delete removes the user's interaction. Returns ErrInteractionNotFound when absent.
	Delete(ctx context.Context, blogID, userID uuid.UUID) error

	// Counts returns the number of likes and dislikes on a post.
	Counts(ctx context.Context, blogID uuid.UUID) (likes int, dislikes int, err error)

	// DeleteByBlog removes every interaction on a post.
	DeleteByBlog(ctx context.Context, blogID uuid.UUID) (int64, error)

	WithTx(tx *sql.Tx) InteractionStore
}
