package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/domain"
	"github.com/phrazzld/quill-api/internal/store"
)

// PostgresInteractionStore implements the store.InteractionStore interface.
type PostgresInteractionStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresInteractionStore creates a new PostgreSQL implementation of the InteractionStore interface.
func NewPostgresInteractionStore(db store.DBTX, logger *slog.Logger) *PostgresInteractionStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresInteractionStore{
		db:     db,
		logger: logger.With(slog.String("component", "interaction_store")),
	}
}

var _ store.InteractionStore = (*PostgresInteractionStore)(nil)

// WithTx implements store.InteractionStore.WithTx
func (s *PostgresInteractionStore) WithTx(tx *sql.Tx) store.InteractionStore {
	return &PostgresInteractionStore{db: tx, logger: s.logger}
}

// Upsert implements store.InteractionStore.Upsert
func (s *PostgresInteractionStore) Upsert(ctx context.Context, i *domain.Interaction) error {
	query := `
		INSERT INTO interactions (id, blog_id, user_id, type, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT ON CONSTRAINT interactions_blog_user_key
		DO UPDATE SET type = EXCLUDED.type, updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.ExecContext(ctx, query, i.ID, i.BlogID, i.UserID, i.Type, i.CreatedAt, i.UpdatedAt)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: blog or user does not exist", store.ErrInvalidEntity)
		}
		return MapError(err)
	}
	return nil
}

// Get implements store.InteractionStore.Get
func (s *PostgresInteractionStore) Get(ctx context.Context, blogID, userID uuid.UUID) (*domain.Interaction, error) {
	query := `
		SELECT id, blog_id, user_id, type, created_at, updated_at
		FROM interactions WHERE blog_id = $1 AND user_id = $2
	`
	var i domain.Interaction
	var kind string
	err := s.db.QueryRowContext(ctx, query, blogID, userID).
		Scan(&i.ID, &i.BlogID, &i.UserID, &kind, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrInteractionNotFound
		}
		return nil, MapError(err)
	}
	i.Type = domain.InteractionType(kind)
	return &i, nil
}

// Delete implements store.InteractionStore.Delete
func (s *PostgresInteractionStore) Delete(ctx context.Context, blogID, userID uuid.UUID) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM interactions WHERE blog_id = $1 AND user_id = $2`, blogID, userID)
	if err != nil {
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrInteractionNotFound)
}

// Counts implements store.InteractionStore.Counts
func (s *PostgresInteractionStore) Counts(ctx context.Context, blogID uuid.UUID) (int, int, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE type = 'like'),
			COUNT(*) FILTER (WHERE type = 'dislike')
		FROM interactions WHERE blog_id = $1
	`
	var likes, dislikes int
	if err := s.db.QueryRowContext(ctx, query, blogID).Scan(&likes, &dislikes); err != nil {
		return 0, 0, MapError(err)
	}
	return likes, dislikes, nil
}

// DeleteByBlog implements store.InteractionStore.DeleteByBlog
func (s *PostgresInteractionStore) DeleteByBlog(ctx context.Context, blogID uuid.UUID) (int64, error) {
	return deleteByBlog(ctx, s.db, "interactions", blogID)
}
