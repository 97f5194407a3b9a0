package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/domain"
	"github.com/phrazzld/quill-api/internal/platform/logger"
	"github.com/phrazzld/quill-api/internal/store"
)

const commentColumns = `id, blog_id, user_id, content, created_at, updated_at`

// PostgresCommentStore implements the store.CommentStore interface.
type PostgresCommentStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresCommentStore creates a new PostgreSQL implementation of the CommentStore interface.
func NewPostgresCommentStore(db store.DBTX, logger *slog.Logger) *PostgresCommentStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresCommentStore{
		db:     db,
		logger: logger.With(slog.String("component", "comment_store")),
	}
}

var _ store.CommentStore = (*PostgresCommentStore)(nil)

// WithTx implements store.CommentStore.WithTx
func (s *PostgresCommentStore) WithTx(tx *sql.Tx) store.CommentStore {
	return &PostgresCommentStore{db: tx, logger: s.logger}
}

// Create implements store.CommentStore.Create
func (s *PostgresCommentStore) Create(ctx context.Context, c *domain.Comment) error {
	if err := c.Validate(); err != nil {
		return err
	}
	query := `INSERT INTO comments (` + commentColumns + `) VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.db.ExecContext(ctx, query, c.ID, c.BlogID, c.UserID, c.Content, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: blog or user does not exist", store.ErrInvalidEntity)
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to create comment",
			slog.String("comment_id", c.ID.String()),
			slog.String("error", err.Error()))
		return MapError(err)
	}
	return nil
}

// GetByID implements store.CommentStore.GetByID
func (s *PostgresCommentStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Comment, error) {
	query := `SELECT ` + commentColumns + ` FROM comments WHERE id = $1`
	c, err := scanComment(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrCommentNotFound
		}
		return nil, MapError(err)
	}
	return c, nil
}

// Update implements store.CommentStore.Update
func (s *PostgresCommentStore) Update(ctx context.Context, c *domain.Comment) error {
	if err := c.Validate(); err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE comments SET content = $1, updated_at = $2 WHERE id = $3`,
		c.Content, c.UpdatedAt, c.ID)
	if err != nil {
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrCommentNotFound)
}

// Delete implements store.CommentStore.Delete
func (s *PostgresCommentStore) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrCommentNotFound)
}

// ListByBlog implements store.CommentStore.ListByBlog
func (s *PostgresCommentStore) ListByBlog(ctx context.Context, blogID uuid.UUID, page store.Page) ([]*domain.Comment, error) {
	page = page.Normalize()
	query := `SELECT ` + commentColumns + ` FROM comments WHERE blog_id = $1
		ORDER BY created_at ASC LIMIT $2 OFFSET $3`

	rows, err := s.db.QueryContext(ctx, query, blogID, page.Limit, page.Offset)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	comments := make([]*domain.Comment, 0)
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, MapError(err)
		}
		comments = append(comments, c)
	}
	return comments, MapError(rows.Err())
}

// DeleteByBlog implements store.CommentStore.DeleteByBlog
func (s *PostgresCommentStore) DeleteByBlog(ctx context.Context, blogID uuid.UUID) (int64, error) {
	return deleteByBlog(ctx, s.db, "comments", blogID)
}

func scanComment(row rowScanner) (*domain.Comment, error) {
	var c domain.Comment
	if err := row.Scan(&c.ID, &c.BlogID, &c.UserID, &c.Content, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// deleteByBlog removes every row of table that references blogID.
// table is always a package constant, never user input.
func deleteByBlog(ctx context.Context, db store.DBTX, table string, blogID uuid.UUID) (int64, error) {
	result, err := db.ExecContext(ctx, `DELETE FROM `+table+` WHERE blog_id = $1`, blogID)
	if err != nil {
		return 0, MapError(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
