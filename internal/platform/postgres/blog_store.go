package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/domain"
	"github.com/phrazzld/quill-api/internal/platform/logger"
	"github.com/phrazzld/quill-api/internal/store"
)

const blogColumns = `id, author_id, title, content, tags, image_url, status, schedule_status,
	scheduled_at, published_at, deletion_status, deletion_error, unpublish_reason, created_at, updated_at`

// PostgresBlogStore implements the store.BlogStore interface.
type PostgresBlogStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresBlogStore creates a new PostgreSQL implementation of the BlogStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresBlogStore(db store.DBTX, logger *slog.Logger) *PostgresBlogStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresBlogStore{
		db:     db,
		logger: logger.With(slog.String("component", "blog_store")),
	}
}

var _ store.BlogStore = (*PostgresBlogStore)(nil)

// WithTx implements store.BlogStore.WithTx
func (s *PostgresBlogStore) WithTx(tx *sql.Tx) store.BlogStore {
	return &PostgresBlogStore{db: tx, logger: s.logger}
}

// Create implements store.BlogStore.Create
func (s *PostgresBlogStore) Create(ctx context.Context, blog *domain.Blog) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := blog.Validate(); err != nil {
		log.Warn("blog validation failed during create",
			slog.String("blog_id", blog.ID.String()),
			slog.String("error", err.Error()))
		return err
	}

	tags, err := marshalTags(blog.Tags)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO blogs (` + blogColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err = s.db.ExecContext(ctx, query,
		blog.ID,
		blog.AuthorID,
		blog.Title,
		blog.Content,
		tags,
		blog.ImageURL,
		blog.Status,
		blog.ScheduleStatus,
		nullTime(blog.ScheduledAt),
		nullTime(blog.PublishedAt),
		blog.DeletionStatus,
		blog.DeletionError,
		blog.UnpublishReason,
		blog.CreatedAt,
		blog.UpdatedAt,
	)
	if err != nil {
		if IsForeignKeyViolation(err) {
			log.Warn("blog author does not exist",
				slog.String("author_id", blog.AuthorID.String()))
			return fmt.Errorf("%w: author %s not found", store.ErrInvalidEntity, blog.AuthorID)
		}
		log.Error("failed to create blog",
			slog.String("blog_id", blog.ID.String()),
			slog.String("error", err.Error()))
		return MapError(err)
	}

	log.Info("blog created",
		slog.String("blog_id", blog.ID.String()),
		slog.String("status", string(blog.Status)))
	return nil
}

// GetByID implements store.BlogStore.GetByID
func (s *PostgresBlogStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Blog, error) {
	query := `SELECT ` + blogColumns + ` FROM blogs WHERE id = $1`
	blog, err := scanBlog(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrBlogNotFound
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to get blog",
			slog.String("blog_id", id.String()),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	return blog, nil
}

// Update implements store.BlogStore.Update
func (s *PostgresBlogStore) Update(ctx context.Context, blog *domain.Blog) error {
	if err := blog.Validate(); err != nil {
		return err
	}
	tags, err := marshalTags(blog.Tags)
	if err != nil {
		return err
	}

	query := `
		UPDATE blogs
		SET title = $1, content = $2, tags = $3, image_url = $4, status = $5,
		    schedule_status = $6, scheduled_at = $7, published_at = $8,
		    unpublish_reason = $9, updated_at = $10
		WHERE id = $11
	`
	result, err := s.db.ExecContext(ctx, query,
		blog.Title,
		blog.Content,
		tags,
		blog.ImageURL,
		blog.Status,
		blog.ScheduleStatus,
		nullTime(blog.ScheduledAt),
		nullTime(blog.PublishedAt),
		blog.UnpublishReason,
		blog.UpdatedAt,
		blog.ID,
	)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to update blog",
			slog.String("blog_id", blog.ID.String()),
			slog.String("error", err.Error()))
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrBlogNotFound)
}

// List implements store.BlogStore.List
func (s *PostgresBlogStore) List(ctx context.Context, filter store.BlogFilter) ([]*domain.Blog, error) {
	page := filter.Page.Normalize()

	conditions := []string{"deletion_status = 'none'"}
	args := make([]any, 0, 5)
	if filter.AuthorID != nil {
		args = append(args, *filter.AuthorID)
		conditions = append(conditions, fmt.Sprintf("author_id = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if tag := strings.ToLower(strings.TrimSpace(filter.Tag)); tag != "" {
		args = append(args, tag)
		conditions = append(conditions, fmt.Sprintf("tags @> jsonb_build_array($%d::text)", len(args)))
	}
	args = append(args, page.Limit, page.Offset)

	query := fmt.Sprintf(`SELECT %s FROM blogs WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		blogColumns, strings.Join(conditions, " AND "), len(args)-1, len(args))

	return s.query(ctx, query, args...)
}

// Search implements store.BlogStore.Search
func (s *PostgresBlogStore) Search(ctx context.Context, q string, page store.Page) ([]*domain.Blog, error) {
	page = page.Normalize()
	term := strings.TrimSpace(q)
	pattern := "%" + escapeLike(term) + "%"

	query := `SELECT ` + blogColumns + ` FROM blogs
		WHERE deletion_status = 'none' AND status = 'published'
		  AND (title ILIKE $1 OR content ILIKE $1 OR tags @> jsonb_build_array(lower($2)::text))
		ORDER BY published_at DESC NULLS LAST
		LIMIT $3 OFFSET $4`
	return s.query(ctx, query, pattern, term, page.Limit, page.Offset)
}

// Delete implements store.BlogStore.Delete
func (s *PostgresBlogStore) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM blogs WHERE id = $1`, id)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to delete blog",
			slog.String("blog_id", id.String()),
			slog.String("error", err.Error()))
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrBlogNotFound)
}

// TransitionDeletion implements store.BlogStore.TransitionDeletion
func (s *PostgresBlogStore) TransitionDeletion(
	ctx context.Context,
	id uuid.UUID,
	from, to domain.DeletionStatus,
	errMsg string,
) (bool, error) {
	query := `
		UPDATE blogs SET deletion_status = $1, deletion_error = $2, updated_at = $3
		WHERE id = $4 AND deletion_status = $5
	`
	result, err := s.db.ExecContext(ctx, query, to, errMsg, time.Now().UTC(), id, from)
	if err != nil {
		return false, MapError(err)
	}
	return changed(result)
}

// TransitionSchedule implements store.BlogStore.TransitionSchedule
func (s *PostgresBlogStore) TransitionSchedule(
	ctx context.Context,
	id uuid.UUID,
	from, to domain.ScheduleStatus,
) (bool, error) {
	query := `
		UPDATE blogs SET schedule_status = $1, updated_at = $2
		WHERE id = $3 AND schedule_status = $4
	`
	result, err := s.db.ExecContext(ctx, query, to, time.Now().UTC(), id, from)
	if err != nil {
		return false, MapError(err)
	}
	return changed(result)
}

// ListDueScheduled implements store.BlogStore.ListDueScheduled
func (s *PostgresBlogStore) ListDueScheduled(
	ctx context.Context,
	status domain.ScheduleStatus,
	now time.Time,
	limit int,
) ([]*domain.Blog, error) {
	query := `SELECT ` + blogColumns + ` FROM blogs
		WHERE schedule_status = $1 AND scheduled_at <= $2 AND deletion_status = 'none'
		ORDER BY scheduled_at ASC
		LIMIT $3`
	return s.query(ctx, query, status, now.UTC(), limit)
}

// ListByDeletionStatus implements store.BlogStore.ListByDeletionStatus
func (s *PostgresBlogStore) ListByDeletionStatus(
	ctx context.Context,
	status domain.DeletionStatus,
	limit int,
) ([]*domain.Blog, error) {
	query := `SELECT ` + blogColumns + ` FROM blogs
		WHERE deletion_status = $1
		ORDER BY updated_at ASC
		LIMIT $2`
	return s.query(ctx, query, status, limit)
}

// ListStaleDeletions implements store.BlogStore.ListStaleDeletions
func (s *PostgresBlogStore) ListStaleDeletions(
	ctx context.Context,
	status domain.DeletionStatus,
	updatedBefore time.Time,
	limit int,
) ([]*domain.Blog, error) {
	query := `SELECT ` + blogColumns + ` FROM blogs
		WHERE deletion_status = $1 AND updated_at < $2
		ORDER BY updated_at ASC
		LIMIT $3`
	return s.query(ctx, query, status, updatedBefore.UTC(), limit)
}

// ListStaleSchedules implements store.BlogStore.ListStaleSchedules
func (s *PostgresBlogStore) ListStaleSchedules(
	ctx context.Context,
	status domain.ScheduleStatus,
	updatedBefore time.Time,
	limit int,
) ([]*domain.Blog, error) {
	query := `SELECT ` + blogColumns + ` FROM blogs
		WHERE schedule_status = $1 AND updated_at < $2 AND deletion_status = 'none'
		ORDER BY updated_at ASC
		LIMIT $3`
	return s.query(ctx, query, status, updatedBefore.UTC(), limit)
}

// ListIDsByAuthor implements store.BlogStore.ListIDsByAuthor
func (s *PostgresBlogStore) ListIDsByAuthor(ctx context.Context, authorID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM blogs WHERE author_id = $1`, authorID)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, MapError(err)
		}
		ids = append(ids, id)
	}
	return ids, MapError(rows.Err())
}

func (s *PostgresBlogStore) query(ctx context.Context, query string, args ...any) ([]*domain.Blog, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to query blogs",
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	blogs := make([]*domain.Blog, 0)
	for rows.Next() {
		blog, err := scanBlog(rows)
		if err != nil {
			return nil, MapError(err)
		}
		blogs = append(blogs, blog)
	}
	return blogs, MapError(rows.Err())
}

func scanBlog(row rowScanner) (*domain.Blog, error) {
	var b domain.Blog
	var tags []byte
	var status, scheduleStatus, deletionStatus string
	var scheduledAt, publishedAt sql.NullTime

	err := row.Scan(
		&b.ID,
		&b.AuthorID,
		&b.Title,
		&b.Content,
		&tags,
		&b.ImageURL,
		&status,
		&scheduleStatus,
		&scheduledAt,
		&publishedAt,
		&deletionStatus,
		&b.DeletionError,
		&b.UnpublishReason,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	b.Tags = []string{}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &b.Tags); err != nil {
			return nil, fmt.Errorf("%w: tags: %v", domain.ErrInvalidFormat, err)
		}
	}
	b.Status = domain.PublishStatus(status)
	b.ScheduleStatus = domain.ScheduleStatus(scheduleStatus)
	b.DeletionStatus = domain.DeletionStatus(deletionStatus)
	if scheduledAt.Valid {
		t := scheduledAt.Time
		b.ScheduledAt = &t
	}
	if publishedAt.Valid {
		t := publishedAt.Time
		b.PublishedAt = &t
	}
	return &b, nil
}

func marshalTags(tags []string) ([]byte, error) {
	if tags == nil {
		tags = []string{}
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tags: %w", err)
	}
	return data, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func changed(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
