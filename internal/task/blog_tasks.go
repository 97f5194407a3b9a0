package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/events"
	"github.com/phrazzld/quill-api/internal/platform/logger"
)

// BlogCleaner removes a blog together with its dependent records.
type BlogCleaner interface {
	// DeleteBlogCascade deletes interactions, comments, reports and the blog
	// in one transaction. A blog that no longer exists is not an error.
	DeleteBlogCascade(ctx context.Context, blogID uuid.UUID) error

	// MarkDeletionFailed records that every deletion attempt failed.
	MarkDeletionFailed(ctx context.Context, blogID uuid.UUID, reason string) error
}

// BlogPublisher publishes blogs whose scheduled time has come.
type BlogPublisher interface {
	PublishScheduledBlog(ctx context.Context, blogID uuid.UUID) error
	MarkScheduleFailed(ctx context.Context, blogID uuid.UUID, reason string) error
}

// BlogIndexer keeps the search index in step with a blog.
type BlogIndexer interface {
	IndexBlog(ctx context.Context, blogID uuid.UUID) error
}

// blogTask is the shared shape of the tasks keyed by a blog ID.
type blogTask struct {
	baseTask
	ref    events.BlogRef
	logger *slog.Logger
}

func newBlogTask(taskType string, ref events.BlogRef, log *slog.Logger) (blogTask, error) {
	if log == nil {
		return blogTask{}, ErrNilLogger
	}
	if ref.BlogID == uuid.Nil {
		return blogTask{}, ErrEmptyBlogID
	}
	base, err := newBaseTask(taskType, ref)
	if err != nil {
		return blogTask{}, err
	}
	return blogTask{
		baseTask: base,
		ref:      ref,
		logger:   log.With("task_type", taskType, "blog_id", ref.BlogID),
	}, nil
}

// BlogID returns the blog the task operates on.
func (t *blogTask) BlogID() uuid.UUID { return t.ref.BlogID }

func decodeBlogRef(payload []byte) (events.BlogRef, error) {
	var ref events.BlogRef
	if err := json.Unmarshal(payload, &ref); err != nil {
		return ref, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return ref, nil
}

// BlogDeletionTask deletes a blog and everything that references it.
type BlogDeletionTask struct {
	blogTask
	cleaner BlogCleaner
}

// NewBlogDeletionTask creates a deletion task for ref.BlogID.
func NewBlogDeletionTask(ref events.BlogRef, cleaner BlogCleaner, log *slog.Logger) (*BlogDeletionTask, error) {
	if cleaner == nil {
		return nil, fmt.Errorf("%w: blog cleaner", ErrNilDependency)
	}
	bt, err := newBlogTask(TypeBlogDelete, ref, log)
	if err != nil {
		return nil, err
	}
	return &BlogDeletionTask{blogTask: bt, cleaner: cleaner}, nil
}

// Execute runs the cascading delete.
func (t *BlogDeletionTask) Execute(ctx context.Context) error {
	log := logger.FromContextOrDefault(ctx, t.logger)
	if err := t.cleaner.DeleteBlogCascade(ctx, t.ref.BlogID); err != nil {
		return fmt.Errorf("failed to delete blog %s: %w", t.ref.BlogID, err)
	}
	log.Info("blog deleted with dependents", "blog_id", t.ref.BlogID)
	return nil
}

// OnPermanentFailure flags the blog so the reconciliation sweep retries it.
func (t *BlogDeletionTask) OnPermanentFailure(ctx context.Context, cause error) {
	if err := t.cleaner.MarkDeletionFailed(ctx, t.ref.BlogID, cause.Error()); err != nil {
		logger.FromContextOrDefault(ctx, t.logger).Error("failed to mark blog deletion as failed",
			"blog_id", t.ref.BlogID,
			"error", err)
	}
}

// BlogDeletionTaskFactory rebuilds deletion tasks from their payload.
func BlogDeletionTaskFactory(cleaner BlogCleaner, log *slog.Logger) Factory {
	return func(payload []byte) (Task, error) {
		ref, err := decodeBlogRef(payload)
		if err != nil {
			return nil, err
		}
		return NewBlogDeletionTask(ref, cleaner, log)
	}
}

// BlogPublishTask publishes a scheduled blog.
type BlogPublishTask struct {
	blogTask
	publisher BlogPublisher
}

// NewBlogPublishTask creates a publish task for ref.BlogID.
func NewBlogPublishTask(ref events.BlogRef, publisher BlogPublisher, log *slog.Logger) (*BlogPublishTask, error) {
	if publisher == nil {
		return nil, fmt.Errorf("%w: blog publisher", ErrNilDependency)
	}
	bt, err := newBlogTask(TypeBlogPublish, ref, log)
	if err != nil {
		return nil, err
	}
	return &BlogPublishTask{blogTask: bt, publisher: publisher}, nil
}

// Execute publishes the blog if it is still waiting to be published.
func (t *BlogPublishTask) Execute(ctx context.Context) error {
	if err := t.publisher.PublishScheduledBlog(ctx, t.ref.BlogID); err != nil {
		return fmt.Errorf("failed to publish blog %s: %w", t.ref.BlogID, err)
	}
	return nil
}

// OnPermanentFailure marks the schedule failed.
func (t *BlogPublishTask) OnPermanentFailure(ctx context.Context, cause error) {
	if err := t.publisher.MarkScheduleFailed(ctx, t.ref.BlogID, cause.Error()); err != nil {
		logger.FromContextOrDefault(ctx, t.logger).Error("failed to mark blog schedule as failed",
			"blog_id", t.ref.BlogID,
			"error", err)
	}
}

// BlogPublishTaskFactory rebuilds publish tasks from their payload.
func BlogPublishTaskFactory(publisher BlogPublisher, log *slog.Logger) Factory {
	return func(payload []byte) (Task, error) {
		ref, err := decodeBlogRef(payload)
		if err != nil {
			return nil, err
		}
		return NewBlogPublishTask(ref, publisher, log)
	}
}

// SearchIndexTask syncs one blog with the search index.
type SearchIndexTask struct {
	blogTask
	indexer BlogIndexer
}

// NewSearchIndexTask creates an indexing task for ref.BlogID.
func NewSearchIndexTask(ref events.BlogRef, indexer BlogIndexer, log *slog.Logger) (*SearchIndexTask, error) {
	if indexer == nil {
		return nil, fmt.Errorf("%w: blog indexer", ErrNilDependency)
	}
	bt, err := newBlogTask(TypeSearchIndex, ref, log)
	if err != nil {
		return nil, err
	}
	return &SearchIndexTask{blogTask: bt, indexer: indexer}, nil
}

// Execute indexes the blog, or removes it when it is no longer public.
func (t *SearchIndexTask) Execute(ctx context.Context) error {
	if err := t.indexer.IndexBlog(ctx, t.ref.BlogID); err != nil {
		return fmt.Errorf("failed to index blog %s: %w", t.ref.BlogID, err)
	}
	return nil
}

// SearchIndexTaskFactory rebuilds indexing tasks from their payload.
func SearchIndexTaskFactory(indexer BlogIndexer, log *slog.Logger) Factory {
	return func(payload []byte) (Task, error) {
		ref, err := decodeBlogRef(payload)
		if err != nil {
			return nil, err
		}
		return NewSearchIndexTask(ref, indexer, log)
	}
}
