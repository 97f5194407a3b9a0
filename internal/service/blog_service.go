package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/domain"
	"github.com/phrazzld/quill-api/internal/events"
	"github.com/phrazzld/quill-api/internal/platform/logger"
	"github.com/phrazzld/quill-api/internal/platform/rediscache"
	"github.com/phrazzld/quill-api/internal/platform/search"
	"github.com/phrazzld/quill-api/internal/platform/storage"
	"github.com/phrazzld/quill-api/internal/store"
	"github.com/phrazzld/quill-api/internal/task"
)

// BlogInput describes a new post. Publish and ScheduledAt are mutually exclusive;
// with neither set the post is saved as a draft.
type BlogInput struct {
	Title       string
	Content     string
	Tags        []string
	Publish     bool
	ScheduledAt *time.Time
}

// BlogUpdate carries the fields an author may change. Nil fields are kept.
type BlogUpdate struct {
	Title   *string
	Content *string
	Tags    []string
}

// BlogListFilter narrows the public listing.
type BlogListFilter struct {
	AuthorID *uuid.UUID
	Tag      string
	Page     store.Page
}

// BlogService manages posts and runs the blog background task callbacks.
type BlogService struct {
	blogs    store.BlogStore
	users    store.UserStore
	cache    rediscache.BlogCache
	index    search.Index
	uploader storage.Uploader
	purger   *blogPurger
	notify   notifier
	logger   *slog.Logger
	clock    clock
}

var (
	_ task.BlogCleaner   = (*BlogService)(nil)
	_ task.BlogPublisher = (*BlogService)(nil)
	_ task.BlogIndexer   = (*BlogService)(nil)
)

// NewBlogService creates a BlogService from d.
func NewBlogService(d Deps) (*BlogService, error) {
	if err := checkDeps(
		dep{"blogs", d.Blogs},
		dep{"users", d.Users},
		dep{"emitter", d.Emitter},
	); err != nil {
		return nil, err
	}
	log := d.logger("blog_service")
	purger, err := newBlogPurger(d, log)
	if err != nil {
		return nil, err
	}
	return &BlogService{
		blogs:    d.Blogs,
		users:    d.Users,
		cache:    d.cache(),
		index:    d.Index,
		uploader: d.uploader(),
		purger:   purger,
		notify:   notifier{emitter: d.Emitter, logger: log},
		logger:   log,
	}, nil
}

// Create saves a post as a draft, publishes it, or schedules it.
func (s *BlogService) Create(ctx context.Context, actor Actor, in BlogInput) (*domain.Blog, error) {
	if actor.IsAnonymous() {
		return nil, ErrForbidden
	}
	if in.Publish && in.ScheduledAt != nil {
		return nil, ErrScheduleConflict
	}

	blog, err := domain.NewBlog(actor.UserID, in.Title, in.Content, in.Tags)
	if err != nil {
		return nil, err
	}

	now := s.clock.now()
	switch {
	case in.Publish:
		err = blog.Publish(now)
	case in.ScheduledAt != nil:
		err = blog.Schedule(*in.ScheduledAt, now)
	}
	if err != nil {
		return nil, err
	}

	if err := s.blogs.Create(ctx, blog); err != nil {
		return nil, NewServiceError("blog", "create", err)
	}

	logger.FromContextOrDefault(ctx, s.logger).Info("blog created",
		"blog_id", blog.ID,
		"author_id", blog.AuthorID,
		"status", blog.Status,
		"schedule_status", blog.ScheduleStatus)
	if blog.IsPublished() {
		s.announce(ctx, blog, events.BlogPublished)
	}
	return blog, nil
}

// Get returns a post the actor may read. Hidden posts are reported as not found.
func (s *BlogService) Get(ctx context.Context, actor Actor, id uuid.UUID) (*domain.Blog, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if cached, ok, err := s.cache.Get(ctx, id); err != nil {
		log.Warn("blog cache read failed", "error", err, "blog_id", id)
	} else if ok && cached.IsPublished() {
		return cached, nil
	}

	blog, err := s.load(ctx, id, "get")
	if err != nil {
		return nil, err
	}
	if !blog.VisibleTo(actor.UserID, actor.IsAdmin()) {
		return nil, store.ErrBlogNotFound
	}
	if blog.IsPublished() {
		if err := s.cache.Set(ctx, blog); err != nil {
			log.Warn("blog cache write failed", "error", err, "blog_id", id)
		}
	}
	return blog, nil
}

// List returns published posts, newest first.
func (s *BlogService) List(ctx context.Context, filter BlogListFilter) ([]*domain.Blog, error) {
	published := domain.PublishStatusPublished
	blogs, err := s.blogs.List(ctx, store.BlogFilter{
		AuthorID: filter.AuthorID,
		Status:   &published,
		Tag:      filter.Tag,
		Page:     filter.Page.Normalize(),
	})
	if err != nil {
		return nil, NewServiceError("blog", "list", err)
	}
	return blogs, nil
}

// ListMine returns every live post written by the actor.
func (s *BlogService) ListMine(ctx context.Context, actor Actor, page store.Page) ([]*domain.Blog, error) {
	if actor.IsAnonymous() {
		return nil, ErrForbidden
	}
	blogs, err := s.blogs.List(ctx, store.BlogFilter{AuthorID: &actor.UserID, Page: page.Normalize()})
	if err != nil {
		return nil, NewServiceError("blog", "list_mine", err)
	}
	return blogs, nil
}

// Update changes the title, content or tags of the actor's post.
func (s *BlogService) Update(ctx context.Context, actor Actor, id uuid.UUID, upd BlogUpdate) (*domain.Blog, error) {
	blog, err := s.owned(ctx, actor, id, "update")
	if err != nil {
		return nil, err
	}

	if upd.Title != nil {
		blog.Title = strings.TrimSpace(*upd.Title)
	}
	if upd.Content != nil {
		blog.Content = *upd.Content
	}
	if upd.Tags != nil {
		tags, err := domain.NormalizeTags(upd.Tags)
		if err != nil {
			return nil, err
		}
		blog.Tags = tags
	}
	if err := blog.Validate(); err != nil {
		return nil, err
	}
	blog.UpdatedAt = s.clock.now()

	if err := s.save(ctx, blog, "update"); err != nil {
		return nil, err
	}
	if blog.IsPublished() {
		s.reindex(ctx, blog)
	}
	return blog, nil
}

// Publish makes the actor's draft public immediately, cancelling any schedule.
func (s *BlogService) Publish(ctx context.Context, actor Actor, id uuid.UUID) (*domain.Blog, error) {
	blog, err := s.owned(ctx, actor, id, "publish")
	if err != nil {
		return nil, err
	}
	if err := blog.Publish(s.clock.now()); err != nil {
		return nil, err
	}
	if err := s.save(ctx, blog, "publish"); err != nil {
		return nil, err
	}
	logger.FromContextOrDefault(ctx, s.logger).Info("blog published", "blog_id", blog.ID)
	s.announce(ctx, blog, events.BlogPublished)
	return blog, nil
}

// UploadImage stores the post's cover image and records its URL.
func (s *BlogService) UploadImage(ctx context.Context, actor Actor, id uuid.UUID, r io.Reader) (*domain.Blog, error) {
	blog, err := s.owned(ctx, actor, id, "upload_image")
	if err != nil {
		return nil, err
	}

	url, err := s.uploader.UploadImage(ctx, "blogs/"+blog.ID.String(), r)
	if err != nil {
		if errors.Is(err, storage.ErrUnsupportedImage) || errors.Is(err, storage.ErrEmptyUpload) ||
			errors.Is(err, storage.ErrUploadsDisabled) {
			return nil, err
		}
		return nil, NewServiceError("blog", "upload_image", err)
	}

	blog.ImageURL = url
	blog.UpdatedAt = s.clock.now()
	if err := s.save(ctx, blog, "upload_image"); err != nil {
		return nil, err
	}
	if blog.IsPublished() {
		s.reindex(ctx, blog)
	}
	return blog, nil
}

// Delete hides the post and queues its removal. If the deletion task cannot be
// queued the post is marked failed and picked up by the reconciliation sweep.
func (s *BlogService) Delete(ctx context.Context, actor Actor, id uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger).With("blog_id", id)

	blog, err := s.load(ctx, id, "delete")
	if err != nil {
		return err
	}
	if blog.IsDeleted() {
		return store.ErrBlogNotFound
	}
	if !actor.Owns(blog.AuthorID) && !actor.IsAdmin() {
		return ErrNotOwned
	}

	ok, err := s.blogs.TransitionDeletion(ctx, id, domain.DeletionStatusNone, domain.DeletionStatusPending, "")
	if err != nil {
		return NewServiceError("blog", "delete", err)
	}
	if !ok {
		return store.ErrBlogNotFound
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		log.Warn("failed to invalidate cached blog", "error", err)
	}

	ref := events.BlogRef{BlogID: id, AuthorID: blog.AuthorID}
	if err := events.Emit(ctx, s.notify.emitter, events.TaskBlogDelete, ref); err != nil {
		log.Error("failed to queue blog deletion", "error", err)
		if _, markErr := s.blogs.TransitionDeletion(ctx, id,
			domain.DeletionStatusPending, domain.DeletionStatusFailed, err.Error()); markErr != nil {
			log.Error("failed to mark blog deletion as failed", "error", markErr)
		}
		return nil
	}

	log.Info("blog deletion queued", "actor_id", actor.UserID)
	return nil
}

// Search finds published posts matching query.
func (s *BlogService) Search(ctx context.Context, query string, page store.Page) ([]*domain.Blog, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	blogs, err := s.index.Search(ctx, query, page.Normalize())
	if err != nil {
		return nil, NewServiceError("blog", "search", err)
	}
	return blogs, nil
}

// DeleteBlogCascade removes the post with its comments, interactions and
// reports in one transaction.
func (s *BlogService) DeleteBlogCascade(ctx context.Context, blogID uuid.UUID) error {
	return s.purger.purge(ctx, blogID)
}

// MarkDeletionFailed moves a pending deletion to failed.
func (s *BlogService) MarkDeletionFailed(ctx context.Context, blogID uuid.UUID, reason string) error {
	ok, err := s.blogs.TransitionDeletion(ctx, blogID, domain.DeletionStatusPending, domain.DeletionStatusFailed, reason)
	if err != nil {
		return err
	}
	log := logger.FromContextOrDefault(ctx, s.logger)
	if !ok {
		log.Debug("blog deletion no longer pending", "blog_id", blogID)
		return nil
	}
	log.Warn("blog deletion failed", "blog_id", blogID, "reason", reason)
	return nil
}

// PublishScheduledBlog publishes a queued post unless it was published,
// unpublished or deleted in the meantime.
func (s *BlogService) PublishScheduledBlog(ctx context.Context, blogID uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger).With("blog_id", blogID)

	blog, err := s.blogs.GetByID(ctx, blogID)
	if err != nil {
		if errors.Is(err, store.ErrBlogNotFound) {
			log.Info("scheduled blog no longer exists")
			return nil
		}
		return err
	}
	if !blog.CanPublishScheduled() {
		log.Info("scheduled blog skipped",
			"status", blog.Status,
			"schedule_status", blog.ScheduleStatus,
			"deletion_status", blog.DeletionStatus)
		return nil
	}

	if err := blog.Publish(s.clock.now()); err != nil {
		return err
	}
	if err := s.blogs.Update(ctx, blog); err != nil {
		return err
	}
	if err := s.cache.Invalidate(ctx, blog.ID); err != nil {
		log.Warn("failed to invalidate cached blog", "error", err)
	}
	log.Info("scheduled blog published")

	s.announce(ctx, blog, events.BlogPublished)
	if author, err := s.users.GetByID(ctx, blog.AuthorID); err != nil {
		log.Warn("failed to load author for publish email", "error", err)
	} else {
		s.notify.email(ctx, author.Email, events.TemplateBlogPublished, map[string]string{
			"username": author.Username,
			"title":    blog.Title,
		})
	}
	return nil
}

// MarkScheduleFailed moves a queued schedule to failed.
func (s *BlogService) MarkScheduleFailed(ctx context.Context, blogID uuid.UUID, reason string) error {
	ok, err := s.blogs.TransitionSchedule(ctx, blogID, domain.ScheduleStatusQueued, domain.ScheduleStatusFailed)
	if err != nil {
		return err
	}
	if ok {
		logger.FromContextOrDefault(ctx, s.logger).Warn("scheduled publish failed",
			"blog_id", blogID,
			"reason", reason)
	}
	return nil
}

// IndexBlog adds a published post to the search index and removes any other.
func (s *BlogService) IndexBlog(ctx context.Context, blogID uuid.UUID) error {
	blog, err := s.blogs.GetByID(ctx, blogID)
	if err != nil {
		if errors.Is(err, store.ErrBlogNotFound) {
			return s.index.RemoveBlog(ctx, blogID)
		}
		return err
	}
	if !blog.IsPublished() {
		return s.index.RemoveBlog(ctx, blogID)
	}
	return s.index.IndexBlog(ctx, blog)
}

func (s *BlogService) load(ctx context.Context, id uuid.UUID, op string) (*domain.Blog, error) {
	blog, err := s.blogs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrBlogNotFound) {
			return nil, err
		}
		return nil, NewServiceError("blog", op, err)
	}
	return blog, nil
}

// owned loads a live post and checks that the actor wrote it. Other users'
// drafts are reported as not found.
func (s *BlogService) owned(ctx context.Context, actor Actor, id uuid.UUID, op string) (*domain.Blog, error) {
	blog, err := s.load(ctx, id, op)
	if err != nil {
		return nil, err
	}
	if !blog.VisibleTo(actor.UserID, actor.IsAdmin()) {
		return nil, store.ErrBlogNotFound
	}
	if !actor.Owns(blog.AuthorID) {
		return nil, ErrNotOwned
	}
	return blog, nil
}

func (s *BlogService) save(ctx context.Context, blog *domain.Blog, op string) error {
	if err := s.blogs.Update(ctx, blog); err != nil {
		if errors.Is(err, store.ErrBlogNotFound) {
			return err
		}
		return NewServiceError("blog", op, err)
	}
	if err := s.cache.Invalidate(ctx, blog.ID); err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Warn("failed to invalidate cached blog",
			"error", err,
			"blog_id", blog.ID)
	}
	return nil
}

// announce queues indexing and emits a blog notification.
func (s *BlogService) announce(ctx context.Context, blog *domain.Blog, eventType string) {
	s.reindex(ctx, blog)
	s.notify.emit(ctx, eventType, events.BlogRef{BlogID: blog.ID, AuthorID: blog.AuthorID})
}

func (s *BlogService) reindex(ctx context.Context, blog *domain.Blog) {
	s.notify.emit(ctx, events.TaskSearchIndex, events.BlogRef{BlogID: blog.ID, AuthorID: blog.AuthorID})
}
