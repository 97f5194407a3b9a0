package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/domain"
	"github.com/phrazzld/quill-api/internal/events"
	"github.com/phrazzld/quill-api/internal/platform/logger"
	"github.com/phrazzld/quill-api/internal/platform/rediscache"
	"github.com/phrazzld/quill-api/internal/store"
)

// ModerationService handles content reports and the admin review queue.
type ModerationService struct {
	db      store.TxBeginner
	blogs   store.BlogStore
	reports store.ReportStore
	users   store.UserStore
	cache   rediscache.BlogCache
	notify  notifier
	logger  *slog.Logger
	clock   clock
}

// NewModerationService creates a ModerationService from d.
func NewModerationService(d Deps) (*ModerationService, error) {
	if err := checkDeps(
		dep{"db", d.DB},
		dep{"blogs", d.Blogs},
		dep{"reports", d.Reports},
		dep{"users", d.Users},
		dep{"emitter", d.Emitter},
	); err != nil {
		return nil, err
	}
	log := d.logger("moderation_service")
	return &ModerationService{
		db:      d.DB,
		blogs:   d.Blogs,
		reports: d.Reports,
		users:   d.Users,
		cache:   d.cache(),
		notify:  notifier{emitter: d.Emitter, logger: log},
		logger:  log,
	}, nil
}

// Report files a complaint about a published post. Each user may report a
// post once and never their own.
func (s *ModerationService) Report(
	ctx context.Context,
	actor Actor,
	blogID uuid.UUID,
	reason domain.ReportReason,
	details string,
) (*domain.ContentReport, error) {
	if actor.IsAnonymous() {
		return nil, ErrForbidden
	}
	blog, err := readableBlog(ctx, s.blogs, actor, blogID)
	if err != nil {
		return nil, s.wrap("report", err)
	}
	if !blog.IsPublished() {
		return nil, ErrBlogNotPublished
	}
	if actor.Owns(blog.AuthorID) {
		return nil, ErrOwnBlog
	}

	report, err := domain.NewContentReport(blogID, actor.UserID, reason, details)
	if err != nil {
		return nil, err
	}
	if err := s.reports.Create(ctx, report); err != nil {
		return nil, s.wrap("report", err)
	}

	logger.FromContextOrDefault(ctx, s.logger).Info("blog reported",
		"report_id", report.ID,
		"blog_id", blogID,
		"reason", reason)
	return report, nil
}

// ListReports returns reports, optionally only those with status. Admin only.
func (s *ModerationService) ListReports(
	ctx context.Context,
	actor Actor,
	status *domain.ReportStatus,
	page store.Page,
) ([]*domain.ContentReport, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	if status != nil && !status.Valid() {
		return nil, domain.ErrInvalidStatus
	}
	reports, err := s.reports.List(ctx, status, page.Normalize())
	if err != nil {
		return nil, NewServiceError("moderation", "list_reports", err)
	}
	return reports, nil
}

// ResolveReport closes a pending report as resolved or dismissed. Admin only.
func (s *ModerationService) ResolveReport(
	ctx context.Context,
	actor Actor,
	reportID uuid.UUID,
	status domain.ReportStatus,
) (*domain.ContentReport, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	report, err := s.reports.GetByID(ctx, reportID)
	if err != nil {
		return nil, s.wrap("resolve_report", err)
	}
	if err := report.Close(status, actor.UserID, s.clock.now()); err != nil {
		return nil, err
	}
	if err := s.reports.Update(ctx, report); err != nil {
		return nil, s.wrap("resolve_report", err)
	}

	logger.FromContextOrDefault(ctx, s.logger).Info("report closed",
		"report_id", reportID,
		"status", status,
		"admin_id", actor.UserID)
	return report, nil
}

// ReviewQueue lists unpublished posts awaiting review. Admin only.
func (s *ModerationService) ReviewQueue(ctx context.Context, actor Actor, page store.Page) ([]*domain.Blog, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	status := domain.PublishStatusUnderReview
	blogs, err := s.blogs.List(ctx, store.BlogFilter{Status: &status, Page: page.Normalize()})
	if err != nil {
		return nil, NewServiceError("moderation", "review_queue", err)
	}
	return blogs, nil
}

// Unpublish moves a published post into review and resolves its pending
// reports in the same transaction. Admin only.
func (s *ModerationService) Unpublish(ctx context.Context, actor Actor, blogID uuid.UUID, reason string) (*domain.Blog, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	blog, err := readableBlog(ctx, s.blogs, actor, blogID)
	if err != nil {
		return nil, s.wrap("unpublish", err)
	}

	now := s.clock.now()
	if err := blog.Unpublish(reason, now); err != nil {
		return nil, err
	}

	var resolved int64
	err = store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		if err := s.blogs.WithTx(tx).Update(ctx, blog); err != nil {
			return err
		}
		n, err := s.reports.WithTx(tx).ResolvePending(ctx, blogID, actor.UserID, now)
		resolved = n
		return err
	})
	if err != nil {
		return nil, s.wrap("unpublish", err)
	}

	logger.FromContextOrDefault(ctx, s.logger).Info("blog unpublished",
		"blog_id", blogID,
		"admin_id", actor.UserID,
		"reports_resolved", resolved)
	s.afterModeration(ctx, blog, events.BlogUnpublished, events.TemplateBlogUnpublished, map[string]string{
		"reason": blog.UnpublishReason,
	})
	return blog, nil
}

// Republish restores a post from review. Admin only.
func (s *ModerationService) Republish(ctx context.Context, actor Actor, blogID uuid.UUID) (*domain.Blog, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	blog, err := readableBlog(ctx, s.blogs, actor, blogID)
	if err != nil {
		return nil, s.wrap("republish", err)
	}
	if err := blog.Republish(s.clock.now()); err != nil {
		return nil, err
	}
	if err := s.blogs.Update(ctx, blog); err != nil {
		return nil, s.wrap("republish", err)
	}

	logger.FromContextOrDefault(ctx, s.logger).Info("blog republished",
		"blog_id", blogID,
		"admin_id", actor.UserID)
	s.afterModeration(ctx, blog, events.BlogRepublished, events.TemplateBlogRepublished, nil)
	return blog, nil
}

// afterModeration drops the cached copy, resyncs the index and tells the author.
func (s *ModerationService) afterModeration(
	ctx context.Context,
	blog *domain.Blog,
	eventType, template string,
	data map[string]string,
) {
	log := logger.FromContextOrDefault(ctx, s.logger).With("blog_id", blog.ID)
	if err := s.cache.Invalidate(ctx, blog.ID); err != nil {
		log.Warn("failed to invalidate cached blog", "error", err)
	}

	ref := events.BlogRef{BlogID: blog.ID, AuthorID: blog.AuthorID}
	s.notify.emit(ctx, events.TaskSearchIndex, ref)
	s.notify.emit(ctx, eventType, ref)

	author, err := s.users.GetByID(ctx, blog.AuthorID)
	if err != nil {
		log.Warn("failed to load author for moderation email", "error", err)
		return
	}
	if data == nil {
		data = map[string]string{}
	}
	data["username"] = author.Username
	data["title"] = blog.Title
	s.notify.email(ctx, author.Email, template, data)
}

func (s *ModerationService) wrap(op string, err error) error {
	if store.IsNotFoundError(err) || store.IsDuplicateError(err) || errors.Is(err, domain.ErrValidation) {
		return err
	}
	return NewServiceError("moderation", op, err)
}
