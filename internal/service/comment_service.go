package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/domain"
	"github.com/phrazzld/quill-api/internal/events"
	"github.com/phrazzld/quill-api/internal/platform/logger"
	"github.com/phrazzld/quill-api/internal/store"
)

// CommentService manages comments on posts.
type CommentService struct {
	comments store.CommentStore
	blogs    store.BlogStore
	users    store.UserStore
	notify   notifier
	logger   *slog.Logger
	clock    clock
}

// NewCommentService creates a CommentService from d.
func NewCommentService(d Deps) (*CommentService, error) {
	if err := checkDeps(
		dep{"comments", d.Comments},
		dep{"blogs", d.Blogs},
		dep{"users", d.Users},
		dep{"emitter", d.Emitter},
	); err != nil {
		return nil, err
	}
	log := d.logger("comment_service")
	return &CommentService{
		comments: d.Comments,
		blogs:    d.Blogs,
		users:    d.Users,
		notify:   notifier{emitter: d.Emitter, logger: log},
		logger:   log,
	}, nil
}

// Create adds a comment to a post the actor can read and lets the author know.
func (s *CommentService) Create(ctx context.Context, actor Actor, blogID uuid.UUID, content string) (*domain.Comment, error) {
	if actor.IsAnonymous() {
		return nil, ErrForbidden
	}
	blog, err := readableBlog(ctx, s.blogs, actor, blogID)
	if err != nil {
		return nil, s.wrap("create", err)
	}

	comment, err := domain.NewComment(blogID, actor.UserID, content)
	if err != nil {
		return nil, err
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, s.wrap("create", err)
	}

	log := logger.FromContextOrDefault(ctx, s.logger)
	log.Info("comment created", "comment_id", comment.ID, "blog_id", blogID)

	s.notify.emit(ctx, events.CommentCreated, events.CommentRef{
		CommentID: comment.ID,
		BlogID:    blogID,
		UserID:    actor.UserID,
	})
	if !actor.Owns(blog.AuthorID) {
		s.notifyAuthor(ctx, blog, comment)
	}
	return comment, nil
}

func (s *CommentService) notifyAuthor(ctx context.Context, blog *domain.Blog, comment *domain.Comment) {
	log := logger.FromContextOrDefault(ctx, s.logger)
	author, err := s.users.GetByID(ctx, blog.AuthorID)
	if err != nil {
		log.Warn("failed to load blog author for comment email", "error", err, "blog_id", blog.ID)
		return
	}
	commenter := "Someone"
	if u, err := s.users.GetByID(ctx, comment.UserID); err == nil {
		commenter = u.Username
	}
	s.notify.email(ctx, author.Email, events.TemplateNewComment, map[string]string{
		"username":  author.Username,
		"title":     blog.Title,
		"commenter": commenter,
		"comment":   comment.Content,
	})
}

// List returns the comments on a post, oldest first.
func (s *CommentService) List(ctx context.Context, actor Actor, blogID uuid.UUID, page store.Page) ([]*domain.Comment, error) {
	if _, err := readableBlog(ctx, s.blogs, actor, blogID); err != nil {
		return nil, s.wrap("list", err)
	}
	comments, err := s.comments.ListByBlog(ctx, blogID, page.Normalize())
	if err != nil {
		return nil, NewServiceError("comment", "list", err)
	}
	return comments, nil
}

// Update edits the actor's own comment.
func (s *CommentService) Update(ctx context.Context, actor Actor, commentID uuid.UUID, content string) (*domain.Comment, error) {
	comment, err := s.comments.GetByID(ctx, commentID)
	if err != nil {
		return nil, s.wrap("update", err)
	}
	if !actor.Owns(comment.UserID) {
		return nil, ErrNotOwned
	}
	if err := comment.Edit(content, s.clock.now()); err != nil {
		return nil, err
	}
	if err := s.comments.Update(ctx, comment); err != nil {
		return nil, s.wrap("update", err)
	}
	return comment, nil
}

// Delete removes a comment. Authors and admins may delete.
func (s *CommentService) Delete(ctx context.Context, actor Actor, commentID uuid.UUID) error {
	comment, err := s.comments.GetByID(ctx, commentID)
	if err != nil {
		return s.wrap("delete", err)
	}
	if !actor.Owns(comment.UserID) && !actor.IsAdmin() {
		return ErrNotOwned
	}
	if err := s.comments.Delete(ctx, commentID); err != nil {
		return s.wrap("delete", err)
	}
	logger.FromContextOrDefault(ctx, s.logger).Info("comment deleted",
		"comment_id", commentID,
		"actor_id", actor.UserID)
	return nil
}

func (s *CommentService) wrap(op string, err error) error {
	if store.IsNotFoundError(err) {
		return err
	}
	return NewServiceError("comment", op, err)
}
