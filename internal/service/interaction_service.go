package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/domain"
	"github.com/phrazzld/quill-api/internal/store"
)

// InteractionService records likes and dislikes.
type InteractionService struct {
	interactions store.InteractionStore
	blogs        store.BlogStore
	logger       *slog.Logger
}

// NewInteractionService creates an InteractionService from d.
func NewInteractionService(d Deps) (*InteractionService, error) {
	if err := checkDeps(
		dep{"interactions", d.Interactions},
		dep{"blogs", d.Blogs},
	); err != nil {
		return nil, err
	}
	return &InteractionService{
		interactions: d.Interactions,
		blogs:        d.Blogs,
		logger:       d.logger("interaction_service"),
	}, nil
}

// Put sets the actor's reaction to a published post, replacing any previous one.
func (s *InteractionService) Put(
	ctx context.Context,
	actor Actor,
	blogID uuid.UUID,
	kind domain.InteractionType,
) (*domain.InteractionSummary, error) {
	if actor.IsAnonymous() {
		return nil, ErrForbidden
	}
	if err := s.requirePublished(ctx, actor, blogID); err != nil {
		return nil, err
	}

	existing, err := s.interactions.Get(ctx, blogID, actor.UserID)
	switch {
	case err == nil && existing.Type == kind:
		return s.Summary(ctx, actor, blogID)
	case err != nil && !errors.Is(err, store.ErrInteractionNotFound):
		return nil, NewServiceError("interaction", "put", err)
	}

	interaction, err := domain.NewInteraction(blogID, actor.UserID, kind)
	if err != nil {
		return nil, err
	}
	if err := s.interactions.Upsert(ctx, interaction); err != nil {
		return nil, NewServiceError("interaction", "put", err)
	}
	return s.Summary(ctx, actor, blogID)
}

// Remove clears the actor's reaction. Removing a missing reaction is not an error.
func (s *InteractionService) Remove(ctx context.Context, actor Actor, blogID uuid.UUID) (*domain.InteractionSummary, error) {
	if actor.IsAnonymous() {
		return nil, ErrForbidden
	}
	if _, err := readableBlog(ctx, s.blogs, actor, blogID); err != nil {
		return nil, s.wrap("remove", err)
	}
	if err := s.interactions.Delete(ctx, blogID, actor.UserID); err != nil &&
		!errors.Is(err, store.ErrInteractionNotFound) {
		return nil, NewServiceError("interaction", "remove", err)
	}
	return s.Summary(ctx, actor, blogID)
}

// Summary returns the like and dislike counts plus the actor's own reaction.
func (s *InteractionService) Summary(ctx context.Context, actor Actor, blogID uuid.UUID) (*domain.InteractionSummary, error) {
	if _, err := readableBlog(ctx, s.blogs, actor, blogID); err != nil {
		return nil, s.wrap("summary", err)
	}
	likes, dislikes, err := s.interactions.Counts(ctx, blogID)
	if err != nil {
		return nil, NewServiceError("interaction", "summary", err)
	}
	summary := &domain.InteractionSummary{BlogID: blogID, Likes: likes, Dislikes: dislikes}

	if !actor.IsAnonymous() {
		mine, err := s.interactions.Get(ctx, blogID, actor.UserID)
		switch {
		case err == nil:
			summary.Mine = &mine.Type
		case !errors.Is(err, store.ErrInteractionNotFound):
			return nil, NewServiceError("interaction", "summary", err)
		}
	}
	return summary, nil
}

func (s *InteractionService) requirePublished(ctx context.Context, actor Actor, blogID uuid.UUID) error {
	blog, err := readableBlog(ctx, s.blogs, actor, blogID)
	if err != nil {
		return s.wrap("put", err)
	}
	if !blog.IsPublished() {
		return ErrBlogNotPublished
	}
	return nil
}

func (s *InteractionService) wrap(op string, err error) error {
	if store.IsNotFoundError(err) {
		return err
	}
	return NewServiceError("interaction", op, err)
}
