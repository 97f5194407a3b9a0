package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/domain"
	"github.com/phrazzld/quill-api/internal/events"
	"github.com/phrazzld/quill-api/internal/platform/logger"
	"github.com/phrazzld/quill-api/internal/platform/rediscache"
	"github.com/phrazzld/quill-api/internal/platform/search"
	"github.com/phrazzld/quill-api/internal/platform/storage"
	"github.com/phrazzld/quill-api/internal/service/auth"
	"github.com/phrazzld/quill-api/internal/store"
)

// Stores groups the persistence dependencies shared by the services.
type Stores struct {
	DB           store.TxBeginner
	Users        store.UserStore
	Blogs        store.BlogStore
	Comments     store.CommentStore
	Interactions store.InteractionStore
	Reports      store.ReportStore
	Tickets      store.TicketStore
}

// Deps holds everything a service may need. Each constructor checks the
// fields it uses. Cache and Uploader are optional.
type Deps struct {
	Stores
	Emitter   events.EventEmitter
	Cache     rediscache.BlogCache
	Index     search.Index
	Uploader  storage.Uploader
	Hasher    auth.PasswordHasher
	Tokens    auth.JWTService
	PublicURL string
	Logger    *slog.Logger
}

// dep names a constructor dependency for checkDeps.
type dep struct {
	name  string
	value any
}

// checkDeps returns a validation error naming the first nil dependency.
func checkDeps(deps ...dep) error {
	for _, d := range deps {
		if d.value == nil {
			return domain.NewValidationError(d.name, "cannot be nil", domain.ErrValidation)
		}
	}
	return nil
}

func (d Deps) logger(component string) *slog.Logger {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	return log.With(slog.String("component", component))
}

func (d Deps) cache() rediscache.BlogCache {
	if d.Cache == nil {
		return rediscache.NoopBlogCache{}
	}
	return d.Cache
}

func (d Deps) uploader() storage.Uploader {
	if d.Uploader == nil {
		return storage.DisabledUploader{}
	}
	return d.Uploader
}

// blogPurger removes posts with their comments, interactions and reports.
type blogPurger struct {
	db           store.TxBeginner
	blogs        store.BlogStore
	comments     store.CommentStore
	interactions store.InteractionStore
	reports      store.ReportStore
	cache        rediscache.BlogCache
	index        search.Index
	logger       *slog.Logger
}

func newBlogPurger(d Deps, log *slog.Logger) (*blogPurger, error) {
	if err := checkDeps(
		dep{"db", d.DB},
		dep{"blogs", d.Blogs},
		dep{"comments", d.Comments},
		dep{"interactions", d.Interactions},
		dep{"reports", d.Reports},
		dep{"index", d.Index},
	); err != nil {
		return nil, err
	}
	return &blogPurger{
		db:           d.DB,
		blogs:        d.Blogs,
		comments:     d.Comments,
		interactions: d.Interactions,
		reports:      d.Reports,
		cache:        d.cache(),
		index:        d.Index,
		logger:       log,
	}, nil
}

// purgeTx deletes one post and its dependents inside tx. A post that is
// already gone is not an error.
func (p *blogPurger) purgeTx(ctx context.Context, tx *sql.Tx, blogID uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, p.logger).With("blog_id", blogID)

	interactions, err := p.interactions.WithTx(tx).DeleteByBlog(ctx, blogID)
	if err != nil {
		return fmt.Errorf("delete interactions: %w", err)
	}
	comments, err := p.comments.WithTx(tx).DeleteByBlog(ctx, blogID)
	if err != nil {
		return fmt.Errorf("delete comments: %w", err)
	}
	reports, err := p.reports.WithTx(tx).DeleteByBlog(ctx, blogID)
	if err != nil {
		return fmt.Errorf("delete reports: %w", err)
	}
	if err := p.blogs.WithTx(tx).Delete(ctx, blogID); err != nil {
		if !errors.Is(err, store.ErrBlogNotFound) {
			return fmt.Errorf("delete blog: %w", err)
		}
		log.Debug("blog already deleted")
	}

	log.Debug("blog purged",
		"interactions", interactions,
		"comments", comments,
		"reports", reports)
	return nil
}

// purge deletes one post and its dependents in a single transaction.
func (p *blogPurger) purge(ctx context.Context, blogID uuid.UUID) error {
	err := store.RunInTransaction(ctx, p.db, func(ctx context.Context, tx *sql.Tx) error {
		return p.purgeTx(ctx, tx, blogID)
	})
	if err != nil {
		return err
	}
	p.forget(ctx, blogID)
	return nil
}

// forget drops purged posts from the cache and the search index.
func (p *blogPurger) forget(ctx context.Context, ids ...uuid.UUID) {
	log := logger.FromContextOrDefault(ctx, p.logger)
	for _, id := range ids {
		if err := p.cache.Invalidate(ctx, id); err != nil {
			log.Warn("failed to invalidate cached blog", "error", err, "blog_id", id)
		}
		if err := p.index.RemoveBlog(ctx, id); err != nil {
			log.Warn("failed to remove blog from search index", "error", err, "blog_id", id)
		}
	}
}

// clock is overridden in tests.
type clock func() time.Time

func (c clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}

// readableBlog loads a post the actor may see. Hidden posts are reported as
// not found.
func readableBlog(ctx context.Context, blogs store.BlogStore, actor Actor, id uuid.UUID) (*domain.Blog, error) {
	blog, err := blogs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !blog.VisibleTo(actor.UserID, actor.IsAdmin()) {
		return nil, store.ErrBlogNotFound
	}
	return blog, nil
}
