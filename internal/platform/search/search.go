// Package search provides full-text search over published blog posts, backed
// by Elasticsearch or, when none is configured, by the blog store.
package search

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/domain"
	"github.com/phrazzld/quill-api/internal/store"
)

// Index keeps a searchable copy of published posts.
type Index interface {
	// IndexBlog adds or replaces the document for blog.
	IndexBlog(ctx context.Context, blog *domain.Blog) error

	// RemoveBlog drops the document for id. Missing documents are not an error.
	RemoveBlog(ctx context.Context, id uuid.UUID) error

	// Search returns published posts matching query, best match first.
	Search(ctx context.Context, query string, page store.Page) ([]*domain.Blog, error)
}

// StoreIndex searches through the blog store. Index maintenance is a no-op
// because the store is always current.
type StoreIndex struct {
	blogs store.BlogStore
}

var _ Index = (*StoreIndex)(nil)

// NewStoreIndex creates a StoreIndex.
func NewStoreIndex(blogs store.BlogStore) *StoreIndex {
	if blogs == nil {
		panic("blog store cannot be nil")
	}
	return &StoreIndex{blogs: blogs}
}

// IndexBlog does nothing.
func (s *StoreIndex) IndexBlog(context.Context, *domain.Blog) error { return nil }

// RemoveBlog does nothing.
func (s *StoreIndex) RemoveBlog(context.Context, uuid.UUID) error { return nil }

// Search delegates to the store's ILIKE search.
func (s *StoreIndex) Search(ctx context.Context, query string, page store.Page) ([]*domain.Blog, error) {
	return s.blogs.Search(ctx, query, page.Normalize())
}
