package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/domain"
	"github.com/phrazzld/quill-api/internal/platform/logger"
	"github.com/phrazzld/quill-api/internal/store"
)

const indexMapping = `{
	"mappings": {
		"properties": {
			"id":           {"type": "keyword"},
			"author_id":    {"type": "keyword"},
			"title":        {"type": "text"},
			"content":      {"type": "text"},
			"tags":         {"type": "keyword"},
			"image_url":    {"type": "keyword", "index": false},
			"published_at": {"type": "date"},
			"created_at":   {"type": "date"},
			"updated_at":   {"type": "date"}
		}
	}
}`

// document is the indexed form of a published post.
type document struct {
	ID          uuid.UUID  `json:"id"`
	AuthorID    uuid.UUID  `json:"author_id"`
	Title       string     `json:"title"`
	Content     string     `json:"content"`
	Tags        []string   `json:"tags"`
	ImageURL    string     `json:"image_url,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func toDocument(b *domain.Blog) document {
	return document{
		ID:          b.ID,
		AuthorID:    b.AuthorID,
		Title:       b.Title,
		Content:     b.Content,
		Tags:        b.Tags,
		ImageURL:    b.ImageURL,
		PublishedAt: b.PublishedAt,
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	}
}

func (d document) toBlog() *domain.Blog {
	return &domain.Blog{
		ID:             d.ID,
		AuthorID:       d.AuthorID,
		Title:          d.Title,
		Content:        d.Content,
		Tags:           d.Tags,
		ImageURL:       d.ImageURL,
		Status:         domain.PublishStatusPublished,
		ScheduleStatus: domain.ScheduleStatusNone,
		DeletionStatus: domain.DeletionStatusNone,
		PublishedAt:    d.PublishedAt,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source document `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// ElasticIndex stores published posts in an Elasticsearch index.
type ElasticIndex struct {
	client *elasticsearch.Client
	index  string
	logger *slog.Logger
}

var _ Index = (*ElasticIndex)(nil)

// NewClient creates an Elasticsearch client for url.
func NewClient(url string) (*elasticsearch.Client, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{url}})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return client, nil
}

// NewElasticIndex creates an ElasticIndex over the named index.
func NewElasticIndex(client *elasticsearch.Client, index string, log *slog.Logger) *ElasticIndex {
	if client == nil {
		panic("elasticsearch client cannot be nil")
	}
	return &ElasticIndex{
		client: client,
		index:  index,
		logger: log.With(slog.String("component", "elastic_index"), slog.String("index", index)),
	}
}

// EnsureIndex creates the index with its mapping unless it already exists.
func (e *ElasticIndex) EnsureIndex(ctx context.Context) error {
	req := esapi.IndicesCreateRequest{
		Index: e.index,
		Body:  strings.NewReader(indexMapping),
	}
	res, err := req.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body := readBody(res)
		if strings.Contains(body, "resource_already_exists_exception") {
			return nil
		}
		return fmt.Errorf("error creating index: %s: %s", res.Status(), body)
	}
	e.logger.Info("search index created")
	return nil
}

// IndexBlog writes blog as a document keyed by its ID.
func (e *ElasticIndex) IndexBlog(ctx context.Context, blog *domain.Blog) error {
	body, err := json.Marshal(toDocument(blog))
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      e.index,
		DocumentID: blog.ID.String(),
		Body:       bytes.NewReader(body),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("failed to index document: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error indexing document: %s: %s", res.Status(), readBody(res))
	}
	logger.FromContextOrDefault(ctx, e.logger).Debug("blog indexed", "blog_id", blog.ID)
	return nil
}

// RemoveBlog deletes the document for id.
func (e *ElasticIndex) RemoveBlog(ctx context.Context, id uuid.UUID) error {
	req := esapi.DeleteRequest{
		Index:      e.index,
		DocumentID: id.String(),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("error deleting document: %s: %s", res.Status(), readBody(res))
	}
	return nil
}

// Search runs a multi_match query over title, content and tags.
func (e *ElasticIndex) Search(ctx context.Context, query string, page store.Page) ([]*domain.Blog, error) {
	page = page.Normalize()
	q := map[string]any{
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":  query,
				"fields": []string{"title^2", "content", "tags"},
			},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(q); err != nil {
		return nil, fmt.Errorf("failed to encode query: %w", err)
	}

	res, err := e.client.Search(
		e.client.Search.WithContext(ctx),
		e.client.Search.WithIndex(e.index),
		e.client.Search.WithBody(&buf),
		e.client.Search.WithFrom(page.Offset),
		e.client.Search.WithSize(page.Limit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search error: %s: %s", res.Status(), readBody(res))
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}

	blogs := make([]*domain.Blog, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		blogs = append(blogs, hit.Source.toBlog())
	}
	return blogs, nil
}

func readBody(res *esapi.Response) string {
	b, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	return string(b)
}
