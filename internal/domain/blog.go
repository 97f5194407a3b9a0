package domain

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// PublishStatus is the visibility state of a blog post.
type PublishStatus string

// Possible publish status values
const (
	PublishStatusDraft       PublishStatus = "draft"
	PublishStatusPublished   PublishStatus = "published"
	PublishStatusUnderReview PublishStatus = "under_review"
)

// Valid reports whether s is a known publish status.
func (s PublishStatus) Valid() bool {
	switch s {
	case PublishStatusDraft, PublishStatusPublished, PublishStatusUnderReview:
		return true
	}
	return false
}

// ScheduleStatus tracks a post that should go live at a future time.
type ScheduleStatus string

// Possible schedule status values
const (
	ScheduleStatusNone      ScheduleStatus = "none"
	ScheduleStatusScheduled ScheduleStatus = "scheduled"
	ScheduleStatusQueued    ScheduleStatus = "queued"
	ScheduleStatusPublished ScheduleStatus = "published"
	ScheduleStatusFailed    ScheduleStatus = "failed"
)

// Valid reports whether s is a known schedule status.
func (s ScheduleStatus) Valid() bool {
	switch s {
	case ScheduleStatusNone, ScheduleStatusScheduled, ScheduleStatusQueued,
		ScheduleStatusPublished, ScheduleStatusFailed:
		return true
	}
	return false
}

// DeletionStatus tracks asynchronous removal of a post.
type DeletionStatus string

// Possible deletion status values
const (
	DeletionStatusNone    DeletionStatus = "none"
	DeletionStatusPending DeletionStatus = "pending"
	DeletionStatusFailed  DeletionStatus = "failed"
)

// Blog field limits.
const (
	MaxTitleLength = 200
	MaxTags        = 10
	MaxTagLength   = 32
)

// Blog validation errors
var (
	ErrEmptyBlogID       = errors.New("blog ID cannot be empty")
	ErrEmptyAuthorID     = errors.New("blog author ID cannot be empty")
	ErrEmptyTitle        = errors.New("title cannot be empty")
	ErrTitleTooLong      = errors.New("title must be at most 200 characters long")
	ErrEmptyBlogContent  = errors.New("blog content cannot be empty")
	ErrTooManyTags       = errors.New("a blog can have at most 10 tags")
	ErrInvalidTag        = errors.New("tags must be 1-32 characters long")
	ErrInvalidPublish    = errors.New("invalid publish status")
	ErrInvalidSchedule   = errors.New("invalid schedule status")
	ErrScheduleInPast    = errors.New("scheduled time must be in the future")
	ErrEmptyUnpublishWhy = errors.New("unpublish reason cannot be empty")
)

// Blog is a post written by a user.
type Blog struct {
	ID              uuid.UUID      `json:"id"`
	AuthorID        uuid.UUID      `json:"author_id"`
	Title           string         `json:"title"`
	Content         string         `json:"content"`
	Tags            []string       `json:"tags"`
	ImageURL        string         `json:"image_url,omitempty"`
	Status          PublishStatus  `json:"status"`
	ScheduleStatus  ScheduleStatus `json:"schedule_status"`
	ScheduledAt     *time.Time     `json:"scheduled_at,omitempty"`
	PublishedAt     *time.Time     `json:"published_at,omitempty"`
	DeletionStatus  DeletionStatus `json:"-"`
	DeletionError   string         `json:"-"`
	UnpublishReason string         `json:"unpublish_reason,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// NewBlog creates a draft post. Tags are normalized.
func NewBlog(authorID uuid.UUID, title, content string, tags []string) (*Blog, error) {
	normalized, err := NormalizeTags(tags)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	blog := &Blog{
		ID:             uuid.New(),
		AuthorID:       authorID,
		Title:          strings.TrimSpace(title),
		Content:        content,
		Tags:           normalized,
		Status:         PublishStatusDraft,
		ScheduleStatus: ScheduleStatusNone,
		DeletionStatus: DeletionStatusNone,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := blog.Validate(); err != nil {
		return nil, err
	}
	return blog, nil
}

// Validate checks if the Blog has valid data.
func (b *Blog) Validate() error {
	if b.ID == uuid.Nil {
		return ErrEmptyBlogID
	}
	if b.AuthorID == uuid.Nil {
		return ErrEmptyAuthorID
	}
	if strings.TrimSpace(b.Title) == "" {
		return ErrEmptyTitle
	}
	if utf8.RuneCountInString(b.Title) > MaxTitleLength {
		return ErrTitleTooLong
	}
	if strings.TrimSpace(b.Content) == "" {
		return ErrEmptyBlogContent
	}
	if len(b.Tags) > MaxTags {
		return ErrTooManyTags
	}
	for _, tag := range b.Tags {
		if tag == "" || utf8.RuneCountInString(tag) > MaxTagLength {
			return ErrInvalidTag
		}
	}
	if !b.Status.Valid() {
		return ErrInvalidPublish
	}
	if !b.ScheduleStatus.Valid() {
		return ErrInvalidSchedule
	}
	return nil
}

// NormalizeTags trims, lower-cases and de-duplicates tags, keeping first-seen order.
// Empty entries are dropped.
func NormalizeTags(tags []string) ([]string, error) {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, raw := range tags {
		tag := strings.ToLower(strings.TrimSpace(raw))
		if tag == "" {
			continue
		}
		if utf8.RuneCountInString(tag) > MaxTagLength {
			return nil, ErrInvalidTag
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	if len(out) > MaxTags {
		return nil, ErrTooManyTags
	}
	return out, nil
}

// IsDeleted reports whether the post is being (or failed to be) removed.
func (b *Blog) IsDeleted() bool {
	return b.DeletionStatus != "" && b.DeletionStatus != DeletionStatusNone
}

// IsPublished reports whether the post is publicly visible.
func (b *Blog) IsPublished() bool {
	return b.Status == PublishStatusPublished && !b.IsDeleted()
}

// VisibleTo reports whether viewerID may read the post. A nil viewer is anonymous.
func (b *Blog) VisibleTo(viewerID uuid.UUID, isAdmin bool) bool {
	if b.IsDeleted() {
		return false
	}
	if b.Status == PublishStatusPublished {
		return true
	}
	return isAdmin || (viewerID != uuid.Nil && viewerID == b.AuthorID)
}

// Publish makes a draft public immediately.
func (b *Blog) Publish(now time.Time) error {
	if b.Status != PublishStatusDraft {
		return ErrInvalidTransition
	}
	b.Status = PublishStatusPublished
	if b.PublishedAt == nil {
		t := now.UTC()
		b.PublishedAt = &t
	}
	if b.ScheduleStatus != ScheduleStatusNone {
		b.ScheduleStatus = ScheduleStatusPublished
	}
	b.UpdatedAt = now.UTC()
	return nil
}

// Schedule arranges for a draft to be published at the given time.
func (b *Blog) Schedule(at, now time.Time) error {
	if b.Status != PublishStatusDraft {
		return ErrInvalidTransition
	}
	if !at.After(now) {
		return ErrScheduleInPast
	}
	t := at.UTC()
	b.ScheduledAt = &t
	b.ScheduleStatus = ScheduleStatusScheduled
	b.UpdatedAt = now.UTC()
	return nil
}

// CanPublishScheduled reports whether a scheduled publication should still happen.
func (b *Blog) CanPublishScheduled() bool {
	if b.IsDeleted() || b.Status != PublishStatusDraft {
		return false
	}
	return b.ScheduleStatus == ScheduleStatusScheduled || b.ScheduleStatus == ScheduleStatusQueued
}

// Unpublish moves a published post into the review queue.
func (b *Blog) Unpublish(reason string, now time.Time) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ErrEmptyUnpublishWhy
	}
	if b.Status != PublishStatusPublished {
		return ErrInvalidTransition
	}
	b.Status = PublishStatusUnderReview
	b.UnpublishReason = reason
	b.UpdatedAt = now.UTC()
	return nil
}

// Republish restores a post from the review queue.
func (b *Blog) Republish(now time.Time) error {
	if b.Status != PublishStatusUnderReview {
		return ErrInvalidTransition
	}
	b.Status = PublishStatusPublished
	b.UnpublishReason = ""
	b.UpdatedAt = now.UTC()
	return nil
}
