package domain

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxCommentLength is the longest comment accepted, in runes.
const MaxCommentLength = 2000

// Comment validation errors
var (
	ErrEmptyCommentID      = errors.New("comment ID cannot be empty")
	ErrEmptyCommentContent = errors.New("comment content cannot be empty")
	ErrCommentTooLong      = errors.New("comment must be at most 2000 characters long")
)

// Comment is a reader's reply on a blog post.
type Comment struct {
	ID        uuid.UUID `json:"id"`
	BlogID    uuid.UUID `json:"blog_id"`
	UserID    uuid.UUID `json:"user_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewComment creates a comment by userID on blogID.
func NewComment(blogID, userID uuid.UUID, content string) (*Comment, error) {
	now := time.Now().UTC()
	c := &Comment{
		ID:        uuid.New(),
		BlogID:    blogID,
		UserID:    userID,
		Content:   strings.TrimSpace(content),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks if the Comment has valid data.
func (c *Comment) Validate() error {
	if c.ID == uuid.Nil {
		return ErrEmptyCommentID
	}
	if c.BlogID == uuid.Nil {
		return ErrEmptyBlogID
	}
	if c.UserID == uuid.Nil {
		return ErrEmptyUserID
	}
	if strings.TrimSpace(c.Content) == "" {
		return ErrEmptyCommentContent
	}
	if utf8.RuneCountInString(c.Content) > MaxCommentLength {
		return ErrCommentTooLong
	}
	return nil
}

// Edit replaces the comment body.
func (c *Comment) Edit(content string, now time.Time) error {
	c.Content = strings.TrimSpace(content)
	c.UpdatedAt = now.UTC()
	return c.Validate()
}
