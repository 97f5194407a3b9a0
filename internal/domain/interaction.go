package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// InteractionType is a reader's reaction to a post.
type InteractionType string

// Supported reactions.
const (
	InteractionLike    InteractionType = "like"
	InteractionDislike InteractionType = "dislike"
)

// Valid reports whether t is a known reaction.
func (t InteractionType) Valid() bool {
	return t == InteractionLike || t == InteractionDislike
}

// ErrInvalidInteraction is returned for unknown reaction types.
var ErrInvalidInteraction = errors.New("interaction type must be like or dislike")

// Interaction records one user's reaction to one post.
type Interaction struct {
	ID        uuid.UUID       `json:"id"`
	BlogID    uuid.UUID       `json:"blog_id"`
	UserID    uuid.UUID       `json:"user_id"`
	Type      InteractionType `json:"type"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewInteraction creates a reaction by userID on blogID.
func NewInteraction(blogID, userID uuid.UUID, kind InteractionType) (*Interaction, error) {
	if !kind.Valid() {
		return nil, ErrInvalidInteraction
	}
	if blogID == uuid.Nil {
		return nil, ErrEmptyBlogID
	}
	if userID == uuid.Nil {
		return nil, ErrEmptyUserID
	}
	now := time.Now().UTC()
	return &Interaction{
		ID:        uuid.New(),
		BlogID:    blogID,
		UserID:    userID,
		Type:      kind,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// InteractionSummary aggregates reactions on a post.
type InteractionSummary struct {
	BlogID   uuid.UUID        `json:"blog_id"`
	Likes    int              `json:"likes"`
	Dislikes int              `json:"dislikes"`
	Mine     *InteractionType `json:"mine,omitempty"`
}
