package domain

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// TicketCategory groups support tickets.
type TicketCategory string

// Supported ticket categories.
const (
	TicketCategoryAccount   TicketCategory = "account"
	TicketCategoryContent   TicketCategory = "content"
	TicketCategoryTechnical TicketCategory = "technical"
	TicketCategoryOther     TicketCategory = "other"
)

// Valid reports whether c is a known category.
func (c TicketCategory) Valid() bool {
	switch c {
	case TicketCategoryAccount, TicketCategoryContent, TicketCategoryTechnical, TicketCategoryOther:
		return true
	}
	return false
}

// TicketStatus is the lifecycle state of a support ticket.
type TicketStatus string

// Possible ticket status values
const (
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusResolved   TicketStatus = "resolved"
	TicketStatusClosed     TicketStatus = "closed"
)

// Valid reports whether s is a known ticket status.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusResolved, TicketStatusClosed:
		return true
	}
	return false
}

// Ticket field limits.
const (
	MaxSubjectLength     = 200
	MaxDescriptionLength = 5000
)

// Ticket validation errors
var (
	ErrEmptySubject          = errors.New("subject cannot be empty")
	ErrSubjectTooLong        = errors.New("subject must be at most 200 characters long")
	ErrEmptyDescription      = errors.New("description cannot be empty")
	ErrDescriptionTooLong    = errors.New("description must be at most 5000 characters long")
	ErrInvalidTicketCategory = errors.New("invalid ticket category")
	ErrInvalidTicketStatus   = errors.New("invalid ticket status")
)

// SupportTicket is a help request filed by a user and answered by an admin.
type SupportTicket struct {
	ID            uuid.UUID      `json:"id"`
	UserID        uuid.UUID      `json:"user_id"`
	Subject       string         `json:"subject"`
	Description   string         `json:"description"`
	Category      TicketCategory `json:"category"`
	Status        TicketStatus   `json:"status"`
	AdminResponse string         `json:"admin_response,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// NewSupportTicket creates an open ticket.
func NewSupportTicket(userID uuid.UUID, subject, description string, category TicketCategory) (*SupportTicket, error) {
	now := time.Now().UTC()
	t := &SupportTicket{
		ID:          uuid.New(),
		UserID:      userID,
		Subject:     strings.TrimSpace(subject),
		Description: strings.TrimSpace(description),
		Category:    category,
		Status:      TicketStatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks if the SupportTicket has valid data.
func (t *SupportTicket) Validate() error {
	if t.UserID == uuid.Nil {
		return ErrEmptyUserID
	}
	if t.Subject == "" {
		return ErrEmptySubject
	}
	if utf8.RuneCountInString(t.Subject) > MaxSubjectLength {
		return ErrSubjectTooLong
	}
	if t.Description == "" {
		return ErrEmptyDescription
	}
	if utf8.RuneCountInString(t.Description) > MaxDescriptionLength {
		return ErrDescriptionTooLong
	}
	if !t.Category.Valid() {
		return ErrInvalidTicketCategory
	}
	if !t.Status.Valid() {
		return ErrInvalidTicketStatus
	}
	return nil
}
