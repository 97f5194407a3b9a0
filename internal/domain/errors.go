// Package domain defines the core business entities and errors.
package domain

import (
	"errors"
	"fmt"
)

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidFormat is returned when data is not in the expected format.
	ErrInvalidFormat = errors.New("invalid format")

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = errors.New("invalid ID")

	// ErrEmptyContent is returned when required content is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrInvalidStatus is returned when a status enum value is unknown.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrInvalidTransition is returned when an entity cannot move between two states.
	ErrInvalidTransition = errors.New("invalid state transition")
)

// ValidationError describes a single invalid field. It wraps a sentinel so
// callers can still match with errors.Is.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

// Unwrap returns the wrapped sentinel.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Is reports ErrValidation for every ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError creates a ValidationError for field.
func NewValidationError(field, message string, err error) *ValidationError {
	return &ValidationError{Field: field, Message: message, Err: err}
}

// inputErrors are the sentinels caused by bad client input.
var inputErrors = []error{
	ErrInvalidFormat, ErrInvalidID, ErrEmptyContent, ErrInvalidStatus,
	ErrEmptyEmail, ErrInvalidEmail, ErrInvalidUsername, ErrEmptyPassword,
	ErrPasswordTooShort, ErrPasswordTooLong, ErrInvalidRole, ErrInvalidUserStatus, ErrBioTooLong,
	ErrEmptyTitle, ErrTitleTooLong, ErrEmptyBlogContent, ErrTooManyTags, ErrInvalidTag,
	ErrInvalidPublish, ErrInvalidSchedule, ErrScheduleInPast, ErrEmptyUnpublishWhy,
	ErrEmptyCommentContent, ErrCommentTooLong, ErrInvalidInteraction,
	ErrInvalidReportReason, ErrReportDetailsTooLong,
	ErrEmptySubject, ErrSubjectTooLong, ErrEmptyDescription, ErrDescriptionTooLong,
	ErrInvalidTicketCategory, ErrInvalidTicketStatus,
}

// IsValidationError reports whether err was caused by invalid input, and if
// so returns a message that is safe to show to the client.
func IsValidationError(err error) (string, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Error(), true
	}
	for _, target := range inputErrors {
		if errors.Is(err, target) {
			return target.Error(), true
		}
	}
	if errors.Is(err, ErrValidation) {
		return ErrValidation.Error(), true
	}
	return "", false
}
