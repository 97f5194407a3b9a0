package service

import (
	"errors"
	"fmt"
)

// Common service errors - sentinel errors used across service implementations.
// Callers check for them with errors.Is; the API layer maps them to HTTP status codes.
var (
	// ErrNotOwned indicates a resource is owned by a different user than the one making the request.
	// API layer should map this to HTTP 403 Forbidden.
	ErrNotOwned = errors.New("resource is owned by another user")

	// ErrForbidden indicates the caller lacks the role required for the operation.
	ErrForbidden = errors.New("operation not permitted")

	// ErrInvalidCredentials is returned for an unknown email or a wrong password.
	// The two cases are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrAccountSuspended is returned when a suspended user tries to log in.
	ErrAccountSuspended = errors.New("account is suspended")

	// ErrBlogNotPublished is returned for actions that need a public post.
	ErrBlogNotPublished = errors.New("blog is not published")

	// ErrOwnBlog is returned when users report their own post.
	ErrOwnBlog = errors.New("cannot report your own blog")

	// ErrEmptyQuery is returned for a blank search query.
	ErrEmptyQuery = errors.New("search query cannot be empty")

	// ErrScheduleConflict is returned when a post is both published and scheduled.
	ErrScheduleConflict = errors.New("a blog cannot be published immediately and scheduled")

	// ErrSelfModeration is returned when admins target their own account.
	ErrSelfModeration = errors.New("admins cannot change their own role or status")
)

// ServiceError adds the failing service and operation to an unexpected error.
type ServiceError struct {
	Service   string
	Operation string
	Err       error
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s service %s operation failed", e.Service, e.Operation)
	}
	return fmt.Sprintf("%s service %s operation failed: %v", e.Service, e.Operation, e.Err)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError creates a ServiceError.
func NewServiceError(service, operation string, err error) *ServiceError {
	return &ServiceError{Service: service, Operation: operation, Err: err}
}
