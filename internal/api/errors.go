package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/quill-api/internal/api/shared"
	"github.com/phrazzld/quill-api/internal/domain"
	"github.com/phrazzld/quill-api/internal/platform/storage"
	"github.com/phrazzld/quill-api/internal/service"
	"github.com/phrazzld/quill-api/internal/service/auth"
	"github.com/phrazzld/quill-api/internal/store"
)

// AppError is an error with the HTTP status and client-safe message it
// should produce. Handlers return it when they already know the response.
type AppError struct {
	Status  int
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%d %s", e.Status, e.Message)
	}
	return fmt.Sprintf("%d %s: %v", e.Status, e.Message, e.Err)
}

// Unwrap returns the underlying cause.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates an AppError. err may be nil.
func NewAppError(status int, message string, err error) *AppError {
	return &AppError{Status: status, Message: message, Err: err}
}

// ErrUnauthenticated is returned when a route needs a signed-in user.
var ErrUnauthenticated = NewAppError(http.StatusUnauthorized, "Authentication required", nil)

// HandleAPIError writes the error response for err. AppErrors are written as
// they are, known errors are mapped by MapErrorToStatusCode and everything else
// is a 500. fallback replaces the generic 500 message when non-empty.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		shared.RespondWithErrorAndLog(w, r, appErr.Status, appErr.Message, err)
		return
	}

	status := MapErrorToStatusCode(err)
	message := GetSafeErrorMessage(err)
	if status == http.StatusInternalServerError && fallback != "" {
		message = fallback
	}

	var opts []shared.ResponseOption
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		opts = append(opts, shared.WithElevatedLogLevel())
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err, opts...)
}

// MapErrorToStatusCode maps internal errors to HTTP status codes without
// leaking their types or messages to clients.
func MapErrorToStatusCode(err error) int {
	if err == nil {
		return http.StatusInternalServerError
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	if isBadRequest(err) {
		return http.StatusBadRequest
	}

	switch {
	// Authentication errors
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrInvalidRefreshToken),
		errors.Is(err, auth.ErrExpiredRefreshToken),
		errors.Is(err, auth.ErrWrongTokenType),
		errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized

	case errors.Is(err, auth.ErrInvalidResetToken):
		return http.StatusBadRequest

	// Authorization errors
	case errors.Is(err, service.ErrNotOwned),
		errors.Is(err, service.ErrForbidden),
		errors.Is(err, service.ErrAccountSuspended),
		errors.Is(err, service.ErrOwnBlog),
		errors.Is(err, service.ErrSelfModeration):
		return http.StatusForbidden

	case store.IsNotFoundError(err):
		return http.StatusNotFound

	// Conflict errors
	case store.IsDuplicateError(err),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrReportClosed),
		errors.Is(err, service.ErrBlogNotPublished):
		return http.StatusConflict

	// Uploads
	case errors.Is(err, storage.ErrUnsupportedImage):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, storage.ErrUploadsDisabled):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

func isBadRequest(err error) bool {
	if _, ok := domain.IsValidationError(err); ok {
		return true
	}
	var validationErrs validator.ValidationErrors
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &validationErrs) ||
		errors.As(err, &syntaxErr) ||
		errors.As(err, &typeErr) ||
		errors.Is(err, shared.ErrEmptyBody) ||
		errors.Is(err, service.ErrEmptyQuery) ||
		errors.Is(err, service.ErrScheduleConflict) ||
		errors.Is(err, storage.ErrEmptyUpload) ||
		strings.HasPrefix(err.Error(), "json: unknown field")
}

// GetSafeErrorMessage returns a client-safe message for err.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	if msg, ok := domain.IsValidationError(err); ok {
		return msg
	}
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		return SanitizeValidationError(err)
	}

	switch {
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrWrongTokenType):
		return "Invalid token"
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token expired"
	case errors.Is(err, auth.ErrInvalidRefreshToken),
		errors.Is(err, auth.ErrExpiredRefreshToken):
		return "Invalid refresh token"
	case errors.Is(err, auth.ErrInvalidResetToken):
		return "Invalid or expired reset token"
	case errors.Is(err, service.ErrInvalidCredentials):
		return "Invalid email or password"

	case errors.Is(err, service.ErrAccountSuspended):
		return "Account is suspended"
	case errors.Is(err, service.ErrNotOwned):
		return "You do not own this resource"
	case errors.Is(err, service.ErrForbidden):
		return "Operation not permitted"
	case errors.Is(err, service.ErrOwnBlog):
		return "You cannot report your own blog"
	case errors.Is(err, service.ErrSelfModeration):
		return "You cannot moderate your own account"

	case errors.Is(err, store.ErrUserNotFound):
		return "User not found"
	case errors.Is(err, store.ErrBlogNotFound):
		return "Blog not found"
	case errors.Is(err, store.ErrCommentNotFound):
		return "Comment not found"
	case errors.Is(err, store.ErrReportNotFound):
		return "Report not found"
	case errors.Is(err, store.ErrTicketNotFound):
		return "Ticket not found"
	case store.IsNotFoundError(err):
		return "Resource not found"

	case errors.Is(err, store.ErrEmailExists):
		return "Email already exists"
	case errors.Is(err, store.ErrUsernameExists):
		return "Username already taken"
	case errors.Is(err, store.ErrDuplicateReport):
		return "You have already reported this blog"
	case errors.Is(err, domain.ErrInvalidTransition):
		return "Operation not allowed in the current state"
	case errors.Is(err, domain.ErrReportClosed):
		return "Report has already been handled"
	case errors.Is(err, service.ErrBlogNotPublished):
		return "Blog is not published"

	case errors.Is(err, service.ErrEmptyQuery):
		return "Search query cannot be empty"
	case errors.Is(err, service.ErrScheduleConflict):
		return "A blog cannot be published immediately and scheduled"
	case errors.Is(err, shared.ErrEmptyBody):
		return "Request body is required"
	case errors.Is(err, storage.ErrEmptyUpload):
		return "Upload is empty"
	case errors.Is(err, storage.ErrUnsupportedImage):
		return "Image must be jpeg, png, gif or webp"
	case errors.Is(err, storage.ErrUploadsDisabled):
		return "Image uploads are not available"
	}

	if isBadRequest(err) {
		return "Invalid request format"
	}
	return "An unexpected error occurred"
}

// SanitizeValidationError turns validator output into a short message that
// names the field and the failed rule.
func SanitizeValidationError(err error) string {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) || len(validationErrs) == 0 {
		return "Validation error"
	}
	fe := validationErrs[0]
	return fmt.Sprintf("Invalid %s: %s", fe.Field(), getValidationTagMessage(fe.Tag()))
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "email":
		return "invalid email format"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "oneof":
		return "invalid value"
	case "url":
		return "invalid URL"
	default:
		return "validation failed"
	}
}
