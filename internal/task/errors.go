package task

import "errors"

// Errors returned by task constructors and factories.
var (
	ErrNilLogger      = errors.New("logger cannot be nil")
	ErrNilDependency  = errors.New("task dependency cannot be nil")
	ErrEmptyBlogID    = errors.New("blog ID cannot be empty")
	ErrEmptyRecipient = errors.New("email recipient cannot be empty")
	ErrEmptyTemplate  = errors.New("email template cannot be empty")
	ErrInvalidPayload = errors.New("invalid task payload")
)
