package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/phrazzld/quill-api/internal/events"
	"github.com/phrazzld/quill-api/internal/platform/logger"
)

// EmailSender renders a named template and delivers it.
type EmailSender interface {
	SendTemplate(ctx context.Context, to, template string, data map[string]string) error
}

// EmailTask sends one templated email.
type EmailTask struct {
	baseTask
	request events.EmailRequest
	sender  EmailSender
	logger  *slog.Logger
}

// NewEmailTask creates an email task for req.
func NewEmailTask(req events.EmailRequest, sender EmailSender, log *slog.Logger) (*EmailTask, error) {
	if sender == nil {
		return nil, fmt.Errorf("%w: email sender", ErrNilDependency)
	}
	if log == nil {
		return nil, ErrNilLogger
	}
	if req.To == "" {
		return nil, ErrEmptyRecipient
	}
	if req.Template == "" {
		return nil, ErrEmptyTemplate
	}

	base, err := newBaseTask(TypeEmailSend, req)
	if err != nil {
		return nil, err
	}
	return &EmailTask{
		baseTask: base,
		request:  req,
		sender:   sender,
		logger:   log.With("task_type", TypeEmailSend, "template", req.Template),
	}, nil
}

// Execute renders and sends the email. Errors are returned so the runner retries.
func (t *EmailTask) Execute(ctx context.Context) error {
	log := logger.FromContextOrDefault(ctx, t.logger)
	if err := t.sender.SendTemplate(ctx, t.request.To, t.request.Template, t.request.Data); err != nil {
		return fmt.Errorf("failed to send %s email: %w", t.request.Template, err)
	}
	log.Debug("email sent", "template", t.request.Template)
	return nil
}

// EmailTaskFactory rebuilds email tasks from their payload.
func EmailTaskFactory(sender EmailSender, log *slog.Logger) Factory {
	return func(payload []byte) (Task, error) {
		var req events.EmailRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return NewEmailTask(req, sender, log)
	}
}
