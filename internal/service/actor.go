package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/domain"
	"github.com/phrazzld/quill-api/internal/events"
	"github.com/phrazzld/quill-api/internal/platform/logger"
)

// Actor is the authenticated caller of a service operation.
// The zero Actor is an anonymous reader.
type Actor struct {
	UserID uuid.UUID
	Role   domain.Role
}

// IsAnonymous reports whether no user is signed in.
func (a Actor) IsAnonymous() bool {
	return a.UserID == uuid.Nil
}

// IsAdmin reports whether the caller has the admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == domain.RoleAdmin
}

// Owns reports whether the caller is ownerID.
func (a Actor) Owns(ownerID uuid.UUID) bool {
	return !a.IsAnonymous() && a.UserID == ownerID
}

// notifier emits follow-up events whose failure must not fail the request
// that caused them.
type notifier struct {
	emitter events.EventEmitter
	logger  *slog.Logger
}

// email queues an email.send task.
func (n notifier) email(ctx context.Context, to, template string, data map[string]string) {
	n.emit(ctx, events.TaskEmailSend, events.EmailRequest{To: to, Template: template, Data: data})
}

// emit logs and drops emission errors.
func (n notifier) emit(ctx context.Context, eventType string, payload interface{}) {
	if err := events.Emit(ctx, n.emitter, eventType, payload); err != nil {
		logger.FromContextOrDefault(ctx, n.logger).Warn("failed to emit event",
			"error", err,
			"event_type", eventType)
	}
}
