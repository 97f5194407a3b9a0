package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Task request event types. Each names a background task type.
const (
	TaskEmailSend   = "email.send"
	TaskBlogDelete  = "blog.delete"
	TaskBlogPublish = "blog.publish"
	TaskSearchIndex = "search.index"
)

// Domain notification event types.
const (
	BlogPublished   = "blog.published"
	BlogUnpublished = "blog.unpublished"
	BlogRepublished = "blog.republished"
	CommentCreated  = "comment.created"
	TicketCreated   = "ticket.created"
)

// Event is a typed message with a JSON payload.
type Event struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Type selects the handler behavior (task type or notification name)
	Type string `json:"type"`

	// Payload contains the event-specific data serialized as JSON
	Payload json.RawMessage `json:"payload"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// UnmarshalPayload decodes the event payload into the provided structure.
func (e *Event) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// NewEvent creates a new Event with the specified type and payload.
func NewEvent(eventType string, payload interface{}) (*Event, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:        uuid.New(),
		Type:      eventType,
		Payload:   payloadBytes,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Email templates understood by the mailer.
const (
	TemplateWelcome         = "welcome"
	TemplatePasswordReset   = "password_reset"
	TemplateBlogPublished   = "blog_published"
	TemplateBlogUnpublished = "blog_unpublished"
	TemplateBlogRepublished = "blog_republished"
	TemplateNewComment      = "new_comment"
	TemplateTicketReceived  = "ticket_received"
	TemplateTicketUpdated   = "ticket_updated"
)

// EmailRequest is the payload of an email.send event.
type EmailRequest struct {
	To       string            `json:"to"`
	Template string            `json:"template"`
	Data     map[string]string `json:"data,omitempty"`
}

// BlogRef is the payload of blog task events and blog notifications.
type BlogRef struct {
	BlogID   uuid.UUID `json:"blog_id"`
	AuthorID uuid.UUID `json:"author_id"`
}

// CommentRef is the payload of comment.created.
type CommentRef struct {
	CommentID uuid.UUID `json:"comment_id"`
	BlogID    uuid.UUID `json:"blog_id"`
	UserID    uuid.UUID `json:"user_id"`
}

// TicketRef is the payload of ticket.created.
type TicketRef struct {
	TicketID uuid.UUID `json:"ticket_id"`
	UserID   uuid.UUID `json:"user_id"`
	Category string    `json:"category"`
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	HandleEvent(ctx context.Context, event *Event) error
}

// EventEmitter defines an interface for components that can emit events.
// This allows services to publish events without direct knowledge of handlers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	EmitEvent(ctx context.Context, event *Event) error
}

// Emit builds an event and emits it in one step.
func Emit(ctx context.Context, emitter EventEmitter, eventType string, payload interface{}) error {
	event, err := NewEvent(eventType, payload)
	if err != nil {
		return err
	}
	return emitter.EmitEvent(ctx, event)
}
