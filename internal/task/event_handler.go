package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/quill-api/internal/events"
	"github.com/phrazzld/quill-api/internal/platform/logger"
)

// Submitter accepts tasks for background execution.
type Submitter interface {
	Submit(ctx context.Context, task Task) error
}

// TaskFactoryEventHandler turns task request events into submitted tasks.
// Events whose type has no registered factory are ignored.
type TaskFactoryEventHandler struct {
	registry  *Registry
	submitter Submitter
	logger    *slog.Logger
}

// NewTaskFactoryEventHandler creates a handler that builds tasks through
// registry and submits them to submitter.
func NewTaskFactoryEventHandler(registry *Registry, submitter Submitter, log *slog.Logger) *TaskFactoryEventHandler {
	return &TaskFactoryEventHandler{
		registry:  registry,
		submitter: submitter,
		logger:    log.With("component", "task_factory_event_handler"),
	}
}

// HandleEvent builds and submits the task named by event.Type.
func (h *TaskFactoryEventHandler) HandleEvent(ctx context.Context, event *events.Event) error {
	log := logger.FromContextOrDefault(ctx, h.logger).With("event_type", event.Type, "event_id", event.ID)

	if !h.registry.Has(event.Type) {
		log.Debug("ignoring event with no task factory")
		return nil
	}

	t, err := h.registry.Build(event.Type, event.Payload)
	if err != nil {
		log.Error("failed to create task", "error", err)
		return fmt.Errorf("failed to create task: %w", err)
	}

	if err := h.submitter.Submit(ctx, t); err != nil {
		log.Error("failed to submit task", "error", err, "task_id", t.ID())
		return fmt.Errorf("failed to submit task: %w", err)
	}

	log.Info("task created and submitted", "task_id", t.ID())
	return nil
}

var _ events.EventHandler = (*TaskFactoryEventHandler)(nil)
