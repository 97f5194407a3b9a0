package task

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/events"
)

// TaskStatus represents the current state of a task
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Task type constants. They match the task request event types.
const (
	TypeEmailSend   = events.TaskEmailSend
	TypeBlogDelete  = events.TaskBlogDelete
	TypeBlogPublish = events.TaskBlogPublish
	TypeSearchIndex = events.TaskSearchIndex
)

// Task represents a unit of background work to be processed
type Task interface {
	// ID returns the task's unique identifier
	ID() uuid.UUID

	// Type returns the task type identifier
	Type() string

	// Payload returns the task data as a byte slice
	Payload() []byte

	// Status returns the current task status
	Status() TaskStatus

	// Execute runs the task logic
	Execute(ctx context.Context) error
}

// PermanentFailureHandler is implemented by tasks that need to record
// a terminal failure once every attempt has been used.
type PermanentFailureHandler interface {
	OnPermanentFailure(ctx context.Context, err error)
}

// TaskQueueReader provides read-only access to the task channel
type TaskQueueReader interface {
	// GetChannel returns a read-only channel for consuming tasks
	GetChannel() <-chan Task
}

// TaskQueueWriter provides write access to the task queue
type TaskQueueWriter interface {
	// Enqueue adds a task to the queue for processing
	// Returns an error if the queue is full or closed
	Enqueue(task Task) error

	// Close closes the task queue, preventing further task submission
	Close()
}

// TaskRecord is a persisted task row.
type TaskRecord struct {
	ID        uuid.UUID
	Type      string
	Payload   []byte
	Status    TaskStatus
	Attempts  int
	LastError string
	RunAfter  time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TaskStore defines the interface for persisting tasks
type TaskStore interface {
	// SaveTask persists a new task in the pending state
	SaveTask(ctx context.Context, task Task) error

	// UpdateTaskStatus updates the status of a task
	UpdateTaskStatus(ctx context.Context, taskID uuid.UUID, status TaskStatus, errorMsg string) error

	// MarkForRetry returns a task to pending with its attempt count,
	// last error and the earliest time it may run again
	MarkForRetry(ctx context.Context, taskID uuid.UUID, attempts int, errorMsg string, runAfter time.Time) error

	// MarkFailed moves a task to the terminal failed state
	MarkFailed(ctx context.Context, taskID uuid.UUID, attempts int, errorMsg string) error

	// GetPendingTasks retrieves all tasks with "pending" status
	GetPendingTasks(ctx context.Context) ([]TaskRecord, error)

	// GetProcessingTasks retrieves tasks with "processing" status.
	// If olderThan is non-zero, only tasks that have been processing
	// longer than olderThan are returned
	GetProcessingTasks(ctx context.Context, olderThan time.Duration) ([]TaskRecord, error)

	// WithTx returns a new TaskStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) TaskStore
}

// baseTask carries the identity fields shared by every concrete task.
type baseTask struct {
	id       uuid.UUID
	taskType string
	payload  []byte
	status   TaskStatus
}

func newBaseTask(taskType string, payload interface{}) (baseTask, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return baseTask{}, fmt.Errorf("failed to marshal %s payload: %w", taskType, err)
	}
	return baseTask{
		id:       uuid.New(),
		taskType: taskType,
		payload:  data,
		status:   TaskStatusPending,
	}, nil
}

// ID returns the task's unique identifier
func (t *baseTask) ID() uuid.UUID { return t.id }

// Type returns the task type identifier
func (t *baseTask) Type() string { return t.taskType }

// Payload returns the task data as a byte slice
func (t *baseTask) Payload() []byte { return t.payload }

// Status returns the current task status
func (t *baseTask) Status() TaskStatus { return t.status }

// trackedTask attaches the persisted identity and attempt count to a task
// while it moves through the runner.
type trackedTask struct {
	Task
	id       uuid.UUID
	attempts int
}

func (t *trackedTask) ID() uuid.UUID { return t.id }

func track(t Task) *trackedTask {
	if tt, ok := t.(*trackedTask); ok {
		return tt
	}
	return &trackedTask{Task: t, id: t.ID()}
}
