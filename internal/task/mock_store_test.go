package task

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockTaskStore is an in-memory TaskStore for tests. Each method can be
// overridden through its Fn field; the defaults keep records in a map.
type MockTaskStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*TaskRecord

	SaveFn          func(ctx context.Context, task Task) error
	UpdateStatusFn  func(ctx context.Context, taskID uuid.UUID, status TaskStatus, errorMsg string) error
	MarkForRetryFn  func(ctx context.Context, taskID uuid.UUID, attempts int, errorMsg string, runAfter time.Time) error
	MarkFailedFn    func(ctx context.Context, taskID uuid.UUID, attempts int, errorMsg string) error
	GetPendingFn    func(ctx context.Context) ([]TaskRecord, error)
	GetProcessingFn func(ctx context.Context, olderThan time.Duration) ([]TaskRecord, error)
}

// NewMockTaskStore creates a MockTaskStore with map-backed defaults.
func NewMockTaskStore() *MockTaskStore {
	return &MockTaskStore{records: make(map[uuid.UUID]*TaskRecord)}
}

// Put stores rec directly, bypassing SaveTask.
func (s *MockTaskStore) Put(rec TaskRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := rec
	s.records[rec.ID] = &r
}

// Record returns a copy of the stored record for id.
func (s *MockTaskStore) Record(id uuid.UUID) (TaskRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return TaskRecord{}, false
	}
	return *rec, true
}

// SaveTask persists a new task in the pending state
func (s *MockTaskStore) SaveTask(ctx context.Context, task Task) error {
	if s.SaveFn != nil {
		return s.SaveFn(ctx, task)
	}
	now := time.Now()
	s.Put(TaskRecord{
		ID:        task.ID(),
		Type:      task.Type(),
		Payload:   task.Payload(),
		Status:    TaskStatusPending,
		RunAfter:  now,
		CreatedAt: now,
		UpdatedAt: now,
	})
	return nil
}

// UpdateTaskStatus updates the status of a task
func (s *MockTaskStore) UpdateTaskStatus(ctx context.Context, taskID uuid.UUID, status TaskStatus, errorMsg string) error {
	if s.UpdateStatusFn != nil {
		return s.UpdateStatusFn(ctx, taskID, status, errorMsg)
	}
	s.update(taskID, func(rec *TaskRecord) {
		rec.Status = status
		if errorMsg != "" {
			rec.LastError = errorMsg
		}
	})
	return nil
}

// MarkForRetry returns a task to pending
func (s *MockTaskStore) MarkForRetry(ctx context.Context, taskID uuid.UUID, attempts int, errorMsg string, runAfter time.Time) error {
	if s.MarkForRetryFn != nil {
		return s.MarkForRetryFn(ctx, taskID, attempts, errorMsg, runAfter)
	}
	s.update(taskID, func(rec *TaskRecord) {
		rec.Status = TaskStatusPending
		rec.Attempts = attempts
		rec.LastError = errorMsg
		rec.RunAfter = runAfter
	})
	return nil
}

// MarkFailed moves a task to failed
func (s *MockTaskStore) MarkFailed(ctx context.Context, taskID uuid.UUID, attempts int, errorMsg string) error {
	if s.MarkFailedFn != nil {
		return s.MarkFailedFn(ctx, taskID, attempts, errorMsg)
	}
	s.update(taskID, func(rec *TaskRecord) {
		rec.Status = TaskStatusFailed
		rec.Attempts = attempts
		rec.LastError = errorMsg
	})
	return nil
}

// GetPendingTasks retrieves all tasks with "pending" status
func (s *MockTaskStore) GetPendingTasks(ctx context.Context) ([]TaskRecord, error) {
	if s.GetPendingFn != nil {
		return s.GetPendingFn(ctx)
	}
	return s.byStatus(TaskStatusPending, 0), nil
}

// GetProcessingTasks retrieves tasks with "processing" status
func (s *MockTaskStore) GetProcessingTasks(ctx context.Context, olderThan time.Duration) ([]TaskRecord, error) {
	if s.GetProcessingFn != nil {
		return s.GetProcessingFn(ctx, olderThan)
	}
	return s.byStatus(TaskStatusProcessing, olderThan), nil
}

// WithTx returns the same store; the mock has no transactions.
func (s *MockTaskStore) WithTx(tx *sql.Tx) TaskStore {
	return s
}

func (s *MockTaskStore) update(id uuid.UUID, fn func(rec *TaskRecord)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[id]; ok {
		fn(rec)
		rec.UpdatedAt = time.Now()
	}
}

func (s *MockTaskStore) byStatus(status TaskStatus, olderThan time.Duration) []TaskRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	var out []TaskRecord
	for _, rec := range s.records {
		if rec.Status != status {
			continue
		}
		if olderThan > 0 && rec.UpdatedAt.After(cutoff) {
			continue
		}
		out = append(out, *rec)
	}
	return out
}

var _ TaskStore = (*MockTaskStore)(nil)
