package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/platform/logger"
)

// Task outcomes reported to an Observer.
const (
	OutcomeCompleted = "completed"
	OutcomeRetry     = "retry"
	OutcomeFailed    = "failed"
)

// TaskRunnerConfig holds configuration for the task runner
type TaskRunnerConfig struct {
	// WorkerCount determines how many concurrent workers process tasks
	WorkerCount int

	// QueueSize determines the buffer size for the in-memory task queue
	QueueSize int

	// StuckTaskAge defines how long a task can be in processing state
	// before it's considered stuck and reset
	StuckTaskAge time.Duration

	// StuckTaskCheckInterval defines how often to check for stuck tasks
	// If zero, defaults to 5 minutes
	StuckTaskCheckInterval time.Duration

	// MaxAttempts is the total number of executions allowed per task,
	// including the first one
	MaxAttempts int

	// RetryDelay is the fixed wait between a failed attempt and the next one
	RetryDelay time.Duration

	// TaskTimeout bounds a single execution
	TaskTimeout time.Duration
}

// DefaultTaskRunnerConfig returns a TaskRunnerConfig with reasonable defaults
func DefaultTaskRunnerConfig() TaskRunnerConfig {
	return TaskRunnerConfig{
		WorkerCount:            2,
		QueueSize:              100,
		StuckTaskAge:           30 * time.Minute,
		StuckTaskCheckInterval: 5 * time.Minute,
		MaxAttempts:            3,
		RetryDelay:             5 * time.Second,
		TaskTimeout:            2 * time.Minute,
	}
}

// Observer receives one call per finished execution.
type Observer interface {
	TaskFinished(taskType, outcome string, duration time.Duration)
}

// TaskRunner persists, queues and executes tasks with fixed-delay retries.
type TaskRunner struct {
	store      TaskStore
	registry   *Registry
	queue      *TaskQueue
	pool       *WorkerPool
	config     TaskRunnerConfig
	logger     *slog.Logger
	errHandler func(task Task, err error)
	observer   Observer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	timersMu sync.Mutex
	timers   map[uuid.UUID]*time.Timer

	now func() time.Time
}

// NewTaskRunner creates a new TaskRunner. The registry is used to rebuild
// persisted tasks on Start and by the stuck task monitor.
func NewTaskRunner(store TaskStore, registry *Registry, config TaskRunnerConfig, logger *slog.Logger) *TaskRunner {
	if logger == nil {
		panic("logger cannot be nil")
	}
	if config.StuckTaskCheckInterval == 0 {
		config.StuckTaskCheckInterval = 5 * time.Minute
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	if config.TaskTimeout <= 0 {
		config.TaskTimeout = 2 * time.Minute
	}
	if registry == nil {
		registry = NewRegistry()
	}

	log := logger.With("component", "task_runner")
	queue := NewTaskQueue(config.QueueSize, log)
	ctx, cancel := context.WithCancel(context.Background())

	r := &TaskRunner{
		store:    store,
		registry: registry,
		queue:    queue,
		pool:     NewWorkerPool(queue, WorkerPoolConfig{WorkerCount: config.WorkerCount}, log),
		config:   config,
		logger:   log,
		ctx:      ctx,
		cancel:   cancel,
		timers:   make(map[uuid.UUID]*time.Timer),
		now:      time.Now,
		errHandler: func(task Task, err error) {
			log.Error("task failed permanently",
				"task_id", task.ID(),
				"task_type", task.Type(),
				"error", err)
		},
	}
	r.pool.SetHandler(r.processTask)
	return r
}

// SetErrorHandler sets the function called when a task fails permanently.
func (r *TaskRunner) SetErrorHandler(handler func(task Task, err error)) {
	r.errHandler = handler
}

// SetObserver registers an execution observer (metrics).
func (r *TaskRunner) SetObserver(o Observer) {
	r.observer = o
}

// Registry returns the runner's task registry.
func (r *TaskRunner) Registry() *Registry {
	return r.registry
}

// Submit persists task as pending and queues it. If the queue is full the
// persisted row is marked failed and an error wrapping ErrQueueFull is returned.
func (r *TaskRunner) Submit(ctx context.Context, task Task) error {
	log := logger.FromContextOrDefault(ctx, r.logger)

	if err := r.store.SaveTask(ctx, task); err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}

	if err := r.queue.Enqueue(track(task)); err != nil {
		log.Error("failed to queue submitted task",
			"task_id", task.ID(),
			"task_type", task.Type(),
			"error", err)
		if markErr := r.store.MarkFailed(ctx, task.ID(), 0, err.Error()); markErr != nil {
			log.Error("failed to mark unqueued task as failed",
				"task_id", task.ID(),
				"error", markErr)
		}
		return err
	}

	log.Debug("task submitted", "task_id", task.ID(), "task_type", task.Type())
	return nil
}

// Start recovers unfinished tasks and begins processing.
func (r *TaskRunner) Start() error {
	if err := r.Recover(r.ctx); err != nil {
		return fmt.Errorf("failed to recover tasks: %w", err)
	}

	r.pool.Start()

	r.wg.Add(1)
	go r.stuckTaskMonitor()

	r.logger.Info("task runner started",
		"worker_count", r.config.WorkerCount,
		"max_attempts", r.config.MaxAttempts,
		"retry_delay", r.config.RetryDelay.String(),
		"task_types", r.registry.Types())
	return nil
}

// Stop cancels pending retries, waits for running tasks and closes the queue.
// Tasks interrupted here stay persisted and are recovered on the next Start.
func (r *TaskRunner) Stop() {
	r.cancel()

	r.timersMu.Lock()
	for id, timer := range r.timers {
		timer.Stop()
		delete(r.timers, id)
	}
	r.timersMu.Unlock()

	r.pool.Stop()
	r.wg.Wait()
	r.queue.Close()
	r.logger.Info("task runner stopped")
}

// Recover requeues pending tasks (honouring their run_after time) and resets
// tasks left in processing by a previous run.
func (r *TaskRunner) Recover(ctx context.Context) error {
	pending, err := r.store.GetPendingTasks(ctx)
	if err != nil {
		return fmt.Errorf("failed to get pending tasks: %w", err)
	}

	processing, err := r.store.GetProcessingTasks(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to get processing tasks: %w", err)
	}

	r.logger.Info("recovering unfinished tasks",
		"pending_count", len(pending),
		"processing_count", len(processing))

	r.requeue(ctx, pending, false)
	r.requeue(ctx, processing, true)
	return nil
}

// requeue rebuilds records through the registry and queues them.
// Records still in processing are reset to pending first.
func (r *TaskRunner) requeue(ctx context.Context, records []TaskRecord, reset bool) {
	for _, rec := range records {
		log := r.logger.With("task_id", rec.ID, "task_type", rec.Type)

		t, err := r.registry.Build(rec.Type, rec.Payload)
		if err != nil {
			log.Error("cannot rebuild persisted task", "error", err)
			if markErr := r.store.MarkFailed(ctx, rec.ID, rec.Attempts, err.Error()); markErr != nil {
				log.Error("failed to mark unrecoverable task as failed", "error", markErr)
			}
			continue
		}

		if reset {
			if err := r.store.UpdateTaskStatus(ctx, rec.ID, TaskStatusPending, "reset after interrupted processing"); err != nil {
				log.Error("failed to reset processing task status", "error", err)
				continue
			}
		}

		tt := &trackedTask{Task: t, id: rec.ID, attempts: rec.Attempts}
		if delay := rec.RunAfter.Sub(r.now()); delay > 0 {
			r.scheduleRetry(tt, delay)
			continue
		}
		if err := r.queue.Enqueue(tt); err != nil {
			if errors.Is(err, ErrQueueClosed) {
				continue
			}
			log.Warn("queue full, delaying requeue", "error", err)
			r.scheduleRetry(tt, r.storeRetryDelay())
		}
	}
}

// processTask runs on a worker goroutine.
func (r *TaskRunner) processTask(ctx context.Context, task Task) error {
	tt := track(task)
	log := r.logger.With(
		"task_id", tt.ID(),
		"task_type", tt.Type(),
		"attempt", tt.attempts+1,
	)

	if err := r.store.UpdateTaskStatus(ctx, tt.ID(), TaskStatusProcessing, ""); err != nil {
		// Not an attempt: the row is still pending, so try again later
		log.Error("failed to update task status to processing, will retry", "error", err)
		r.scheduleRetry(tt, r.storeRetryDelay())
		return nil
	}

	log.Info("processing task")
	start := r.now()
	err := r.execute(ctx, tt, log)
	elapsed := r.now().Sub(start)

	if err == nil {
		log.Info("task completed successfully", "duration_ms", elapsed.Milliseconds())
		if updateErr := r.store.UpdateTaskStatus(ctx, tt.ID(), TaskStatusCompleted, ""); updateErr != nil {
			log.Error("failed to update task status to completed", "error", updateErr)
		}
		r.observe(tt.Type(), OutcomeCompleted, elapsed)
		return nil
	}

	if r.ctx.Err() != nil {
		// Shutdown interrupted the task; recovery resets it on the next Start
		log.Warn("task interrupted by shutdown", "error", err)
		return nil
	}

	attempts := tt.attempts + 1
	if attempts < r.config.MaxAttempts {
		runAfter := r.now().Add(r.config.RetryDelay)
		log.Warn("task attempt failed, scheduling retry",
			"error", err,
			"retry_in", r.config.RetryDelay.String(),
			"attempts_left", r.config.MaxAttempts-attempts)
		if markErr := r.store.MarkForRetry(ctx, tt.ID(), attempts, err.Error(), runAfter); markErr != nil {
			log.Error("failed to record retry", "error", markErr)
		}
		r.scheduleRetry(&trackedTask{Task: tt.Task, id: tt.id, attempts: attempts}, r.config.RetryDelay)
		r.observe(tt.Type(), OutcomeRetry, elapsed)
		return nil
	}

	r.fail(tt, attempts, err)
	r.observe(tt.Type(), OutcomeFailed, elapsed)
	return nil
}

// execute runs one attempt with the per-task timeout, turning panics into errors.
func (r *TaskRunner) execute(ctx context.Context, tt *trackedTask, log *slog.Logger) (err error) {
	execCtx, cancel := context.WithTimeout(ctx, r.config.TaskTimeout)
	defer cancel()
	execCtx = logger.WithLogger(execCtx, log)

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task panic: %v", p)
		}
	}()
	return tt.Task.Execute(execCtx)
}

// fail marks a task failed and runs its permanent failure hook.
func (r *TaskRunner) fail(tt *trackedTask, attempts int, cause error) {
	log := r.logger.With("task_id", tt.ID(), "task_type", tt.Type())
	// The hook must run even while the runner is shutting down
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.ctx), r.config.TaskTimeout)
	defer cancel()
	ctx = logger.WithLogger(ctx, log)

	if err := r.store.MarkFailed(ctx, tt.ID(), attempts, cause.Error()); err != nil {
		log.Error("failed to update task status to failed", "error", err)
	}

	if handler, ok := tt.Task.(PermanentFailureHandler); ok {
		handler.OnPermanentFailure(ctx, cause)
	}

	if r.errHandler != nil {
		r.errHandler(tt, cause)
	}
}

// scheduleRetry queues tt after delay.
func (r *TaskRunner) scheduleRetry(tt *trackedTask, delay time.Duration) {
	if delay <= 0 {
		r.enqueueRetry(tt)
		return
	}

	r.timersMu.Lock()
	defer r.timersMu.Unlock()
	if r.ctx.Err() != nil {
		return
	}
	if old, ok := r.timers[tt.ID()]; ok {
		old.Stop()
	}
	r.timers[tt.ID()] = time.AfterFunc(delay, func() {
		r.timersMu.Lock()
		delete(r.timers, tt.ID())
		r.timersMu.Unlock()
		r.enqueueRetry(tt)
	})
}

func (r *TaskRunner) enqueueRetry(tt *trackedTask) {
	if r.ctx.Err() != nil {
		return
	}
	err := r.queue.Enqueue(tt)
	if err == nil {
		return
	}
	if errors.Is(err, ErrQueueClosed) {
		return
	}
	if errors.Is(err, ErrQueueFull) {
		// The row is still pending; wait for workers to drain the queue
		r.logger.Warn("queue full, delaying retry",
			"task_id", tt.ID(),
			"task_type", tt.Type())
		r.scheduleRetry(tt, r.storeRetryDelay())
		return
	}
	r.logger.Error("failed to requeue task for retry",
		"task_id", tt.ID(),
		"task_type", tt.Type(),
		"error", err)
	r.fail(tt, tt.attempts, err)
}

// storeRetryDelay is the wait before re-queueing a task that could not be
// started. It never bumps the attempt count.
func (r *TaskRunner) storeRetryDelay() time.Duration {
	if r.config.RetryDelay > 0 {
		return r.config.RetryDelay
	}
	return time.Second
}

// PendingRetries returns the number of retries waiting on a timer.
func (r *TaskRunner) PendingRetries() int {
	r.timersMu.Lock()
	defer r.timersMu.Unlock()
	return len(r.timers)
}

func (r *TaskRunner) observe(taskType, outcome string, d time.Duration) {
	if r.observer != nil {
		r.observer.TaskFinished(taskType, outcome, d)
	}
}

// stuckTaskMonitor periodically resets tasks that have been processing
// longer than StuckTaskAge and queues them again.
func (r *TaskRunner) stuckTaskMonitor() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.StuckTaskCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.checkStuckTasks(r.ctx)
		}
	}
}

func (r *TaskRunner) checkStuckTasks(ctx context.Context) {
	stuck, err := r.store.GetProcessingTasks(ctx, r.config.StuckTaskAge)
	if err != nil {
		r.logger.Error("failed to check for stuck tasks", "error", err)
		return
	}
	if len(stuck) == 0 {
		return
	}
	r.logger.Info("found stuck tasks", "count", len(stuck))
	r.requeue(ctx, stuck, true)
}
