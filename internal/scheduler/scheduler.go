// Package scheduler runs the periodic sweeps that keep background work moving:
// publishing posts whose scheduled time has come, re-submitting deletions
// that exhausted their retries, and reclaiming work whose event was lost.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/domain"
	"github.com/phrazzld/quill-api/internal/events"
	"github.com/phrazzld/quill-api/internal/platform/logger"
	"github.com/robfig/cron/v3"
)

// Sweep names used for metrics and logs.
const (
	SweepPublish  = "publish"
	SweepDeletion = "deletion"
	SweepSchedule = "schedule"
	SweepStale    = "stale"
)

// DefaultStaleAfter is how long a pending deletion or queued publish may sit
// unchanged before it is re-emitted.
const DefaultStaleAfter = 30 * time.Minute

// BlogStore is the subset of store.BlogStore the sweeps need.
type BlogStore interface {
	ListDueScheduled(ctx context.Context, status domain.ScheduleStatus, now time.Time, limit int) ([]*domain.Blog, error)
	ListByDeletionStatus(ctx context.Context, status domain.DeletionStatus, limit int) ([]*domain.Blog, error)
	TransitionDeletion(ctx context.Context, id uuid.UUID, from, to domain.DeletionStatus, errMsg string) (bool, error)
	TransitionSchedule(ctx context.Context, id uuid.UUID, from, to domain.ScheduleStatus) (bool, error)
	ListStaleDeletions(ctx context.Context, status domain.DeletionStatus, updatedBefore time.Time, limit int) ([]*domain.Blog, error)
	ListStaleSchedules(ctx context.Context, status domain.ScheduleStatus, updatedBefore time.Time, limit int) ([]*domain.Blog, error)
}

// Recorder receives the number of records each sweep re-submitted.
type Recorder interface {
	Resubmitted(sweep string, n int)
}

// Config holds the cron specs and batch size. StaleAfter is the age past
// which pending deletions and queued publishes are considered lost.
type Config struct {
	PublishSpec   string
	ReconcileSpec string
	BatchSize     int
	StaleAfter    time.Duration
}

// Scheduler owns the cron instance and the sweep jobs.
type Scheduler struct {
	blogs    BlogStore
	emitter  events.EventEmitter
	config   Config
	cron     *cron.Cron
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Scheduler. Call Start to begin running sweeps.
func New(blogs BlogStore, emitter events.EventEmitter, config Config, log *slog.Logger) (*Scheduler, error) {
	if blogs == nil || emitter == nil {
		return nil, errors.New("scheduler requires a blog store and an event emitter")
	}
	if log == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = DefaultStaleAfter
	}
	log = log.With("component", "scheduler")

	cronLog := cronLogger{logger: log}
	return &Scheduler{
		blogs:   blogs,
		emitter: emitter,
		config:  config,
		cron: cron.New(
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		logger: log,
		now:    time.Now,
	}, nil
}

// SetRecorder sets where sweep counts are reported.
func (s *Scheduler) SetRecorder(r Recorder) {
	s.recorder = r
}

// Start registers the sweeps and starts the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.config.PublishSpec, s.job("publish_due_blogs", s.PublishDueBlogs)); err != nil {
		return fmt.Errorf("invalid publish spec %q: %w", s.config.PublishSpec, err)
	}
	if _, err := s.cron.AddFunc(s.config.ReconcileSpec, s.job("reconcile_failed_deletions", s.ReconcileFailedDeletions)); err != nil {
		return fmt.Errorf("invalid reconcile spec %q: %w", s.config.ReconcileSpec, err)
	}
	s.cron.Start()
	s.logger.Info("scheduler started",
		"publish_spec", s.config.PublishSpec,
		"reconcile_spec", s.config.ReconcileSpec)
	return nil
}

// Stop stops scheduling new runs and waits for running sweeps until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("scheduler stopped")
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out with sweeps still running")
	}
}

func (s *Scheduler) job(name string, sweep func(context.Context) (int, error)) func() {
	return func() {
		log := s.logger.With("job", name, "run_id", uuid.New())
		ctx := logger.WithLogger(context.Background(), log)
		start := time.Now()
		n, err := sweep(ctx)
		if err != nil {
			log.Error("sweep failed", "error", err, "resubmitted", n)
			return
		}
		log.Debug("sweep finished", "resubmitted", n, "duration_ms", time.Since(start).Milliseconds())
	}
}

// PublishDueBlogs queues every scheduled post whose time has come.
// Each post moves scheduled → queued before its blog.publish event is emitted;
// a failed emission moves it back so the next sweep retries it.
func (s *Scheduler) PublishDueBlogs(ctx context.Context) (int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	due, err := s.blogs.ListDueScheduled(ctx, domain.ScheduleStatusScheduled, s.now().UTC(), s.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list due blogs: %w", err)
	}

	queued := 0
	for _, blog := range due {
		ok, err := s.blogs.TransitionSchedule(ctx, blog.ID, domain.ScheduleStatusScheduled, domain.ScheduleStatusQueued)
		if err != nil {
			log.Error("failed to queue scheduled blog", "error", err, "blog_id", blog.ID)
			continue
		}
		if !ok {
			continue
		}

		ref := events.BlogRef{BlogID: blog.ID, AuthorID: blog.AuthorID}
		if err := events.Emit(ctx, s.emitter, events.TaskBlogPublish, ref); err != nil {
			log.Error("failed to emit publish event, returning blog to scheduled", "error", err, "blog_id", blog.ID)
			if _, rerr := s.blogs.TransitionSchedule(ctx, blog.ID, domain.ScheduleStatusQueued, domain.ScheduleStatusScheduled); rerr != nil {
				log.Error("failed to revert schedule status", "error", rerr, "blog_id", blog.ID)
			}
			continue
		}
		queued++
	}

	s.record(SweepPublish, queued)
	if queued > 0 {
		log.Info("queued scheduled blogs", "count", queued, "due", len(due))
	}
	return queued, nil
}

// ReconcileFailedDeletions re-submits deletions left in the failed state and
// returns failed schedules whose time has passed to the scheduled state.
// Deleting is idempotent, so a deletion that is processed twice is harmless.
func (s *Scheduler) ReconcileFailedDeletions(ctx context.Context) (int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	failed, err := s.blogs.ListByDeletionStatus(ctx, domain.DeletionStatusFailed, s.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list failed deletions: %w", err)
	}

	resubmitted := 0
	for _, blog := range failed {
		ok, err := s.blogs.TransitionDeletion(ctx, blog.ID, domain.DeletionStatusFailed, domain.DeletionStatusPending, "")
		if err != nil {
			log.Error("failed to reset deletion status", "error", err, "blog_id", blog.ID)
			continue
		}
		if !ok {
			continue
		}

		ref := events.BlogRef{BlogID: blog.ID, AuthorID: blog.AuthorID}
		if err := events.Emit(ctx, s.emitter, events.TaskBlogDelete, ref); err != nil {
			log.Error("failed to emit deletion event, returning blog to failed", "error", err, "blog_id", blog.ID)
			if _, rerr := s.blogs.TransitionDeletion(ctx, blog.ID, domain.DeletionStatusPending, domain.DeletionStatusFailed, err.Error()); rerr != nil {
				log.Error("failed to revert deletion status", "error", rerr, "blog_id", blog.ID)
			}
			continue
		}
		resubmitted++
	}
	s.record(SweepDeletion, resubmitted)

	rescheduled, err := s.rescheduleFailed(ctx)
	if err != nil {
		return resubmitted, err
	}

	reclaimed, err := s.ReclaimStale(ctx)
	if err != nil {
		return resubmitted, err
	}

	if resubmitted > 0 || rescheduled > 0 || reclaimed > 0 {
		log.Info("reconciliation sweep resubmitted work",
			"deletions", resubmitted,
			"schedules", rescheduled,
			"reclaimed", reclaimed)
	}
	return resubmitted, nil
}

// ReclaimStale re-emits events for pending deletions and queued publishes
// that have not moved for longer than StaleAfter, which happens when the
// process stopped between the status change and the task being stored.
// Each row is touched before its event is emitted so it is not reclaimed
// again until another StaleAfter has passed.
func (s *Scheduler) ReclaimStale(ctx context.Context) (int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)
	cutoff := s.now().UTC().Add(-s.config.StaleAfter)

	deletions, err := s.blogs.ListStaleDeletions(ctx, domain.DeletionStatusPending, cutoff, s.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale deletions: %w", err)
	}
	n := 0
	for _, blog := range deletions {
		ok, err := s.blogs.TransitionDeletion(ctx, blog.ID, domain.DeletionStatusPending, domain.DeletionStatusPending, "")
		if err != nil {
			log.Error("failed to claim stale deletion", "error", err, "blog_id", blog.ID)
			continue
		}
		if ok && s.reemit(ctx, events.TaskBlogDelete, blog) {
			n++
		}
	}

	schedules, err := s.blogs.ListStaleSchedules(ctx, domain.ScheduleStatusQueued, cutoff, s.config.BatchSize)
	if err != nil {
		s.record(SweepStale, n)
		return n, fmt.Errorf("failed to list stale schedules: %w", err)
	}
	for _, blog := range schedules {
		ok, err := s.blogs.TransitionSchedule(ctx, blog.ID, domain.ScheduleStatusQueued, domain.ScheduleStatusQueued)
		if err != nil {
			log.Error("failed to claim stale schedule", "error", err, "blog_id", blog.ID)
			continue
		}
		if ok && s.reemit(ctx, events.TaskBlogPublish, blog) {
			n++
		}
	}

	s.record(SweepStale, n)
	return n, nil
}

func (s *Scheduler) reemit(ctx context.Context, eventType string, blog *domain.Blog) bool {
	ref := events.BlogRef{BlogID: blog.ID, AuthorID: blog.AuthorID}
	if err := events.Emit(ctx, s.emitter, eventType, ref); err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to re-emit stale work",
			"error", err,
			"blog_id", blog.ID,
			"event_type", eventType)
		return false
	}
	logger.FromContextOrDefault(ctx, s.logger).Warn("re-emitted stale work",
		"blog_id", blog.ID,
		"event_type", eventType,
		"updated_at", blog.UpdatedAt)
	return true
}

func (s *Scheduler) rescheduleFailed(ctx context.Context) (int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	failed, err := s.blogs.ListDueScheduled(ctx, domain.ScheduleStatusFailed, s.now().UTC(), s.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list failed schedules: %w", err)
	}

	n := 0
	for _, blog := range failed {
		ok, err := s.blogs.TransitionSchedule(ctx, blog.ID, domain.ScheduleStatusFailed, domain.ScheduleStatusScheduled)
		if err != nil {
			log.Error("failed to reschedule blog", "error", err, "blog_id", blog.ID)
			continue
		}
		if ok {
			n++
		}
	}
	s.record(SweepSchedule, n)
	return n, nil
}

func (s *Scheduler) record(sweep string, n int) {
	if s.recorder != nil {
		s.recorder.Resubmitted(sweep, n)
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	args := append([]interface{}{"error", err}, keysAndValues...)
	l.logger.Error("cron: "+msg, args...)
}
