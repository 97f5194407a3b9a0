// Package task manages background job queuing, processing, and lifecycle.
//
// Tasks are persisted before they are queued so they survive restarts. A
// failed execution is retried a fixed number of times with a fixed delay; a
// task that exhausts its attempts is marked failed and may react through
// PermanentFailureHandler. Persisted tasks are rebuilt through a Registry of
// factories keyed by task type.
package task
