// Package jobs provides the durable background job queue. Jobs are
// persisted in SQLite, deduplicated by identity key, retried with
// exponential backoff, and processed by per-queue worker pools.
package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status represents the current state of a job
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	// StatusFailed is terminal: attempts are exhausted and the job is
	// retained for inspection, never re-run.
	StatusFailed Status = "failed"
)

// Named queues. Each queue has its own worker pool and concurrency.
const (
	QueueNotifications = "notifications"
	QueueMatching      = "matching"
	QueueReminders     = "reminders"
	QueueCleanup       = "cleanup"
)

// defaultMaxAttempts applies when neither the queue configuration nor
// WithMaxAttempts says otherwise.
const defaultMaxAttempts = 3

// Queues lists every known queue name
func Queues() []string {
	return []string{QueueNotifications, QueueMatching, QueueReminders, QueueCleanup}
}

// Job is one unit of deferred work
type Job struct {
	ID            string          `json:"id"`
	Queue         string          `json:"queue"`
	Name          string          `json:"name"` // task type, resolves the handler
	Payload       json.RawMessage `json:"payload,omitempty"`
	Key           string          `json:"key,omitempty"` // identity key for dedup
	CorrelationID string          `json:"correlation_id,omitempty"`
	Status        Status          `json:"status"`
	Attempts      int             `json:"attempts"`
	MaxAttempts   int             `json:"max_attempts"`
	RunAt         time.Time       `json:"run_at"` // earliest execution time
	Error         string          `json:"error,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	StartedAt     *time.Time      `json:"started_at,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	UpdatedAt     time.Time       `json:"updated_at"`

	// maxAttemptsSet records an explicit WithMaxAttempts so the queue's
	// configured default does not override it on enqueue.
	maxAttemptsSet bool
}

// Option customizes a new job
type Option func(*Job)

// WithKey sets the identity key. Enqueueing while a pending or running
// job holds the same key in the same queue is a no-op.
func WithKey(key string) Option {
	return func(j *Job) { j.Key = key }
}

// WithCorrelationID carries the triggering event's correlation ID
func WithCorrelationID(id string) Option {
	return func(j *Job) { j.CorrelationID = id }
}

// WithDelay postpones the first execution
func WithDelay(d time.Duration) Option {
	return func(j *Job) { j.RunAt = j.RunAt.Add(d) }
}

// WithMaxAttempts overrides the queue default attempt budget
func WithMaxAttempts(n int) Option {
	return func(j *Job) {
		if n >= 1 {
			j.MaxAttempts = n
			j.maxAttemptsSet = true
		}
	}
}

// NewJob creates a queued job ready for Enqueue
func NewJob(queue, name string, payload json.RawMessage, opts ...Option) *Job {
	now := time.Now()
	j := &Job{
		ID:          uuid.NewString(),
		Queue:       queue,
		Name:        name,
		Payload:     payload,
		Status:      StatusQueued,
		MaxAttempts: defaultMaxAttempts,
		RunAt:       now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Start marks the job as running and counts the attempt
func (j *Job) Start() {
	now := time.Now()
	j.Status = StatusRunning
	j.Attempts++
	j.StartedAt = &now
	j.UpdatedAt = now
}

// Complete marks the job as completed
func (j *Job) Complete() {
	now := time.Now()
	j.Status = StatusCompleted
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// RecordFailure handles a failed attempt. If attempts remain the job is
// re-queued with exponential backoff from base (base, 2*base, 4*base, ...);
// otherwise it transitions to the terminal failed state. Returns true
// when the job will be retried.
func (j *Job) RecordFailure(err error, base time.Duration) bool {
	now := time.Now()
	j.Error = err.Error()
	j.UpdatedAt = now

	if j.Attempts >= j.MaxAttempts {
		j.Status = StatusFailed
		j.CompletedAt = &now
		return false
	}

	backoff := base << (j.Attempts - 1)
	j.Status = StatusQueued
	j.RunAt = now.Add(backoff)
	return true
}

// IsTerminal reports whether the job will never run again
func (j *Job) IsTerminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}
