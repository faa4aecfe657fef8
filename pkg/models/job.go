package models

import (
	"sync"
	"time"
)

// JobStatus is a Job's position in its pending -> running -> (completed |
// failed) lifecycle. Terminal states are sticky.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// JobKind distinguishes the two things a Job can wrap.
type JobKind string

const (
	JobKindMetadata     JobKind = "metadata"
	JobKindSemanticModel JobKind = "semantic_model"
)

func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Job is the asynchronous wrapper around a generation request tracked by
// the job manager. Mutations go through SetProgress/Complete/Fail so
// terminal-state stickiness is enforced in one place.
type Job struct {
	mu sync.Mutex

	ID        string    `json:"id"`
	Kind      JobKind    `json:"kind"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Progress  float64   `json:"progress"` // 0..1

	Result *MetadataDocument `json:"result,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// NewJob constructs a pending job of the given kind.
func NewJob(id string, kind JobKind) *Job {
	now := time.Now()
	return &Job{
		ID:        id,
		Kind:      kind,
		Status:    JobPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Snapshot returns a value copy safe to hand to callers outside the lock.
func (j *Job) Snapshot() Job {
	j.mu.Lock()
	defer j.mu.Unlock()
	return Job{
		ID:        j.ID,
		Kind:      j.Kind,
		Status:    j.Status,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
		Progress:  j.Progress,
		Result:    j.Result,
		Error:     j.Error,
	}
}

// SetProgress advances progress on a running job. No-op once terminal.
func (j *Job) SetProgress(p float64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Status.Terminal() {
		return
	}
	j.Status = JobRunning
	j.Progress = p
	j.UpdatedAt = time.Now()
}

// Complete transitions the job to completed with a result. No-op if the
// job is already terminal: a job never regresses state.
func (j *Job) Complete(doc *MetadataDocument) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Status.Terminal() {
		return
	}
	j.Status = JobCompleted
	j.Progress = 1.0
	j.Result = doc
	j.UpdatedAt = time.Now()
}

// Fail transitions the job to failed with a cause. No-op if the job is
// already terminal.
func (j *Job) Fail(cause error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Status.Terminal() {
		return
	}
	j.Status = JobFailed
	if cause != nil {
		j.Error = cause.Error()
	}
	j.UpdatedAt = time.Now()
}

// Age returns how long since the job last changed state.
func (j *Job) Age() time.Duration {
	j.mu.Lock()
	defer j.mu.Unlock()
	return time.Since(j.UpdatedAt)
}
