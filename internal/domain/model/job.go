// Package model defines the core data types shared across the sealbox pipeline.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of a submission.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobStatus string

const (
	// JobStatusQueued indicates a job is waiting in the broker's FIFO list.
	JobStatusQueued JobStatus = "queued"
	// JobStatusProcessing indicates the consumer has dequeued the job.
	JobStatusProcessing JobStatus = "processing"
	// JobStatusCompleted indicates inference finished and the result passed the egress guard.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job terminated without a releasable result.
	JobStatusFailed JobStatus = "failed"
)

// Valid returns true if the JobStatus is one of the known states.
func (s JobStatus) Valid() bool {
	return s == JobStatusQueued || s == JobStatusProcessing || s == JobStatusCompleted ||
		s == JobStatusFailed
}

// Terminal returns true once no further transition is possible.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransitionTo reports whether moving from s to next is a legal, forward
// step. The machine is monotonic: queued → processing → {completed, failed}.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusQueued:
		return next == JobStatusProcessing
	case JobStatusProcessing:
		return next == JobStatusCompleted || next == JobStatusFailed
	default:
		return false
	}
}

// UnmarshalText implements encoding.TextUnmarshaler so broker records and env
// values reject unknown states at the serialization boundary.
func (s *JobStatus) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	js := JobStatus(v)
	if js.Valid() {
		*s = js
		return nil
	}
	return fmt.Errorf("invalid JobStatus: %q", v)
}

// Job is the unit of work tracked from submission to result retrieval. It is
// created by the upload gateway, mutated only by the inference consumer, and
// expires from the broker via TTL.
type Job struct {
	ID           string            `json:"id"`
	Status       JobStatus         `json:"status"`
	Filename     string            `json:"filename,omitempty"`
	BlobKey      string            `json:"blobKey,omitempty"`
	DeclaredType string            `json:"declaredType,omitempty"`
	SniffedType  string            `json:"sniffedType,omitempty"`
	Size         int64             `json:"size"`
	TypeMismatch bool              `json:"typeMismatch,omitempty"`
	Context      map[string]string `json:"context,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	ProcessingAt *time.Time        `json:"processingAt,omitempty"`
	CompletedAt  *time.Time        `json:"completedAt,omitempty"`
	FailedAt     *time.Time        `json:"failedAt,omitempty"`
	Result       Result            `json:"result,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// NewJobParams carries the validated submission attributes captured by the
// upload gateway.
type NewJobParams struct {
	Filename     string
	BlobKey      string
	DeclaredType string
	SniffedType  string
	Size         int64
	TypeMismatch bool
	Context      map[string]string
}

// NewJob creates a queued Job with a fresh id.
func NewJob(params NewJobParams) *Job {
	return &Job{
		ID:           uuid.NewString(),
		Status:       JobStatusQueued,
		Filename:     params.Filename,
		BlobKey:      params.BlobKey,
		DeclaredType: params.DeclaredType,
		SniffedType:  params.SniffedType,
		Size:         params.Size,
		TypeMismatch: params.TypeMismatch,
		Context:      params.Context,
		CreatedAt:    time.Now().UTC(),
	}
}

// ValidJobID reports whether id has the expected identifier format. The
// gateway checks this before any broker lookup.
func ValidJobID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// MarkProcessing transitions the job to processing.
func (j *Job) MarkProcessing(now time.Time) error {
	if !j.Status.CanTransitionTo(JobStatusProcessing) {
		return fmt.Errorf("illegal transition %s -> %s for job %s", j.Status, JobStatusProcessing, j.ID)
	}
	j.Status = JobStatusProcessing
	t := now.UTC()
	j.ProcessingAt = &t
	return nil
}

// MarkCompleted transitions the job to completed with its released result.
// A completed job must carry a result.
func (j *Job) MarkCompleted(result Result, now time.Time) error {
	if result == nil {
		return fmt.Errorf("completed job %s requires a result", j.ID)
	}
	if !j.Status.CanTransitionTo(JobStatusCompleted) {
		return fmt.Errorf("illegal transition %s -> %s for job %s", j.Status, JobStatusCompleted, j.ID)
	}
	j.Status = JobStatusCompleted
	j.Result = result
	t := now.UTC()
	j.CompletedAt = &t
	return nil
}

// MarkFailed transitions the job to failed with a client-safe error message.
func (j *Job) MarkFailed(message string, now time.Time) error {
	if message == "" {
		return fmt.Errorf("failed job %s requires an error message", j.ID)
	}
	if !j.Status.CanTransitionTo(JobStatusFailed) {
		return fmt.Errorf("illegal transition %s -> %s for job %s", j.Status, JobStatusFailed, j.ID)
	}
	j.Status = JobStatusFailed
	j.Error = message
	t := now.UTC()
	j.FailedAt = &t
	return nil
}

// Validate checks the per-status variant invariants. Broker adapters call it
// when records cross the serialization boundary.
func (j *Job) Validate() error {
	if j.ID == "" {
		return errors.New("job id is required")
	}
	if !j.Status.Valid() {
		return fmt.Errorf("invalid status %q", j.Status)
	}
	switch j.Status {
	case JobStatusCompleted:
		if j.Result == nil {
			return fmt.Errorf("completed job %s is missing its result", j.ID)
		}
	case JobStatusFailed:
		if j.Error == "" {
			return fmt.Errorf("failed job %s is missing its error", j.ID)
		}
	}
	return nil
}

// StatusView is the client-facing projection of a Job returned by the status
// endpoint. Internal fields (blob key, context, flags) never leave the
// trust boundary.
type StatusView struct {
	ID     string    `json:"id"`
	Status JobStatus `json:"status"`
	Result Result    `json:"result,omitempty"`
	Error  string    `json:"error,omitempty"`
}

// View returns the client-facing projection of the job.
func (j *Job) View() StatusView {
	return StatusView{
		ID:     j.ID,
		Status: j.Status,
		Result: j.Result,
		Error:  j.Error,
	}
}

// QueueStats reports broker queue depth for the operational endpoint.
type QueueStats struct {
	QueueLength int64 `json:"queueLength"`
	TotalJobs   int64 `json:"totalJobs"`
}
