// Package models contains the data types shared across the AutoML Pro codebase.
package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a training job. Transitions are driven
// by the external training worker; this codebase only reads them.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// InitialJobLog is the first log line of every newly created job.
const InitialJobLog = "Job created and queued for processing..."

func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusRunning, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further status changes are expected.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job is one natural-language training request. Rows are created here with
// status pending; the worker mutates status, progress, logs and the outcome
// fields, and clients observe those changes through subscriptions.
type Job struct {
	ID            uuid.UUID `db:"id"             json:"id"`
	UserID        uuid.UUID `db:"user_id"        json:"user_id"`
	Prompt        string    `db:"prompt"         json:"prompt"`
	Status        JobStatus `db:"status"         json:"status"`
	Progress      int       `db:"progress"       json:"progress"`
	Logs          []string  `db:"logs"           json:"logs"`
	ErrorMessage  *string   `db:"error_message"  json:"error_message"`
	ResultSummary *string   `db:"result_summary" json:"result_summary"`
	CreatedAt     time.Time `db:"created_at"     json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"     json:"updated_at"`
}
