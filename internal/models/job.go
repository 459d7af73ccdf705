package models

import (
	"time"
)

// Job lifecycle states persisted in Postgres.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// DefaultMaxAttempts bounds retries for jobs created without an explicit limit.
const DefaultMaxAttempts = 3

// Job represents one durable unit of work. Jobs are created by the producer
// API, claimed and mutated only by the worker, and never deleted; completed
// and failed are terminal.
type Job struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Status      string         `json:"status"`
	Payload     map[string]any `json:"payload"`
	Attempts    int            `json:"attempts"`
	MaxAttempts int            `json:"max_attempts"`
	Result      map[string]any `json:"result,omitempty"`
	Error       *string        `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}
