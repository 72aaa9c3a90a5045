package model

import (
	"encoding/json"
	"time"
)

// RunStatus is the lifecycle state of a submission run.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is the bookkeeping record for one report submission.
type Run struct {
	ID        string    `json:"id"`
	Company   Company   `json:"company"`
	ReportURL string    `json:"reportUrl"`
	Status    RunStatus `json:"status"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DeadLetter is a permanently failed job kept for inspection and manual
// resubmission.
type DeadLetter struct {
	ID        string          `json:"id"`
	JobID     string          `json:"jobId"`
	JobName   string          `json:"jobName"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Attempt   int             `json:"attempt"`
	Error     string          `json:"error"`
	CreatedAt time.Time       `json:"createdAt"`
}
