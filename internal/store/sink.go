package store

import (
	"context"

	"github.com/klimatdata/disclosure-pipeline/internal/model"
	"github.com/klimatdata/disclosure-pipeline/internal/queue"
)

// Sink adapts a Store to the worker's failure sink so exhausted jobs land
// in the dead_letters table.
type Sink struct {
	store Store
}

// NewSink creates a Sink over the store.
func NewSink(s Store) *Sink {
	return &Sink{store: s}
}

// RecordFailure persists one permanently failed job.
func (s *Sink) RecordFailure(ctx context.Context, job *queue.Job, errMsg string) error {
	return s.store.InsertDeadLetter(ctx, model.DeadLetter{
		JobID:   job.ID,
		JobName: job.Name,
		Payload: job.Payload,
		Attempt: job.Attempt,
		Error:   errMsg,
	})
}
