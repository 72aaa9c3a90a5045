package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/klimatdata/disclosure-pipeline/internal/resilience"
)

// Handler processes one job. Returning an error fails the attempt; the
// worker retries up to the configured budget unless the error is fatal.
type Handler func(ctx context.Context, job *Job) error

// FatalError marks a failure that must not be retried: validation errors,
// poison payloads, "no entity found".
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return e.Err.Error() }
func (e *FatalError) Unwrap() error { return e.Err }

// Fatal wraps err so the worker dead-letters the job instead of retrying.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// IsFatal reports whether err carries a FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// FailureSink records permanently failed jobs for later inspection.
type FailureSink interface {
	RecordFailure(ctx context.Context, job *Job, errMsg string) error
}

// Worker consumes registered job kinds and dispatches them to handlers.
type Worker struct {
	client      *Client
	broker      Broker
	handlers    map[string]Handler
	notifier    Notifier
	failures    FailureSink
	maxAttempts int
	concurrency int
	retry       resilience.RetryConfig
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithNotifier attaches the review channel to jobs and terminal failures.
func WithNotifier(n Notifier) WorkerOption {
	return func(w *Worker) { w.notifier = n }
}

// WithFailureSink records dead letters in a store.
func WithFailureSink(s FailureSink) WorkerOption {
	return func(w *Worker) { w.failures = s }
}

// WithMaxAttempts bounds the retry budget per job (including the first
// attempt). Default 3.
func WithMaxAttempts(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.maxAttempts = n
		}
	}
}

// WithRetryConfig overrides the backoff schedule between attempts.
func WithRetryConfig(cfg resilience.RetryConfig) WorkerOption {
	return func(w *Worker) { w.retry = cfg }
}

// WithConcurrency sets how many jobs of each kind run in parallel. Default 4.
func WithConcurrency(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

// NewWorker creates a worker over the same broker as client.
func NewWorker(client *Client, broker Broker, opts ...WorkerOption) *Worker {
	w := &Worker{
		client:      client,
		broker:      broker,
		handlers:    make(map[string]Handler),
		maxAttempts: 3,
		concurrency: 4,
		retry:       resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Handle registers a handler for a job kind. Must be called before Run.
func (w *Worker) Handle(name string, h Handler) {
	w.handlers[name] = h
}

// Run consumes every registered queue until ctx is canceled. Each kind
// gets its own consumer with w.concurrency processing goroutines.
func (w *Worker) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)
	for name := range w.handlers {
		deliveries, err := w.broker.Consume(gCtx, w.client.QueueName(name))
		if err != nil {
			return eris.Wrapf(err, "worker: consume %s", name)
		}
		for i := 0; i < w.concurrency; i++ {
			g.Go(func() error {
				for d := range deliveries {
					w.process(gCtx, d)
				}
				return nil
			})
		}
		zap.L().Info("worker: consuming",
			zap.String("job", name),
			zap.Int("concurrency", w.concurrency),
		)
	}
	return g.Wait()
}

// process runs one delivery through its handler and settles the message.
func (w *Worker) process(ctx context.Context, d Delivery) {
	var env envelope
	if err := json.Unmarshal(d.Body, &env); err != nil {
		// Poison message: no retry can fix an undecodable envelope.
		zap.L().Error("worker: malformed envelope", zap.Error(err))
		w.deadLetter(ctx, &Job{Name: "unknown", Payload: d.Body}, "malformed envelope: "+err.Error())
		_ = d.Ack()
		return
	}

	job := &Job{
		ID:           env.ID,
		Name:         env.Name,
		Payload:      env.Payload,
		Attempt:      env.Attempt,
		RetryContext: env.RetryContext,
		EnqueuedAt:   env.EnqueuedAt,
		notifier:     w.notifier,
	}

	handler, ok := w.handlers[env.Name]
	if !ok {
		w.deadLetter(ctx, job, "no handler registered for "+env.Name)
		_ = d.Ack()
		return
	}

	start := time.Now()
	err := handler(ctx, job)
	if err == nil {
		zap.L().Info("worker: job complete",
			zap.String("job_id", job.ID),
			zap.String("job", job.Name),
			zap.Int("attempt", job.Attempt),
			zap.Duration("duration", time.Since(start)),
		)
		_ = d.Ack()
		return
	}

	zap.L().Warn("worker: job failed",
		zap.String("job_id", job.ID),
		zap.String("job", job.Name),
		zap.Int("attempt", job.Attempt),
		zap.Error(err),
	)

	if IsFatal(err) || job.Attempt >= w.maxAttempts {
		w.deadLetter(ctx, job, err.Error())
		_ = d.Ack()
		return
	}

	// Retry: republish with the failure appended to the retry context so
	// the next attempt sees what went wrong.
	env.Attempt++
	env.RetryContext = append(env.RetryContext, err.Error())

	delay := resilience.Backoff(job.Attempt-1, w.retry)
	timer := time.NewTimer(delay)
	select {
	case <-ctx.Done():
		timer.Stop()
		// Shutting down mid-retry: requeue the original delivery.
		_ = d.Nack(true)
		return
	case <-timer.C:
	}

	if pubErr := w.client.publish(ctx, env); pubErr != nil {
		zap.L().Error("worker: republish failed, requeueing delivery",
			zap.String("job_id", job.ID),
			zap.Error(pubErr),
		)
		_ = d.Nack(true)
		return
	}
	_ = d.Ack()
}

// deadLetter records a terminal failure and reports it to the review
// channel. Terminal failures are never silent.
func (w *Worker) deadLetter(ctx context.Context, job *Job, errMsg string) {
	zap.L().Error("worker: job permanently failed",
		zap.String("job_id", job.ID),
		zap.String("job", job.Name),
		zap.Int("attempt", job.Attempt),
		zap.String("error", errMsg),
	)
	if w.failures != nil {
		if err := w.failures.RecordFailure(ctx, job, errMsg); err != nil {
			zap.L().Error("worker: record dead letter", zap.Error(err))
		}
	}
	if w.notifier != nil {
		w.notifier.Send(ctx, fmt.Sprintf("Job %s (%s) failed permanently: %s", job.Name, job.ID, errMsg))
	}
}
