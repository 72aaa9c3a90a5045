// Package queue implements the durable job queue: a broker abstraction,
// an enqueue client, and a worker loop with bounded retry. Delivery is
// at-least-once, so every handler must tolerate re-execution.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Job is the unit of work handed to a handler. Payload is the job-kind
// specific document; RetryContext carries the failure messages of prior
// attempts so a retried extraction can steer the model away from them.
type Job struct {
	ID           string
	Name         string
	Payload      json.RawMessage
	Attempt      int
	RetryContext []string
	EnqueuedAt   time.Time

	logLines []string
	notifier Notifier
}

// Notifier delivers user-facing text to the review channel. Sends are
// fire-and-forget; implementations must not fail the pipeline.
type Notifier interface {
	Send(ctx context.Context, text string)
}

// Log appends a timestamped line to the job's log and mirrors it to the
// operational logger.
func (j *Job) Log(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	j.logLines = append(j.logLines, time.Now().UTC().Format(time.RFC3339)+" "+line)
	zap.L().Info(line,
		zap.String("job_id", j.ID),
		zap.String("job", j.Name),
		zap.Int("attempt", j.Attempt),
	)
}

// LogLines returns the accumulated log, oldest first.
func (j *Job) LogLines() []string {
	return j.logLines
}

// SendMessage pushes a user-facing update to the review channel, if one is
// attached. No response is awaited.
func (j *Job) SendMessage(ctx context.Context, text string) {
	if j.notifier == nil {
		return
	}
	j.notifier.Send(ctx, text)
}

// Unmarshal decodes the payload into v.
func (j *Job) Unmarshal(v any) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return Fatal(eris.Wrapf(err, "queue: decode %s payload", j.Name))
	}
	return nil
}

// envelope is the wire form of a job.
type envelope struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Payload      json.RawMessage `json:"payload"`
	Attempt      int             `json:"attempt"`
	RetryContext []string        `json:"retryContext,omitempty"`
	EnqueuedAt   time.Time       `json:"enqueuedAt"`
}

// Client enqueues jobs onto the broker. One queue exists per job kind,
// named prefix.kind.
type Client struct {
	broker Broker
	prefix string
}

// NewClient creates an enqueue client over the given broker.
func NewClient(broker Broker, prefix string) *Client {
	return &Client{broker: broker, prefix: prefix}
}

// QueueName returns the broker queue for a job kind.
func (c *Client) QueueName(jobName string) string {
	return c.prefix + "." + jobName
}

// Enqueue serializes payload and publishes a new job, returning its ID.
func (c *Client) Enqueue(ctx context.Context, name string, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", eris.Wrapf(err, "queue: marshal %s payload", name)
	}
	env := envelope{
		ID:         uuid.NewString(),
		Name:       name,
		Payload:    body,
		Attempt:    1,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := c.publish(ctx, env); err != nil {
		return "", err
	}
	zap.L().Info("job enqueued",
		zap.String("job_id", env.ID),
		zap.String("job", name),
	)
	return env.ID, nil
}

func (c *Client) publish(ctx context.Context, env envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return eris.Wrap(err, "queue: marshal envelope")
	}
	if err := c.broker.Publish(ctx, c.QueueName(env.Name), body); err != nil {
		return eris.Wrapf(err, "queue: publish %s", env.Name)
	}
	return nil
}
