// Package extract turns prompts plus a named output schema into parsed
// structured data via the Anthropic API. A reply that fails to parse is a
// distinct failure from the service being unreachable; the queue retries
// both, but parse failures feed the retry context.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/klimatdata/disclosure-pipeline/internal/config"
	"github.com/klimatdata/disclosure-pipeline/internal/resilience"
	"github.com/klimatdata/disclosure-pipeline/pkg/anthropic"
)

// ParseError reports a model reply that did not conform to the requested
// schema. The raw reply is kept for the retry context.
type ParseError struct {
	Schema string
	Raw    string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("extract: response does not match schema %s: %v", e.Schema, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsParseError reports whether err is a schema-conformance failure.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// Request is one structured-output call: ordered role-tagged turns plus
// the logical name of the schema the reply must conform to.
type Request struct {
	Schema string
	System string
	Turns  []anthropic.Message

	// RetryContext holds failure messages from prior attempts of the same
	// logical task; they are appended as an extra user turn so repeated
	// failures steer the model away from previous mistakes.
	RetryContext []string
}

// Extractor performs rate-limited structured extractions.
type Extractor struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	limiter   *rate.Limiter
}

// New creates an Extractor from config.
func New(client anthropic.Client, cfg config.AnthropicConfig) *Extractor {
	rpm := cfg.RequestsPerMin
	if rpm <= 0 {
		rpm = 50
	}
	burst := cfg.RequestBurst
	if burst <= 0 {
		burst = 5
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Extractor{
		client:    client,
		model:     cfg.Model,
		maxTokens: maxTokens,
		limiter:   rate.NewLimiter(rate.Limit(rpm/60.0), burst),
	}
}

// Extract calls the model and unmarshals its JSON reply into out.
func (e *Extractor) Extract(ctx context.Context, req Request, out any) (anthropic.TokenUsage, error) {
	var usage anthropic.TokenUsage

	if err := e.limiter.Wait(ctx); err != nil {
		return usage, eris.Wrap(err, "extract: rate limit wait")
	}

	turns := append([]anthropic.Message(nil), req.Turns...)
	if len(req.RetryContext) > 0 {
		var b strings.Builder
		b.WriteString("Previous attempts at this task failed:\n")
		for i, msg := range req.RetryContext {
			fmt.Fprintf(&b, "%d. %s\n", i+1, msg)
		}
		b.WriteString("Avoid repeating these mistakes.")
		turns = append(turns, anthropic.Message{Role: "user", Content: b.String()})
	}

	resp, err := resilience.DoVal(ctx, resilience.DefaultRetryConfig(), func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return e.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     e.model,
			MaxTokens: e.maxTokens,
			System:    req.System,
			Messages:  turns,
		})
	})
	if err != nil {
		return usage, eris.Wrapf(err, "extract: %s", req.Schema)
	}
	usage = resp.Usage
	usage.LogCost(e.model, req.Schema)

	raw := extractJSON(resp.Text)
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return usage, &ParseError{Schema: req.Schema, Raw: resp.Text, Err: err}
	}
	return usage, nil
}

// extractJSON strips markdown fences and surrounding prose from a model
// reply, returning the outermost JSON document.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if idx := strings.Index(text, "```"); idx >= 0 {
		rest := text[idx+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end >= 0 {
			text = rest[:end]
		} else {
			text = rest
		}
		text = strings.TrimSpace(text)
	}

	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return text
	}
	var closer byte = '}'
	if text[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(text, closer)
	if end <= start {
		return text
	}
	return text[start : end+1]
}
