// Package discord delivers review-channel messages over a webhook. Sends
// are fire-and-forget: delivery failures are logged, never returned, so
// the pipeline's control flow cannot depend on the review channel.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// maxMessageLen is Discord's hard limit per message.
const maxMessageLen = 2000

// Sender posts text to a Discord-compatible webhook.
type Sender struct {
	webhookURL string
	client     *http.Client
}

// NewSender creates a Sender. An empty webhook URL yields a no-op sender.
func NewSender(webhookURL string) *Sender {
	return &Sender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts text to the webhook. Messages over the platform limit are
// truncated rather than rejected.
func (s *Sender) Send(ctx context.Context, text string) {
	if s.webhookURL == "" || text == "" {
		return
	}
	if len(text) > maxMessageLen {
		text = text[:maxMessageLen-3] + "..."
	}

	payload, err := json.Marshal(map[string]string{"content": text})
	if err != nil {
		zap.L().Error("discord: marshal message", zap.Error(err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(payload))
	if err != nil {
		zap.L().Error("discord: create request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		zap.L().Warn("discord: send failed", zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		zap.L().Warn("discord: unexpected status", zap.Int("status", resp.StatusCode))
	}
}
