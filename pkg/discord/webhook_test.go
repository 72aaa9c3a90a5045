package discord

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSend_PostsContent(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	NewSender(srv.URL).Send(context.Background(), "diff ready for review")
	assert.Equal(t, "diff ready for review", got["content"])
}

func TestSend_TruncatesLongMessages(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	NewSender(srv.URL).Send(context.Background(), strings.Repeat("x", 5000))
	assert.Len(t, got["content"], maxMessageLen)
	assert.True(t, strings.HasSuffix(got["content"], "..."))
}

func TestSend_EmptyWebhookIsNoop(t *testing.T) {
	// Must not panic or attempt a request.
	NewSender("").Send(context.Background(), "hello")
}

func TestSend_ServerErrorDoesNotPropagate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	// Send has no error return; the failure is logged only.
	NewSender(srv.URL).Send(context.Background(), "hello")
}
