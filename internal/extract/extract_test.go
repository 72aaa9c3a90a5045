package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klimatdata/disclosure-pipeline/internal/config"
	"github.com/klimatdata/disclosure-pipeline/pkg/anthropic"
)

type stubClient struct {
	replies  []string
	requests []anthropic.MessageRequest
	err      error
}

func (c *stubClient) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	c.requests = append(c.requests, req)
	if c.err != nil {
		return nil, c.err
	}
	reply := c.replies[0]
	if len(c.replies) > 1 {
		c.replies = c.replies[1:]
	}
	return &anthropic.MessageResponse{Text: reply}, nil
}

func testConfig() config.AnthropicConfig {
	return config.AnthropicConfig{
		Model:          "claude-sonnet-4-5-20250929",
		MaxTokens:      1024,
		RequestsPerMin: 6000,
		RequestBurst:   100,
	}
}

func TestExtract_ParsesPlainJSON(t *testing.T) {
	client := &stubClient{replies: []string{`{"value": 42}`}}
	e := New(client, testConfig())

	var out struct {
		Value int `json:"value"`
	}
	_, err := e.Extract(context.Background(), Request{Schema: "answer"}, &out)
	require.NoError(t, err)
	assert.Equal(t, 42, out.Value)
}

func TestExtract_ParsesFencedJSON(t *testing.T) {
	client := &stubClient{replies: []string{"Here you go:\n```json\n{\"qid\": \"Q123\"}\n```\nHope that helps."}}
	e := New(client, testConfig())

	var out struct {
		QID string `json:"qid"`
	}
	_, err := e.Extract(context.Background(), Request{Schema: "wikidata_selection"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "Q123", out.QID)
}

func TestExtract_ParseFailureIsTyped(t *testing.T) {
	client := &stubClient{replies: []string{"I could not find any data in the report."}}
	e := New(client, testConfig())

	var out map[string]any
	_, err := e.Extract(context.Background(), Request{Schema: "emissions"}, &out)
	require.Error(t, err)
	assert.True(t, IsParseError(err))
}

func TestExtract_RetryContextAppendedAsTurn(t *testing.T) {
	client := &stubClient{replies: []string{`{}`}}
	e := New(client, testConfig())

	var out map[string]any
	_, err := e.Extract(context.Background(), Request{
		Schema:       "emissions",
		Turns:        []anthropic.Message{{Role: "user", Content: "extract emissions"}},
		RetryContext: []string{"first failure", "second failure"},
	}, &out)
	require.NoError(t, err)

	require.Len(t, client.requests, 1)
	msgs := client.requests[0].Messages
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1].Content, "first failure")
	assert.Contains(t, msgs[1].Content, "second failure")
}

func TestExtractJSON_Array(t *testing.T) {
	assert.Equal(t, `[{"a":1}]`, extractJSON("result: [{\"a\":1}] done"))
}
