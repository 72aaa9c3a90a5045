// Package wikidata provides a client for entity search and entity detail
// lookups against the Wikidata action API.
package wikidata

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// CarbonFootprintProperty is the claim property used as the "has emissions
// data" ranking signal.
const CarbonFootprintProperty = "P5991"

// Client defines the Wikidata operations used by the entity resolver.
type Client interface {
	// Search returns lightweight candidates for a free-text name. A
	// zero-length result is valid, not an error.
	Search(ctx context.Context, name string) ([]SearchHit, error)
	// GetEntities fetches full records, including claims, for ranking.
	GetEntities(ctx context.Context, ids []string) ([]Entity, error)
}

// SearchHit is one lightweight search result.
type SearchHit struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// Entity is a full entity record. Claims are used only for ranking and
// are stripped before the candidate list reaches the extraction service.
type Entity struct {
	ID          string                     `json:"id"`
	Label       string                     `json:"label"`
	Description string                     `json:"description"`
	Claims      map[string]json.RawMessage `json:"claims,omitempty"`
}

// HasClaim reports whether the entity carries a non-empty claim for prop.
func (e Entity) HasClaim(prop string) bool {
	raw, ok := e.Claims[prop]
	if !ok {
		return false
	}
	trimmed := strings.TrimSpace(string(raw))
	return trimmed != "" && trimmed != "null" && trimmed != "[]"
}

// WithoutClaims returns a copy with the claims map dropped, bounding the
// prompt size when candidates are shown to the model.
func (e Entity) WithoutClaims() Entity {
	e.Claims = nil
	return e
}

// Option configures the Wikidata client.
type Option func(*httpClient)

// WithBaseURL sets a custom API endpoint (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithUserAgent sets the User-Agent header required by Wikimedia APIs.
func WithUserAgent(ua string) Option {
	return func(c *httpClient) {
		c.userAgent = ua
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	baseURL   string
	userAgent string
	http      *http.Client
}

// NewClient creates a new Wikidata client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL:   "https://www.wikidata.org/w/api.php",
		userAgent: "disclosure-pipeline/1.0",
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// retryableStatusCode returns true if the status code should trigger a retry.
func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable
}

// retryDo executes a GET with exponential backoff retries on transient
// failures. Returns the body and status code of the final response.
func (c *httpClient) retryDo(ctx context.Context, reqURL string) ([]byte, int, error) {
	const maxAttempts = 3
	backoff := 1 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, 0, eris.Wrap(err, "wikidata: create request")
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			if attempt < maxAttempts {
				select {
				case <-ctx.Done():
					return nil, 0, ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= 2
				continue
			}
			return nil, 0, lastErr
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, resp.StatusCode, eris.Wrap(readErr, "wikidata: read response body")
		}

		if retryableStatusCode(resp.StatusCode) && attempt < maxAttempts {
			lastErr = eris.Errorf("wikidata: status %d: %s", resp.StatusCode, string(body))
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}

		return body, resp.StatusCode, nil
	}

	return nil, 0, lastErr
}

func (c *httpClient) Search(ctx context.Context, name string) ([]SearchHit, error) {
	q := url.Values{}
	q.Set("action", "wbsearchentities")
	q.Set("search", name)
	q.Set("language", "en")
	q.Set("type", "item")
	q.Set("limit", "20")
	q.Set("format", "json")

	body, statusCode, err := c.retryDo(ctx, c.baseURL+"?"+q.Encode())
	if err != nil {
		return nil, eris.Wrap(err, "wikidata: search request failed")
	}
	if statusCode != http.StatusOK {
		return nil, eris.Errorf("wikidata: search unexpected status %d: %s", statusCode, string(body))
	}

	var result struct {
		Search []struct {
			ID          string `json:"id"`
			Label       string `json:"label"`
			Description string `json:"description"`
		} `json:"search"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "wikidata: unmarshal search response")
	}

	hits := make([]SearchHit, 0, len(result.Search))
	for _, s := range result.Search {
		hits = append(hits, SearchHit{ID: s.ID, Label: s.Label, Description: s.Description})
	}
	return hits, nil
}

func (c *httpClient) GetEntities(ctx context.Context, ids []string) ([]Entity, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	q := url.Values{}
	q.Set("action", "wbgetentities")
	q.Set("ids", strings.Join(ids, "|"))
	q.Set("props", "labels|descriptions|claims")
	q.Set("languages", "en")
	q.Set("format", "json")

	body, statusCode, err := c.retryDo(ctx, c.baseURL+"?"+q.Encode())
	if err != nil {
		return nil, eris.Wrap(err, "wikidata: get entities request failed")
	}
	if statusCode != http.StatusOK {
		return nil, eris.Errorf("wikidata: get entities unexpected status %d: %s", statusCode, string(body))
	}

	var result struct {
		Entities map[string]struct {
			ID     string `json:"id"`
			Labels map[string]struct {
				Value string `json:"value"`
			} `json:"labels"`
			Descriptions map[string]struct {
				Value string `json:"value"`
			} `json:"descriptions"`
			Claims map[string]json.RawMessage `json:"claims"`
		} `json:"entities"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "wikidata: unmarshal entities response")
	}

	// Preserve request order; the API returns a map.
	entities := make([]Entity, 0, len(ids))
	for _, id := range ids {
		raw, ok := result.Entities[id]
		if !ok {
			continue
		}
		e := Entity{
			ID:     raw.ID,
			Claims: raw.Claims,
		}
		if l, ok := raw.Labels["en"]; ok {
			e.Label = l.Value
		}
		if d, ok := raw.Descriptions["en"]; ok {
			e.Description = d.Value
		}
		entities = append(entities, e)
	}
	return entities, nil
}
