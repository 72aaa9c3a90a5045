// Package portal provides the client for the disclosure portal API, the
// system of record behind the pipeline. Every mutation goes through Upsert
// with an attribution envelope; writes are idempotent per logical key.
package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/klimatdata/disclosure-pipeline/internal/model"
	"github.com/klimatdata/disclosure-pipeline/internal/resilience"
)

// Endpoint names one sub-fragment upsert operation.
type Endpoint string

// Period-scoped endpoints.
const (
	EndpointScope1      Endpoint = "scope1"
	EndpointScope2      Endpoint = "scope2"
	EndpointScope3      Endpoint = "scope3"
	EndpointBiogenic    Endpoint = "biogenic"
	EndpointStatedTotal Endpoint = "statedTotal"
	EndpointScope1And2  Endpoint = "scope1And2"
	EndpointTurnover    Endpoint = "turnover"
	EndpointEmployees   Endpoint = "employees"
)

// Company-scoped endpoints.
const (
	EndpointGoals       Endpoint = "goals"
	EndpointInitiatives Endpoint = "initiatives"
	EndpointEqualities  Endpoint = "equalities"
	EndpointIndustry    Endpoint = "industry"
)

// periodScoped lists endpoints addressed per reporting period.
var periodScoped = map[Endpoint]bool{
	EndpointScope1:      true,
	EndpointScope2:      true,
	EndpointScope3:      true,
	EndpointBiogenic:    true,
	EndpointStatedTotal: true,
	EndpointScope1And2:  true,
	EndpointTurnover:    true,
	EndpointEmployees:   true,
}

// EntityKey addresses the target of an upsert. Year is required for
// period-scoped endpoints and ignored otherwise.
type EntityKey struct {
	WikidataID string
	Year       string
}

// NotFoundError reports that the target record does not exist, as opposed
// to a generic persistence failure.
type NotFoundError struct {
	Endpoint Endpoint
	Key      EntityKey
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("portal: %s not found for %s/%s", e.Endpoint, e.Key.WikidataID, e.Key.Year)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// Client defines the persistence gateway operations.
type Client interface {
	// GetCompany fetches the stored snapshot used as the diff baseline.
	// A company the portal has never seen yields a NotFoundError.
	GetCompany(ctx context.Context, wikidataID string) (*model.CompanySnapshot, error)
	// Upsert writes one sub-fragment. A nil value is an explicit delete.
	// Calls are idempotent per (endpoint, key).
	Upsert(ctx context.Context, endpoint Endpoint, key EntityKey, value any, meta model.Metadata) (json.RawMessage, error)
}

// Option configures the portal client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a new portal client.
func NewClient(baseURL, token string, opts ...Option) Client {
	c := &httpClient{
		baseURL: baseURL,
		token:   token,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) GetCompany(ctx context.Context, wikidataID string) (*model.CompanySnapshot, error) {
	reqURL := fmt.Sprintf("%s/companies/%s", c.baseURL, wikidataID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "portal: create request")
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "portal: get company")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "portal: read response body")
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, &NotFoundError{Key: EntityKey{WikidataID: wikidataID}}
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		return nil, resilience.NewTransientError(
			eris.Errorf("portal: get company status %d: %s", resp.StatusCode, string(body)),
			resp.StatusCode,
		)
	case resp.StatusCode != http.StatusOK:
		return nil, eris.Errorf("portal: get company status %d: %s", resp.StatusCode, string(body))
	}

	var snapshot model.CompanySnapshot
	if err := json.Unmarshal(body, &snapshot); err != nil {
		return nil, eris.Wrap(err, "portal: unmarshal company")
	}
	return &snapshot, nil
}

// upsertBody is the wire form of a single sub-fragment write.
type upsertBody struct {
	Value    any            `json:"value"`
	Metadata model.Metadata `json:"metadata"`
}

func (c *httpClient) Upsert(ctx context.Context, endpoint Endpoint, key EntityKey, value any, meta model.Metadata) (json.RawMessage, error) {
	var reqURL string
	if periodScoped[endpoint] {
		if key.Year == "" {
			return nil, eris.Errorf("portal: %s requires a reporting year", endpoint)
		}
		reqURL = fmt.Sprintf("%s/companies/%s/periods/%s/%s", c.baseURL, key.WikidataID, key.Year, endpoint)
	} else {
		reqURL = fmt.Sprintf("%s/companies/%s/%s", c.baseURL, key.WikidataID, endpoint)
	}

	payload, err := json.Marshal(upsertBody{Value: value, Metadata: meta})
	if err != nil {
		return nil, eris.Wrapf(err, "portal: marshal %s body", endpoint)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "portal: create request")
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "portal: upsert %s", endpoint)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "portal: read response body")
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, &NotFoundError{Endpoint: endpoint, Key: key}
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		return nil, resilience.NewTransientError(
			eris.Errorf("portal: upsert %s status %d: %s", endpoint, resp.StatusCode, string(body)),
			resp.StatusCode,
		)
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated:
		return nil, eris.Errorf("portal: upsert %s status %d: %s", endpoint, resp.StatusCode, string(body))
	}

	return json.RawMessage(body), nil
}

func (c *httpClient) setHeaders(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")
}
