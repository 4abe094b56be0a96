// Package client is a Go client for the leadboard HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// Record is one row of a collection as JSON fields.
type Record map[string]any

// APIError is a non-2xx answer from the service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("leadboard: %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the service.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// ForwardResult is the relayed answer of a webhook forward.
type ForwardResult struct {
	Success bool            `json:"success"`
	Status  int             `json:"status"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Client talks to one leadboard service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient = &http.Client{Timeout: d}
	}
}

// New creates a client for the service at baseURL. apiKey is sent as both
// apikey and bearer credential; it may be empty when auth is disabled.
func New(baseURL, apiKey string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("leadboard: invalid base URL %q", baseURL)
	}

	c := &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// List returns the records of a collection. params carries limit, order
// and equality filters.
func (c *Client) List(ctx context.Context, collection string, params url.Values) ([]Record, error) {
	path := "/" + url.PathEscape(collection)
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var rows []Record
	if err := c.doEnvelope(ctx, http.MethodGet, path, nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Get returns one record. Only leads support lookup by id.
func (c *Client) Get(ctx context.Context, collection, id string) (Record, error) {
	var rec Record
	if err := c.doEnvelope(ctx, http.MethodGet, recordPath(collection, id), nil, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (c *Client) Create(ctx context.Context, collection string, fields Record) (Record, error) {
	var rec Record
	if err := c.doEnvelope(ctx, http.MethodPost, "/"+url.PathEscape(collection), fields, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (c *Client) Update(ctx context.Context, collection, id string, fields Record) (Record, error) {
	var rec Record
	if err := c.doEnvelope(ctx, http.MethodPatch, recordPath(collection, id), fields, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (c *Client) Delete(ctx context.Context, collection, id string) error {
	_, err := c.do(ctx, http.MethodDelete, recordPath(collection, id), nil)
	return err
}

// ForwardWebhook asks the service to relay data to targetURL. A rejected
// target or a failed forward is an *APIError; an upstream error status is
// reported in the result.
func (c *Client) ForwardWebhook(ctx context.Context, targetURL string, data any) (*ForwardResult, error) {
	body := map[string]any{"targetUrl": targetURL, "data": data}

	raw, err := c.do(ctx, http.MethodPost, "/proxy-webhook", body)
	if err != nil {
		var apiErr *APIError
		if !errors.As(err, &apiErr) || len(raw) == 0 || hasErrorField(raw) {
			return nil, err
		}
	}

	var res ForwardResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("leadboard: decode forward result: %w", err)
	}
	return &res, nil
}

// Health reports whether the service and its backend are reachable.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/health", nil)
	return err
}

func recordPath(collection, id string) string {
	return "/" + url.PathEscape(collection) + "/" + url.PathEscape(id)
}

func (c *Client) doEnvelope(ctx context.Context, method, path string, body any, out any) error {
	raw, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}

	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("leadboard: decode response: %w", err)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("leadboard: decode data: %w", err)
	}
	return nil
}

// do sends the request and returns the raw body. A non-2xx status is
// returned as *APIError together with the body.
func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("leadboard: marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("leadboard: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("leadboard: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("leadboard: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return raw, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(raw, resp.Status)}
	}
	return raw, nil
}

// errorMessage extracts the error field of a response body. It is either a
// string or a backend error object with a message.
func errorMessage(raw []byte, fallback string) string {
	var body struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || len(body.Error) == 0 {
		return fallback
	}

	var msg string
	if err := json.Unmarshal(body.Error, &msg); err == nil && msg != "" {
		return msg
	}

	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body.Error, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	return fallback
}

func hasErrorField(raw []byte) bool {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(raw, &body); err != nil {
		return true
	}
	_, ok := body["error"]
	return ok
}
