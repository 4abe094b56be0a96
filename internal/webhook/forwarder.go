// Package webhook relays JSON payloads to automation providers.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"leadboard/internal/security"
)

const (
	// MaxResponseBytes caps how much of an upstream response is relayed.
	MaxResponseBytes = 1 << 20 // 1 MB

	DefaultTimeout = 30 * time.Second

	maxRedirects = 5
)

// Result is the upstream response to a forward.
type Result struct {
	StatusCode int
	Body       []byte
	// JSON is true when Body parsed as a JSON value.
	JSON bool
}

// Success reports whether the upstream answered 2xx.
func (r *Result) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Forwarder posts payloads to validated targets. Redirects are followed
// only when the guard accepts every hop.
type Forwarder struct {
	httpClient *http.Client
	guard      *security.TargetGuard
	maxBytes   int64
}

type Option func(*Forwarder)

// WithHTTPClient sets the client used for forwards. Its CheckRedirect is
// replaced so redirects stay under the guard.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Forwarder) {
		if c != nil {
			clone := *c
			f.httpClient = &clone
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(f *Forwarder) {
		if d > 0 {
			f.httpClient.Timeout = d
		}
	}
}

// WithMaxResponseBytes overrides MaxResponseBytes.
func WithMaxResponseBytes(n int64) Option {
	return func(f *Forwarder) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

// NewForwarder creates a forwarder. A nil guard follows redirects without
// checking them.
func NewForwarder(guard *security.TargetGuard, opts ...Option) *Forwarder {
	f := &Forwarder{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		guard:      guard,
		maxBytes:   MaxResponseBytes,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.httpClient.CheckRedirect = f.checkRedirect
	return f
}

func (f *Forwarder) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	if f.guard == nil {
		return nil
	}
	return f.guard.CheckHost(req.URL.Hostname())
}

// Forward posts data as JSON to target and returns the upstream response.
// An error means no response was received; upstream error statuses are
// returned as a Result.
func (f *Forwarder) Forward(ctx context.Context, target *url.URL, data json.RawMessage) (*Result, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		data = json.RawMessage("null")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/plain, */*")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, describe(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read upstream response: %w", err)
	}

	return &Result{
		StatusCode: resp.StatusCode,
		Body:       body,
		JSON:       isJSON(body),
	}, nil
}

// describe unwraps url.Error so a blocked redirect reads as the guard's
// message rather than the client's wrapping. Other client errors keep
// their wrapping with the URL redacted, since it ends up in logs and the
// forward history.
func describe(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		var te *security.TargetError
		if errors.As(urlErr.Err, &te) {
			return te
		}
		return &url.Error{Op: urlErr.Op, URL: security.RedactURL(urlErr.URL), Err: urlErr.Err}
	}
	return err
}

func isJSON(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) > 0 && json.Valid(trimmed)
}
