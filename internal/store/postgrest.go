package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"leadboard/internal/resource"
)

const (
	// MaxResponseBytes bounds how much of a backend response is read.
	MaxResponseBytes = 10_000_000 // 10 MB

	restPath = "/rest/v1/"
)

// PostgREST talks to a Supabase project through its REST interface using
// the service-role key.
type PostgREST struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// PostgRESTOption configures a PostgREST store.
type PostgRESTOption func(*PostgREST)

// WithHTTPClient replaces the underlying HTTP client. Its transport is
// still wrapped so every request carries the service-role bearer token.
func WithHTTPClient(c *http.Client) PostgRESTOption {
	return func(p *PostgREST) {
		if c == nil {
			return
		}
		base := c.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		p.httpClient = &http.Client{
			Timeout:   c.Timeout,
			Transport: &oauth2.Transport{Source: staticKey(p.apiKey), Base: base},
		}
	}
}

// NewPostgREST creates a store for the project at projectURL
// (e.g. https://xyzcompany.supabase.co).
func NewPostgREST(projectURL, serviceKey string, timeout time.Duration, opts ...PostgRESTOption) (*PostgREST, error) {
	u, err := url.Parse(strings.TrimSpace(projectURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid backend URL '%s'", projectURL)
	}
	if serviceKey == "" {
		return nil, fmt.Errorf("service role key is required")
	}

	p := &PostgREST{
		baseURL: strings.TrimRight(u.String(), "/") + restPath,
		apiKey:  serviceKey,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: &oauth2.Transport{Source: staticKey(serviceKey), Base: http.DefaultTransport},
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func staticKey(key string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: key, TokenType: "Bearer"})
}

// Close is a no-op; the HTTP client holds no resources that need releasing.
func (p *PostgREST) Close() error {
	return nil
}

// Ping requests the OpenAPI root, which succeeds for any valid key.
func (p *PostgREST) Ping(ctx context.Context) error {
	resp, err := p.do(ctx, http.MethodGet, "", nil, nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, MaxResponseBytes))
	return nil
}

// Select maps q onto PostgREST query parameters.
func (p *PostgREST) Select(ctx context.Context, table string, q Query) ([]resource.Record, error) {
	if err := q.Validate(); err != nil {
		return nil, newQueryError("invalid_query", err.Error(), err)
	}

	params := url.Values{}
	params.Set("select", "*")
	for _, f := range q.Filters {
		params.Add(f.Field, "eq."+f.Value)
	}
	if len(q.Order) > 0 {
		parts := make([]string, 0, len(q.Order))
		for _, o := range q.Order {
			dir := "asc"
			if o.Desc {
				dir = "desc"
			}
			parts = append(parts, o.Field+"."+dir)
		}
		params.Set("order", strings.Join(parts, ","))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}

	return p.rows(ctx, http.MethodGet, table, params, nil)
}

// Insert posts one record and returns the stored representation.
func (p *PostgREST) Insert(ctx context.Context, table string, rec resource.Record) (resource.Record, error) {
	if err := validateRecord(rec); err != nil {
		return nil, newQueryError("invalid_record", err.Error(), err)
	}
	rows, err := p.rows(ctx, http.MethodPost, table, nil, rec)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		// RLS can hide the inserted row from the representation
		return rec, nil
	}
	return rows[0], nil
}

// Update patches the record with id.
func (p *PostgREST) Update(ctx context.Context, table, id string, patch resource.Record) (resource.Record, error) {
	if len(patch) == 0 {
		return SelectOne(ctx, p, table, id)
	}
	if err := validateRecord(patch); err != nil {
		return nil, newQueryError("invalid_record", err.Error(), err)
	}
	params := url.Values{}
	params.Set("id", "eq."+id)

	rows, err := p.rows(ctx, http.MethodPatch, table, params, patch)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

// Delete removes the record with id.
func (p *PostgREST) Delete(ctx context.Context, table, id string) error {
	params := url.Values{}
	params.Set("id", "eq."+id)

	rows, err := p.rows(ctx, http.MethodDelete, table, params, nil)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return ErrNotFound
	}
	return nil
}

// rows performs a request asking for the affected rows back.
func (p *PostgREST) rows(ctx context.Context, method, table string, params url.Values, body resource.Record) ([]resource.Record, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode record: %w", err)
		}
	}

	headers := http.Header{}
	if method != http.MethodGet {
		headers.Set("Prefer", "return=representation")
	}

	resp, err := p.do(ctx, method, table, params, payload, headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read backend response: %w", err)
	}

	records := []resource.Record{}
	if len(bytes.TrimSpace(data)) == 0 {
		return records, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to decode backend response: %w", err)
	}
	return records, nil
}

// do sends the request and converts non-2xx responses into QueryErrors.
func (p *PostgREST) do(ctx context.Context, method, table string, params url.Values, payload []byte, headers http.Header) (*http.Response, error) {
	endpoint := p.baseURL + url.PathEscape(table)
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build backend request: %w", err)
	}
	for k, v := range headers {
		req.Header[k] = v
	}
	req.Header.Set("apikey", p.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, newQueryError("", fmt.Sprintf("backend request failed: %v", err), err)
	}

	if resp.StatusCode/100 != 2 {
		defer resp.Body.Close()
		return nil, decodeRESTError(resp)
	}
	return resp, nil
}

func decodeRESTError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var qe QueryError
	if err := json.Unmarshal(data, &qe); err == nil && qe.Message != "" {
		return &qe
	}

	msg := strings.TrimSpace(string(data))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &QueryError{Code: strconv.Itoa(resp.StatusCode), Message: msg}
}
