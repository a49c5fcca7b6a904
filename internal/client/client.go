// Package client talks to a running posqueue control API.
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

	"github.com/cassiomorais/posqueue/internal/application/status"
	"github.com/cassiomorais/posqueue/internal/controller"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// APIError is a non-2xx answer from the control API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("control API returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

// IsNotFound reports whether err is a 404 from the control API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

type Option func(*Client)

func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New builds a client for baseURL, e.g. http://127.0.0.1:8765.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   2 * time.Minute,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Status(ctx context.Context) (*status.Snapshot, error) {
	var out status.Snapshot
	return &out, c.do(ctx, http.MethodGet, "/api/v1/status", nil, &out)
}

// Enqueue queues payload. The request body is assembled by hand so the
// daemon receives the document byte for byte; encoding/json would compact it.
func (c *Client) Enqueue(ctx context.Context, payload json.RawMessage) (string, error) {
	return c.EnqueueWithKey(ctx, "", payload)
}

// EnqueueWithKey is Enqueue with an Idempotency-Key. Repeating a key returns
// the first local id instead of queuing the sale again.
func (c *Client) EnqueueWithKey(ctx context.Context, key string, payload json.RawMessage) (string, error) {
	if !json.Valid(payload) {
		return "", fmt.Errorf("encode request: payload is not valid JSON")
	}
	body := make(json.RawMessage, 0, len(payload)+len(`{"payload":}`))
	body = append(body, `{"payload":`...)
	body = append(body, payload...)
	body = append(body, '}')

	var header http.Header
	if key != "" {
		header = http.Header{"Idempotency-Key": {key}}
	}
	var out controller.EnqueueResponse
	if err := c.doWith(ctx, http.MethodPost, "/api/v1/transactions", header, body, &out); err != nil {
		return "", err
	}
	return out.LocalID, nil
}

// List returns transactions in the given statuses, or all when none are given.
func (c *Client) List(ctx context.Context, statuses ...string) (*controller.ListTransactionsResponse, error) {
	path := "/api/v1/transactions"
	if len(statuses) > 0 {
		path += "?" + url.Values{"status": {strings.Join(statuses, ",")}}.Encode()
	}
	var out controller.ListTransactionsResponse
	return &out, c.do(ctx, http.MethodGet, path, nil, &out)
}

func (c *Client) Get(ctx context.Context, localID string) (*controller.TransactionResponse, error) {
	var out controller.TransactionResponse
	return &out, c.do(ctx, http.MethodGet, "/api/v1/transactions/"+url.PathEscape(localID), nil, &out)
}

func (c *Client) Delete(ctx context.Context, localID string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/transactions/"+url.PathEscape(localID), nil, nil)
}

func (c *Client) Reset(ctx context.Context, localID string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/transactions/"+url.PathEscape(localID)+"/reset", nil, nil)
}

func (c *Client) Sync(ctx context.Context) (*controller.SyncResponse, error) {
	var out controller.SyncResponse
	return &out, c.do(ctx, http.MethodPost, "/api/v1/sync", nil, &out)
}

func (c *Client) RetryFailed(ctx context.Context) (int, error) {
	var out controller.RetryFailedResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/retry-failed", nil, &out); err != nil {
		return 0, err
	}
	return out.Requeued, nil
}

// Cleanup deletes old synced records. A nil olderThanDays uses the
// server's configured retention.
func (c *Client) Cleanup(ctx context.Context, olderThanDays *int) (int, error) {
	var body any
	if olderThanDays != nil {
		body = controller.CleanupRequest{OlderThanDays: olderThanDays}
	}
	var out controller.CleanupResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/cleanup", body, &out); err != nil {
		return 0, err
	}
	return out.Deleted, nil
}

func (c *Client) SetConnectivity(ctx context.Context, online bool) error {
	return c.do(ctx, http.MethodPut, "/api/v1/connectivity", controller.ConnectivityRequest{Online: &online}, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	return c.doWith(ctx, method, path, nil, in, out)
}

func (c *Client) doWith(ctx context.Context, method, path string, header http.Header, in, out any) error {
	var body io.Reader
	switch v := in.(type) {
	case nil:
	case json.RawMessage:
		body = bytes.NewReader(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call control API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var body controller.ErrorResponse
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		apiErr.Code = body.Code
		apiErr.Message = body.Error
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}
