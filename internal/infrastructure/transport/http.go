// Package transport submits queued transactions to the remote ledger API.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	domainErrors "github.com/cassiomorais/posqueue/internal/domain/errors"
	"github.com/cassiomorais/posqueue/internal/infrastructure/observability"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	breakerName     = "remote-ledger"
	maxResponseBody = 1 << 20

	defaultCSRFHeader = "X-CSRF-Token"
)

// Request is one submission. Payload is sent byte for byte.
type Request struct {
	LocalID     string
	Payload     json.RawMessage
	BearerToken string
	CSRFToken   string
}

// Response is a successful submission.
type Response struct {
	RemoteID   string
	StatusCode int
}

type Config struct {
	APIBase          string
	Timeout          time.Duration
	CSRFHeader       string
	BreakerThreshold uint32
	BreakerTimeout   time.Duration
}

// Client posts transactions to {APIBase}/transactions behind a circuit
// breaker. Only transport errors and 5xx responses count against the
// breaker; a 4xx is the server answering, not the server failing.
type Client struct {
	httpClient *http.Client
	endpoint   string
	csrfHeader string
	breaker    *gobreaker.CircuitBreaker[*Response]
	metrics    *observability.Metrics
	logger     zerolog.Logger
}

type Option func(*Client)

func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithRoundTripper replaces the base transport under the tracing wrapper.
func WithRoundTripper(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.httpClient.Transport = otelhttp.NewTransport(rt)
	}
}

func NewClient(cfg Config, opts ...Option) (*Client, error) {
	endpoint, err := url.JoinPath(cfg.APIBase, "transactions")
	if err != nil {
		return nil, fmt.Errorf("invalid api base %q: %w", cfg.APIBase, err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Jar:       jar,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		endpoint:   endpoint,
		csrfHeader: cfg.CSRFHeader,
		logger:     zerolog.Nop(),
	}
	if c.csrfHeader == "" {
		c.csrfHeader = defaultCSRFHeader
	}
	for _, opt := range opts {
		opt(c)
	}

	threshold := cfg.BreakerThreshold
	if threshold == 0 {
		threshold = 5
	}
	breakerTimeout := cfg.BreakerTimeout
	if breakerTimeout <= 0 {
		breakerTimeout = 30 * time.Second
	}

	c.breaker = gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: countsAsHealthy,
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
			if c.metrics != nil {
				c.metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	})

	return c, nil
}

// Submit posts one transaction and returns the server-assigned id.
func (c *Client) Submit(ctx context.Context, req Request) (*Response, error) {
	resp, err := c.breaker.Execute(func() (*Response, error) {
		return c.do(ctx, req)
	})

	result := "success"
	if err != nil {
		result = "failure"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			result = "rejected"
			err = domainErrors.ErrCircuitOpen
		}
	}
	if c.metrics != nil {
		c.metrics.CircuitBreakerRequests.WithLabelValues(breakerName, result).Inc()
	}
	return resp, err
}

// BreakerState exposes the breaker state for status reporting.
func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}

func (c *Client) do(ctx context.Context, req Request) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(req.Payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.LocalID)
	if req.BearerToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.BearerToken)
	}
	if req.CSRFToken != "" {
		httpReq.Header.Set(c.csrfHeader, req.CSRFToken)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, domainErrors.NewRemoteError(httpResp.StatusCode, strings.TrimSpace(string(body)))
	}

	remoteID, err := parseRemoteID(body)
	if err != nil {
		return nil, fmt.Errorf("HTTP %d: %w", httpResp.StatusCode, err)
	}
	return &Response{RemoteID: remoteID, StatusCode: httpResp.StatusCode}, nil
}

// parseRemoteID pulls "id" from the response body. Servers return it either
// as a string or as a number.
func parseRemoteID(body []byte) (string, error) {
	var envelope struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.ID) == 0 {
		return "", domainErrors.ErrMissingRemoteID
	}

	var s string
	if err := json.Unmarshal(envelope.ID, &s); err == nil {
		if s == "" {
			return "", domainErrors.ErrMissingRemoteID
		}
		return s, nil
	}

	var n json.Number
	if err := json.Unmarshal(envelope.ID, &n); err == nil {
		return n.String(), nil
	}
	return "", domainErrors.ErrMissingRemoteID
}

func countsAsHealthy(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, domainErrors.ErrMissingRemoteID) {
		return true
	}
	var remote *domainErrors.RemoteError
	if errors.As(err, &remote) {
		return !remote.Temporary()
	}
	return false
}
