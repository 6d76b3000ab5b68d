// Package backend is the HTTP client for the EarthMate footprint service.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/earthmate/earthmate/internal/domain"
)

const (
	// RequestIDHeader correlates client logs with backend logs.
	RequestIDHeader = "X-Request-ID"

	maxResponseSize = 4 << 20 // 4MB
)

// Health is the backend's root status document.
type Health struct {
	Status string `json:"status"`
}

// Client talks to the backend. It holds no session state.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a client for baseURL. timeout bounds each request.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured backend root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ActionPlan requests a footprint estimate. Any JSON body is returned as a
// result, including error-shaped ones; only transport and decode failures
// are returned as errors.
func (c *Client) ActionPlan(ctx context.Context, payload domain.PlanPayload) (*domain.PlanResult, error) {
	var result domain.PlanResult
	if err := c.do(ctx, http.MethodPost, "/action_plan", payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Chat sends one user message and returns the assistant's answer.
func (c *Client) Chat(ctx context.Context, message string) (*domain.ChatReply, error) {
	var reply domain.ChatReply
	body := struct {
		Message string `json:"message"`
	}{message}
	if err := c.do(ctx, http.MethodPost, "/chat", body, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// Health probes the backend root.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.do(ctx, http.MethodGet, "/", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	reqID := uuid.NewString()
	req.Header.Set(RequestIDHeader, reqID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("backend request failed",
			"path", path,
			"request_id", reqID,
			"error", err,
		)
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("failed to close response body", "path", path, "error", closeErr)
		}
	}()

	c.logger.Debug("backend response",
		"path", path,
		"request_id", reqID,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	// Error statuses still carry a JSON body worth showing, so the status
	// code alone is not treated as a failure.
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(out); err != nil {
		c.logger.Warn("backend response not decodable",
			"path", path,
			"request_id", reqID,
			"status", resp.StatusCode,
			"error", err,
		)
		return fmt.Errorf("decode %s response (status %d): %w", path, resp.StatusCode, err)
	}
	return nil
}
