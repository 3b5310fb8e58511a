// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Configuration constants for the backend client.
const (
	// DefaultBaseURL is used when no base URL is configured.
	DefaultBaseURL = "http://localhost:5000"

	// DefaultTimeout is the default timeout for a single request.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries is the number of attempts for idempotent requests.
	DefaultMaxRetries = 3

	// DefaultRateLimit is the sustained requests per second.
	DefaultRateLimit = 5

	// DefaultBurst is the request burst allowed above the sustained rate.
	DefaultBurst = 10

	// MaxResponseSize is the maximum accepted response body size.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB

	retryBaseDelay = 500 * time.Millisecond
	retryMaxDelay  = 10 * time.Second

	userAgent = "askchat/1.0"
)

// =============================================================================
// WIRE TYPES
// =============================================================================

// Credentials is the login request body.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration is the register request body.
type Registration struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// User is the profile part of an auth response.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// AuthResponse is returned by login and register.
type AuthResponse struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}

// askRequest is the ask body. Token is omitted for anonymous questions.
type askRequest struct {
	Question string `json:"question"`
	Token    string `json:"token,omitempty"`
}

// Message is one question/answer pair in a saved chat.
type Message struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// SavedChat is one server-side conversation.
type SavedChat struct {
	ID       int64     `json:"id"`
	Messages []Message `json:"messages"`
}

// =============================================================================
// CLIENT
// =============================================================================

// Config holds configuration for a Client.
type Config struct {
	// BaseURL is the backend root (default: http://localhost:5000).
	BaseURL string

	// Timeout bounds each HTTP request (default: 60 seconds).
	Timeout time.Duration

	// MaxRetries is the attempt count for the history GET (default: 3).
	MaxRetries int

	// RateLimit and Burst configure the client-side throttle.
	RateLimit float64
	Burst     int

	// HTTPClient overrides the transport. Timeout is ignored when set.
	HTTPClient *http.Client

	// Logger receives request/response lines (default: slog.Default()).
	Logger *slog.Logger
}

// Client talks to the chat backend. Safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	limiter    *rate.Limiter
	logger     *slog.Logger
	backoff    func(attempt int) time.Duration
}

// NewClient creates a client, filling zero fields of cfg with defaults.
func NewClient(cfg Config) *Client {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = DefaultRateLimit
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultBurst
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		}
	}
	return &Client{
		baseURL:    strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/"),
		httpClient: httpClient,
		maxRetries: cfg.MaxRetries,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		logger:     cfg.Logger,
		backoff:    calculateBackoff,
	}
}

// BaseURL returns the backend root the client sends to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Login exchanges credentials for a profile and bearer token.
func (c *Client) Login(ctx context.Context, creds Credentials) (*AuthResponse, error) {
	return c.authenticate(ctx, "/auth/login", creds)
}

// Register creates an account and returns its profile and bearer token.
func (c *Client) Register(ctx context.Context, reg Registration) (*AuthResponse, error) {
	return c.authenticate(ctx, "/auth/register", reg)
}

func (c *Client) authenticate(ctx context.Context, path string, body any) (*AuthResponse, error) {
	data, err := c.do(ctx, http.MethodPost, path, body, "")
	if err != nil {
		return nil, err
	}
	var resp AuthResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidResponse, path, err)
	}
	if resp.Token == "" {
		return nil, fmt.Errorf("%w: %s: missing token", ErrInvalidResponse, path)
	}
	return &resp, nil
}

// Ask sends a question. token may be empty for anonymous questions.
//
// The returned answer is empty when the JSON response lacked a string
// "answer"; callers decide what to display in that case. A 2xx body that is
// not JSON returns ErrInvalidResponse.
func (c *Client) Ask(ctx context.Context, question, token string) (string, error) {
	data, err := c.do(ctx, http.MethodPost, "/api/chat/ask", askRequest{Question: question, Token: token}, "")
	if err != nil {
		return "", err
	}
	var body struct {
		Answer json.RawMessage `json:"answer"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return "", fmt.Errorf("%w: ask: %v", ErrInvalidResponse, err)
	}
	return rawString(body.Answer), nil
}

// History fetches the user's saved chats. Transient failures (5xx, 429,
// transport errors) are retried with exponential backoff.
func (c *Client) History(ctx context.Context, token string) ([]SavedChat, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrNetwork, ctx.Err())
			case <-time.After(c.backoff(attempt)):
			}
		}

		data, err := c.do(ctx, http.MethodGet, "/api/chat/history", nil, token)
		if err != nil {
			if !isRetryable(ctx, err) {
				return nil, err
			}
			lastErr = err
			continue
		}

		var chats []SavedChat
		if err := json.Unmarshal(data, &chats); err != nil {
			return nil, fmt.Errorf("%w: history: %v", ErrInvalidResponse, err)
		}
		return chats, nil
	}
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// do performs one request and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, method, path string, body any, bearer string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	requestID := uuid.NewString()
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Request-ID", requestID)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	c.logRequest(req, requestID)
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	req.Header.Del("Authorization")
	if err != nil {
		c.logger.Debug("API request failed", "method", method, "path", path, "request_id", requestID, "error", err)
		return nil, fmt.Errorf("%w: %s %s: %v", ErrNetwork, method, path, err)
	}
	defer resp.Body.Close()
	c.logResponse(req, resp, requestID, time.Since(start))

	data, err := readResponse(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newError(resp.StatusCode, data)
	}
	return data, nil
}

// logRequest logs method and path. Headers and bodies are never logged.
func (c *Client) logRequest(req *http.Request, requestID string) {
	c.logger.Debug("API request", "method", req.Method, "path", req.URL.Path, "request_id", requestID)
}

func (c *Client) logResponse(req *http.Request, resp *http.Response, requestID string, d time.Duration) {
	c.logger.Debug("API response",
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"request_id", requestID,
		"duration", d)
}

// readResponse reads the body up to MaxResponseSize.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrNetwork, err)
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, fmt.Errorf("%w: exceeded %d bytes", ErrResponseTooLarge, MaxResponseSize)
	}
	return body, nil
}

// isRetryable reports whether a failed history fetch may be retried.
func isRetryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return errors.Is(err, ErrNetwork)
}

// calculateBackoff returns the delay before attempt: 1s, 2s, 4s... capped.
func calculateBackoff(attempt int) time.Duration {
	delay := retryBaseDelay * time.Duration(1<<uint(attempt))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}
