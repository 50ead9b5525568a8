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
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// Error represents a failed REST call.
type Error struct {
	Type       ErrorType
	StatusCode int
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches sentinel errors by type.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Type == e.Type && t.StatusCode == 0 && t.Message == sentinelMessage(t.Type)
}

// ErrorType categorizes REST errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeConnection
	ErrTypeTimeout
	ErrTypeUnauthorized
	ErrTypeNotFound
	ErrTypeBadRequest
	ErrTypeServer
	ErrTypeInvalidResponse
)

// String returns the error type name.
func (t ErrorType) String() string {
	switch t {
	case ErrTypeConnection:
		return "connection"
	case ErrTypeTimeout:
		return "timeout"
	case ErrTypeUnauthorized:
		return "unauthorized"
	case ErrTypeNotFound:
		return "not_found"
	case ErrTypeBadRequest:
		return "bad_request"
	case ErrTypeServer:
		return "server"
	case ErrTypeInvalidResponse:
		return "invalid_response"
	default:
		return "unknown"
	}
}

func sentinelMessage(t ErrorType) string {
	switch t {
	case ErrTypeTimeout:
		return "request timed out"
	case ErrTypeUnauthorized:
		return "not authorized"
	case ErrTypeNotFound:
		return "not found"
	case ErrTypeConnection:
		return "server unreachable"
	default:
		return ""
	}
}

// Sentinel errors for easy checking.
var (
	ErrTimeout      = &Error{Type: ErrTypeTimeout, Message: sentinelMessage(ErrTypeTimeout)}
	ErrUnauthorized = &Error{Type: ErrTypeUnauthorized, Message: sentinelMessage(ErrTypeUnauthorized)}
	ErrNotFound     = &Error{Type: ErrTypeNotFound, Message: sentinelMessage(ErrTypeNotFound)}
	ErrUnreachable  = &Error{Type: ErrTypeConnection, Message: sentinelMessage(ErrTypeConnection)}
)

// IsNotFound checks if an error is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Type == ErrTypeNotFound
	}
	return false
}

// IsUnauthorized checks if an error means the token was rejected.
func IsUnauthorized(err error) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Type == ErrTypeUnauthorized
	}
	return false
}

// IsTimeout checks if an error is a timeout error.
func IsTimeout(err error) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Type == ErrTypeTimeout
	}
	return false
}

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// Config holds configuration options for the REST client.
type Config struct {
	// BaseURL is the server origin (default: http://localhost:5000)
	BaseURL string

	// Token is the JWT sent as a bearer token.
	Token string

	// Timeout for each request (default: 30s)
	Timeout time.Duration

	// Logger receives request diagnostics.
	Logger *log.Logger

	// HTTPClient overrides the underlying client.
	HTTPClient *http.Client
}

// DefaultBaseURL is the development server address.
const DefaultBaseURL = "http://localhost:5000"

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the chat server's REST API. It performs no retries.
//
// The Client is safe for concurrent use.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *log.Logger
}

// NewClient creates a REST client, filling defaults for zero values.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard)
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: hc,
		logger:     cfg.Logger,
	}
}

// BaseURL returns the server origin.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// HasToken reports whether a bearer token is configured.
func (c *Client) HasToken() bool {
	return c.token != ""
}

// do sends a JSON request and decodes a JSON response into out (if non-nil).
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return &Error{Type: ErrTypeBadRequest, Message: "failed to marshal request", Cause: err}
		}
		body = bytes.NewReader(data)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return &Error{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return ErrTimeout
		}
		if errors.Is(err, context.Canceled) {
			return &Error{Type: ErrTypeConnection, Message: "request canceled", Cause: err}
		}
		return &Error{Type: ErrTypeConnection, Message: "server unreachable", Cause: err}
	}
	defer drainAndClose(resp.Body)

	c.logger.Debug("rest call", "method", method, "path", path, "status", resp.StatusCode, "took", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Type: ErrTypeInvalidResponse, StatusCode: resp.StatusCode, Message: "failed to decode response", Cause: err}
	}
	return nil
}

// statusError maps a non-2xx response to an *Error, keeping the server's
// {"error": "..."} message when present.
func statusError(resp *http.Response) error {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Msg     string `json:"msg"` // flask-jwt-extended
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	_ = json.Unmarshal(data, &payload)

	msg := payload.Error
	if msg == "" {
		msg = payload.Message
	}
	if msg == "" {
		msg = payload.Msg
	}
	if msg == "" {
		msg = fmt.Sprintf("request failed: %s", resp.Status)
	}

	e := &Error{StatusCode: resp.StatusCode, Message: msg}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden ||
		resp.StatusCode == http.StatusUnprocessableEntity:
		e.Type = ErrTypeUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		e.Type = ErrTypeNotFound
	case resp.StatusCode >= 500:
		e.Type = ErrTypeServer
	case resp.StatusCode >= 400:
		e.Type = ErrTypeBadRequest
	default:
		e.Type = ErrTypeInvalidResponse
	}
	return e
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

// Helper to drain response body
func drainAndClose(r io.ReadCloser) {
	_, _ = io.Copy(io.Discard, r)
	r.Close()
}
