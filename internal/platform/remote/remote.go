// Package remote holds the JSON-over-HTTP plumbing shared by the provider and
// payment gateway clients.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/linebroker/internal/domain/shared"
)

const maxBodyBytes = 1 << 20

// StatusError is a non-2xx answer the remote gave deliberately.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("remote returned %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("remote returned %d: %s", e.StatusCode, e.Message)
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Caller performs JSON requests against one base URL.
type Caller struct {
	dependency string
	baseURL    string
	client     *http.Client
}

// NewCaller creates a Caller with a per-request timeout
func NewCaller(dependency, baseURL string, timeout time.Duration) *Caller {
	return &Caller{
		dependency: dependency,
		baseURL:    strings.TrimRight(baseURL, "/"),
		client:     &http.Client{Timeout: timeout},
	}
}

// Dependency returns the dependency name used in errors
func (c *Caller) Dependency() string {
	return c.dependency
}

// Do sends in as JSON (when non-nil) and decodes a 2xx body into out (when non-nil).
// Transport failures, 408, 429 and 5xx come back as *shared.TransientError; any
// other non-2xx answer as *StatusError.
func (c *Caller) Do(ctx context.Context, method, path string, headers http.Header, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for key, values := range headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return &shared.TransientError{Dependency: c.dependency, Err: fmt.Errorf("HTTP request failed: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &shared.TransientError{Dependency: c.dependency, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := &StatusError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
		var envelope errorEnvelope
		if json.Unmarshal(respBody, &envelope) == nil && envelope.Error.Code != "" {
			statusErr.Code = envelope.Error.Code
			statusErr.Message = envelope.Error.Message
		}
		if IsTransientStatus(resp.StatusCode) {
			return &shared.TransientError{Dependency: c.dependency, StatusCode: resp.StatusCode, Err: statusErr}
		}
		return statusErr
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// IsTransientStatus reports whether an HTTP status is worth retrying
func IsTransientStatus(code int) bool {
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500
}
