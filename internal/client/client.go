// Package client is a small HTTP client for the POST /query endpoint.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const DefaultURL = "http://localhost:8000"

// ErrNotReady is returned while the service is still building its index.
var ErrNotReady = errors.New("service is not ready")

// APIError is a non-2xx reply other than 503.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("query service returned %d: %s", e.Status, e.Message)
}

// NotReadyError carries the server's Retry-After hint.
type NotReadyError struct {
	RetryAfter time.Duration
}

func (e *NotReadyError) Error() string { return ErrNotReady.Error() }

func (e *NotReadyError) Unwrap() error { return ErrNotReady }

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if timeout <= 0 {
		timeout = 150 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Ask posts question and returns the answer.
func (c *Client) Ask(ctx context.Context, question string) (string, error) {
	data, err := json.Marshal(map[string]string{"question": question})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/query", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		var out struct {
			Answer *string `json:"answer"`
		}
		if err := json.Unmarshal(body, &out); err != nil || out.Answer == nil {
			return "", fmt.Errorf("unexpected response body: %s", strings.TrimSpace(string(body)))
		}
		return *out.Answer, nil
	case resp.StatusCode == http.StatusServiceUnavailable:
		var wait time.Duration
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			wait = time.Duration(secs) * time.Second
		}
		return "", &NotReadyError{RetryAfter: wait}
	default:
		var env struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(body, &env); err != nil || env.Message == "" {
			env.Message = strings.TrimSpace(string(body))
		}
		return "", &APIError{Status: resp.StatusCode, Message: env.Message}
	}
}
