// Package client provides an HTTP client for the Catosphere server API,
// used by the admin CLI.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Client talks to the Catosphere server API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a new API client.
// If baseURL is empty, uses CATOSPHERE_SERVER_URL or defaults to localhost:8686.
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("CATOSPHERE_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8686"
	}

	timeout := 30 * time.Second
	if t := os.Getenv("CATOSPHERE_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL: baseURL,
		token:   os.Getenv("CATOSPHERE_TOKEN"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// apiError mirrors the server's error payload.
type apiError struct {
	Message string `json:"message"`
}

// do sends a request and decodes the JSON response into result (if non-nil).
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("server error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("server error (%d): %s", resp.StatusCode, string(data))
	}

	if result != nil {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// JobStatus is the job status payload.
type JobStatus struct {
	StoreKey  string     `json:"store_key"`
	State     string     `json:"state"`
	Progress  int        `json:"progress"`
	Done      int        `json:"done"`
	Total     int        `json:"total"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// JobLogs is the job logs payload.
type JobLogs struct {
	StoreKey   string     `json:"store_key"`
	State      string     `json:"state"`
	Progress   int        `json:"progress"`
	Logs       []string   `json:"logs"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// StopResult is the stop response payload.
type StopResult struct {
	Stopped bool   `json:"stopped"`
	Detail  string `json:"detail"`
}

// GetJobStatus fetches the current job record for a store.
func (c *Client) GetJobStatus(ctx context.Context, storeKey string) (*JobStatus, error) {
	var status JobStatus
	if err := c.do(ctx, http.MethodGet, "/api/stores/"+storeKey+"/job", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// GetJobLogs fetches the job logs for a store.
func (c *Client) GetJobLogs(ctx context.Context, storeKey string) (*JobLogs, error) {
	var logs JobLogs
	if err := c.do(ctx, http.MethodGet, "/api/stores/"+storeKey+"/job/logs", nil, &logs); err != nil {
		return nil, err
	}
	return &logs, nil
}

// StopJob requests cancellation of a store's running job.
func (c *Client) StopJob(ctx context.Context, storeKey string) (*StopResult, error) {
	var result StopResult
	if err := c.do(ctx, http.MethodPost, "/api/stores/"+storeKey+"/job/stop", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// StartReprocess starts a reprocessing job for a store.
func (c *Client) StartReprocess(ctx context.Context, storeKey string, softOnly bool) error {
	body := map[string]any{"soft_categories_only": softOnly}
	return c.do(ctx, http.MethodPost, "/api/stores/"+storeKey+"/reprocess", body, nil)
}

// TriggerDiscovery fires a manual discovery run.
func (c *Client) TriggerDiscovery(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/discovery/run", nil, nil)
}

// Onboard submits an onboarding payload.
func (c *Client) Onboard(ctx context.Context, payload map[string]any) (map[string]any, error) {
	var result map[string]any
	if err := c.do(ctx, http.MethodPost, "/api/onboard", payload, &result); err != nil {
		return nil, err
	}
	return result, nil
}
