// Package api is the HTTP client used by the offline sync engine to replay
// queued submissions against the verification endpoint.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// APIError is returned for any non-2xx response. Callers inspect StatusCode
// to decide whether a failure is worth retrying.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status %d: %s", e.StatusCode, e.Message)
}

type Client struct {
	baseURL    string
	timezone   string
	httpClient *http.Client
}

func NewClient(baseURL, timezone string) *Client {
	return &Client{
		baseURL:  baseURL,
		timezone: timezone,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Ping reports whether the API is reachable. Used as the connectivity probe
// before a drain; any response at all counts as online.
func (c *Client) Ping(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

// Submit uploads one queued proof image. A nil error means the server
// accepted the submission; network failures come back without an *APIError.
func (c *Client) Submit(ctx context.Context, token, habitID, imagePath string) error {
	file, err := os.Open(imagePath)
	if err != nil {
		return fmt.Errorf("failed to open queued image: %w", err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("habitId", habitID); err != nil {
		return fmt.Errorf("failed to build upload form: %w", err)
	}
	part, err := writer.CreateFormFile("image", filepath.Base(imagePath))
	if err != nil {
		return fmt.Errorf("failed to build upload form: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("failed to read queued image: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/verify", &body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	if c.timezone != "" {
		req.Header.Set("x-timezone", c.timezone)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	apiErr := &APIError{StatusCode: resp.StatusCode}
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil {
		apiErr.Message = payload.Error
	}
	return apiErr
}
