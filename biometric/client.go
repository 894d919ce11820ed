/*
Package biometric is an HTTP client for the external face-comparison oracle.

PROTOCOL:
  POST {baseURL}/compare
  {"reference": "<base64>", "candidate": "<base64>"}

  200 {"match": true, "score": 0.93}

  Any other status is an error. The validator treats oracle errors as a
  soft pass, so the client never decides on its own.

USAGE:
  faces := biometric.NewClient("http://faces.internal:9000", 5*time.Second)
  validator.Faces = faces
*/
package biometric

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client implements attendance.FaceMatcher over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a client. timeout bounds each request in addition to
// the caller's context.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// WithAPIKey sets the bearer token sent with every request.
func (c *Client) WithAPIKey(key string) *Client {
	c.apiKey = key
	return c
}

type compareRequest struct {
	Reference []byte `json:"reference"`
	Candidate []byte `json:"candidate"`
}

type compareResponse struct {
	Match bool    `json:"match"`
	Score float64 `json:"score"`
}

// Compare asks the oracle whether submitted shows the same face as
// reference.
func (c *Client) Compare(ctx context.Context, reference, submitted []byte) (bool, error) {
	payload, err := json.Marshal(compareRequest{Reference: reference, Candidate: submitted})
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/compare", bytes.NewReader(payload))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("face oracle request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, fmt.Errorf("face oracle returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var result compareResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("failed to decode face oracle response: %w", err)
	}
	return result.Match, nil
}
