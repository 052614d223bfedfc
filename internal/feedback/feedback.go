// Package feedback triggers post-interview feedback generation. The engine
// hands the final transcript to an external service exactly once per
// completed interview; the service owns analysis and persistence, the engine
// only keeps the returned report id.
package feedback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/intervox-ai/intervox/pkg/provider/llm"
)

// Request is the payload sent to the feedback service.
type Request struct {
	SessionID     string        `json:"sessionId"`
	CandidateName string        `json:"candidateName"`
	Role          string        `json:"role"`
	Messages      []llm.Message `json:"messages"`
}

// Sender submits a completed interview for feedback generation.
type Sender interface {
	// Send transmits the transcript and returns the feedback report id.
	Send(ctx context.Context, req Request) (string, error)
}

// Client posts transcripts to the feedback service over HTTP.
type Client struct {
	url        string
	httpClient *http.Client
}

var _ Sender = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the request timeout. Default 30s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// NewClient creates a feedback client posting to url.
func NewClient(url string, opts ...Option) *Client {
	c := &Client{
		url:        url,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send implements [Sender].
func (c *Client) Send(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("feedback: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("feedback: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("feedback: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("feedback: service returned %d: %s", resp.StatusCode, b)
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("feedback: decode response: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("feedback: service response missing id")
	}
	return out.ID, nil
}
