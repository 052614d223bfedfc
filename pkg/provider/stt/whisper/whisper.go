// Package whisper provides an STT provider backed by a whisper.cpp server
// (whisper-server) reachable over HTTP. It implements the stt.Provider
// interface.
//
// The server's /inference endpoint accepts a multipart upload and responds
// with JSON {"text": "..."}. whisper-server does not report confidence, so
// Response.Confidence is 1.0 whenever a transcript is present.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/intervox-ai/intervox/pkg/provider/stt"
)

const defaultTimeout = 60 * time.Second

// Option is a functional option for configuring the whisper Provider.
type Option func(*Provider)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements stt.Provider against a running whisper-server.
type Provider struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a whisper Provider targeting baseURL (e.g., "http://localhost:8178").
func New(baseURL string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, errors.New("whisper: baseURL must not be empty")
	}
	p := &Provider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// response mirrors the whisper-server /inference response body.
type response struct {
	Text  *string `json:"text"`
	Error string  `json:"error,omitempty"`
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (*stt.Response, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "chunk"+extensionFor(req.ContentType))
	if err != nil {
		return nil, fmt.Errorf("whisper: build multipart: %w", err)
	}
	if _, err := fw.Write(req.Audio); err != nil {
		return nil, fmt.Errorf("whisper: write audio: %w", err)
	}
	if req.Language != "" {
		if err := mw.WriteField("language", req.Language); err != nil {
			return nil, fmt.Errorf("whisper: write language: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("whisper: close multipart: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/inference", &body)
	if err != nil {
		return nil, fmt.Errorf("whisper: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("whisper: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("whisper: status %d: %s", resp.StatusCode, bytes.TrimSpace(b))
	}

	var wr response
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return nil, fmt.Errorf("whisper: decode response: %w", err)
	}
	if wr.Error != "" {
		return nil, fmt.Errorf("whisper: server error: %s", wr.Error)
	}

	out := &stt.Response{Text: wr.Text}
	if wr.Text != nil && strings.TrimSpace(*wr.Text) != "" {
		out.Confidence = 1.0
	}
	return out, nil
}

// extensionFor maps common capture content types to a filename extension the
// server uses for format sniffing.
func extensionFor(contentType string) string {
	switch {
	case strings.Contains(contentType, "wav"):
		return ".wav"
	case strings.Contains(contentType, "ogg"):
		return ".ogg"
	case strings.Contains(contentType, "mpeg"), strings.Contains(contentType, "mp3"):
		return ".mp3"
	default:
		return ".webm"
	}
}
