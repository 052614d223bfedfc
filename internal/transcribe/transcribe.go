// Package transcribe turns captured audio chunks into normalized transcription
// results, classifying provider outcomes so callers can tell silence, failure
// and protocol violations apart.
package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/intervox-ai/intervox/internal/resilience"
	"github.com/intervox-ai/intervox/pkg/audio"
	"github.com/intervox-ai/intervox/pkg/provider/stt"
)

// Error is a retryable transcription failure that survived retry exhaustion.
// The turn that caused it is skipped; the session keeps running.
type Error struct {
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("transcribe: %v", e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// ProtocolError means the provider answered successfully but the transcript
// field was missing from its response. This is not silence: treating it as
// silence is exactly the bug that used to make candidate answers vanish, so
// it is always surfaced and logged distinctly.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("transcribe: protocol violation: %s", e.Reason)
}

// Result is a normalized transcription outcome.
type Result struct {
	// Text is the transcript, trimmed. Empty when Silence is true.
	Text string

	// Confidence is the provider's score for this transcript.
	Confidence float64

	// Silence marks a legitimate empty turn: the provider answered, heard
	// nothing worth keeping, and no message should be appended.
	Silence bool
}

// Option configures a Client.
type Option func(*Client)

// WithMinConfidence sets the confidence floor below which a transcript is
// treated as silence. Zero disables the floor.
func WithMinConfidence(min float64) Option {
	return func(c *Client) { c.minConfidence = min }
}

// WithLanguage sets the BCP-47 language hint sent with every request.
func WithLanguage(lang string) Option {
	return func(c *Client) { c.language = lang }
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// Client calls an [stt.Provider] through the resilience layer and normalizes
// its responses. Safe for concurrent use if the provider is.
type Client struct {
	provider      stt.Provider
	retryer       *resilience.Retryer
	minConfidence float64
	language      string
	logger        *slog.Logger
}

// NewClient creates a transcription client.
func NewClient(provider stt.Provider, retryer *resilience.Retryer, opts ...Option) *Client {
	c := &Client{
		provider: provider,
		retryer:  retryer,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Transcribe sends one chunk to the provider. It returns:
//   - a [Result] with Silence set when the provider legitimately heard
//     nothing (empty transcript or confidence under the floor),
//   - a [*ProtocolError] when the transcript field is missing entirely,
//   - a [*Error] when the provider kept failing through every retry.
func (c *Client) Transcribe(ctx context.Context, chunk audio.Chunk) (Result, error) {
	resp, err := resilience.DoWithResult(ctx, c.retryer, func(ctx context.Context) (*stt.Response, error) {
		return c.provider.Transcribe(ctx, stt.Request{
			Audio:       chunk.Data,
			ContentType: chunk.ContentType,
			Language:    c.language,
		})
	})
	if err != nil {
		return Result{}, &Error{Err: err}
	}

	if resp == nil || resp.Text == nil {
		perr := &ProtocolError{Reason: "transcript field missing from provider response"}
		c.logger.Error("transcription protocol violation",
			"reason", perr.Reason,
			"chunk_bytes", len(chunk.Data),
		)
		return Result{}, perr
	}

	text := strings.TrimSpace(*resp.Text)
	if text == "" || (c.minConfidence > 0 && resp.Confidence < c.minConfidence) {
		return Result{Silence: true, Confidence: resp.Confidence}, nil
	}
	return Result{Text: text, Confidence: resp.Confidence}, nil
}
