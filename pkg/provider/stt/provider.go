// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription service (e.g., Deepgram's prerecorded
// API or a local whisper server) and exposes a uniform request/response
// interface: one encoded audio chunk in, one transcription result out.
//
// Response.Text is a pointer on purpose: a provider returning an empty string
// is reporting genuine silence, while a provider omitting the field entirely
// has violated its protocol. The transcription client upstream treats those
// two cases very differently, so the distinction must survive decoding.
//
// Implementations must be safe for concurrent use.
package stt

import "context"

// Request carries one audio chunk to be transcribed.
type Request struct {
	// Audio is the encoded audio payload.
	Audio []byte

	// ContentType is the MIME type of Audio (e.g., "audio/webm").
	ContentType string

	// Language is an optional BCP-47 language hint (e.g., "en-US"). Empty
	// lets the provider auto-detect, if supported.
	Language string
}

// Response is a single transcription result.
type Response struct {
	// Text is the transcribed speech, or nil when the provider response did
	// not contain a transcript field at all. nil and "" are NOT equivalent:
	// "" means the provider heard silence, nil means the response was
	// malformed.
	Text *string

	// Confidence is the provider's confidence score in [0, 1]. Zero when the
	// provider does not report confidence.
	Confidence float64
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe sends one audio chunk to the provider and returns its
	// result. A non-nil error indicates a transport or provider failure and
	// is eligible for retry; a nil error with a nil Response.Text indicates
	// a malformed provider response, which the caller must surface as a
	// protocol violation rather than silence.
	Transcribe(ctx context.Context, req Request) (*Response, error)
}
