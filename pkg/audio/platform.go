// Package audio defines the interfaces and types for candidate audio capture
// and interviewer audio playback within Intervox.
//
// The three primary abstractions are:
//
//   - [Platform] — acquires the candidate's microphone and returns a [Stream].
//   - [Stream] — an open capture stream emitting fixed-interval audio chunks.
//   - [Output] — the playback sink for synthesized interviewer speech.
//
// Implementations are provided by platform-specific adapter packages (e.g.,
// audio/wsbridge for a browser connected over WebSocket). The interfaces are
// intentionally narrow so the interview session stays decoupled from transport
// details.
//
// This package lives under pkg/ because external code (alternative platform
// adapters) is expected to implement [Platform], [Stream], and [Output].
package audio

import (
	"context"
	"errors"
)

// ErrPermissionDenied is returned by [Platform.AcquireMic] when the platform
// refuses microphone access. This failure is fatal to an interview session and
// must not be retried.
var ErrPermissionDenied = errors.New("audio: microphone permission denied")

// ErrStreamClosed is returned by stream operations after Close.
var ErrStreamClosed = errors.New("audio: stream closed")

// Stream is an open microphone capture stream.
//
// A Stream is exclusively owned by one interview session for its lifetime.
// Close must be called on every exit path — normal end, error, or explicit
// stop — and is idempotent. After Close the Chunks channel is closed and no
// further audio operations are permitted on the stream.
type Stream interface {
	// Chunks returns a read-only channel that delivers [Chunk] values at the
	// configured interval. The channel is closed when the stream ends or
	// Close is called.
	Chunks() <-chan Chunk

	// Close terminates capture and releases the underlying audio device and
	// any associated processing context. Safe to call multiple times;
	// subsequent calls return nil.
	Close() error
}

// Platform acquires audio resources on behalf of an interview session.
//
// Implementations must be safe for concurrent use: multiple sessions may
// acquire independent microphone streams, but a single Stream is never shared
// between sessions.
type Platform interface {
	// AcquireMic requests microphone access and opens a capture stream.
	// Returns an error wrapping [ErrPermissionDenied] when the platform
	// denies access.
	AcquireMic(ctx context.Context, cfg StreamConfig) (Stream, error)
}

// Output is the playback sink for synthesized interviewer speech.
//
// Play blocks until the audio has been scheduled and played to completion or
// ctx is cancelled. Cancellation mid-playback must stop the output device and
// tear down any decode context without returning an error — ending an
// interview while the interviewer is speaking is a normal control path, not a
// failure.
type Output interface {
	Play(ctx context.Context, audio []byte) error

	// Close releases the output device. Idempotent.
	Close() error
}
