// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., ElevenLabs or the
// OpenAI speech endpoint) and converts one interviewer utterance into encoded
// audio bytes. Voice parameters in [VoiceProfile] are passed through to the
// provider verbatim.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// VoiceProfile describes the interviewer voice configuration.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Stability controls voice consistency in [0, 1] for providers that
	// support it. Zero means the provider default.
	Stability float64

	// SimilarityBoost controls voice similarity in [0, 1] for providers
	// that support it. Zero means the provider default.
	SimilarityBoost float64

	// Speed adjusts speaking rate (0.5–2.0, 0 or 1.0 = default).
	Speed float64
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize converts text into a complete encoded audio payload (the
	// encoding is provider-specific, typically MP3 or PCM). Returns an error
	// if synthesis fails or ctx is cancelled first.
	Synthesize(ctx context.Context, text string, voice VoiceProfile) ([]byte, error)
}
