package audio

import "time"

// Chunk is a single captured slice of candidate audio flowing through the
// pipeline. Chunks are the atomic unit of audio transport: emitted by a capture
// stream at a fixed interval, gated for size, and handed to the transcription
// client. They are ephemeral and must not be retained beyond the turn that
// produced them.
type Chunk struct {
	// Data is the encoded audio payload exactly as produced by the capture
	// device (e.g., a WebM/Opus segment from a browser MediaRecorder).
	Data []byte

	// ContentType is the MIME type of Data, forwarded verbatim to the
	// transcription provider (e.g., "audio/webm").
	ContentType string

	// Captured marks when this chunk was recorded, relative to stream start.
	Captured time.Duration
}

// StreamConfig describes how a capture stream should chunk audio.
type StreamConfig struct {
	// ChunkInterval is the fixed emission interval for chunks. The capture
	// source buffers audio and emits one Chunk per interval.
	ChunkInterval time.Duration

	// ContentType is the encoding the platform should produce.
	ContentType string
}
