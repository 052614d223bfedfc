// Package capture acquires the microphone for a session and gates the chunk
// stream before it reaches the transcription pipeline.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/intervox-ai/intervox/pkg/audio"
)

// Config tunes the capture service. Zero values fall back to defaults.
type Config struct {
	// ChunkInterval is how often the platform emits a chunk.
	ChunkInterval time.Duration
	// MinChunkBytes is the silence gate: chunks smaller than this are
	// dropped instead of forwarded, so ambient noise does not trigger a
	// transcription turn.
	MinChunkBytes int
	// ContentType is the encoding requested from the platform.
	ContentType string
}

func (c *Config) applyDefaults() {
	if c.ChunkInterval <= 0 {
		c.ChunkInterval = time.Second
	}
	if c.MinChunkBytes <= 0 {
		c.MinChunkBytes = 1024
	}
	if c.ContentType == "" {
		c.ContentType = "audio/webm"
	}
}

// Service hands out gated microphone streams from an [audio.Platform].
type Service struct {
	platform audio.Platform
	cfg      Config
	logger   *slog.Logger
}

// NewService creates a capture [Service] on top of platform.
func NewService(platform audio.Platform, cfg Config, logger *slog.Logger) *Service {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{platform: platform, cfg: cfg, logger: logger}
}

// Acquire opens the microphone and returns a gated stream. A platform denial
// surfaces as a wrapped [audio.ErrPermissionDenied]; callers treat that as
// fatal for the session and must not retry.
func (s *Service) Acquire(ctx context.Context) (*Mic, error) {
	stream, err := s.platform.AcquireMic(ctx, audio.StreamConfig{
		ChunkInterval: s.cfg.ChunkInterval,
		ContentType:   s.cfg.ContentType,
	})
	if err != nil {
		return nil, fmt.Errorf("capture: acquire microphone: %w", err)
	}

	m := &Mic{
		stream: stream,
		out:    make(chan audio.Chunk),
		done:   make(chan struct{}),
	}
	go m.forward(s.cfg.MinChunkBytes, s.logger)
	return m, nil
}

// Mic is an exclusively owned microphone handle. Chunks below the silence
// gate never appear on [Mic.Chunks]. Release must be called on every exit
// path and is safe to call more than once.
type Mic struct {
	stream audio.Stream
	out    chan audio.Chunk
	done   chan struct{}

	releaseOnce sync.Once
	releaseErr  error
}

var _ audio.Stream = (*Mic)(nil)

// Chunks returns the gated chunk stream. The channel is closed when the
// underlying stream ends or the mic is released.
func (m *Mic) Chunks() <-chan audio.Chunk { return m.out }

// Release closes the underlying device. Idempotent.
func (m *Mic) Release() error {
	m.releaseOnce.Do(func() {
		close(m.done)
		m.releaseErr = m.stream.Close()
	})
	return m.releaseErr
}

// Close releases the microphone. It exists so a Mic satisfies
// [audio.Stream].
func (m *Mic) Close() error { return m.Release() }

func (m *Mic) forward(minBytes int, logger *slog.Logger) {
	defer close(m.out)
	for chunk := range m.stream.Chunks() {
		if len(chunk.Data) < minBytes {
			logger.Debug("dropping chunk below silence gate",
				"bytes", len(chunk.Data),
				"min_bytes", minBytes,
			)
			continue
		}
		select {
		case m.out <- chunk:
		case <-m.done:
			return
		}
	}
}
