// Package wsbridge adapts a browser WebSocket connection into the audio
// device interfaces. Binary frames received from the client carry microphone
// chunks (MediaRecorder segments), binary frames sent to the client carry
// synthesized interviewer speech, and text frames sent to the client carry
// JSON session events.
//
// A Bridge serves exactly one interview session. [Bridge.Run] must be running
// for captured audio to flow.
package wsbridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/intervox-ai/intervox/pkg/audio"
)

// ErrMicAcquired is returned by AcquireMic while a previous stream is still
// open. A browser connection carries a single microphone.
var ErrMicAcquired = errors.New("wsbridge: microphone already acquired")

const defaultChunkBuffer = 16

// Option configures a [Bridge].
type Option func(*Bridge)

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) { b.logger = logger }
}

// WithChunkBuffer sets the capture channel depth. Chunks arriving while the
// buffer is full are dropped.
func WithChunkBuffer(n int) Option {
	return func(b *Bridge) {
		if n > 0 {
			b.chunkBuffer = n
		}
	}
}

// Bridge exposes one client WebSocket as an [audio.Platform] and an
// [audio.Output].
type Bridge struct {
	conn        *websocket.Conn
	logger      *slog.Logger
	chunkBuffer int

	mu          sync.Mutex
	stream      *micStream
	contentType string
	started     time.Time
	closed      bool
}

var (
	_ audio.Platform = (*Bridge)(nil)
	_ audio.Output   = (*Bridge)(nil)
)

// New wraps an accepted WebSocket connection.
func New(conn *websocket.Conn, opts ...Option) *Bridge {
	b := &Bridge{
		conn:        conn,
		logger:      slog.Default(),
		chunkBuffer: defaultChunkBuffer,
		started:     time.Now(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// AcquireMic implements [audio.Platform]. The browser already prompted the
// user for microphone permission before opening the socket, so acquisition
// here only opens the chunk pipe; a denial on the client side surfaces as the
// socket closing instead.
func (b *Bridge) AcquireMic(_ context.Context, cfg audio.StreamConfig) (audio.Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, audio.ErrStreamClosed
	}
	if b.stream != nil {
		return nil, ErrMicAcquired
	}

	s := &micStream{
		bridge: b,
		ch:     make(chan audio.Chunk, b.chunkBuffer),
	}
	b.stream = s
	b.contentType = cfg.ContentType
	return s, nil
}

// Run reads frames from the client until the connection closes or ctx is
// cancelled. A normal client closure returns nil.
func (b *Bridge) Run(ctx context.Context) error {
	defer b.detachStream()

	for {
		typ, data, err := b.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
				websocket.CloseStatus(err) == websocket.StatusGoingAway ||
				errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("wsbridge: read: %w", err)
		}
		switch typ {
		case websocket.MessageBinary:
			b.deliver(data)
		case websocket.MessageText:
			// Clients only send audio; text frames are ignored.
			b.logger.Debug("ignoring text frame from client", "bytes", len(data))
		}
	}
}

// deliver hands one captured frame to the acquired stream. Frames arriving
// with no stream open, or while the consumer lags behind the buffer, are
// dropped.
func (b *Bridge) deliver(data []byte) {
	b.mu.Lock()
	s := b.stream
	contentType := b.contentType
	captured := time.Since(b.started)
	b.mu.Unlock()

	if s == nil {
		b.logger.Debug("dropping audio frame, no microphone stream open", "bytes", len(data))
		return
	}
	chunk := audio.Chunk{Data: data, ContentType: contentType, Captured: captured}
	if !s.push(chunk) {
		b.logger.Warn("dropping audio frame, capture buffer full", "bytes", len(data))
	}
}

// Play implements [audio.Output] by sending one binary frame to the client.
func (b *Bridge) Play(ctx context.Context, data []byte) error {
	if err := b.conn.Write(ctx, websocket.MessageBinary, data); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("wsbridge: write audio: %w", err)
	}
	return nil
}

// SendEvent sends one JSON-encoded event as a text frame.
func (b *Bridge) SendEvent(ctx context.Context, v any) error {
	if err := wsjson.Write(ctx, b.conn, v); err != nil {
		return fmt.Errorf("wsbridge: write event: %w", err)
	}
	return nil
}

// Close implements [audio.Output]. It closes the WebSocket, ending the
// client's session. Idempotent.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.detachStream()
	return b.conn.Close(websocket.StatusNormalClosure, "interview ended")
}

// detachStream closes the open capture stream, if any.
func (b *Bridge) detachStream() {
	b.mu.Lock()
	s := b.stream
	b.stream = nil
	b.mu.Unlock()
	if s != nil {
		s.closeChan()
	}
}

// micStream is the audio.Stream face of a Bridge.
type micStream struct {
	bridge *Bridge
	ch     chan audio.Chunk

	mu     sync.Mutex
	closed bool
}

var _ audio.Stream = (*micStream)(nil)

// push delivers a chunk without blocking. Returns false when the buffer is
// full or the stream is closed.
func (s *micStream) push(c audio.Chunk) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- c:
		return true
	default:
		return false
	}
}

// Chunks implements audio.Stream.
func (s *micStream) Chunks() <-chan audio.Chunk { return s.ch }

// Close implements audio.Stream. It detaches the stream from the bridge but
// leaves the connection open so events and playback can still reach the
// client.
func (s *micStream) Close() error {
	s.bridge.mu.Lock()
	if s.bridge.stream == s {
		s.bridge.stream = nil
	}
	s.bridge.mu.Unlock()
	s.closeChan()
	return nil
}

func (s *micStream) closeChan() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
