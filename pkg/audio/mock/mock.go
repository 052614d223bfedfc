// Package mock provides in-memory implementations of the audio interfaces for
// testing. Streams are driven by pushing chunks from test code; outputs record
// every play call.
package mock

import (
	"context"
	"sync"

	"github.com/intervox-ai/intervox/pkg/audio"
)

// Stream is a scriptable audio.Stream. Test code feeds it via Push and ends
// it via Close.
type Stream struct {
	ch        chan audio.Chunk
	closeOnce sync.Once

	mu     sync.Mutex
	closed bool
}

var _ audio.Stream = (*Stream)(nil)

// NewStream returns a Stream with the given channel buffer depth.
func NewStream(buf int) *Stream {
	return &Stream{ch: make(chan audio.Chunk, buf)}
}

// Push delivers a chunk to the stream's consumer. Returns false if the stream
// is already closed.
func (s *Stream) Push(c audio.Chunk) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.ch <- c
	return true
}

// Chunks implements audio.Stream.
func (s *Stream) Chunks() <-chan audio.Chunk { return s.ch }

// Close implements audio.Stream. Safe to call multiple times.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.ch)
	})
	return nil
}

// Closed reports whether Close has been called.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Platform is a scriptable audio.Platform.
type Platform struct {
	mu sync.Mutex

	// AcquireErr, when non-nil, is returned by AcquireMic instead of a stream.
	AcquireErr error

	// Streams holds every stream handed out, in acquisition order.
	Streams []*Stream

	// Buf is the buffer depth for newly created streams. Zero means 16.
	Buf int

	acquires int
}

var _ audio.Platform = (*Platform)(nil)

// AcquireMic implements audio.Platform.
func (p *Platform) AcquireMic(_ context.Context, _ audio.StreamConfig) (audio.Stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.acquires++
	if p.AcquireErr != nil {
		return nil, p.AcquireErr
	}
	buf := p.Buf
	if buf == 0 {
		buf = 16
	}
	s := NewStream(buf)
	p.Streams = append(p.Streams, s)
	return s, nil
}

// Acquires returns how many times AcquireMic was called.
func (p *Platform) Acquires() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquires
}

// Output is a recording audio.Output. When Block is true, Play waits until ctx
// is cancelled, which lets tests exercise interruption mid-playback.
type Output struct {
	mu     sync.Mutex
	played [][]byte
	closed bool

	// Block makes Play wait for ctx cancellation instead of returning
	// immediately.
	Block bool

	// Err, when non-nil, is returned by every Play call.
	Err error
}

var _ audio.Output = (*Output)(nil)

// Play implements audio.Output.
func (o *Output) Play(ctx context.Context, b []byte) error {
	o.mu.Lock()
	if o.Err != nil {
		o.mu.Unlock()
		return o.Err
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	o.played = append(o.played, cp)
	block := o.Block
	o.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

// Close implements audio.Output.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	return nil
}

// Played returns a snapshot of every audio payload passed to Play.
func (o *Output) Played() [][]byte {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([][]byte, len(o.played))
	copy(out, o.played)
	return out
}

// Closed reports whether Close has been called.
func (o *Output) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}
