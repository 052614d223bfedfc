// Package speech converts interviewer text to audio and schedules playback,
// with interruption support for when the interview ends mid-utterance.
package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/intervox-ai/intervox/internal/resilience"
	"github.com/intervox-ai/intervox/pkg/audio"
	"github.com/intervox-ai/intervox/pkg/provider/tts"
)

// Error is a synthesis failure that survived retry exhaustion. The turn
// proceeds without audio; the text is still recorded in the transcript.
type Error struct {
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("speech: %v", e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Synthesizer produces audio for interviewer utterances through the
// resilience layer. Voice parameters are passed to the provider verbatim.
type Synthesizer struct {
	provider tts.Provider
	retryer  *resilience.Retryer
	voice    tts.VoiceProfile
}

// NewSynthesizer creates a Synthesizer speaking with voice.
func NewSynthesizer(provider tts.Provider, retryer *resilience.Retryer, voice tts.VoiceProfile) *Synthesizer {
	return &Synthesizer{provider: provider, retryer: retryer, voice: voice}
}

// Speak synthesizes text. On retry exhaustion it returns a [*Error]; callers
// continue the turn silently rather than aborting it.
func (s *Synthesizer) Speak(ctx context.Context, text string) ([]byte, error) {
	data, err := resilience.DoWithResult(ctx, s.retryer, func(ctx context.Context) ([]byte, error) {
		return s.provider.Synthesize(ctx, text, s.voice)
	})
	if err != nil {
		return nil, &Error{Err: err}
	}
	return data, nil
}

// Player schedules synthesized audio on an output device.
type Player struct {
	out    audio.Output
	logger *slog.Logger
}

// NewPlayer creates a Player over out.
func NewPlayer(out audio.Output, logger *slog.Logger) *Player {
	if logger == nil {
		logger = slog.Default()
	}
	return &Player{out: out, logger: logger}
}

// Play sends data to the output device and blocks until playback finishes or
// ctx is cancelled. Cancellation mid-playback is a normal stop, not an
// error: ending the interview while the interviewer is speaking must tear
// playback down cleanly.
func (p *Player) Play(ctx context.Context, data []byte) error {
	err := p.out.Play(ctx, data)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		p.logger.Debug("playback interrupted", "bytes", len(data))
		return nil
	}
	return fmt.Errorf("speech: playback: %w", err)
}

// Close releases the output device.
func (p *Player) Close() error { return p.out.Close() }
