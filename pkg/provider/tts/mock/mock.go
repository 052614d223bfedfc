// Package mock provides a scriptable tts.Provider for testing.
package mock

import (
	"context"
	"sync"

	"github.com/intervox-ai/intervox/pkg/provider/tts"
)

// Provider is a scriptable tts.Provider. When Errs is non-empty the entries
// are returned in order before synthesis starts succeeding; a successful call
// returns Audio (or a default payload when nil).
type Provider struct {
	mu sync.Mutex

	// Audio is the payload returned on success. Defaults to []byte("audio").
	Audio []byte

	// Errs are returned, in order, by the first len(Errs) calls.
	Errs []error

	texts []string
	calls int
}

var _ tts.Provider = (*Provider)(nil)

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(_ context.Context, text string, _ tts.VoiceProfile) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls++
	if p.calls <= len(p.Errs) {
		return nil, p.Errs[p.calls-1]
	}
	p.texts = append(p.texts, text)

	audio := p.Audio
	if audio == nil {
		audio = []byte("audio")
	}
	out := make([]byte, len(audio))
	copy(out, audio)
	return out, nil
}

// Texts returns every text successfully synthesized, in order.
func (p *Provider) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.texts))
	copy(out, p.texts)
	return out
}

// CallCount returns the total number of Synthesize calls, including failures.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}
