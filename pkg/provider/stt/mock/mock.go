// Package mock provides a scriptable stt.Provider for testing.
package mock

import (
	"context"
	"sync"

	"github.com/intervox-ai/intervox/pkg/provider/stt"
)

// Call records one Transcribe invocation.
type Call struct {
	Audio       []byte
	ContentType string
}

// Provider is a scriptable stt.Provider. Responses are consumed in order;
// when the script is exhausted the last entry repeats.
type Provider struct {
	mu sync.Mutex

	// Script is the ordered list of results to return.
	Script []Result

	calls []Call
}

// Result is one scripted Transcribe outcome.
type Result struct {
	Resp *stt.Response
	Err  error
}

var _ stt.Provider = (*Provider)(nil)

// Text is a convenience constructor for a successful result with the given
// text and confidence.
func Text(text string, confidence float64) Result {
	return Result{Resp: &stt.Response{Text: &text, Confidence: confidence}}
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(_ context.Context, req stt.Request) (*stt.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, Call{Audio: req.Audio, ContentType: req.ContentType})

	if len(p.Script) == 0 {
		empty := ""
		return &stt.Response{Text: &empty}, nil
	}
	idx := len(p.calls) - 1
	if idx >= len(p.Script) {
		idx = len(p.Script) - 1
	}
	r := p.Script[idx]
	return r.Resp, r.Err
}

// Calls returns a snapshot of all recorded invocations.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Call, len(p.calls))
	copy(out, p.calls)
	return out
}
