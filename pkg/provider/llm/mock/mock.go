// Package mock provides a scriptable llm.Provider for testing.
package mock

import (
	"context"
	"sync"

	"github.com/intervox-ai/intervox/pkg/provider/llm"
)

// Result is one scripted Complete outcome.
type Result struct {
	Resp *llm.CompletionResponse
	Err  error
}

// Reply is a convenience constructor for a successful completion.
func Reply(content string) Result {
	return Result{Resp: &llm.CompletionResponse{Content: content}}
}

// Provider is a scriptable llm.Provider. Results are consumed in order; when
// the script is exhausted the last entry repeats. Every request is recorded
// for later inspection.
type Provider struct {
	mu sync.Mutex

	// Script is the ordered list of results to return.
	Script []Result

	requests []llm.CompletionRequest
}

var _ llm.Provider = (*Provider)(nil)

// Complete implements llm.Provider.
func (p *Provider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Deep-copy the message slice so later history mutation cannot retroactively
	// change recorded requests.
	cp := req
	cp.Messages = append([]llm.Message(nil), req.Messages...)
	p.requests = append(p.requests, cp)

	if len(p.Script) == 0 {
		return &llm.CompletionResponse{Content: "ok"}, nil
	}
	idx := len(p.requests) - 1
	if idx >= len(p.Script) {
		idx = len(p.Script) - 1
	}
	r := p.Script[idx]
	return r.Resp, r.Err
}

// Requests returns a snapshot of all recorded completion requests.
func (p *Provider) Requests() []llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]llm.CompletionRequest, len(p.requests))
	copy(out, p.requests)
	return out
}

// CallCount returns how many times Complete was invoked.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}
