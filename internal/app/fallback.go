package app

import (
	"context"

	"github.com/intervox-ai/intervox/internal/observe"
	"github.com/intervox-ai/intervox/internal/resilience"
	"github.com/intervox-ai/intervox/pkg/provider/llm"
	"github.com/intervox-ai/intervox/pkg/provider/stt"
	"github.com/intervox-ai/intervox/pkg/provider/tts"
)

// NamedSTT pairs a fallback transcription provider with its config name.
type NamedSTT struct {
	Name     string
	Provider stt.Provider
}

// NamedLLM pairs a fallback dialogue provider with its config name.
type NamedLLM struct {
	Name     string
	Provider llm.Provider
}

// NamedTTS pairs a fallback synthesis provider with its config name.
type NamedTTS struct {
	Name     string
	Provider tts.Provider
}

// ComposeSTT wraps primary and its fallbacks into a single provider backed
// by per-provider circuit breakers, recording every attempt on metrics.
// With no fallbacks and no breaker budget the primary is returned
// unwrapped. A nil metrics uses [observe.DefaultMetrics].
func ComposeSTT(primary stt.Provider, name string, fallbacks []NamedSTT, breaker resilience.BreakerConfig, metrics *observe.Metrics) stt.Provider {
	if len(fallbacks) == 0 && breaker.MaxFailures == 0 {
		return primary
	}
	g := resilience.NewFallbackGroup(primary, name, breaker)
	for _, f := range fallbacks {
		g.AddFallback(f.Name, f.Provider)
	}
	g.OnAttempt(providerObserver(metrics, "stt"))
	return &fallbackSTT{group: g}
}

// ComposeLLM is the dialogue counterpart of [ComposeSTT].
func ComposeLLM(primary llm.Provider, name string, fallbacks []NamedLLM, breaker resilience.BreakerConfig, metrics *observe.Metrics) llm.Provider {
	if len(fallbacks) == 0 && breaker.MaxFailures == 0 {
		return primary
	}
	g := resilience.NewFallbackGroup(primary, name, breaker)
	for _, f := range fallbacks {
		g.AddFallback(f.Name, f.Provider)
	}
	g.OnAttempt(providerObserver(metrics, "llm"))
	return &fallbackLLM{group: g}
}

// ComposeTTS is the synthesis counterpart of [ComposeSTT].
func ComposeTTS(primary tts.Provider, name string, fallbacks []NamedTTS, breaker resilience.BreakerConfig, metrics *observe.Metrics) tts.Provider {
	if len(fallbacks) == 0 && breaker.MaxFailures == 0 {
		return primary
	}
	g := resilience.NewFallbackGroup(primary, name, breaker)
	for _, f := range fallbacks {
		g.AddFallback(f.Name, f.Provider)
	}
	g.OnAttempt(providerObserver(metrics, "tts"))
	return &fallbackTTS{group: g}
}

// providerObserver maps fallback-group attempts onto the provider request
// and error counters.
func providerObserver(metrics *observe.Metrics, kind string) func(string, error) {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return func(name string, err error) {
		if err != nil {
			metrics.RecordProviderRequest(context.Background(), name, kind, "error")
			metrics.RecordProviderError(context.Background(), name, kind)
			return
		}
		metrics.RecordProviderRequest(context.Background(), name, kind, "ok")
	}
}

type fallbackSTT struct {
	group *resilience.FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*fallbackSTT)(nil)

func (f *fallbackSTT) Transcribe(ctx context.Context, req stt.Request) (*stt.Response, error) {
	return resilience.ExecuteWithResult(f.group, func(p stt.Provider) (*stt.Response, error) {
		return p.Transcribe(ctx, req)
	})
}

type fallbackLLM struct {
	group *resilience.FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*fallbackLLM)(nil)

func (f *fallbackLLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return resilience.ExecuteWithResult(f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

type fallbackTTS struct {
	group *resilience.FallbackGroup[tts.Provider]
}

var _ tts.Provider = (*fallbackTTS)(nil)

func (f *fallbackTTS) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) ([]byte, error) {
	return resilience.ExecuteWithResult(f.group, func(p tts.Provider) ([]byte, error) {
		return p.Synthesize(ctx, text, voice)
	})
}
