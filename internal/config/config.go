// Package config provides the configuration schema, loader, provider
// registry, and file watcher for the intervox interview engine.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"
)

// LogLevel controls log verbosity for the intervox server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SlogLevel maps l to its slog equivalent. Unknown levels map to Info.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Duration wraps time.Duration so values like "250ms" or "15s" can be used
// directly in YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration structure for intervox.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Providers     ProvidersConfig     `yaml:"providers"`
	Interview     InterviewConfig     `yaml:"interview"`
	Capture       CaptureConfig       `yaml:"capture"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Resilience    ResilienceConfig    `yaml:"resilience"`
	Feedback      FeedbackConfig      `yaml:"feedback"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each entry selects a named provider registered in the
// [Registry].
type ProvidersConfig struct {
	STT ProviderEntry `yaml:"stt"`
	LLM ProviderEntry `yaml:"llm"`
	TTS ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation
	// (e.g., "openai", "deepgram", "elevenlabs").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider
	// (e.g., "gpt-4o-mini", "nova-3", "eleven_flash_v2_5").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above.
	Options map[string]any `yaml:"options"`

	// Fallbacks are tried in order when this provider keeps failing.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`
}

// InterviewConfig describes interview behaviour shared by all sessions.
type InterviewConfig struct {
	// QuestionCount is how many questions the interviewer asks. Default 5.
	QuestionCount int `yaml:"question_count"`

	// Voice configures the TTS voice used by the interviewer.
	Voice VoiceConfig `yaml:"voice"`

	// FallbackUtterance replaces the interviewer reply when dialogue
	// generation keeps failing. Empty selects the built-in default.
	FallbackUtterance string `yaml:"fallback_utterance"`

	// EndPhrases are spoken phrases that end the interview. Empty keeps the
	// built-in set.
	EndPhrases []string `yaml:"end_phrases"`

	// Temperature and MaxTokens are passed to the dialogue provider.
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// VoiceConfig specifies TTS voice parameters, passed to the provider
// verbatim.
type VoiceConfig struct {
	// VoiceID is the provider-specific voice identifier.
	VoiceID string `yaml:"voice_id"`

	// Stability in [0, 1]. Zero means provider default.
	Stability float64 `yaml:"stability"`

	// SimilarityBoost in [0, 1]. Zero means provider default.
	SimilarityBoost float64 `yaml:"similarity_boost"`

	// Speed adjusts speaking rate in the range [0.5, 2.0]. Zero means
	// provider default.
	Speed float64 `yaml:"speed"`
}

// CaptureConfig tunes the audio capture service.
type CaptureConfig struct {
	// ChunkInterval is how often the microphone emits a chunk. Default 1s.
	ChunkInterval Duration `yaml:"chunk_interval"`

	// MinChunkBytes is the silence gate threshold. Default 1024.
	MinChunkBytes int `yaml:"min_chunk_bytes"`

	// ContentType is the audio encoding requested from the platform.
	// Default "audio/webm".
	ContentType string `yaml:"content_type"`
}

// TranscriptionConfig tunes the transcription client.
type TranscriptionConfig struct {
	// Language is an optional BCP-47 hint sent with every request.
	Language string `yaml:"language"`

	// MinConfidence is the floor below which a transcript is treated as
	// silence. Zero disables the floor.
	MinConfidence float64 `yaml:"min_confidence"`
}

// ResilienceConfig holds per-provider retry tuning plus the shared circuit
// breaker settings for fallback chains.
type ResilienceConfig struct {
	STT     RetryEntry   `yaml:"stt"`
	LLM     RetryEntry   `yaml:"llm"`
	TTS     RetryEntry   `yaml:"tts"`
	Breaker BreakerEntry `yaml:"breaker"`
}

// RetryEntry configures one provider's retry behaviour. Zero values fall
// back to the resilience package defaults.
type RetryEntry struct {
	MaxAttempts    int      `yaml:"max_attempts"`
	InitialBackoff Duration `yaml:"initial_backoff"`
	MaxBackoff     Duration `yaml:"max_backoff"`
	AttemptTimeout Duration `yaml:"attempt_timeout"`
}

// BreakerEntry configures the circuit breakers guarding provider fallback
// chains.
type BreakerEntry struct {
	MaxFailures  int      `yaml:"max_failures"`
	ResetTimeout Duration `yaml:"reset_timeout"`
}

// FeedbackConfig points at the external feedback/persistence service.
type FeedbackConfig struct {
	// URL is the endpoint receiving completed interview transcripts. Empty
	// disables feedback generation.
	URL string `yaml:"url"`

	// Timeout bounds the feedback request. Default 30s.
	Timeout Duration `yaml:"timeout"`
}
