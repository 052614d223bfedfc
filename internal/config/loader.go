package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"deepgram", "whisper", "mock"},
	"llm": {"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "mock"},
	"tts": {"elevenlabs", "openai", "mock"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	validateProviderName("stt", cfg.Providers.STT)
	validateProviderName("llm", cfg.Providers.LLM)
	validateProviderName("tts", cfg.Providers.TTS)

	if cfg.Interview.QuestionCount < 0 {
		errs = append(errs, fmt.Errorf("interview.question_count %d must not be negative", cfg.Interview.QuestionCount))
	}
	if s := cfg.Interview.Voice.Speed; s != 0 && (s < 0.5 || s > 2.0) {
		errs = append(errs, fmt.Errorf("interview.voice.speed %.2f is out of range [0.5, 2.0]", s))
	}
	if v := cfg.Interview.Voice.Stability; v < 0 || v > 1 {
		errs = append(errs, fmt.Errorf("interview.voice.stability %.2f is out of range [0, 1]", v))
	}
	if v := cfg.Interview.Voice.SimilarityBoost; v < 0 || v > 1 {
		errs = append(errs, fmt.Errorf("interview.voice.similarity_boost %.2f is out of range [0, 1]", v))
	}
	if v := cfg.Interview.Temperature; v < 0 || v > 2 {
		errs = append(errs, fmt.Errorf("interview.temperature %.2f is out of range [0, 2]", v))
	}

	if cfg.Capture.MinChunkBytes < 0 {
		errs = append(errs, fmt.Errorf("capture.min_chunk_bytes %d must not be negative", cfg.Capture.MinChunkBytes))
	}
	if v := cfg.Transcription.MinConfidence; v < 0 || v > 1 {
		errs = append(errs, fmt.Errorf("transcription.min_confidence %.2f is out of range [0, 1]", v))
	}

	for _, entry := range []struct {
		name  string
		retry RetryEntry
	}{
		{"resilience.stt", cfg.Resilience.STT},
		{"resilience.llm", cfg.Resilience.LLM},
		{"resilience.tts", cfg.Resilience.TTS},
	} {
		if entry.retry.MaxAttempts < 0 {
			errs = append(errs, fmt.Errorf("%s.max_attempts %d must not be negative", entry.name, entry.retry.MaxAttempts))
		}
	}

	if cfg.Feedback.URL == "" {
		slog.Warn("feedback.url is empty; completed interviews will not trigger feedback generation")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if the entry (or any of its fallbacks)
// uses a name not found in [ValidProviderNames] for the given kind.
func validateProviderName(kind string, entry ProviderEntry) {
	names := append([]ProviderEntry{entry}, entry.Fallbacks...)
	known := ValidProviderNames[kind]
	for _, e := range names {
		if e.Name == "" || slices.Contains(known, e.Name) {
			continue
		}
		slog.Warn("unknown provider name, may be a typo or third-party provider",
			"kind", kind,
			"name", e.Name,
			"known", known,
		)
	}
}
