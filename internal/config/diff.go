package config

import "reflect"

// ConfigDiff describes what changed between two configs. Only fields that
// can be safely hot-reloaded are tracked; provider and server changes still
// require a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// InterviewChanged is true when voice, fallback utterance, end phrases,
	// question count, or generation parameters changed. New sessions pick up
	// the new values; running sessions keep theirs.
	InterviewChanged bool

	// ResilienceChanged is true when any retry or breaker tuning changed.
	ResilienceChanged bool

	// FeedbackChanged is true when the feedback sink endpoint or timeout
	// changed.
	FeedbackChanged bool
}

// Any reports whether the diff contains at least one change.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.InterviewChanged || d.ResilienceChanged || d.FeedbackChanged
}

// Diff compares old and new configs and returns what changed. Only tracks
// changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if !reflect.DeepEqual(old.Interview, new.Interview) {
		d.InterviewChanged = true
	}
	if old.Resilience != new.Resilience {
		d.ResilienceChanged = true
	}
	if old.Feedback != new.Feedback {
		d.FeedbackChanged = true
	}

	return d
}
