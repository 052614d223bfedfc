// Package state holds the interview state machine. The state is a plain
// value mutated only through [Reduce], which is pure: callers own the
// returned snapshot and the input is never modified.
package state

import (
	"github.com/intervox-ai/intervox/pkg/audio"
	"github.com/intervox-ai/intervox/pkg/provider/llm"
)

// InterviewPhase is the top-level lifecycle phase of a session.
type InterviewPhase string

const (
	InterviewReady    InterviewPhase = "ready"
	InterviewActive   InterviewPhase = "active"
	InterviewFinished InterviewPhase = "finished"
)

// AudioPhase is the turn-taking sub-state. It is only meaningful while the
// interview is active; outside of that it is always [AudioIdle].
type AudioPhase string

const (
	AudioIdle       AudioPhase = "idle"
	AudioWaiting    AudioPhase = "waiting"
	AudioRecording  AudioPhase = "recording"
	AudioProcessing AudioPhase = "processing"
	AudioSpeaking   AudioPhase = "speaking"
)

// AgentState is the full state-machine snapshot exposed to the UI layer.
// It has value semantics; Messages is treated as immutable once stored.
type AgentState struct {
	Interview InterviewPhase
	Audio     AudioPhase

	Messages       []llm.Message
	QuestionNumber int

	HasUserSpoken     bool
	InterviewComplete bool

	FeedbackGenerated bool
	FeedbackID        string

	// UserImage survives ResetInterview.
	UserImage string

	// Stream is the microphone handle owned by the session while recording.
	// Nil when no stream is held.
	Stream audio.Stream
}

// New returns the initial state for a fresh session.
func New() AgentState {
	return AgentState{
		Interview: InterviewReady,
		Audio:     AudioIdle,
	}
}

// CanStartRecording reports whether the session is ready to accept user
// audio: the interview is active and no turn is in flight.
func CanStartRecording(s AgentState) bool {
	return s.Interview == InterviewActive && s.Audio == AudioWaiting
}

// ShouldShowFeedback reports whether a generated feedback report is
// available for display.
func ShouldShowFeedback(s AgentState) bool {
	return s.FeedbackGenerated && s.FeedbackID != ""
}
