package state

import (
	"github.com/intervox-ai/intervox/pkg/audio"
	"github.com/intervox-ai/intervox/pkg/provider/llm"
)

// ActionType identifies a state transition.
type ActionType string

const (
	ActionSetInterviewPhase    ActionType = "set-interview-phase"
	ActionSetAudioPhase        ActionType = "set-audio-phase"
	ActionAddMessage           ActionType = "add-message"
	ActionAddMessages          ActionType = "add-messages"
	ActionSetUserSpoken        ActionType = "set-user-spoken"
	ActionSetFeedbackGenerated ActionType = "set-feedback-generated"
	ActionSetQuestionNumber    ActionType = "set-question-number"
	ActionSetInterviewComplete ActionType = "set-interview-complete"
	ActionStartRecording       ActionType = "start-recording"
	ActionStopRecording        ActionType = "stop-recording"
	ActionStartSpeaking        ActionType = "start-speaking"
	ActionResetToWaiting       ActionType = "reset-to-waiting"
	ActionEndInterview         ActionType = "end-interview"
	ActionResetInterview       ActionType = "reset-interview"
)

// Action is a tagged transition request. Only the payload fields relevant to
// Type are read; the constructor functions below fill them in.
type Action struct {
	Type ActionType

	Interview  InterviewPhase
	Audio      AudioPhase
	Message    llm.Message
	Messages   []llm.Message
	Flag       bool
	Number     int
	FeedbackID string
	Stream     audio.Stream
}

// SetInterviewPhase moves the interview to phase.
func SetInterviewPhase(phase InterviewPhase) Action {
	return Action{Type: ActionSetInterviewPhase, Interview: phase}
}

// SetAudioPhase sets the audio sub-state directly.
func SetAudioPhase(phase AudioPhase) Action {
	return Action{Type: ActionSetAudioPhase, Audio: phase}
}

// AddMessage appends one message to the transcript.
func AddMessage(msg llm.Message) Action {
	return Action{Type: ActionAddMessage, Message: msg}
}

// AddMessages appends several messages in order.
func AddMessages(msgs []llm.Message) Action {
	return Action{Type: ActionAddMessages, Messages: msgs}
}

// SetUserSpoken records whether the candidate has spoken yet.
func SetUserSpoken(v bool) Action {
	return Action{Type: ActionSetUserSpoken, Flag: v}
}

// SetFeedbackGenerated records the outcome of the feedback request.
func SetFeedbackGenerated(v bool, id string) Action {
	return Action{Type: ActionSetFeedbackGenerated, Flag: v, FeedbackID: id}
}

// SetQuestionNumber sets the current question counter.
func SetQuestionNumber(n int) Action {
	return Action{Type: ActionSetQuestionNumber, Number: n}
}

// SetInterviewComplete marks whether all configured questions were asked.
func SetInterviewComplete(v bool) Action {
	return Action{Type: ActionSetInterviewComplete, Flag: v}
}

// StartRecording hands the microphone stream to the session and enters the
// recording sub-state.
func StartRecording(stream audio.Stream) Action {
	return Action{Type: ActionStartRecording, Stream: stream}
}

// StopRecording ends capture for the current turn.
func StopRecording() Action { return Action{Type: ActionStopRecording} }

// StartSpeaking enters the speaking sub-state.
func StartSpeaking() Action { return Action{Type: ActionStartSpeaking} }

// ResetToWaiting returns to waiting after playback completes.
func ResetToWaiting() Action { return Action{Type: ActionResetToWaiting} }

// EndInterview finishes the interview. Valid from every state.
func EndInterview() Action { return Action{Type: ActionEndInterview} }

// ResetInterview returns a finished session to ready, keeping UserImage.
func ResetInterview() Action { return Action{Type: ActionResetInterview} }

// Reduce applies action to s and returns the next state. It is pure and
// total: s is never mutated, and an action that is not legal in the current
// state leaves it unchanged.
func Reduce(s AgentState, action Action) AgentState {
	next := s

	switch action.Type {
	case ActionSetInterviewPhase:
		next.Interview = action.Interview
		if action.Interview == InterviewActive {
			if next.Audio == AudioIdle {
				next.Audio = AudioWaiting
			}
		} else {
			next.Audio = AudioIdle
		}

	case ActionSetAudioPhase:
		// Non-idle audio phases exist only inside an active interview.
		if action.Audio == AudioIdle || next.Interview == InterviewActive {
			next.Audio = action.Audio
		}

	case ActionAddMessage:
		next.Messages = appendMessages(next.Messages, action.Message)

	case ActionAddMessages:
		next.Messages = appendMessages(next.Messages, action.Messages...)

	case ActionSetUserSpoken:
		next.HasUserSpoken = action.Flag

	case ActionSetFeedbackGenerated:
		next.FeedbackGenerated = action.Flag
		next.FeedbackID = action.FeedbackID

	case ActionSetQuestionNumber:
		// The counter never moves backwards within a session.
		if action.Number > next.QuestionNumber {
			next.QuestionNumber = action.Number
		}

	case ActionSetInterviewComplete:
		next.InterviewComplete = action.Flag

	case ActionStartRecording:
		if CanStartRecording(next) {
			next.Audio = AudioRecording
			next.Stream = action.Stream
		}

	case ActionStopRecording:
		if next.Interview == InterviewActive && next.Audio == AudioRecording {
			next.Audio = AudioProcessing
		}

	case ActionStartSpeaking:
		if next.Interview == InterviewActive {
			next.Audio = AudioSpeaking
		}

	case ActionResetToWaiting:
		if next.Interview == InterviewActive {
			next.Audio = AudioWaiting
		}

	case ActionEndInterview:
		next.Interview = InterviewFinished
		next.Audio = AudioIdle
		next.Stream = nil

	case ActionResetInterview:
		next = AgentState{
			Interview: InterviewReady,
			Audio:     AudioIdle,
			UserImage: next.UserImage,
		}
	}

	return next
}

// appendMessages copies the slice before appending so prior snapshots stay
// untouched. Empty user messages are discarded, never stored.
func appendMessages(msgs []llm.Message, add ...llm.Message) []llm.Message {
	out := make([]llm.Message, len(msgs), len(msgs)+len(add))
	copy(out, msgs)
	for _, m := range add {
		if m.Role == llm.RoleUser && m.Content == "" {
			continue
		}
		out = append(out, m)
	}
	return out
}
