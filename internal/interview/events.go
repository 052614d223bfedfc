package interview

// EventType tags events emitted by a [Session] for the UI layer.
type EventType string

const (
	// EventCallStart is emitted once when the session goes active.
	EventCallStart EventType = "call-start"

	// EventMessage carries a transcript fragment for either role.
	EventMessage EventType = "message"

	// EventSpeechStart is emitted when interviewer playback begins.
	EventSpeechStart EventType = "speech-start"

	// EventSpeechEnd is emitted when interviewer playback finishes or is
	// interrupted.
	EventSpeechEnd EventType = "speech-end"

	// EventCallEnd is emitted once when the session finishes. It is always
	// the last event on the stream.
	EventCallEnd EventType = "call-end"

	// EventError carries a non-fatal error the UI may surface.
	EventError EventType = "error"
)

// TranscriptType distinguishes provisional from committed transcripts.
type TranscriptType string

const (
	// TranscriptPartial is a provisional transcript that has not yet been
	// committed to the conversation history.
	TranscriptPartial TranscriptType = "partial"

	// TranscriptFinal is a transcript committed to history.
	TranscriptFinal TranscriptType = "final"
)

// Error codes attached to [EventError] events.
const (
	CodePermission            = "permission-denied"
	CodeCapture               = "capture-failed"
	CodeTranscription         = "transcription-failed"
	CodeTranscriptionProtocol = "transcription-protocol"
	CodeDialogue              = "dialogue-degraded"
	CodeSynthesis             = "synthesis-failed"
)

// Event is one entry on a session's event stream. Fields other than Type are
// populated depending on the event kind.
type Event struct {
	Type EventType `json:"type"`

	// Role and Transcript are set for EventMessage.
	Role           string         `json:"role,omitempty"`
	Transcript     string         `json:"transcript,omitempty"`
	TranscriptType TranscriptType `json:"transcriptType,omitempty"`

	// Message and Code are set for EventError.
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}
