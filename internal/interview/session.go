// Package interview wires the full voice pipeline into per-interview
// sessions: capture, transcription, dialogue, synthesis, playback, and the
// state store, exposed to the UI layer as a typed event stream.
package interview

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/intervox-ai/intervox/internal/capture"
	"github.com/intervox-ai/intervox/internal/dialogue"
	"github.com/intervox-ai/intervox/internal/feedback"
	"github.com/intervox-ai/intervox/internal/observe"
	"github.com/intervox-ai/intervox/internal/speech"
	"github.com/intervox-ai/intervox/internal/state"
	"github.com/intervox-ai/intervox/internal/transcribe"
	"github.com/intervox-ai/intervox/internal/voicecmd"
	"github.com/intervox-ai/intervox/pkg/audio"
	"github.com/intervox-ai/intervox/pkg/provider/llm"
)

// defaultEventBuffer is the event channel depth. Partial transcripts and
// speech markers are dropped (with a warning) when the consumer falls this
// far behind; committed transcripts, errors, and call-end are never dropped.
const defaultEventBuffer = 32

// Params collects everything a [Session] needs. Capture, Transcriber,
// Dialogue, Synth, and Player are required; the rest are optional.
type Params struct {
	ID            string
	CandidateName string
	Role          string
	UserImage     string

	Capture     *capture.Service
	Transcriber *transcribe.Client
	Dialogue    *dialogue.Engine
	Synth       *speech.Synthesizer
	Player      *speech.Player

	// EndDetector recognizes spoken end-of-interview requests. Nil disables
	// voice-command detection.
	EndDetector *voicecmd.Detector

	// Feedback receives the final transcript once the interview completes.
	// Nil disables feedback generation.
	Feedback feedback.Sender

	// FeedbackTimeout bounds the feedback request made during teardown.
	// Default 30s.
	FeedbackTimeout time.Duration

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	Logger *slog.Logger

	// EventBuffer overrides the event channel depth.
	EventBuffer int
}

// Session runs one interview. It owns the microphone and audio output for
// its lifetime, serializes all turns, and is the single writer of its
// [state.AgentState].
type Session struct {
	id            string
	candidateName string
	role          string

	capture     *capture.Service
	transcriber *transcribe.Client
	dialogue    *dialogue.Engine
	synth       *speech.Synthesizer
	player      *speech.Player
	endDetector *voicecmd.Detector
	feedback    feedback.Sender
	fbTimeout   time.Duration
	metrics     *observe.Metrics
	logger      *slog.Logger

	events chan Event
	wake   chan struct{}
	done   chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	st     state.AgentState
	epoch  uint64
	closed bool
	queue  []Event
	mic    *capture.Mic

	startOnce sync.Once
	endOnce   sync.Once
}

// NewSession creates a session in the ready state. Call [Session.Start] to
// begin the interview.
func NewSession(p Params) (*Session, error) {
	if p.ID == "" {
		return nil, errors.New("interview: session id is required")
	}
	if p.Capture == nil || p.Transcriber == nil || p.Dialogue == nil || p.Synth == nil || p.Player == nil {
		return nil, errors.New("interview: capture, transcriber, dialogue, synth, and player are required")
	}
	if p.FeedbackTimeout <= 0 {
		p.FeedbackTimeout = 30 * time.Second
	}
	if p.Metrics == nil {
		p.Metrics = observe.DefaultMetrics()
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	buf := p.EventBuffer
	if buf <= 0 {
		buf = defaultEventBuffer
	}

	st := state.New()
	st.UserImage = p.UserImage

	s := &Session{
		id:            p.ID,
		candidateName: p.CandidateName,
		role:          p.Role,
		capture:       p.Capture,
		transcriber:   p.Transcriber,
		dialogue:      p.Dialogue,
		synth:         p.Synth,
		player:        p.Player,
		endDetector:   p.EndDetector,
		feedback:      p.Feedback,
		fbTimeout:     p.FeedbackTimeout,
		metrics:       p.Metrics,
		logger:        p.Logger.With("session_id", p.ID),
		events:        make(chan Event, buf),
		wake:          make(chan struct{}, 1),
		done:          make(chan struct{}),
		st:            st,
	}
	go s.flush()
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Events returns the session's event stream. The channel is closed after
// the final call-end event. Committed transcripts, errors, and call-end
// are always delivered; partial transcripts and speech markers may be
// dropped when the consumer lags.
func (s *Session) Events() <-chan Event { return s.events }

// Done is closed when the session has torn down. The event stream may
// still be flushing queued events at that point; it is closed once the
// final call-end has been delivered.
func (s *Session) Done() <-chan struct{} { return s.done }

// State returns a snapshot of the current agent state.
func (s *Session) State() state.AgentState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st
}

// Start activates the session: it acquires the microphone, speaks the
// intro, and begins consuming candidate audio. The turn loop runs in a
// background goroutine until the interview ends or ctx is cancelled.
//
// A microphone permission denial is fatal: Start returns the error and the
// session is finished.
func (s *Session) Start(ctx context.Context) error {
	var startErr error
	s.startOnce.Do(func() {
		s.ctx, s.cancel = context.WithCancel(ctx)
		s.metrics.ActiveSessions.Add(s.ctx, 1)

		s.dispatch(state.SetInterviewPhase(state.InterviewActive))
		s.emit(Event{Type: EventCallStart})
		s.logger.Info("interview started",
			"candidate", s.candidateName,
			"role", s.role,
		)

		mic, err := s.capture.Acquire(s.ctx)
		if err != nil {
			if errors.Is(err, audio.ErrPermissionDenied) {
				s.emit(Event{Type: EventError, Message: "microphone access denied", Code: CodePermission})
				s.logger.Error("microphone permission denied, ending session")
			} else {
				s.emit(Event{Type: EventError, Message: err.Error(), Code: CodeCapture})
				s.logger.Error("microphone acquisition failed, ending session", "error", err)
			}
			startErr = err
			s.End()
			return
		}
		s.mu.Lock()
		if s.epoch != 0 || s.ctx.Err() != nil {
			// The session ended while we were waiting on the platform.
			s.mu.Unlock()
			_ = mic.Release()
			return
		}
		s.mic = mic
		s.mu.Unlock()

		// The intro does not count as a question and always yields an
		// utterance, degrading to a fixed greeting when generation fails.
		intro := s.dialogue.Intro(s.ctx)
		if intro.Degraded {
			s.emit(Event{Type: EventError, Message: intro.Cause.Error(), Code: CodeDialogue})
		}
		s.dispatch(state.AddMessage(llm.Message{Role: llm.RoleAssistant, Content: intro.Text}))
		s.emit(Event{
			Type:           EventMessage,
			Role:           llm.RoleAssistant,
			Transcript:     intro.Text,
			TranscriptType: TranscriptFinal,
		})
		s.speak(intro.Text)

		s.dispatch(state.ResetToWaiting())
		go s.loop(mic)
	})
	return startErr
}

// loop consumes gated microphone chunks, one logical turn at a time.
func (s *Session) loop(mic *capture.Mic) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case chunk, ok := <-mic.Chunks():
			if !ok {
				// The platform closed the stream (e.g. browser gone).
				if s.ctx.Err() == nil {
					s.logger.Info("audio stream ended, finishing interview")
					s.End()
				}
				return
			}
			s.handleTurn(chunk)
		}
	}
}

// handleTurn runs one candidate-answer turn: transcribe, generate, speak.
func (s *Session) handleTurn(chunk audio.Chunk) {
	epoch := s.currentEpoch()
	start := time.Now()

	s.mu.Lock()
	mic := s.mic
	s.mu.Unlock()
	if !s.dispatchIfCurrent(epoch, state.StartRecording(mic), state.StopRecording()) {
		return
	}

	sttStart := time.Now()
	res, err := s.transcriber.Transcribe(s.ctx, chunk)
	s.metrics.STTDuration.Record(s.ctx, time.Since(sttStart).Seconds())
	if s.stale(epoch) {
		s.logger.Debug("discarding transcription result for finished session")
		return
	}
	if err != nil {
		s.handleTranscribeError(err)
		s.dispatch(state.ResetToWaiting())
		return
	}
	if res.Silence {
		s.metrics.RecordTurn(s.ctx, "silence")
		s.dispatch(state.ResetToWaiting())
		return
	}

	s.dispatch(state.SetUserSpoken(true))
	if s.endDetector != nil && s.endDetector.IsEndCommand(res.Text) {
		s.logger.Info("end-of-interview voice command detected", "transcript", res.Text)
		s.End()
		return
	}
	s.emit(Event{
		Type:           EventMessage,
		Role:           llm.RoleUser,
		Transcript:     res.Text,
		TranscriptType: TranscriptPartial,
	})

	llmStart := time.Now()
	turn, err := s.dialogue.NextUtterance(s.ctx, res.Text)
	s.metrics.LLMDuration.Record(s.ctx, time.Since(llmStart).Seconds())
	if s.stale(epoch) {
		s.logger.Debug("discarding dialogue result for finished session")
		return
	}
	if err != nil {
		s.emit(Event{Type: EventError, Message: err.Error(), Code: CodeDialogue})
		s.dispatch(state.ResetToWaiting())
		return
	}

	if !s.dispatchIfCurrent(epoch,
		state.AddMessages([]llm.Message{
			{Role: llm.RoleUser, Content: res.Text},
			{Role: llm.RoleAssistant, Content: turn.Text},
		}),
		state.SetQuestionNumber(turn.QuestionNumber),
		state.SetInterviewComplete(turn.Complete),
	) {
		return
	}
	s.emit(Event{
		Type:           EventMessage,
		Role:           llm.RoleUser,
		Transcript:     res.Text,
		TranscriptType: TranscriptFinal,
	})
	s.emit(Event{
		Type:           EventMessage,
		Role:           llm.RoleAssistant,
		Transcript:     turn.Text,
		TranscriptType: TranscriptFinal,
	})
	if turn.Degraded {
		s.emit(Event{Type: EventError, Message: turn.Cause.Error(), Code: CodeDialogue})
		s.metrics.RecordTurn(s.ctx, "degraded")
	} else {
		s.metrics.RecordTurn(s.ctx, "ok")
	}
	s.metrics.TurnDuration.Record(s.ctx, time.Since(start).Seconds())

	s.speak(turn.Text)
	if s.stale(epoch) {
		return
	}

	if turn.Complete {
		s.logger.Info("interview complete", "questions", turn.QuestionNumber)
		s.End()
		return
	}
	s.dispatch(state.ResetToWaiting())
}

// handleTranscribeError maps transcription failures onto events and metrics.
func (s *Session) handleTranscribeError(err error) {
	var perr *transcribe.ProtocolError
	if errors.As(err, &perr) {
		// Drop prevention: a malformed provider response is never treated
		// as silence.
		s.metrics.DroppedAnswers.Add(s.ctx, 1)
		s.metrics.RecordTurn(s.ctx, "protocol_error")
		s.emit(Event{Type: EventError, Message: perr.Error(), Code: CodeTranscriptionProtocol})
		return
	}
	s.metrics.RecordTurn(s.ctx, "transcription_error")
	s.emit(Event{Type: EventError, Message: err.Error(), Code: CodeTranscription})
}

// speak synthesizes and plays one interviewer utterance. Synthesis failure
// skips playback; the turn proceeds silently.
func (s *Session) speak(text string) {
	s.dispatch(state.StartSpeaking())

	ttsStart := time.Now()
	data, err := s.synth.Speak(s.ctx, text)
	s.metrics.TTSDuration.Record(s.ctx, time.Since(ttsStart).Seconds())
	if err != nil {
		s.logger.Warn("synthesis failed, continuing without audio", "error", err)
		s.emit(Event{Type: EventError, Message: err.Error(), Code: CodeSynthesis})
		return
	}

	s.emit(Event{Type: EventSpeechStart})
	if err := s.player.Play(s.ctx, data); err != nil {
		s.logger.Warn("playback failed", "error", err)
	}
	s.emit(Event{Type: EventSpeechEnd})
}

// End finishes the interview. It is valid from every state and idempotent:
// it cancels in-flight work, releases the microphone and output device,
// triggers feedback generation when the interview completed, and closes the
// event stream after a final call-end event. Results of calls still
// outstanding when End is called are discarded.
func (s *Session) End() {
	s.endOnce.Do(func() {
		s.mu.Lock()
		s.epoch++
		mic := s.mic
		s.mic = nil
		s.mu.Unlock()

		if s.cancel != nil {
			s.cancel()
		}
		s.dispatch(state.EndInterview())

		if mic != nil {
			if err := mic.Release(); err != nil {
				s.logger.Warn("microphone release failed", "error", err)
			}
		}
		if err := s.player.Close(); err != nil {
			s.logger.Warn("audio output close failed", "error", err)
		}

		s.sendFeedback()

		s.metrics.ActiveSessions.Add(context.Background(), -1)
		s.logger.Info("interview ended")

		// Queue the terminal event and seal the stream in one step so
		// nothing can slip in after call-end. The flush goroutine closes
		// the channel once the queue drains.
		s.mu.Lock()
		s.queue = append(s.queue, Event{Type: EventCallEnd})
		s.closed = true
		s.mu.Unlock()
		s.notifyFlush()
		close(s.done)
	})
}

// sendFeedback posts the final transcript to the feedback service, once,
// and only when the interview ran to completion.
func (s *Session) sendFeedback() {
	if s.feedback == nil || !s.dialogue.Complete() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.fbTimeout)
	defer cancel()

	id, err := s.feedback.Send(ctx, feedback.Request{
		SessionID:     s.id,
		CandidateName: s.candidateName,
		Role:          s.role,
		Messages:      s.dialogue.History(),
	})
	if err != nil {
		s.logger.Error("feedback generation failed", "error", err)
		return
	}
	s.dispatch(state.SetFeedbackGenerated(true, id))
	s.logger.Info("feedback generated", "feedback_id", id)
}

// dispatch applies actions to the state store.
func (s *Session) dispatch(actions ...state.Action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range actions {
		s.st = state.Reduce(s.st, a)
	}
}

// dispatchIfCurrent applies actions only if the session epoch still matches,
// discarding late results after End.
func (s *Session) dispatchIfCurrent(epoch uint64, actions ...state.Action) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return false
	}
	for _, a := range actions {
		s.st = state.Reduce(s.st, a)
	}
	return true
}

func (s *Session) currentEpoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// stale reports whether the session moved on (ended) since epoch was taken.
func (s *Session) stale(epoch uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch != epoch
}

// emit delivers an event without blocking the pipeline. Events are queued
// and flushed in order by a dedicated goroutine. When the consumer falls a
// full buffer behind, disposable events (partial transcripts, speech
// markers) are dropped with a warning; committed transcripts, errors, and
// the terminal call-end are queued regardless and survive backpressure.
func (s *Session) emit(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if disposable(ev) && len(s.queue)+len(s.events) >= cap(s.events) {
		s.logger.Warn("event buffer full, dropping event", "type", ev.Type)
		return
	}
	s.queue = append(s.queue, ev)
	s.notifyFlush()
}

// disposable reports whether ev may be dropped under consumer backpressure.
// Partial transcripts are superseded by their final form and speech markers
// are only useful live, so losing them is harmless.
func disposable(ev Event) bool {
	switch ev.Type {
	case EventSpeechStart, EventSpeechEnd:
		return true
	case EventMessage:
		return ev.TranscriptType == TranscriptPartial
	}
	return false
}

func (s *Session) notifyFlush() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// flush forwards queued events to the consumer channel in order. It runs
// for the session's lifetime and closes the event stream once the session
// has ended and the queue is empty. Sends happen outside the session lock
// so a slow consumer never stalls the pipeline or End.
func (s *Session) flush() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			finished := s.closed
			s.mu.Unlock()
			if finished {
				close(s.events)
				return
			}
			<-s.wake
			continue
		}
		ev := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.events <- ev
	}
}
