package interview

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/intervox-ai/intervox/internal/capture"
	"github.com/intervox-ai/intervox/internal/dialogue"
	"github.com/intervox-ai/intervox/internal/feedback"
	"github.com/intervox-ai/intervox/internal/resilience"
	"github.com/intervox-ai/intervox/internal/speech"
	"github.com/intervox-ai/intervox/internal/state"
	"github.com/intervox-ai/intervox/internal/transcribe"
	"github.com/intervox-ai/intervox/internal/voicecmd"
	"github.com/intervox-ai/intervox/pkg/audio"
	audiomock "github.com/intervox-ai/intervox/pkg/audio/mock"
	llmmock "github.com/intervox-ai/intervox/pkg/provider/llm/mock"
	"github.com/intervox-ai/intervox/pkg/provider/stt"
	sttmock "github.com/intervox-ai/intervox/pkg/provider/stt/mock"
	"github.com/intervox-ai/intervox/pkg/provider/tts"
	ttsmock "github.com/intervox-ai/intervox/pkg/provider/tts/mock"
)

const waitTimeout = 5 * time.Second

type fakeFeedback struct {
	mu   sync.Mutex
	err  error
	reqs []feedback.Request
}

func (f *fakeFeedback) Send(_ context.Context, req feedback.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return "", f.err
	}
	return "fb-123", nil
}

func (f *fakeFeedback) requests() []feedback.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]feedback.Request, len(f.reqs))
	copy(out, f.reqs)
	return out
}

// harness wires a session onto fully scripted providers and devices.
type harness struct {
	platform *audiomock.Platform
	out      *audiomock.Output
	sttP     *sttmock.Provider
	llmP     *llmmock.Provider
	ttsP     *ttsmock.Provider
	fb       *fakeFeedback
	session  *Session
}

func newHarness(t *testing.T, questionCount int, tweaks ...func(*Params)) *harness {
	t.Helper()

	h := &harness{
		platform: &audiomock.Platform{},
		out:      &audiomock.Output{},
		sttP:     &sttmock.Provider{},
		llmP:     &llmmock.Provider{},
		ttsP:     &ttsmock.Provider{},
		fb:       &fakeFeedback{},
	}

	logger := slog.New(slog.NewTextHandler(discard{}, nil))
	retryer := resilience.NewRetryer(resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		AttemptTimeout: time.Second,
	})

	params := Params{
		ID:            "sess-1",
		CandidateName: "Ada",
		Role:          "Software Engineer",
		Capture:       capture.NewService(h.platform, capture.Config{MinChunkBytes: 1}, logger),
		Transcriber:   transcribe.NewClient(h.sttP, retryer, transcribe.WithLogger(logger)),
		Dialogue: dialogue.NewEngine(h.llmP, retryer, dialogue.Config{
			CandidateName: "Ada",
			Role:          "Software Engineer",
			QuestionCount: questionCount,
		}, logger),
		Synth:           speech.NewSynthesizer(h.ttsP, retryer, tts.VoiceProfile{}),
		Player:          speech.NewPlayer(h.out, logger),
		EndDetector:     voicecmd.New(),
		Feedback:        h.fb,
		FeedbackTimeout: time.Second,
		Logger:          logger,
	}
	for _, tweak := range tweaks {
		tweak(&params)
	}
	s, err := NewSession(params)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	h.session = s
	return h
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// push feeds one candidate audio chunk into the acquired microphone stream.
func (h *harness) push(t *testing.T, data string) {
	t.Helper()
	if len(h.platform.Streams) == 0 {
		t.Fatal("no microphone stream acquired")
	}
	if !h.platform.Streams[0].Push(audio.Chunk{Data: []byte(data), ContentType: "audio/webm"}) {
		t.Fatal("push on closed stream")
	}
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(waitTimeout):
		t.Fatal("session did not finish in time")
	}
}

// nextEvent reads one event, failing the test on timeout or closed stream.
func nextEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatal("event stream closed unexpectedly")
		}
		return ev
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

// waitForEvent skips events until one of the given type arrives.
func waitForEvent(t *testing.T, ch <-chan Event, typ EventType) Event {
	t.Helper()
	for {
		ev := nextEvent(t, ch)
		if ev.Type == typ {
			return ev
		}
	}
}

// drain collects the remaining events until the stream closes.
func drain(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var out []Event
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-time.After(waitTimeout):
			t.Fatal("timed out draining events")
		}
	}
}

func eventTypes(events []Event) []EventType {
	out := make([]EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func TestSessionFullInterview(t *testing.T) {
	h := newHarness(t, 2)
	h.sttP.Script = []sttmock.Result{
		sttmock.Text("I led the migration to Kubernetes.", 0.94),
		sttmock.Text("My biggest challenge was scaling the ingest pipeline.", 0.91),
	}
	h.llmP.Script = []llmmock.Result{
		llmmock.Reply("Welcome Ada! Tell me about a recent project."),
		llmmock.Reply("Interesting. What was the biggest challenge?"),
		llmmock.Reply("Great answers. That concludes our interview, thank you!"),
	}

	if err := h.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.push(t, "answer-1")
	h.push(t, "answer-2")
	waitDone(t, h.session)

	events := drain(t, h.session.Events())
	want := []EventType{
		EventCallStart,
		EventMessage, EventSpeechStart, EventSpeechEnd, // intro
		EventMessage, EventMessage, EventMessage, EventSpeechStart, EventSpeechEnd, // turn 1
		EventMessage, EventMessage, EventMessage, EventSpeechStart, EventSpeechEnd, // turn 2
		EventCallEnd,
	}
	got := eventTypes(events)
	if len(got) != len(want) {
		t.Fatalf("got %d events %v, want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d: got %q, want %q (all: %v)", i, got[i], want[i], got)
		}
	}

	// Turn 1: partial user, then final user and assistant transcripts.
	if events[4].TranscriptType != TranscriptPartial || events[4].Role != "user" {
		t.Errorf("turn 1 first message = %+v, want partial user", events[4])
	}
	if events[5].TranscriptType != TranscriptFinal || events[5].Transcript != "I led the migration to Kubernetes." {
		t.Errorf("turn 1 final user message = %+v", events[5])
	}
	if events[6].Role != "assistant" || events[6].Transcript != "Interesting. What was the biggest challenge?" {
		t.Errorf("turn 1 assistant message = %+v", events[6])
	}

	st := h.session.State()
	if st.Interview != state.InterviewFinished {
		t.Errorf("interview phase = %q, want finished", st.Interview)
	}
	if st.QuestionNumber != 2 {
		t.Errorf("question number = %d, want 2", st.QuestionNumber)
	}
	if !st.InterviewComplete {
		t.Error("interview not marked complete")
	}
	if !st.FeedbackGenerated || st.FeedbackID != "fb-123" {
		t.Errorf("feedback state = (%v, %q), want (true, fb-123)", st.FeedbackGenerated, st.FeedbackID)
	}

	reqs := h.fb.requests()
	if len(reqs) != 1 {
		t.Fatalf("feedback sent %d times, want 1", len(reqs))
	}
	if reqs[0].SessionID != "sess-1" || reqs[0].CandidateName != "Ada" {
		t.Errorf("feedback request = %+v", reqs[0])
	}
	// Intro plus two user/assistant pairs.
	if len(reqs[0].Messages) != 5 {
		t.Errorf("feedback transcript has %d messages, want 5", len(reqs[0].Messages))
	}

	if got := h.ttsP.Texts(); len(got) != 3 {
		t.Errorf("synthesized %d utterances, want 3 (intro + 2 replies)", len(got))
	}
	if played := h.out.Played(); len(played) != 3 {
		t.Errorf("played %d utterances, want 3", len(played))
	}
	if !h.platform.Streams[0].Closed() {
		t.Error("microphone stream not released")
	}
	if !h.out.Closed() {
		t.Error("audio output not closed")
	}
}

func TestSessionPermissionDenied(t *testing.T) {
	h := newHarness(t, 2)
	h.platform.AcquireErr = audio.ErrPermissionDenied
	h.llmP.Script = []llmmock.Result{llmmock.Reply("Welcome!")}

	err := h.session.Start(context.Background())
	if !errors.Is(err, audio.ErrPermissionDenied) {
		t.Fatalf("Start error = %v, want permission denied", err)
	}
	waitDone(t, h.session)

	events := drain(t, h.session.Events())
	var errEv *Event
	for i := range events {
		if events[i].Type == EventError {
			errEv = &events[i]
		}
	}
	if errEv == nil || errEv.Code != CodePermission {
		t.Fatalf("no permission error event in %v", eventTypes(events))
	}
	if events[len(events)-1].Type != EventCallEnd {
		t.Errorf("last event = %q, want call-end", events[len(events)-1].Type)
	}
	if st := h.session.State(); st.Interview != state.InterviewFinished {
		t.Errorf("interview phase = %q, want finished", st.Interview)
	}
	if len(h.fb.requests()) != 0 {
		t.Error("feedback sent for an interview that never completed")
	}
}

func TestSessionCaptureFailure(t *testing.T) {
	h := newHarness(t, 2)
	h.platform.AcquireErr = errors.New("audio device unavailable")
	h.llmP.Script = []llmmock.Result{llmmock.Reply("Welcome!")}

	err := h.session.Start(context.Background())
	if err == nil || errors.Is(err, audio.ErrPermissionDenied) {
		t.Fatalf("Start error = %v, want a plain capture failure", err)
	}
	waitDone(t, h.session)

	events := drain(t, h.session.Events())
	var errEv *Event
	for i := range events {
		if events[i].Type == EventError {
			errEv = &events[i]
		}
	}
	if errEv == nil {
		t.Fatalf("no error event in %v", eventTypes(events))
	}
	// A device failure is not a permission problem and must not be reported
	// as one.
	if errEv.Code != CodeCapture {
		t.Errorf("error code = %q, want %q", errEv.Code, CodeCapture)
	}
	if events[len(events)-1].Type != EventCallEnd {
		t.Errorf("last event = %q, want call-end", events[len(events)-1].Type)
	}
}

// A consumer that reads nothing until the interview is over must still see
// every committed transcript and the terminal call-end, no matter how small
// the event buffer is. Only partials and speech markers may be shed.
func TestSessionSlowConsumerKeepsCommittedEvents(t *testing.T) {
	h := newHarness(t, 2, func(p *Params) { p.EventBuffer = 2 })
	h.sttP.Script = []sttmock.Result{
		sttmock.Text("First answer.", 0.95),
		sttmock.Text("Second answer.", 0.95),
	}
	h.llmP.Script = []llmmock.Result{
		llmmock.Reply("Welcome Ada!"),
		llmmock.Reply("Question two?"),
		llmmock.Reply("Thank you, we are done!"),
	}

	if err := h.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.push(t, "answer-1")
	h.push(t, "answer-2")
	waitDone(t, h.session)

	events := drain(t, h.session.Events())

	var finals []string
	callEnds := 0
	for _, ev := range events {
		if ev.Type == EventMessage && ev.TranscriptType == TranscriptFinal {
			finals = append(finals, ev.Transcript)
		}
		if ev.Type == EventCallEnd {
			callEnds++
		}
	}
	wantFinals := []string{
		"Welcome Ada!",
		"First answer.",
		"Question two?",
		"Second answer.",
		"Thank you, we are done!",
	}
	if len(finals) != len(wantFinals) {
		t.Fatalf("got %d final transcripts %q, want %d", len(finals), finals, len(wantFinals))
	}
	for i := range wantFinals {
		if finals[i] != wantFinals[i] {
			t.Errorf("final %d = %q, want %q", i, finals[i], wantFinals[i])
		}
	}
	if callEnds != 1 {
		t.Errorf("call-end emitted %d times, want 1", callEnds)
	}
	if events[len(events)-1].Type != EventCallEnd {
		t.Errorf("last event = %q, want call-end", events[len(events)-1].Type)
	}
}

func TestSessionDegradedIntroStillOpens(t *testing.T) {
	h := newHarness(t, 1)
	h.sttP.Script = []sttmock.Result{sttmock.Text("My answer.", 0.95)}
	h.llmP.Script = []llmmock.Result{
		{Err: errors.New("model overloaded")},
		{Err: errors.New("model overloaded")},
		{Err: errors.New("model overloaded")},
		llmmock.Reply("Thank you, we are done!"),
	}

	if err := h.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.push(t, "answer-1")
	waitDone(t, h.session)

	events := drain(t, h.session.Events())
	var introText string
	sawDialogueError := false
	for _, ev := range events {
		if ev.Type == EventError && ev.Code == CodeDialogue {
			sawDialogueError = true
		}
		if introText == "" && ev.Type == EventMessage && ev.Role == "assistant" {
			introText = ev.Transcript
		}
	}
	if !sawDialogueError {
		t.Error("degraded intro did not surface a dialogue error event")
	}
	if !strings.Contains(introText, "welcome to your interview") {
		t.Errorf("intro = %q, want the fixed greeting", introText)
	}
	if st := h.session.State(); st.Interview != state.InterviewFinished {
		t.Errorf("interview phase = %q, want finished", st.Interview)
	}
}

func TestSessionTranscriptionProtocolViolation(t *testing.T) {
	h := newHarness(t, 5)
	// First response carries no transcript field at all; it must surface as a
	// protocol violation, not as silence.
	h.sttP.Script = []sttmock.Result{
		{Resp: &stt.Response{}},
		sttmock.Text("a real answer about my experience", 0.9),
	}
	h.llmP.Script = []llmmock.Result{
		llmmock.Reply("Welcome!"),
		llmmock.Reply("Tell me more."),
	}

	if err := h.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ch := h.session.Events()
	waitForEvent(t, ch, EventSpeechEnd) // intro spoken

	h.push(t, "garbled")
	ev := waitForEvent(t, ch, EventError)
	if ev.Code != CodeTranscriptionProtocol {
		t.Fatalf("error code = %q, want %q", ev.Code, CodeTranscriptionProtocol)
	}
	if !strings.Contains(ev.Message, "protocol violation") {
		t.Errorf("error message = %q", ev.Message)
	}

	// The session is still live and the next answer goes through.
	h.push(t, "second-take")
	ev = waitForEvent(t, ch, EventMessage)
	if ev.Role != "user" || ev.Transcript != "a real answer about my experience" {
		t.Fatalf("message after recovery = %+v", ev)
	}
	waitForEvent(t, ch, EventSpeechEnd)

	if st := h.session.State(); st.Interview != state.InterviewActive {
		t.Errorf("interview phase = %q, want active", st.Interview)
	}
	h.session.End()
	waitDone(t, h.session)
}

func TestSessionTranscriptionErrorKeepsSessionAlive(t *testing.T) {
	h := newHarness(t, 5)
	h.sttP.Script = []sttmock.Result{{Err: errors.New("upstream 500")}}
	h.llmP.Script = []llmmock.Result{llmmock.Reply("Welcome!")}

	if err := h.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ch := h.session.Events()
	waitForEvent(t, ch, EventSpeechEnd)

	h.push(t, "noisy")
	ev := waitForEvent(t, ch, EventError)
	if ev.Code != CodeTranscription {
		t.Fatalf("error code = %q, want %q", ev.Code, CodeTranscription)
	}
	// Retries were exhausted before giving up.
	if calls := len(h.sttP.Calls()); calls != 3 {
		t.Errorf("transcription attempts = %d, want 3", calls)
	}
	if st := h.session.State(); st.Interview != state.InterviewActive || st.Audio != state.AudioWaiting {
		t.Errorf("state = %q/%q, want active/waiting", st.Interview, st.Audio)
	}
	h.session.End()
	waitDone(t, h.session)
}

func TestSessionDialogueFallback(t *testing.T) {
	h := newHarness(t, 5)
	h.sttP.Script = []sttmock.Result{sttmock.Text("my answer", 0.9)}
	h.llmP.Script = []llmmock.Result{
		llmmock.Reply("Welcome!"),
		{Err: errors.New("model overloaded")},
	}

	if err := h.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ch := h.session.Events()
	waitForEvent(t, ch, EventSpeechEnd)

	h.push(t, "answer")
	// Final user message, then the apologetic fallback from the assistant.
	var assistant Event
	for {
		ev := waitForEvent(t, ch, EventMessage)
		if ev.Role == "assistant" {
			assistant = ev
			break
		}
	}
	if assistant.Transcript != dialogue.DefaultFallbackUtterance {
		t.Errorf("assistant transcript = %q, want fallback utterance", assistant.Transcript)
	}
	ev := waitForEvent(t, ch, EventError)
	if ev.Code != CodeDialogue {
		t.Fatalf("error code = %q, want %q", ev.Code, CodeDialogue)
	}
	waitForEvent(t, ch, EventSpeechEnd)

	st := h.session.State()
	if st.Interview != state.InterviewActive {
		t.Errorf("interview phase = %q, want active", st.Interview)
	}
	// A degraded turn never advances the question counter.
	if st.QuestionNumber != 0 {
		t.Errorf("question number = %d, want 0", st.QuestionNumber)
	}
	h.session.End()
	waitDone(t, h.session)
}

func TestSessionSynthesisFailureProceedsSilently(t *testing.T) {
	h := newHarness(t, 5)
	h.sttP.Script = []sttmock.Result{sttmock.Text("an answer", 0.9)}
	h.llmP.Script = []llmmock.Result{
		llmmock.Reply("Welcome!"),
		llmmock.Reply("Next question."),
	}
	// Exhaust all three intro synthesis attempts, then recover.
	boom := errors.New("voice service down")
	h.ttsP.Errs = []error{boom, boom, boom}

	if err := h.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ch := h.session.Events()

	// Intro text is still recorded and emitted even though nothing played.
	ev := waitForEvent(t, ch, EventMessage)
	if ev.Role != "assistant" || ev.Transcript != "Welcome!" {
		t.Fatalf("intro message = %+v", ev)
	}
	ev = waitForEvent(t, ch, EventError)
	if ev.Code != CodeSynthesis {
		t.Fatalf("error code = %q, want %q", ev.Code, CodeSynthesis)
	}

	// The next turn synthesizes and plays normally.
	h.push(t, "answer")
	waitForEvent(t, ch, EventSpeechEnd)
	if texts := h.ttsP.Texts(); len(texts) != 1 || texts[0] != "Next question." {
		t.Errorf("synthesized texts = %v", texts)
	}
	if played := h.out.Played(); len(played) != 1 {
		t.Errorf("played %d utterances, want 1", len(played))
	}
	h.session.End()
	waitDone(t, h.session)
}

func TestSessionVoiceEndCommand(t *testing.T) {
	h := newHarness(t, 5)
	h.sttP.Script = []sttmock.Result{sttmock.Text("please end the interview now", 0.95)}
	h.llmP.Script = []llmmock.Result{llmmock.Reply("Welcome!")}

	if err := h.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ch := h.session.Events()
	waitForEvent(t, ch, EventSpeechEnd)

	h.push(t, "end-request")
	waitDone(t, h.session)
	drain(t, ch)

	if st := h.session.State(); st.Interview != state.InterviewFinished {
		t.Errorf("interview phase = %q, want finished", st.Interview)
	}
	// Only the intro reached the dialogue provider.
	if calls := h.llmP.CallCount(); calls != 1 {
		t.Errorf("llm calls = %d, want 1", calls)
	}
	if len(h.fb.requests()) != 0 {
		t.Error("feedback sent for an early-terminated interview")
	}
}

func TestSessionSilenceIsSkipped(t *testing.T) {
	h := newHarness(t, 5)
	h.sttP.Script = []sttmock.Result{
		sttmock.Text("   ", 0.9),
		sttmock.Text("a genuine answer", 0.9),
	}
	h.llmP.Script = []llmmock.Result{
		llmmock.Reply("Welcome!"),
		llmmock.Reply("Tell me more."),
	}

	if err := h.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ch := h.session.Events()
	waitForEvent(t, ch, EventSpeechEnd)

	h.push(t, "breathing")
	h.push(t, "speech")

	// The first message after the intro belongs to the genuine answer; the
	// silent chunk produced no turn at all.
	ev := waitForEvent(t, ch, EventMessage)
	if ev.Role != "user" || ev.Transcript != "a genuine answer" {
		t.Fatalf("first post-intro message = %+v", ev)
	}
	h.session.End()
	waitDone(t, h.session)
}

func TestSessionEndDuringSpeaking(t *testing.T) {
	h := newHarness(t, 5)
	h.out.Block = true
	h.sttP.Script = []sttmock.Result{sttmock.Text("an answer", 0.9)}
	h.llmP.Script = []llmmock.Result{llmmock.Reply("Welcome!")}

	// Start blocks inside intro playback while the output is held open.
	go func() { _ = h.session.Start(context.Background()) }()
	ch := h.session.Events()
	waitForEvent(t, ch, EventSpeechStart) // intro playback blocked on ctx

	h.session.End()
	waitDone(t, h.session)
	drain(t, ch)

	st := h.session.State()
	if st.Interview != state.InterviewFinished {
		t.Errorf("interview phase = %q, want finished", st.Interview)
	}
	if st.Audio != state.AudioIdle {
		t.Errorf("audio phase = %q, want idle", st.Audio)
	}
	if st.Stream != nil {
		t.Error("stream not cleared after end")
	}
	if !h.out.Closed() {
		t.Error("audio output not closed")
	}
}

// slowSTT blocks inside Transcribe until released, so a test can end the
// session while a transcription is still in flight.
type slowSTT struct {
	entered chan struct{}
	release chan struct{}
}

func (s *slowSTT) Transcribe(context.Context, stt.Request) (*stt.Response, error) {
	s.entered <- struct{}{}
	<-s.release
	text := "a very late answer"
	return &stt.Response{Text: &text, Confidence: 0.9}, nil
}

func TestSessionDiscardsLateResults(t *testing.T) {
	h := newHarness(t, 5)
	h.llmP.Script = []llmmock.Result{llmmock.Reply("Welcome!")}

	slow := &slowSTT{entered: make(chan struct{}, 1), release: make(chan struct{})}
	logger := slog.New(slog.NewTextHandler(discard{}, nil))
	retryer := resilience.NewRetryer(resilience.RetryConfig{
		MaxAttempts:    1,
		AttemptTimeout: waitTimeout,
	})
	h.session.transcriber = transcribe.NewClient(slow, retryer, transcribe.WithLogger(logger))

	if err := h.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.push(t, "answer")

	select {
	case <-slow.entered:
	case <-time.After(waitTimeout):
		t.Fatal("transcription never started")
	}

	h.session.End()
	waitDone(t, h.session)
	close(slow.release)

	// Give the stranded turn a chance to (incorrectly) apply its result.
	time.Sleep(50 * time.Millisecond)

	st := h.session.State()
	if st.Interview != state.InterviewFinished {
		t.Fatalf("interview phase = %q, want finished", st.Interview)
	}
	// Only the intro made it into history; the in-flight answer was dropped.
	if len(st.Messages) != 1 {
		t.Errorf("messages = %d, want 1 (intro only)", len(st.Messages))
	}
	if calls := h.llmP.CallCount(); calls != 1 {
		t.Errorf("llm calls = %d, want 1 (intro only)", calls)
	}
}

func TestSessionEndIsIdempotent(t *testing.T) {
	h := newHarness(t, 5)
	h.llmP.Script = []llmmock.Result{llmmock.Reply("Welcome!")}

	if err := h.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.session.End()
	h.session.End()
	h.session.End()
	waitDone(t, h.session)

	events := drain(t, h.session.Events())
	ends := 0
	for _, ev := range events {
		if ev.Type == EventCallEnd {
			ends++
		}
	}
	if ends != 1 {
		t.Errorf("call-end emitted %d times, want 1", ends)
	}
}

func TestNewSessionValidation(t *testing.T) {
	if _, err := NewSession(Params{}); err == nil {
		t.Fatal("expected error for empty params")
	}
	if _, err := NewSession(Params{ID: "x"}); err == nil {
		t.Fatal("expected error for missing pipeline components")
	}
}

func TestManager(t *testing.T) {
	m := NewManager()

	h1 := newHarness(t, 5)
	h2 := newHarness(t, 5)
	// Distinct ids for the manager map.
	h2.session.id = "sess-2"

	if err := m.Add(h1.session); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := m.Add(h1.session); err == nil {
		t.Fatal("duplicate Add succeeded")
	}
	if err := m.Add(h2.session); err != nil {
		t.Fatalf("Add second: %v", err)
	}
	if m.Len() != 2 {
		t.Fatalf("Len = %d, want 2", m.Len())
	}

	got, ok := m.Get("sess-2")
	if !ok || got != h2.session {
		t.Fatal("Get returned wrong session")
	}

	m.Remove("sess-2")
	if _, ok := m.Get("sess-2"); ok {
		t.Fatal("session still present after Remove")
	}
	if err := m.Add(h2.session); err != nil {
		t.Fatalf("re-Add after Remove: %v", err)
	}

	h1.llmP.Script = []llmmock.Result{llmmock.Reply("Welcome!")}
	h2.llmP.Script = []llmmock.Result{llmmock.Reply("Welcome!")}
	if err := h1.session.Start(context.Background()); err != nil {
		t.Fatalf("Start h1: %v", err)
	}
	if err := h2.session.Start(context.Background()); err != nil {
		t.Fatalf("Start h2: %v", err)
	}

	m.EndAll()
	if m.Len() != 0 {
		t.Errorf("Len after EndAll = %d, want 0", m.Len())
	}
	select {
	case <-h1.session.Done():
	default:
		t.Error("session 1 not finished after EndAll")
	}
	select {
	case <-h2.session.Done():
	default:
		t.Error("session 2 not finished after EndAll")
	}
}
