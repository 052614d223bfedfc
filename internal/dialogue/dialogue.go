// Package dialogue drives the interviewer side of the conversation: it owns
// the message history, builds provider requests, tracks question count and
// completion, and degrades to a fixed fallback utterance when the language
// model is unavailable.
package dialogue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/intervox-ai/intervox/internal/resilience"
	"github.com/intervox-ai/intervox/pkg/provider/llm"
)

// DefaultFallbackUtterance is spoken when the provider keeps failing. The
// interview continues degraded instead of aborting.
const DefaultFallbackUtterance = "I'm sorry, I didn't quite catch that. Could you tell me a bit more about your experience?"

// Config describes one interview's dialogue parameters.
type Config struct {
	// CandidateName is used in the system prompt and the intro.
	CandidateName string

	// Role is the position the candidate is interviewing for.
	Role string

	// QuestionCount is how many questions the interviewer asks before the
	// interview is complete.
	QuestionCount int

	// FallbackUtterance replaces the assistant reply after retry
	// exhaustion. Empty selects [DefaultFallbackUtterance].
	FallbackUtterance string

	// Temperature and MaxTokens are passed through to the provider.
	Temperature float64
	MaxTokens   int
}

// Turn is the outcome of one dialogue exchange.
type Turn struct {
	// Text is the interviewer's next utterance.
	Text string

	// QuestionNumber is the count of questions asked so far, including
	// this turn's.
	QuestionNumber int

	// Complete is true once the configured question count is reached.
	Complete bool

	// Degraded is true when Text is the fallback utterance rather than a
	// provider reply. Cause carries the exhausted error.
	Degraded bool
	Cause    error
}

// Engine generates interviewer utterances for a single session. All methods
// are serialized: only one completion is in flight at a time, and the history
// mutates under the same lock.
type Engine struct {
	provider llm.Provider
	retryer  *resilience.Retryer
	cfg      Config
	logger   *slog.Logger

	mu             sync.Mutex
	history        []llm.Message
	questionNumber int
	complete       bool
}

// NewEngine creates a dialogue engine for one session.
func NewEngine(provider llm.Provider, retryer *resilience.Retryer, cfg Config, logger *slog.Logger) *Engine {
	if cfg.QuestionCount <= 0 {
		cfg.QuestionCount = 5
	}
	if cfg.FallbackUtterance == "" {
		cfg.FallbackUtterance = DefaultFallbackUtterance
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		provider: provider,
		retryer:  retryer,
		cfg:      cfg,
		logger:   logger,
	}
}

// Intro produces the interviewer's opening utterance and records it in
// history. It does not count as a question and never fails: when
// generation is exhausted a fixed greeting is used and the turn is marked
// degraded.
func (e *Engine) Intro(ctx context.Context) Turn {
	e.mu.Lock()
	defer e.mu.Unlock()

	resp, err := resilience.DoWithResult(ctx, e.retryer, func(ctx context.Context) (*llm.CompletionResponse, error) {
		return e.provider.Complete(ctx, llm.CompletionRequest{
			SystemPrompt: e.systemPrompt(),
			Messages: []llm.Message{{
				Role:    llm.RoleUser,
				Content: "Please greet the candidate and open the interview.",
			}},
			Temperature: e.cfg.Temperature,
			MaxTokens:   e.cfg.MaxTokens,
		})
	})
	if err != nil {
		e.logger.Warn("intro generation failed, using fallback", "error", err)
		intro := fmt.Sprintf("Hello %s, welcome to your interview for the %s position. Shall we begin?",
			e.cfg.CandidateName, e.cfg.Role)
		e.history = append(e.history, llm.Message{Role: llm.RoleAssistant, Content: intro})
		return Turn{Text: intro, Degraded: true, Cause: err}
	}

	e.history = append(e.history, llm.Message{Role: llm.RoleAssistant, Content: resp.Content})
	return Turn{Text: resp.Content}
}

// NextUtterance takes the candidate's transcribed answer and returns the
// interviewer's next utterance. On success both the user message and the
// assistant reply are appended to history and the question counter advances.
// After retry exhaustion the fallback utterance is returned instead, the
// exchange is still recorded, and the counter does not advance.
func (e *Engine) NextUtterance(ctx context.Context, userText string) (Turn, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	userMsg := llm.Message{Role: llm.RoleUser, Content: userText}
	req := llm.CompletionRequest{
		SystemPrompt: e.systemPrompt(),
		Messages:     append(append([]llm.Message(nil), e.history...), userMsg),
		Temperature:  e.cfg.Temperature,
		MaxTokens:    e.cfg.MaxTokens,
	}

	resp, err := resilience.DoWithResult(ctx, e.retryer, func(ctx context.Context) (*llm.CompletionResponse, error) {
		return e.provider.Complete(ctx, req)
	})
	if err != nil {
		e.logger.Warn("dialogue generation exhausted retries, continuing degraded",
			"question_number", e.questionNumber,
			"error", err,
		)
		e.history = append(e.history, userMsg,
			llm.Message{Role: llm.RoleAssistant, Content: e.cfg.FallbackUtterance})
		return Turn{
			Text:           e.cfg.FallbackUtterance,
			QuestionNumber: e.questionNumber,
			Complete:       e.complete,
			Degraded:       true,
			Cause:          err,
		}, nil
	}

	e.history = append(e.history, userMsg,
		llm.Message{Role: llm.RoleAssistant, Content: resp.Content})
	e.questionNumber++
	if e.questionNumber >= e.cfg.QuestionCount {
		e.complete = true
	}

	return Turn{
		Text:           resp.Content,
		QuestionNumber: e.questionNumber,
		Complete:       e.complete,
	}, nil
}

// History returns a copy of the conversation so far.
func (e *Engine) History() []llm.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]llm.Message, len(e.history))
	copy(out, e.history)
	return out
}

// QuestionNumber returns the number of questions asked so far.
func (e *Engine) QuestionNumber() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.questionNumber
}

// Complete reports whether the configured question count was reached.
func (e *Engine) Complete() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.complete
}

// Reset clears history and counters for a fresh interview.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = nil
	e.questionNumber = 0
	e.complete = false
}

func (e *Engine) systemPrompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a professional job interviewer conducting a spoken interview with %s for the role of %s. ",
		e.cfg.CandidateName, e.cfg.Role)
	fmt.Fprintf(&b, "Ask exactly %d questions, one at a time, and keep each utterance short enough to be spoken aloud. ",
		e.cfg.QuestionCount)
	b.WriteString("React briefly to the candidate's previous answer before asking the next question. ")
	fmt.Fprintf(&b, "After the candidate answers question %d, thank them and close the interview.", e.cfg.QuestionCount)
	return b.String()
}
