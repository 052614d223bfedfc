package dialogue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/intervox-ai/intervox/internal/resilience"
	"github.com/intervox-ai/intervox/pkg/provider/llm"
	"github.com/intervox-ai/intervox/pkg/provider/llm/mock"
)

func testRetryer() *resilience.Retryer {
	return resilience.NewRetryer(resilience.RetryConfig{
		Name:           "llm",
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		AttemptTimeout: time.Second,
	})
}

func testConfig() Config {
	return Config{CandidateName: "Ada", Role: "Backend Engineer", QuestionCount: 2}
}

func TestIntro_AppendsAssistantMessage(t *testing.T) {
	provider := &mock.Provider{Script: []mock.Result{mock.Reply("Welcome, Ada!")}}
	e := NewEngine(provider, testRetryer(), testConfig(), nil)

	turn := e.Intro(context.Background())
	if turn.Text != "Welcome, Ada!" {
		t.Errorf("Text = %q", turn.Text)
	}
	if turn.QuestionNumber != 0 {
		t.Errorf("intro must not count as a question, got %d", turn.QuestionNumber)
	}

	hist := e.History()
	if len(hist) != 1 || hist[0].Role != llm.RoleAssistant {
		t.Errorf("history = %+v, want single assistant message", hist)
	}

	// The intro request includes the system prompt.
	reqs := provider.Requests()
	if len(reqs) != 1 || reqs[0].SystemPrompt == "" {
		t.Error("intro request missing system prompt")
	}
}

func TestIntro_FallsBackOnFailure(t *testing.T) {
	provider := &mock.Provider{Script: []mock.Result{{Err: errors.New("down")}}}
	e := NewEngine(provider, testRetryer(), testConfig(), nil)

	turn := e.Intro(context.Background())
	if !turn.Degraded || turn.Cause == nil {
		t.Error("expected degraded intro with cause")
	}
	if turn.Text == "" {
		t.Error("fallback intro is empty")
	}
	if len(e.History()) != 1 {
		t.Errorf("history = %d entries, want 1", len(e.History()))
	}
}

func TestNextUtterance_AppendsPairAndCounts(t *testing.T) {
	provider := &mock.Provider{Script: []mock.Result{mock.Reply("Question one?")}}
	e := NewEngine(provider, testRetryer(), testConfig(), nil)

	turn, err := e.NextUtterance(context.Background(), "I love Go.")
	if err != nil {
		t.Fatalf("NextUtterance: %v", err)
	}
	if turn.Text != "Question one?" || turn.QuestionNumber != 1 || turn.Complete {
		t.Errorf("turn = %+v", turn)
	}

	hist := e.History()
	if len(hist) != 2 {
		t.Fatalf("history = %d entries, want user+assistant", len(hist))
	}
	if hist[0].Role != llm.RoleUser || hist[0].Content != "I love Go." {
		t.Errorf("hist[0] = %+v", hist[0])
	}
	if hist[1].Role != llm.RoleAssistant || hist[1].Content != "Question one?" {
		t.Errorf("hist[1] = %+v", hist[1])
	}
}

func TestNextUtterance_RequestShape(t *testing.T) {
	provider := &mock.Provider{Script: []mock.Result{mock.Reply("A"), mock.Reply("B")}}
	e := NewEngine(provider, testRetryer(), testConfig(), nil)

	e.NextUtterance(context.Background(), "first answer")
	e.NextUtterance(context.Background(), "second answer")

	reqs := provider.Requests()
	if len(reqs) != 2 {
		t.Fatalf("requests = %d, want 2", len(reqs))
	}
	// Second request carries full history plus the new user message.
	msgs := reqs[1].Messages
	if len(msgs) != 3 {
		t.Fatalf("second request messages = %d, want 3", len(msgs))
	}
	if msgs[0].Content != "first answer" || msgs[1].Content != "A" || msgs[2].Content != "second answer" {
		t.Errorf("second request messages = %+v", msgs)
	}
}

func TestNextUtterance_CompletionAtConfiguredCount(t *testing.T) {
	provider := &mock.Provider{Script: []mock.Result{mock.Reply("Q1"), mock.Reply("Thanks, we're done.")}}
	e := NewEngine(provider, testRetryer(), testConfig(), nil)

	turn, _ := e.NextUtterance(context.Background(), "answer 1")
	if turn.Complete {
		t.Error("complete after 1 of 2 questions")
	}
	turn, _ = e.NextUtterance(context.Background(), "answer 2")
	if !turn.Complete || turn.QuestionNumber != 2 {
		t.Errorf("turn = %+v, want complete at question 2", turn)
	}
	if !e.Complete() {
		t.Error("Complete() = false")
	}
}

func TestNextUtterance_FailTwiceThenSucceed(t *testing.T) {
	provider := &mock.Provider{Script: []mock.Result{
		{Err: errors.New("timeout")},
		{Err: errors.New("timeout")},
		mock.Reply("Recovered question?"),
	}}
	e := NewEngine(provider, testRetryer(), testConfig(), nil)

	turn, err := e.NextUtterance(context.Background(), "my answer")
	if err != nil {
		t.Fatalf("NextUtterance: %v", err)
	}
	if provider.CallCount() != 3 {
		t.Errorf("provider calls = %d, want exactly 3", provider.CallCount())
	}
	if turn.Degraded {
		t.Error("turn degraded despite eventual success")
	}
	if turn.Text != "Recovered question?" {
		t.Errorf("Text = %q", turn.Text)
	}
	// No duplicate assistant messages from the failed attempts.
	hist := e.History()
	if len(hist) != 2 {
		t.Errorf("history = %d entries, want 2", len(hist))
	}
}

func TestNextUtterance_ExhaustionFallsBack(t *testing.T) {
	provider := &mock.Provider{Script: []mock.Result{{Err: errors.New("down")}}}
	e := NewEngine(provider, testRetryer(), testConfig(), nil)

	turn, err := e.NextUtterance(context.Background(), "my answer")
	if err != nil {
		t.Fatalf("degraded turn must not error: %v", err)
	}
	if !turn.Degraded || turn.Cause == nil {
		t.Errorf("turn = %+v, want degraded with cause", turn)
	}
	if turn.Text != DefaultFallbackUtterance {
		t.Errorf("Text = %q, want fallback utterance", turn.Text)
	}
	if turn.QuestionNumber != 0 {
		t.Errorf("QuestionNumber = %d, fallback must not advance the counter", turn.QuestionNumber)
	}

	hist := e.History()
	if len(hist) != 2 {
		t.Fatalf("history = %d entries, want user+fallback pair", len(hist))
	}
	if hist[0].Content != "my answer" || hist[1].Content != DefaultFallbackUtterance {
		t.Errorf("history = %+v", hist)
	}
}

func TestReset(t *testing.T) {
	provider := &mock.Provider{Script: []mock.Result{mock.Reply("Q1"), mock.Reply("Q2")}}
	e := NewEngine(provider, testRetryer(), testConfig(), nil)

	e.NextUtterance(context.Background(), "a1")
	e.NextUtterance(context.Background(), "a2")
	e.Reset()

	if len(e.History()) != 0 || e.QuestionNumber() != 0 || e.Complete() {
		t.Error("Reset did not clear engine state")
	}
}
