// Package voicecmd recognizes spoken end-of-interview requests in final
// transcripts. Candidates say things like "end the interview" or "please
// stop the interview", and STT often mangles the words, so detection combines
// a literal pattern check with Double Metaphone phonetic matching ranked by
// Jaro-Winkler similarity.
package voicecmd

import (
	"regexp"
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// endPattern catches clean transcripts without going through the phonetic
// pass.
var endPattern = regexp.MustCompile(`(?i)\b(end|stop|finish|terminate)\s+(the\s+|this\s+)?interview\b`)

// nonWord strips punctuation before tokenizing.
var nonWord = regexp.MustCompile(`[^a-zA-Z0-9' ]+`)

// Option is a functional option for configuring a [Detector].
type Option func(*Detector)

// WithPhrases replaces the default set of trigger phrases.
func WithPhrases(phrases []string) Option {
	return func(d *Detector) { d.phrases = phrases }
}

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched phrase to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(d *Detector) { d.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic overlap is found. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(d *Detector) { d.fuzzyThreshold = threshold }
}

// Detector checks final transcripts for an end-of-interview command. It is
// read-only after construction and safe for concurrent use.
type Detector struct {
	phrases           []string
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a [Detector] with the default phrase set and thresholds.
func New(opts ...Option) *Detector {
	d := &Detector{
		phrases: []string{
			"end interview",
			"end the interview",
			"stop interview",
			"stop the interview",
			"finish the interview",
		},
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// IsEndCommand reports whether text contains a request to end the interview.
func (d *Detector) IsEndCommand(text string) bool {
	cleaned := strings.TrimSpace(nonWord.ReplaceAllString(text, " "))
	if cleaned == "" {
		return false
	}
	if endPattern.MatchString(cleaned) {
		return true
	}

	tokens := strings.Fields(strings.ToLower(cleaned))
	for _, phrase := range d.phrases {
		phraseTokens := strings.Fields(strings.ToLower(phrase))
		if d.matchesWindow(tokens, phraseTokens) {
			return true
		}
	}
	return false
}

// matchesWindow slides a window of len(phraseTokens) over the transcript and
// tests each n-gram against the phrase position by position. Every phrase
// token must line up with its window token, either sharing a Double
// Metaphone code with a Jaro-Winkler score over the phonetic threshold, or
// scoring over the stricter fuzzy threshold outright. Requiring alignment of
// every token keeps an answer that merely mentions "interview" from ending
// the session.
func (d *Detector) matchesWindow(tokens, phraseTokens []string) bool {
	n := len(phraseTokens)
	if n == 0 || len(tokens) < n {
		return false
	}

	for i := 0; i+n <= len(tokens); i++ {
		matched := true
		for j, pt := range phraseTokens {
			if !d.tokenMatches(tokens[i+j], pt) {
				matched = false
				break
			}
		}
		if matched {
			return true
		}
	}
	return false
}

// tokenMatches reports whether a spoken token is close enough to a phrase
// token.
func (d *Detector) tokenMatches(spoken, want string) bool {
	if spoken == want {
		return true
	}
	score := matchr.JaroWinkler(spoken, want, false)
	if codesOverlap(codesForTokens([]string{spoken}), codesForTokens([]string{want})) {
		return score >= d.phoneticThreshold
	}
	return score >= d.fuzzyThreshold
}

// codesForTokens returns the union of all Double Metaphone codes for the
// given tokens. Empty codes are excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap returns true if the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
