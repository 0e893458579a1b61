// Package practice manages the practice-question cycle: one offer, one
// concrete question, and grading, all tied to a single topic. Grading is
// deterministic keyword containment and never uses the language model, so
// every transition is reproducible in tests.
package practice

import (
	"regexp"
	"strings"

	"studymate/internal/logging"
	"studymate/internal/types"
)

// Question is a generated practice question with its answer keyword set.
type Question struct {
	Question       string
	CorrectAnswers []string
	Topic          string
}

// Result is the outcome of grading one submitted answer.
type Result int

const (
	// ResultCorrect ends the cycle; the stored question is destroyed.
	ResultCorrect Result = iota
	// ResultRetry keeps awaiting an answer with "try again" framing.
	ResultRetry
	// ResultGaveUp abandons the cycle after too many attempts; the
	// orchestrator re-explains the concept instead.
	ResultGaveUp
)

func (r Result) String() string {
	switch r {
	case ResultCorrect:
		return "correct"
	case ResultRetry:
		return "retry"
	case ResultGaveUp:
		return "gave_up"
	default:
		return "unknown"
	}
}

// affirmativeRe matches the small agreement vocabulary that accepts a
// practice offer.
var affirmativeRe = regexp.MustCompile(`(?i)^\s*(yes|yeah|yep|yup|sure|ok(ay)?|alright|sounds good|let'?s (go|do it)|i'?m ready|ready|go ahead|hit me)\b`)

// Protocol holds the policy knobs for the practice cycle.
type Protocol struct {
	maxAttempts int
}

// NewProtocol creates a protocol. maxAttempts is the number of incorrect
// attempts tolerated before the give-up path; values below 1 fall back to 2.
func NewProtocol(maxAttempts int) *Protocol {
	if maxAttempts < 1 {
		maxAttempts = 2
	}
	return &Protocol{maxAttempts: maxAttempts}
}

// Offer stores a generated question on the state and marks the offer as
// pending. Called after the first explanation of a topic.
func (p *Protocol) Offer(state *types.ConversationState, q Question) {
	state.PendingQuestion = q.Question
	state.SetCorrectAnswers(q.CorrectAnswers)
	state.AwaitingQuestion = true
	state.AwaitingAnswer = false
	state.AttemptCount = 0
	if q.Topic != "" {
		state.ActiveTopic = q.Topic
	}
	logging.PracticeDebug("offered practice question for topic %q", state.ActiveTopic)
}

// IsAffirmative reports whether text accepts a pending offer.
func IsAffirmative(text string) bool {
	return affirmativeRe.MatchString(text)
}

// Accept transitions a pending offer into awaiting-answer, returning the
// concrete question text. The attempt counter resets to zero.
func (p *Protocol) Accept(state *types.ConversationState) string {
	state.AwaitingQuestion = false
	state.AwaitingAnswer = true
	state.AttemptCount = 0
	logging.Practice("practice accepted for topic %q", state.ActiveTopic)
	return state.PendingQuestion
}

// Decline withdraws a pending offer and returns to plain teaching.
func (p *Protocol) Decline(state *types.ConversationState) {
	state.ClearPractice()
	logging.PracticeDebug("practice offer declined")
}

// Grade reports whether the normalized answer contains at least one
// normalized member of the correct set as a substring. Pure function;
// idempotent under repeated whitespace/case normalization.
func Grade(answer string, correctSet map[string]bool) bool {
	norm := normalize(answer)
	if norm == "" {
		return false
	}
	for keyword := range correctSet {
		if keyword != "" && strings.Contains(norm, keyword) {
			return true
		}
	}
	return false
}

// Submit grades a submitted answer and advances the state machine.
func (p *Protocol) Submit(state *types.ConversationState, answer string) Result {
	if Grade(answer, state.CorrectAnswers) {
		state.ClearPractice()
		logging.Practice("correct answer for topic %q", state.ActiveTopic)
		return ResultCorrect
	}

	state.AttemptCount++
	if state.AttemptCount > p.maxAttempts {
		// Enough attempts; abandon the question and re-explain.
		state.ClearPractice()
		logging.Practice("giving up after %d attempts on topic %q", state.AttemptCount, state.ActiveTopic)
		return ResultGaveUp
	}
	logging.PracticeDebug("incorrect attempt %d for topic %q", state.AttemptCount, state.ActiveTopic)
	return ResultRetry
}

// AbandonOnTopicChange destroys any stored question when the conversation
// moves to a new topic.
func (p *Protocol) AbandonOnTopicChange(state *types.ConversationState, newTopic string) {
	if state.ActiveTopic != "" && !strings.EqualFold(state.ActiveTopic, newTopic) {
		state.ClearPractice()
	}
	state.ActiveTopic = newTopic
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
