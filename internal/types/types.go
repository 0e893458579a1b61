// Package types provides shared type definitions used across studymate packages.
// This package exists to break import cycles between the orchestrator and the
// classifier/pipeline packages. Types here are foundational data structures
// with no complex dependencies.
package types

import (
	"sort"
	"strings"
)

// =============================================================================
// CONVERSATION STATE
// =============================================================================

// Mode is the conversation mode governing tone constraints applied to
// model prompts. It is threaded explicitly through every call; there is
// no process-wide mode flag.
type Mode string

const (
	ModeChat     Mode = "chat"
	ModeResearch Mode = "research"
	ModeTeaching Mode = "teaching"
)

// ConversationState is the per-session state mutated exclusively by the
// orchestrator after each turn and persisted by the external session store.
// Invariant: AwaitingQuestion and AwaitingAnswer are never both true.
type ConversationState struct {
	ActiveTopic          string          `json:"active_topic,omitempty"`
	AwaitingQuestion     bool            `json:"awaiting_question"`
	AwaitingAnswer       bool            `json:"awaiting_answer"`
	CorrectAnswers       map[string]bool `json:"correct_answers,omitempty"`
	PendingQuestion      string          `json:"pending_question,omitempty"`
	AttemptCount         int             `json:"attempt_count"`
	LastAssistantMessage string          `json:"last_assistant_message,omitempty"`
	Mode                 Mode            `json:"mode"`
}

// NewConversationState returns an empty state in chat mode.
func NewConversationState() ConversationState {
	return ConversationState{Mode: ModeChat}
}

// SetCorrectAnswers replaces the stored answer keyword set, normalizing
// each entry (lowercased, trimmed). Empty entries are dropped.
func (s *ConversationState) SetCorrectAnswers(answers []string) {
	s.CorrectAnswers = make(map[string]bool, len(answers))
	for _, a := range answers {
		a = strings.ToLower(strings.TrimSpace(a))
		if a != "" {
			s.CorrectAnswers[a] = true
		}
	}
}

// AnswerKeywords returns the stored correct-answer keywords in sorted order.
func (s *ConversationState) AnswerKeywords() []string {
	keys := make([]string, 0, len(s.CorrectAnswers))
	for k := range s.CorrectAnswers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ClearPractice destroys the active practice question. Called on a correct
// answer, a give-up, or a topic change.
func (s *ConversationState) ClearPractice() {
	s.AwaitingQuestion = false
	s.AwaitingAnswer = false
	s.CorrectAnswers = nil
	s.PendingQuestion = ""
	s.AttemptCount = 0
}

// =============================================================================
// TURN REQUEST / RESPONSE
// =============================================================================

// ChatMessage is one prior turn in the short-term history window.
type ChatMessage struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// StudentProfile holds the caller-provided student identity.
type StudentProfile struct {
	Name       string `json:"name,omitempty"`
	GradeLevel string `json:"grade_level,omitempty"`
}

// Preferences holds the caller-declared formatting preferences.
type Preferences struct {
	PreferredLanguage string   `json:"preferred_language,omitempty"`
	Interests         []string `json:"interests,omitempty"`
}

// TurnRequest is one user utterance plus the context the orchestrator
// needs to process it.
type TurnRequest struct {
	SessionID      string
	Text           string
	ChatHistory    []ChatMessage
	State          ConversationState
	Profile        StudentProfile
	Preferences    Preferences
	ForceWebSearch bool
}

// SourceRef is a citation attached to a response.
type SourceRef struct {
	SourceName string `json:"source_name"`
	URL        string `json:"url"`
}

// TurnResponse is the orchestrator's output for one turn.
type TurnResponse struct {
	ProcessedText  string
	State          ConversationState
	Topic          string
	Sources        []SourceRef
	Video          *VideoCandidate
	SuggestedTitle string
}

// =============================================================================
// RESEARCH TYPES
// =============================================================================

// Fact is a short, source-attributed claim extracted from trusted content.
// Facts are produced only by the research pipeline, used as synthesis
// grounding, and discarded afterwards; they are never persisted.
type Fact struct {
	Claim      string `json:"claim"`
	SourceName string `json:"source_name"`
	URL        string `json:"url"`
}

// SearchResult is one candidate source returned by the search backend.
// Snippet is kept so the pipeline can fall back to it when the fetched
// page turns out to be a block page.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// =============================================================================
// VIDEO TYPES
// =============================================================================

// VideoCandidate is a candidate video attached to a single response.
// Never persisted beyond that response.
type VideoCandidate struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Channel      string `json:"channel"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// HistoryWindow returns the most recent n messages of history,
// most-recent-last.
func HistoryWindow(history []ChatMessage, n int) []ChatMessage {
	if n <= 0 || len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}
