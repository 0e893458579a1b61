package orchestrator

import (
	"strings"

	"studymate/internal/logging"
	"studymate/internal/types"
)

// ToolKind is the closed set of tools the model may invoke during a turn.
// Dispatch is an exhaustive switch, not a string-keyed router, so adding a
// kind without handling it fails at review rather than at runtime.
type ToolKind int

const (
	// ToolNone marks a reply that carries no tool call.
	ToolNone ToolKind = iota
	// ToolAskPracticeQuestion stores a practice question and its answer
	// keywords on the conversation state.
	ToolAskPracticeQuestion
)

// toolNames maps wire names to kinds. Unknown names map to ToolNone and
// the surrounding text is kept as-is.
var toolNames = map[string]ToolKind{
	"ask_practice_question": ToolAskPracticeQuestion,
}

// ToolCall is one parsed tool invocation from a model reply.
type ToolCall struct {
	Kind           ToolKind
	Question       string
	CorrectAnswers string // comma-separated on the wire
	Topic          string
}

// ToolResult is what a dispatched tool reports back.
type ToolResult struct {
	Asked                    bool
	NormalizedCorrectAnswers []string
}

// ParseToolKind resolves a wire tool name.
func ParseToolKind(name string) ToolKind {
	return toolNames[strings.ToLower(strings.TrimSpace(name))]
}

// dispatchTool applies one tool call to the conversation state. The switch
// is exhaustive over ToolKind.
func dispatchTool(call ToolCall, state *types.ConversationState) ToolResult {
	switch call.Kind {
	case ToolNone:
		return ToolResult{}
	case ToolAskPracticeQuestion:
		answers := splitAnswers(call.CorrectAnswers)
		if call.Question == "" || len(answers) == 0 {
			logging.OrchestratorDebug("practice tool call missing question or answers, ignored")
			return ToolResult{}
		}
		state.PendingQuestion = call.Question
		state.SetCorrectAnswers(answers)
		state.AwaitingQuestion = true
		state.AwaitingAnswer = false
		state.AttemptCount = 0
		if call.Topic != "" {
			state.ActiveTopic = call.Topic
		}
		return ToolResult{Asked: true, NormalizedCorrectAnswers: state.AnswerKeywords()}
	default:
		logging.Get(logging.CategoryOrchestrator).Warn("unhandled tool kind %d", call.Kind)
		return ToolResult{}
	}
}

// splitAnswers splits the wire's comma-separated answer list, trimming and
// lowercasing each entry.
func splitAnswers(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
