// Package intent labels a student utterance against the active topic.
// A fixed-vocabulary fast path answers without the model; everything else
// is one completion against a closed label set. The classifier fails
// toward staying on-topic: any model failure degrades to "clarification"
// immediately, with no retry.
package intent

import (
	"context"
	"fmt"
	"strings"

	"studymate/internal/llm"
	"studymate/internal/logging"
	"studymate/internal/types"
)

// Label is one of the seven recognized intents.
type Label string

const (
	LabelContinuation  Label = "continuation"
	LabelClarification Label = "clarification"
	LabelVideo         Label = "video lookup"
	LabelGreeting      Label = "greeting"
	LabelFactLookup    Label = "fact lookup"
	LabelDeepResearch  Label = "deep research"
	LabelPractice      Label = "practice"
)

// allLabels is the closed label vocabulary, used to validate model output.
var allLabels = map[Label]bool{
	LabelContinuation:  true,
	LabelClarification: true,
	LabelVideo:         true,
	LabelGreeting:      true,
	LabelFactLookup:    true,
	LabelDeepResearch:  true,
	LabelPractice:      true,
}

// Fast-path vocabularies. Single-token matches resolve without a model call.
var (
	greetings = map[string]bool{
		"hi": true, "hello": true, "hey": true, "yo": true, "sup": true,
		"good morning": true, "good afternoon": true, "good evening": true,
		"hiya": true, "howdy": true,
	}
	affirmatives = map[string]bool{
		"yes": true, "yeah": true, "yep": true, "yup": true, "sure": true,
		"ok": true, "okay": true, "alright": true, "y": true, "si": true,
		"go on": true, "continue": true, "keep going": true, "more": true,
	}
	negatives = map[string]bool{
		"no": true, "nope": true, "nah": true, "n": true, "not now": true,
		"stop": true, "no thanks": true,
	}
)

// Classifier labels utterances; it holds the model client and nothing else.
type Classifier struct {
	client llm.Client
}

// NewClassifier creates an intent classifier.
func NewClassifier(client llm.Client) *Classifier {
	return &Classifier{client: client}
}

// FastPath resolves greetings and single-token affirmatives/negatives
// without the model. The second return is false when the utterance needs
// full classification.
func FastPath(text string) (Label, bool) {
	norm := normalize(text)
	if greetings[norm] {
		return LabelGreeting, true
	}
	if affirmatives[norm] || negatives[norm] {
		// Agreement and refusal both continue the current thread; the
		// orchestrator decides what they mean in context.
		return LabelContinuation, true
	}
	return "", false
}

// IsNegative reports whether text is a short refusal phrase.
func IsNegative(text string) bool {
	return negatives[normalize(text)]
}

// Classify labels one utterance against the active topic and conversation
// mode. On model failure the label degrades to clarification.
func (c *Classifier) Classify(ctx context.Context, utterance string, activeTopic string, mode types.Mode) Label {
	if label, ok := FastPath(utterance); ok {
		logging.IntentDebug("fast path: %q -> %s", utterance, label)
		return label
	}

	prompt := buildPrompt(utterance, activeTopic, mode)
	reply, err := c.client.CompleteWithSystem(ctx, classifierSystem, prompt)
	if err != nil {
		logging.Get(logging.CategoryIntent).Warn("classification failed, defaulting to clarification: %v", err)
		return LabelClarification
	}

	label := ParseLabel(reply)
	logging.Intent("utterance classified as %s (topic=%q)", label, activeTopic)
	return label
}

const classifierSystem = `You label a student's message for a tutoring assistant.
Answer with EXACTLY one lowercase label from this list and nothing else:
continuation, clarification, video lookup, greeting, fact lookup, deep research, practice

Rules, in priority order:
1. Short agreement or continuation phrases ("yes", "go on", "tell me more") are ALWAYS "continuation".
2. A question using "it", "that", or "this" to refer to the current topic is "clarification".
3. Asking to see or watch a video is "video lookup".
4. A request for a single current/factual datum (date, number, name) is "fact lookup".
5. A request to look something up in depth, or about current events, is "deep research".
6. Asking to be quizzed or to practice is "practice".
7. Only infer a topic change when the message is unambiguously about a new subject; when in doubt, prefer "clarification".`

func buildPrompt(utterance, activeTopic string, mode types.Mode) string {
	var sb strings.Builder
	if activeTopic != "" {
		fmt.Fprintf(&sb, "Current topic: %s\n", activeTopic)
	} else {
		sb.WriteString("Current topic: (none yet)\n")
	}
	fmt.Fprintf(&sb, "Conversation mode: %s\n", mode)
	fmt.Fprintf(&sb, "Student message: %s\n", utterance)
	sb.WriteString("Label:")
	return sb.String()
}

// ParseLabel extracts a valid label from a model reply, defaulting to
// clarification for anything outside the closed vocabulary.
func ParseLabel(reply string) Label {
	norm := normalize(reply)
	// Exact match first.
	if allLabels[Label(norm)] {
		return Label(norm)
	}
	// The model sometimes wraps the label in prose; take the first label
	// that appears, checked in a fixed order.
	ordered := []Label{
		LabelContinuation, LabelClarification, LabelVideo, LabelGreeting,
		LabelFactLookup, LabelDeepResearch, LabelPractice,
	}
	for _, label := range ordered {
		if strings.Contains(norm, string(label)) {
			return label
		}
	}
	return LabelClarification
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(s, ".!,\"'")
	return strings.Join(strings.Fields(s), " ")
}
