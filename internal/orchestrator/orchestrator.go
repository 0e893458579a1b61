// Package orchestrator sequences one conversation turn: safety gate,
// practice fast paths, intent classification, the chosen answer branch,
// optional video lookup, and final sanitization. Conversation state flows
// in and out by value; nothing here is process-global, so concurrent
// sessions never share mutable state.
package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"studymate/internal/config"
	"studymate/internal/intent"
	"studymate/internal/llm"
	"studymate/internal/logging"
	"studymate/internal/practice"
	"studymate/internal/research"
	"studymate/internal/safety"
	"studymate/internal/sanitize"
	"studymate/internal/types"
	"studymate/internal/video"
)

// TokenSink receives raw incremental text while a reply streams. The final
// text committed to the response is sanitized separately; streaming is an
// optimization, never the source of truth.
type TokenSink func(token string)

// Canned fallbacks. Every failure branch maps to one of these; no raw
// error ever reaches the student, and none of them apologize.
const (
	hardFailFallback = "Let's take a step back and try that a different way. What part would you like to look at first?"
	declineText      = "No problem, we can try a question later. What would you like to do next?"
	correctText      = "That's right, well done! Want to keep going with this topic?"
	videoMissText    = "I couldn't find a good video for that right now. Want me to explain it instead?"
	practiceLeadIn   = "Here's one to try. "
	retryLeadIn      = "Not quite, have another go. "
)

const titleSystem = `Suggest a short title (3 to 6 words) for a tutoring conversation that starts with the given student message.
Return ONLY the title text. No quotes, no punctuation at the end.`

const teachSystem = `You are a friendly tutor for school students. Answer the student's message.
Rules:
- Teach only the surface idea in a few plain sentences. No advanced detail.
- Stay on the current topic unless the student clearly changed it.
- End with exactly one short checking question.
- %s`

const questionSystem = `Write one practice question for the topic, suitable for a school student who just had it explained.
Return ONLY a JSON object:
{"tool": "ask_practice_question", "question": "...", "correct_answers": "answer1, answer2", "topic": "..."}
Rules:
- The question must have a short, objective answer.
- correct_answers lists every acceptable short answer, comma-separated, including digit and word forms of numbers.`

type toolPayload struct {
	Tool           string `json:"tool"`
	Question       string `json:"question"`
	CorrectAnswers string `json:"correct_answers"`
	Topic          string `json:"topic"`
}

// Orchestrator owns the per-turn control flow.
type Orchestrator struct {
	cfg        *config.UserConfig
	gate       *safety.Gate
	classifier *intent.Classifier
	protocol   *practice.Protocol
	research   *research.Pipeline
	video      *video.Matcher
	primary    llm.Client
	fallback   llm.Client
}

// New wires an orchestrator. searchClient and videoBackend may be nil; the
// research pipeline then uses its default search client, and video lookups
// report no match.
func New(cfg *config.UserConfig, policy *config.Policy, primary, fallback llm.Client, searchClient research.SearchClient, videoBackend video.SearchBackend) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		gate:       safety.NewGate(policy),
		classifier: intent.NewClassifier(primary),
		protocol:   practice.NewProtocol(cfg.Practice.MaxAttempts),
		research:   research.NewPipeline(cfg.Research, policy, primary, fallback, searchClient),
		video:      video.NewMatcher(cfg.Video, policy, primary, videoBackend),
		primary:    primary,
		fallback:   fallback,
	}
}

// Turn processes one utterance and returns the sanitized reply plus the
// updated state. sink may be nil. Turn never returns an empty reply; every
// failure branch degrades to a canned text.
func (o *Orchestrator) Turn(ctx context.Context, req types.TurnRequest, sink TokenSink) (*types.TurnResponse, error) {
	state := req.State
	if state.Mode == "" {
		state.Mode = types.ModeChat
	}
	resp := &types.TurnResponse{}

	// Safety gate first. A block is normal control flow: deterministic
	// template, no model call, state untouched.
	if category, blocked := o.gate.Check(req.Text); blocked {
		logging.Orchestrator("input blocked by safety gate (category %s)", category)
		return o.commit(resp, &state, o.gate.Redirect(category), req.Preferences.PreferredLanguage), nil
	}

	// Practice fast paths run before intent classification; while a
	// question is pending or awaited, short replies mean practice moves.
	if state.AwaitingQuestion {
		if done, text := o.handleOfferReply(ctx, req, &state); done {
			return o.commit(resp, &state, text, req.Preferences.PreferredLanguage), nil
		}
	} else if state.AwaitingAnswer {
		return o.commit(resp, &state, o.handleAnswer(ctx, req, &state), req.Preferences.PreferredLanguage), nil
	}

	label, title := o.classifyAndTitle(ctx, req, &state)
	resp.SuggestedTitle = title

	var text string
	switch label {
	case intent.LabelGreeting:
		text = greetingText(req.Profile.Name)

	case intent.LabelVideo:
		text = o.handleVideo(ctx, req, &state, resp)

	case intent.LabelFactLookup, intent.LabelDeepResearch:
		text = o.handleResearch(ctx, req, &state, resp, label)

	case intent.LabelPractice:
		text = o.handlePracticeRequest(ctx, req, &state)

	default: // continuation, clarification
		if req.ForceWebSearch {
			// The caller override reaches the pipeline no matter how the
			// utterance classified.
			text = o.handleResearch(ctx, req, &state, resp, label)
		} else {
			text = o.teach(ctx, req, &state, sink)
		}
	}

	return o.commit(resp, &state, text, req.Preferences.PreferredLanguage), nil
}

// commit sanitizes the reply, records it on the state, and seals the
// response. This is the single exit point for every branch.
func (o *Orchestrator) commit(resp *types.TurnResponse, state *types.ConversationState, raw, lang string) *types.TurnResponse {
	processed := sanitize.ProcessWithRules(raw, sanitize.RulesFor(lang))
	if processed == "" {
		processed = sanitize.Process(hardFailFallback)
	}
	state.LastAssistantMessage = processed
	resp.ProcessedText = processed
	resp.State = *state
	resp.Topic = state.ActiveTopic
	return resp
}

// handleOfferReply resolves an utterance while a practice offer is
// pending. Returns done=false when the utterance is unrelated; the offer
// is withdrawn and normal processing continues.
func (o *Orchestrator) handleOfferReply(ctx context.Context, req types.TurnRequest, state *types.ConversationState) (bool, string) {
	if practice.IsAffirmative(req.Text) {
		question := o.protocol.Accept(state)
		return true, question
	}
	if intent.IsNegative(req.Text) {
		o.protocol.Decline(state)
		return true, declineText
	}
	// The student moved on; drop the offer and process the utterance.
	o.protocol.Decline(state)
	return false, ""
}

// handleAnswer grades a submission against the stored answer set.
func (o *Orchestrator) handleAnswer(ctx context.Context, req types.TurnRequest, state *types.ConversationState) string {
	question := state.PendingQuestion
	topic := state.ActiveTopic

	switch o.protocol.Submit(state, req.Text) {
	case practice.ResultCorrect:
		return correctText
	case practice.ResultRetry:
		return retryLeadIn + question
	default: // gave up: re-explain the concept
		prompt := fmt.Sprintf("Explain %s again, more simply than before. The student answered a practice question incorrectly several times.", topic)
		return o.teachPrompt(ctx, prompt, req, state, nil)
	}
}

// classifyAndTitle runs intent classification and, on the first turn of a
// session, title suggestion, concurrently. Either failing degrades
// independently: classification falls back inside the classifier, a
// failed title is simply absent.
func (o *Orchestrator) classifyAndTitle(ctx context.Context, req types.TurnRequest, state *types.ConversationState) (intent.Label, string) {
	var label intent.Label
	var title string

	callCtx, cancel := context.WithTimeout(ctx, o.cfg.LLM.CallTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(callCtx)
	g.Go(func() error {
		label = o.classifier.Classify(gctx, req.Text, state.ActiveTopic, state.Mode)
		return nil
	})
	if len(req.ChatHistory) == 0 {
		g.Go(func() error {
			suggested, err := o.primary.CompleteWithSystem(gctx, titleSystem, req.Text)
			if err != nil {
				logging.OrchestratorDebug("title suggestion failed: %v", err)
				return nil
			}
			title = strings.TrimSpace(suggested)
			return nil
		})
	}
	g.Wait()
	return label, title
}

// handleVideo runs the video branch. No match is a soft outcome with its
// own canned text.
func (o *Orchestrator) handleVideo(ctx context.Context, req types.TurnRequest, state *types.ConversationState, resp *types.TurnResponse) string {
	match, err := o.video.Match(ctx, req.Text, state.ActiveTopic)
	if err != nil || match == nil {
		return videoMissText
	}
	resp.Video = match
	return fmt.Sprintf("I found a video called %s by %s. Want to watch it and then talk about what you noticed?", match.Title, match.Channel)
}

// handleResearch runs the grounded-research branch and offers a follow-up
// practice question when the answer lands.
func (o *Orchestrator) handleResearch(ctx context.Context, req types.TurnRequest, state *types.ConversationState, resp *types.TurnResponse, label intent.Label) string {
	if label == intent.LabelDeepResearch {
		state.Mode = types.ModeResearch
	}
	force := req.ForceWebSearch || label == intent.LabelDeepResearch

	answer, err := o.research.Run(ctx, req.Text, force, state.Mode)
	if err != nil {
		logging.Orchestrator("research branch failed: %v", err)
		return research.SynthesisFallback
	}
	resp.Sources = answer.Sources
	o.protocol.AbandonOnTopicChange(state, topicFrom(req.Text))
	o.offerFollowUp(ctx, state)
	return answer.Text
}

// handlePracticeRequest generates a question on explicit request and moves
// straight to awaiting the answer. A malformed tool payload after the
// fallback-model retry hard-fails the turn with the deterministic text.
func (o *Orchestrator) handlePracticeRequest(ctx context.Context, req types.TurnRequest, state *types.ConversationState) string {
	topic := state.ActiveTopic
	if topic == "" {
		topic = topicFrom(req.Text)
	}
	if topic == "" {
		return "What topic should I quiz you on?"
	}

	call, err := o.generateQuestion(ctx, topic)
	if err != nil {
		logging.Orchestrator("practice generation failed: %v", err)
		return hardFailFallback
	}
	result := dispatchTool(call, state)
	if !result.Asked {
		return hardFailFallback
	}
	question := o.protocol.Accept(state)
	return practiceLeadIn + question
}

// offerFollowUp stores a practice question for the current topic so an
// affirmative next turn starts practice. Best effort: any failure leaves
// the state without an offer.
func (o *Orchestrator) offerFollowUp(ctx context.Context, state *types.ConversationState) {
	if state.ActiveTopic == "" {
		return
	}
	call, err := o.generateQuestion(ctx, state.ActiveTopic)
	if err != nil {
		logging.OrchestratorDebug("follow-up question generation failed: %v", err)
		return
	}
	dispatchTool(call, state)
}

// generateQuestion asks the model for one practice question via the
// structured tool payload. Schema failures retry once on the fallback
// model inside CompleteJSON.
func (o *Orchestrator) generateQuestion(ctx context.Context, topic string) (ToolCall, error) {
	var payload toolPayload
	if err := llm.CompleteJSON(ctx, o.primary, o.fallback, questionSystem, "Topic: "+topic, &payload); err != nil {
		return ToolCall{}, err
	}
	kind := ParseToolKind(payload.Tool)
	if kind == ToolNone {
		kind = ToolAskPracticeQuestion
	}
	if payload.Topic == "" {
		payload.Topic = topic
	}
	return ToolCall{
		Kind:           kind,
		Question:       payload.Question,
		CorrectAnswers: payload.CorrectAnswers,
		Topic:          payload.Topic,
	}, nil
}

// teach answers a continuation or clarification with one completion,
// streaming tokens to the sink when the client supports it. A first
// explanation on a fresh session establishes the active topic and queues
// a practice offer, the same way a research answer does.
func (o *Orchestrator) teach(ctx context.Context, req types.TurnRequest, state *types.ConversationState, sink TokenSink) string {
	text, err := o.completeTeach(ctx, req.Text, req, state, sink)
	if err != nil {
		logging.Orchestrator("teaching completion failed: %v", err)
		return research.SynthesisFallback
	}
	if state.ActiveTopic == "" {
		if topic := topicFrom(req.Text); topic != "" {
			o.protocol.AbandonOnTopicChange(state, topic)
			o.offerFollowUp(ctx, state)
		}
	}
	return text
}

func (o *Orchestrator) teachPrompt(ctx context.Context, prompt string, req types.TurnRequest, state *types.ConversationState, sink TokenSink) string {
	text, err := o.completeTeach(ctx, prompt, req, state, sink)
	if err != nil {
		logging.Orchestrator("teaching completion failed: %v", err)
		return research.SynthesisFallback
	}
	return text
}

func (o *Orchestrator) completeTeach(ctx context.Context, prompt string, req types.TurnRequest, state *types.ConversationState, sink TokenSink) (string, error) {
	system := fmt.Sprintf(teachSystem, toneFor(state.Mode, req.Profile))
	user := buildTeachPrompt(prompt, req, state)

	var text string
	var err error
	if streamer, ok := o.primary.(llm.StreamingClient); ok && sink != nil {
		text, err = streamer.CompleteStream(ctx, system, user, llm.TokenHandler(sink))
	} else {
		text, err = o.primary.CompleteWithSystem(ctx, system, user)
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", llm.ErrNoCompletion
	}
	return text, nil
}

func buildTeachPrompt(prompt string, req types.TurnRequest, state *types.ConversationState) string {
	var sb strings.Builder
	if state.ActiveTopic != "" {
		fmt.Fprintf(&sb, "Current topic: %s\n", state.ActiveTopic)
	}
	history := types.HistoryWindow(req.ChatHistory, 6)
	if len(history) > 0 {
		sb.WriteString("Recent conversation:\n")
		for _, m := range history {
			fmt.Fprintf(&sb, "%s: %s\n", m.Role, m.Content)
		}
	}
	fmt.Fprintf(&sb, "Student: %s", prompt)
	return sb.String()
}

func toneFor(mode types.Mode, profile types.StudentProfile) string {
	var sb strings.Builder
	switch mode {
	case types.ModeResearch:
		sb.WriteString("Be precise and mention when something comes from looked-up sources.")
	case types.ModeTeaching:
		sb.WriteString("Use an encouraging, step-by-step teaching tone.")
	default:
		sb.WriteString("Keep a warm conversational tone.")
	}
	if profile.GradeLevel != "" {
		fmt.Fprintf(&sb, " The student is at %s level.", profile.GradeLevel)
	}
	return sb.String()
}

func greetingText(name string) string {
	if name != "" {
		return fmt.Sprintf("Hi %s! What would you like to learn about today?", name)
	}
	return "Hi there! What would you like to learn about today?"
}

// topicFrom derives a rough topic string from an utterance: the utterance
// with leading question scaffolding removed.
func topicFrom(text string) string {
	norm := strings.TrimSpace(strings.TrimRight(text, "?!. "))
	lower := strings.ToLower(norm)
	for _, prefix := range []string{
		"what is ", "what are ", "what's ", "who is ", "who was ",
		"how do ", "how does ", "how did ", "why do ", "why does ",
		"tell me about ", "explain ", "teach me ", "quiz me on ", "test me on ",
	} {
		if strings.HasPrefix(lower, prefix) {
			return strings.TrimSpace(norm[len(prefix):])
		}
	}
	return norm
}
