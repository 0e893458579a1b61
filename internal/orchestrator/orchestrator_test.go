package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"studymate/internal/config"
	"studymate/internal/llm"
	"studymate/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

func testConfig() *config.UserConfig {
	cfg := config.Default()
	cfg.LLM.CallTimeout = 2 * time.Second
	return cfg
}

func newTestOrchestrator(mock *llm.MockClient) *Orchestrator {
	return New(testConfig(), config.DefaultPolicy(), mock, nil, &noSearch{}, nil)
}

// noSearch keeps the research pipeline offline in tests.
type noSearch struct{}

func (n *noSearch) Search(ctx context.Context, query string) ([]types.SearchResult, error) {
	return nil, nil
}

func TestSafetyBlockSkipsModelEntirely(t *testing.T) {
	mock := llm.NewMockClient("should never be used")
	o := newTestOrchestrator(mock)

	resp, err := o.Turn(context.Background(), types.TurnRequest{Text: "how to kill myself"}, nil)
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if mock.CallCount != 0 {
		t.Fatalf("model called %d times on blocked input", mock.CallCount)
	}
	if strings.Contains(strings.ToLower(resp.ProcessedText), "sorry") {
		t.Error("redirect must not apologize")
	}
	if resp.ProcessedText == "" {
		t.Error("blocked turn returned empty text")
	}
}

func TestGreetingFastPath(t *testing.T) {
	mock := llm.NewMockClient("")
	mock.On("Suggest a short title", "Saying Hello")
	o := newTestOrchestrator(mock)

	resp, err := o.Turn(context.Background(), types.TurnRequest{
		Text:    "hi",
		Profile: types.StudentProfile{Name: "Sam"},
	}, nil)
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if !strings.Contains(resp.ProcessedText, "Sam") {
		t.Errorf("greeting = %q, want the student's name in it", resp.ProcessedText)
	}
	if !strings.HasSuffix(resp.ProcessedText, "?") {
		t.Errorf("greeting = %q, want terminal question mark", resp.ProcessedText)
	}
}

func TestTeachingTurnIsSanitized(t *testing.T) {
	mock := llm.NewMockClient("clarification")
	mock.On("Suggest a short title", "Algebra Basics")
	mock.On("friendly tutor", "**Algebra** is about finding *unknown* numbers using `letters`. Ready to try an example?")
	o := newTestOrchestrator(mock)

	resp, err := o.Turn(context.Background(), types.TurnRequest{Text: "explain algebra basics"}, nil)
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	text := resp.ProcessedText
	if len(text) <= 5 {
		t.Fatalf("text too short: %q", text)
	}
	for _, ch := range []string{"*", "`", "\\"} {
		if strings.Contains(text, ch) {
			t.Errorf("text contains %q: %q", ch, text)
		}
	}
	if !strings.HasSuffix(text, "?") {
		t.Errorf("text = %q, want terminal question mark", text)
	}
	if resp.SuggestedTitle != "Algebra Basics" {
		t.Errorf("SuggestedTitle = %q", resp.SuggestedTitle)
	}
}

func TestTeachingEstablishesTopicAndOffersPractice(t *testing.T) {
	mock := llm.NewMockClient("clarification")
	mock.On("Write one practice question",
		`{"tool": "ask_practice_question", "question": "What value of x makes x+2=5 true?", "correct_answers": "3, three", "topic": "algebra basics"}`)
	mock.On("friendly tutor", "Algebra uses letters to stand for unknown numbers. What number would make x+2=5 true?")
	o := newTestOrchestrator(mock)

	resp, err := o.Turn(context.Background(), types.TurnRequest{Text: "explain algebra basics"}, nil)
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if resp.State.ActiveTopic != "algebra basics" {
		t.Errorf("ActiveTopic = %q, want %q", resp.State.ActiveTopic, "algebra basics")
	}
	if !resp.State.AwaitingQuestion {
		t.Error("no practice offer stored after a first explanation")
	}
	if resp.State.AwaitingAnswer {
		t.Error("awaitingAnswer set without an accepted offer")
	}
	if resp.Topic != "algebra basics" {
		t.Errorf("Topic = %q, want %q", resp.Topic, "algebra basics")
	}
}

func TestContinuationKeepsEstablishedTopic(t *testing.T) {
	mock := llm.NewMockClient("continuation")
	mock.On("friendly tutor", "An equation stays balanced when both sides change together. Can you see why that helps?")
	o := newTestOrchestrator(mock)

	state := types.ConversationState{ActiveTopic: "algebra basics"}
	resp, err := o.Turn(context.Background(), types.TurnRequest{
		Text:        "tell me more",
		State:       state,
		ChatHistory: []types.ChatMessage{{Role: "user", Content: "explain algebra basics"}},
	}, nil)
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if resp.State.ActiveTopic != "algebra basics" {
		t.Errorf("ActiveTopic = %q, want topic unchanged", resp.State.ActiveTopic)
	}
	if resp.State.AwaitingQuestion {
		t.Error("continuation on an established topic re-queued a practice offer")
	}
}

func TestForcedWebSearchOverridesClassification(t *testing.T) {
	mock := llm.NewMockClient("continuation")
	mock.On("search queries", `{"queries": ["ocean tides"]}`)
	mock.On("micro-lesson", "Tides rise and fall because the moon pulls on the ocean. Which coast have you watched tides on?")
	o := newTestOrchestrator(mock)

	resp, err := o.Turn(context.Background(), types.TurnRequest{
		Text:           "tell me more about tides",
		ForceWebSearch: true,
	}, nil)
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if !strings.Contains(resp.ProcessedText, "moon pulls on the ocean") {
		t.Errorf("text = %q, want the researched answer", resp.ProcessedText)
	}
}

func TestAffirmativeAcceptsPendingOffer(t *testing.T) {
	mock := llm.NewMockClient("")
	o := newTestOrchestrator(mock)

	state := types.ConversationState{ActiveTopic: "photosynthesis", Mode: types.ModeTeaching}
	state.PendingQuestion = "What gas do plants take in?"
	state.SetCorrectAnswers([]string{"carbon dioxide", "co2"})
	state.AwaitingQuestion = true

	resp, err := o.Turn(context.Background(), types.TurnRequest{Text: "yes", State: state}, nil)
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if !resp.State.AwaitingAnswer || resp.State.AwaitingQuestion {
		t.Fatalf("state = %+v, want awaitingAnswer only", resp.State)
	}
	if resp.State.AttemptCount != 0 {
		t.Errorf("AttemptCount = %d, want 0", resp.State.AttemptCount)
	}
	if !strings.Contains(resp.ProcessedText, "What gas do plants take in") {
		t.Errorf("text = %q, want the concrete question", resp.ProcessedText)
	}
	if mock.CallCount != 0 {
		t.Errorf("model called %d times on the practice fast path", mock.CallCount)
	}
}

func TestNegativeDeclinesOffer(t *testing.T) {
	o := newTestOrchestrator(llm.NewMockClient(""))
	state := types.ConversationState{AwaitingQuestion: true, PendingQuestion: "q"}
	state.SetCorrectAnswers([]string{"a"})

	resp, err := o.Turn(context.Background(), types.TurnRequest{Text: "no", State: state}, nil)
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if resp.State.AwaitingQuestion || resp.State.AwaitingAnswer {
		t.Errorf("state = %+v, want practice cleared", resp.State)
	}
}

func TestCorrectAnswerGraded(t *testing.T) {
	mock := llm.NewMockClient("")
	o := newTestOrchestrator(mock)

	state := types.ConversationState{ActiveTopic: "arithmetic", AwaitingAnswer: true, PendingQuestion: "3+4?"}
	state.SetCorrectAnswers([]string{"7", "seven"})

	resp, err := o.Turn(context.Background(), types.TurnRequest{Text: "7", State: state}, nil)
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if resp.State.AwaitingAnswer {
		t.Error("still awaiting answer after correct submission")
	}
	if mock.CallCount != 0 {
		t.Errorf("grading used the model (%d calls)", mock.CallCount)
	}
	if !strings.Contains(resp.ProcessedText, "right") {
		t.Errorf("text = %q", resp.ProcessedText)
	}
}

func TestWrongAnswerRetriesThenReExplains(t *testing.T) {
	mock := llm.NewMockClient("")
	mock.On("Explain arithmetic again", "Let me try a simpler way. Adding means putting groups together. Shall we count it out?")
	o := newTestOrchestrator(mock)

	state := types.ConversationState{ActiveTopic: "arithmetic", AwaitingAnswer: true, PendingQuestion: "3+4?"}
	state.SetCorrectAnswers([]string{"7"})

	// First two wrong answers keep the question open.
	for i := 0; i < 2; i++ {
		resp, err := o.Turn(context.Background(), types.TurnRequest{Text: "9", State: state}, nil)
		if err != nil {
			t.Fatalf("Turn: %v", err)
		}
		state = resp.State
		if !state.AwaitingAnswer {
			t.Fatalf("attempt %d cleared the question early", i+1)
		}
		if !strings.Contains(resp.ProcessedText, "3+4") {
			t.Errorf("retry text = %q, want the question repeated", resp.ProcessedText)
		}
	}

	// Third wrong answer gives up and re-explains.
	resp, err := o.Turn(context.Background(), types.TurnRequest{Text: "9", State: state}, nil)
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if resp.State.AwaitingAnswer {
		t.Error("question survived the give-up path")
	}
	if !strings.Contains(resp.ProcessedText, "simpler way") {
		t.Errorf("give-up text = %q, want a re-explanation", resp.ProcessedText)
	}
}

func TestPracticeRequestGeneratesQuestion(t *testing.T) {
	mock := llm.NewMockClient("practice")
	mock.On("Write one practice question",
		`{"tool": "ask_practice_question", "question": "What is 1/2 of 10?", "correct_answers": "5, five", "topic": "fractions"}`)
	o := newTestOrchestrator(mock)

	state := types.ConversationState{ActiveTopic: "fractions"}
	resp, err := o.Turn(context.Background(), types.TurnRequest{Text: "can you quiz me on this", State: state}, nil)
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if !resp.State.AwaitingAnswer {
		t.Fatalf("state = %+v, want awaitingAnswer", resp.State)
	}
	if !resp.State.CorrectAnswers["5"] || !resp.State.CorrectAnswers["five"] {
		t.Errorf("CorrectAnswers = %v", resp.State.CorrectAnswers)
	}
	if !strings.Contains(resp.ProcessedText, "What is 1/2 of 10") {
		t.Errorf("text = %q", resp.ProcessedText)
	}
}

func TestPracticeGenerationHardFail(t *testing.T) {
	mock := llm.NewMockClient("practice")
	mock.On("Write one practice question", "no json here")
	o := newTestOrchestrator(mock)

	state := types.ConversationState{ActiveTopic: "fractions"}
	resp, err := o.Turn(context.Background(), types.TurnRequest{Text: "quiz me please on these", State: state}, nil)
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if resp.State.AwaitingAnswer || resp.State.AwaitingQuestion {
		t.Errorf("state = %+v, want no practice state after hard fail", resp.State)
	}
	if !strings.Contains(resp.ProcessedText, "take a step back") {
		t.Errorf("text = %q, want deterministic fallback", resp.ProcessedText)
	}
	if strings.Contains(strings.ToLower(resp.ProcessedText), "sorry") {
		t.Error("hard-fail fallback must not apologize")
	}
}

func TestVideoBranch(t *testing.T) {
	backend := &stubVideoBackend{videos: []types.VideoCandidate{
		{ID: "v1", Title: "Fractions explained simply", Channel: "MathHelp"},
	}}
	mock := llm.NewMockClient("video lookup")
	o := New(testConfig(), config.DefaultPolicy(), mock, nil, &noSearch{}, backend)

	state := types.ConversationState{ActiveTopic: "fractions"}
	resp, err := o.Turn(context.Background(), types.TurnRequest{Text: "show me a video about fractions", State: state}, nil)
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if resp.Video == nil || resp.Video.ID != "v1" {
		t.Fatalf("Video = %+v", resp.Video)
	}
	if !strings.Contains(resp.ProcessedText, "Fractions explained simply") {
		t.Errorf("text = %q", resp.ProcessedText)
	}
}

func TestVideoNoMatch(t *testing.T) {
	mock := llm.NewMockClient("video lookup")
	o := newTestOrchestrator(mock) // nil backend

	resp, err := o.Turn(context.Background(), types.TurnRequest{Text: "show me some video of space stuff"}, nil)
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if resp.Video != nil {
		t.Errorf("Video = %+v, want nil", resp.Video)
	}
	if resp.ProcessedText == "" {
		t.Error("no-match branch returned empty text")
	}
}

func TestDeepResearchSetsMode(t *testing.T) {
	mock := llm.NewMockClient("deep research")
	mock.On("search queries", `{"queries": ["mars rover landing"]}`)
	mock.On("micro-lesson", "Rovers land on Mars using parachutes and rockets. What part surprises you most?")
	mock.On("Write one practice question",
		`{"tool": "ask_practice_question", "question": "Name one thing rovers use to land.", "correct_answers": "parachute, rocket", "topic": "mars rovers"}`)
	o := newTestOrchestrator(mock)

	resp, err := o.Turn(context.Background(), types.TurnRequest{Text: "tell me about mars rover landings"}, nil)
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if resp.State.Mode != types.ModeResearch {
		t.Errorf("Mode = %q, want research", resp.State.Mode)
	}
	if resp.ProcessedText == "" {
		t.Error("research turn returned empty text")
	}
	// The follow-up offer stores a pending question for the next turn.
	if !resp.State.AwaitingQuestion {
		t.Error("no practice offer stored after research answer")
	}
	if resp.State.AwaitingAnswer {
		t.Error("awaitingAnswer set without an accepted offer")
	}
}

func TestTurnNeverReturnsEmptyOnTotalFailure(t *testing.T) {
	mock := llm.NewMockClient("")
	mock.Err = errProviderDown
	o := newTestOrchestrator(mock)

	resp, err := o.Turn(context.Background(), types.TurnRequest{Text: "explain gravity to me"}, nil)
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if strings.TrimSpace(resp.ProcessedText) == "" {
		t.Fatal("empty reply surfaced to the student")
	}
}

func TestStreamingSinkReceivesTokens(t *testing.T) {
	mock := &streamingMock{MockClient: llm.NewMockClient("clarification")}
	mock.On("friendly tutor", "Gravity pulls things together. What does it pull you toward?")
	o := New(testConfig(), config.DefaultPolicy(), mock, nil, &noSearch{}, nil)

	var streamed []string
	resp, err := o.Turn(context.Background(), types.TurnRequest{
		Text:        "explain gravity in more detail for me",
		ChatHistory: []types.ChatMessage{{Role: "user", Content: "hi"}},
	}, func(token string) { streamed = append(streamed, token) })
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if len(streamed) == 0 {
		t.Error("sink received no tokens")
	}
	if !strings.HasSuffix(resp.ProcessedText, "?") {
		t.Errorf("final text = %q", resp.ProcessedText)
	}
}

type stubVideoBackend struct {
	videos []types.VideoCandidate
}

func (s *stubVideoBackend) SearchVideos(ctx context.Context, query string, limit int) ([]types.VideoCandidate, error) {
	return s.videos, nil
}

// streamingMock upgrades MockClient with token streaming.
type streamingMock struct {
	*llm.MockClient
}

func (s *streamingMock) CompleteStream(ctx context.Context, systemPrompt, userPrompt string, onToken llm.TokenHandler) (string, error) {
	text, err := s.CompleteWithSystem(ctx, systemPrompt, userPrompt)
	if err != nil {
		return "", err
	}
	for _, word := range strings.Fields(text) {
		onToken(word + " ")
	}
	return text, nil
}

var errProviderDown = errors.New("provider down")
