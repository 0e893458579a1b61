package llm

import (
	"context"
	"strings"
	"sync"
)

// MockClient is a scripted Client for tests. Responses are matched by
// substring against the concatenated system and user prompts, in
// registration order; Err (when set) is returned for every call.
type MockClient struct {
	mu        sync.Mutex
	rules     []mockRule
	fallback  string
	Err       error
	CallCount int
	Prompts   []string
}

type mockRule struct {
	match    string
	response string
}

// NewMockClient creates a mock that answers fallback for unmatched prompts.
func NewMockClient(fallback string) *MockClient {
	return &MockClient{fallback: fallback}
}

// On registers a scripted response for prompts containing match.
func (m *MockClient) On(match, response string) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{match: match, response: response})
	return m
}

func (m *MockClient) Complete(ctx context.Context, prompt string) (string, error) {
	return m.CompleteWithSystem(ctx, "", prompt)
}

func (m *MockClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCount++
	m.Prompts = append(m.Prompts, userPrompt)

	if m.Err != nil {
		return "", m.Err
	}
	combined := systemPrompt + "\n" + userPrompt
	for _, r := range m.rules {
		if strings.Contains(combined, r.match) {
			return r.response, nil
		}
	}
	return m.fallback, nil
}
