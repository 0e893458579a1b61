// Package video finds one educational video for the current topic. A
// banned-keyword blacklist keeps entertainment content out; relevance is a
// deterministic keyword check against the active topic, never a model call.
package video

import (
	"context"
	"strings"

	"studymate/internal/config"
	"studymate/internal/llm"
	"studymate/internal/logging"
	"studymate/internal/types"
)

// vagueTerms are referential words that make a raw utterance useless as a
// search query without the active topic substituted in.
var vagueTerms = map[string]bool{
	"better": true, "another": true, "different": true, "this": true,
	"that": true, "it": true, "one": true, "again": true, "more": true,
	"other": true, "easier": true, "simpler": true,
}

const rewriteSystem = `Rewrite the student's request as a short video search query about the given topic.
Replace vague words ("better", "another", "this") with the topic itself.
Return ONLY the query text, nothing else.`

// SearchBackend returns candidate videos for a query.
type SearchBackend interface {
	SearchVideos(ctx context.Context, query string, limit int) ([]types.VideoCandidate, error)
}

// Matcher selects at most one relevant, policy-clean video per turn.
type Matcher struct {
	cfg     config.VideoConfig
	banned  []string
	stop    map[string]bool
	client  llm.Client
	backend SearchBackend
}

// NewMatcher builds a matcher from config and policy. client is used only
// for vague-query rewriting and may be nil to disable it.
func NewMatcher(cfg config.VideoConfig, policy *config.Policy, client llm.Client, backend SearchBackend) *Matcher {
	m := &Matcher{cfg: cfg, client: client, backend: backend}
	for _, kw := range policy.BannedVideoKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			m.banned = append(m.banned, kw)
		}
	}
	m.stop = make(map[string]bool, len(policy.StopWords))
	for _, w := range policy.StopWords {
		m.stop[strings.ToLower(strings.TrimSpace(w))] = true
	}
	return m
}

// Match searches for a video relevant to activeTopic. Returns nil, nil
// when no acceptable candidate exists; absence of a video is a normal
// outcome, not an error.
func (m *Matcher) Match(ctx context.Context, utterance, activeTopic string) (*types.VideoCandidate, error) {
	if m.backend == nil {
		return nil, nil
	}

	query := m.buildQuery(ctx, utterance, activeTopic)
	limit := m.cfg.MaxResults
	if limit < 1 {
		limit = 8
	}

	candidates, err := m.backend.SearchVideos(ctx, query, limit)
	if err != nil {
		logging.Video("video search for %q failed: %v", query, err)
		return nil, err
	}

	for _, c := range candidates {
		if m.Banned(c) {
			logging.VideoDebug("rejected banned video %q", c.Title)
			continue
		}
		if !m.Relevant(c, activeTopic) {
			logging.VideoDebug("rejected off-topic video %q", c.Title)
			continue
		}
		logging.Video("matched video %q for topic %q", c.Title, activeTopic)
		return &c, nil
	}
	return nil, nil
}

// buildQuery returns the search query: the raw utterance normally, or a
// model rewrite substituting the topic when the utterance is dominated by
// vague referential words. Rewrite failure falls back to the topic itself.
func (m *Matcher) buildQuery(ctx context.Context, utterance, activeTopic string) string {
	if !m.isVague(utterance) || activeTopic == "" {
		return utterance
	}
	if m.client == nil {
		return activeTopic
	}

	user := "Topic: " + activeTopic + "\nRequest: " + utterance
	rewritten, err := m.client.CompleteWithSystem(ctx, rewriteSystem, user)
	if err != nil || strings.TrimSpace(rewritten) == "" {
		logging.VideoDebug("query rewrite failed, using topic: %v", err)
		return activeTopic
	}
	return strings.TrimSpace(rewritten)
}

// isVague reports whether more than half the utterance's words are vague
// referential terms or stop-words.
func (m *Matcher) isVague(utterance string) bool {
	words := strings.Fields(strings.ToLower(utterance))
	if len(words) == 0 {
		return true
	}
	vague := 0
	for _, w := range words {
		w = strings.Trim(w, ".,!?")
		if vagueTerms[w] || m.stop[w] {
			vague++
		}
	}
	return vague*2 > len(words)
}

// Banned reports whether the candidate's title or channel contains a
// banned keyword.
func (m *Matcher) Banned(c types.VideoCandidate) bool {
	haystack := strings.ToLower(c.Title + " " + c.Channel)
	for _, kw := range m.banned {
		if strings.Contains(haystack, kw) {
			return true
		}
	}
	return false
}

// Relevant reports whether the candidate's title relates to the topic:
// either some topic keyword longer than 3 runes appears in the title, or
// the full topic string appears verbatim.
func (m *Matcher) Relevant(c types.VideoCandidate, topic string) bool {
	topic = strings.ToLower(strings.TrimSpace(topic))
	if topic == "" {
		return true
	}
	title := strings.ToLower(c.Title)
	if strings.Contains(title, topic) {
		return true
	}
	for _, w := range strings.Fields(topic) {
		w = strings.Trim(w, ".,!?")
		if len([]rune(w)) > 3 && !m.stop[w] && strings.Contains(title, w) {
			return true
		}
	}
	return false
}
