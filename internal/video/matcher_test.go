package video

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"studymate/internal/config"
	"studymate/internal/llm"
	"studymate/internal/types"
)

type stubBackend struct {
	videos  []types.VideoCandidate
	err     error
	queries []string
}

func (s *stubBackend) SearchVideos(ctx context.Context, query string, limit int) ([]types.VideoCandidate, error) {
	s.queries = append(s.queries, query)
	if s.err != nil {
		return nil, s.err
	}
	return s.videos, nil
}

func testPolicy() *config.Policy {
	return &config.Policy{
		BannedVideoKeywords: []string{"prank", "reaction", "gameplay", "vlog"},
		StopWords:           []string{"the", "a", "of", "how", "to", "what", "is"},
	}
}

func TestMatchFiltersBannedKeywords(t *testing.T) {
	backend := &stubBackend{videos: []types.VideoCandidate{
		{ID: "1", Title: "Fractions PRANK gone wrong", Channel: "FunTimes"},
		{ID: "2", Title: "Math gameplay stream", Channel: "Gamer"},
		{ID: "3", Title: "Understanding fractions step by step", Channel: "MathHelp"},
	}}
	m := NewMatcher(config.Default().Video, testPolicy(), nil, backend)

	got, err := m.Match(context.Background(), "show me a fractions video", "fractions")
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if got == nil || got.ID != "3" {
		t.Fatalf("got %+v, want candidate 3", got)
	}
}

func TestMatchBannedInChannel(t *testing.T) {
	m := NewMatcher(config.Default().Video, testPolicy(), nil, nil)
	c := types.VideoCandidate{Title: "Fractions explained", Channel: "Prank Masters"}
	if !m.Banned(c) {
		t.Error("banned keyword in channel name not caught")
	}
}

func TestRelevance(t *testing.T) {
	m := NewMatcher(config.Default().Video, testPolicy(), nil, nil)

	cases := []struct {
		title string
		topic string
		want  bool
	}{
		{"Understanding fractions", "fractions", true},
		{"What is photosynthesis", "the photosynthesis of plants", true},
		{"Cute cat compilation", "fractions", false},
		{"How to solve equations", "quadratic equations", true},
		{"The water cycle explained", "water cycle", true},
		// Short topic keywords (<= 3 runes) never match on their own.
		{"Sunday morning routines", "the sun", false},
		{"The sky above us", "the sky above", true}, // verbatim topic
	}
	for _, tc := range cases {
		c := types.VideoCandidate{Title: tc.title}
		if got := m.Relevant(c, tc.topic); got != tc.want {
			t.Errorf("Relevant(%q, %q) = %v, want %v", tc.title, tc.topic, got, tc.want)
		}
	}
}

func TestVagueQueryRewrite(t *testing.T) {
	mock := llm.NewMockClient("photosynthesis for kids")
	backend := &stubBackend{videos: []types.VideoCandidate{
		{ID: "1", Title: "Photosynthesis for kids", Channel: "Science4U"},
	}}
	m := NewMatcher(config.Default().Video, testPolicy(), mock, backend)

	got, err := m.Match(context.Background(), "show another better one", "photosynthesis")
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if got == nil {
		t.Fatal("expected a match")
	}
	if len(backend.queries) != 1 || backend.queries[0] != "photosynthesis for kids" {
		t.Errorf("queries = %v, want rewritten query", backend.queries)
	}
	if mock.CallCount != 1 {
		t.Errorf("rewrite calls = %d, want 1", mock.CallCount)
	}
}

func TestConcreteQueryUsedVerbatim(t *testing.T) {
	mock := llm.NewMockClient("should not be called")
	backend := &stubBackend{}
	m := NewMatcher(config.Default().Video, testPolicy(), mock, backend)

	m.Match(context.Background(), "volcano eruption explained for beginners", "volcanoes")
	if len(backend.queries) != 1 || backend.queries[0] != "volcano eruption explained for beginners" {
		t.Errorf("queries = %v", backend.queries)
	}
	if mock.CallCount != 0 {
		t.Errorf("rewrite calls = %d, want 0", mock.CallCount)
	}
}

func TestRewriteFailureFallsBackToTopic(t *testing.T) {
	mock := llm.NewMockClient("")
	mock.Err = errors.New("model down")
	backend := &stubBackend{}
	m := NewMatcher(config.Default().Video, testPolicy(), mock, backend)

	m.Match(context.Background(), "another one", "fractions")
	if len(backend.queries) != 1 || backend.queries[0] != "fractions" {
		t.Errorf("queries = %v, want topic fallback", backend.queries)
	}
}

func TestMatchNoBackend(t *testing.T) {
	m := NewMatcher(config.Default().Video, testPolicy(), nil, nil)
	got, err := m.Match(context.Background(), "video please", "fractions")
	if err != nil || got != nil {
		t.Errorf("got %+v, %v; want nil, nil", got, err)
	}
}

func TestMatchNoAcceptableCandidate(t *testing.T) {
	backend := &stubBackend{videos: []types.VideoCandidate{
		{ID: "1", Title: "Epic fail compilation", Channel: "LOL"},
	}}
	m := NewMatcher(config.Default().Video, testPolicy(), nil, backend)
	got, err := m.Match(context.Background(), "fractions video", "fractions")
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if got != nil {
		t.Errorf("got %+v, want nil", got)
	}
}

func TestAPIBackendSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") != "fractions" {
			t.Errorf("q = %q", r.URL.Query().Get("q"))
		}
		w.Write([]byte(`[
			{"videoId": "abc", "title": "Fractions", "author": "MathHelp", "videoThumbnails": [{"url": "https://i.example.org/abc.jpg"}]},
			{"videoId": "", "title": "broken entry"},
			{"videoId": "def", "title": "More fractions", "author": "MathHelp"}
		]`))
	}))
	defer srv.Close()

	cfg := config.VideoConfig{SearchURL: srv.URL, MaxResults: 8, FetchTimeout: 2 * time.Second}
	b := NewAPIBackend(cfg)
	videos, err := b.SearchVideos(context.Background(), "fractions", 1)
	if err != nil {
		t.Fatalf("SearchVideos: %v", err)
	}
	if len(videos) != 1 {
		t.Fatalf("len(videos) = %d, want 1 (limit)", len(videos))
	}
	if videos[0].ID != "abc" || videos[0].ThumbnailURL != "https://i.example.org/abc.jpg" {
		t.Errorf("videos[0] = %+v", videos[0])
	}
}

func TestNewAPIBackendNilWithoutURL(t *testing.T) {
	if b := NewAPIBackend(config.VideoConfig{}); b != nil {
		t.Error("expected nil backend when no search URL is configured")
	}
}
